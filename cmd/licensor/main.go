package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/migration"
	"github.com/smallbiznis/licensor/internal/observability"
	"github.com/smallbiznis/licensor/internal/scheduler"
	"github.com/smallbiznis/licensor/internal/server"
	"github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/fx"
)

// Single binary: license API, admin API, webhook receiver and scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
