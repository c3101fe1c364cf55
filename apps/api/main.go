package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/licensor/internal/audit"
	"github.com/smallbiznis/licensor/internal/clock"
	"github.com/smallbiznis/licensor/internal/config"
	"github.com/smallbiznis/licensor/internal/csvupload"
	"github.com/smallbiznis/licensor/internal/license"
	"github.com/smallbiznis/licensor/internal/observability"
	"github.com/smallbiznis/licensor/internal/product"
	"github.com/smallbiznis/licensor/internal/ratelimit"
	"github.com/smallbiznis/licensor/internal/server"
	"github.com/smallbiznis/licensor/internal/subscriptionsync"
	"github.com/smallbiznis/licensor/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Public surface only: client software, uploads and the billing webhook
		audit.Module,
		product.Module,
		license.Module,
		csvupload.Module,
		subscriptionsync.Module,
		ratelimit.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterLicenseRoutes()
			s.RegisterUploadRoutes()
			s.RegisterWebhookRoutes()
		}),
		fx.Invoke(server.RunHTTP),
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
