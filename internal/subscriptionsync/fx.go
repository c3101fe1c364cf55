package subscriptionsync

import (
	"github.com/smallbiznis/licensor/internal/subscriptionsync/repository"
	"github.com/smallbiznis/licensor/internal/subscriptionsync/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscriptionsync.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
