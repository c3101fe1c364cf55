package license

import (
	"github.com/smallbiznis/licensor/internal/license/repository"
	"github.com/smallbiznis/licensor/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(repository.ProvideLicenses),
	fx.Provide(repository.ProvideActivations),
	fx.Provide(service.New),
	fx.Provide(service.NewValidationService),
	fx.Provide(service.NewAdminService),
)
