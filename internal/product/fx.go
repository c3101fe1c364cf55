package product

import (
	"github.com/smallbiznis/licensor/internal/product/repository"
	"github.com/smallbiznis/licensor/internal/product/service"
	"go.uber.org/fx"
)

// Module wires the product catalog: products and their license packages.
var Module = fx.Module("product",
	fx.Provide(repository.Provide, service.New),
)
