package catalog

import (
	"github.com/smallbiznis/invora/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(service.NewService),
)
