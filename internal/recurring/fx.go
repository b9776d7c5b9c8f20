package recurring

import (
	"github.com/smallbiznis/invora/internal/recurring/service"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring.service",
	fx.Provide(service.NewService),
)
