package customer

import (
	"github.com/smallbiznis/invora/internal/customer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("customer.service",
	fx.Provide(service.NewService),
)
