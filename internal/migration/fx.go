package migration

import (
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	"github.com/smallbiznis/invora/internal/config"
	customerdomain "github.com/smallbiznis/invora/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// Other dialects (mysql, sqlite for local development) build the
		// schema from the models.
		return conn.AutoMigrate(
			&customerdomain.Customer{},
			&catalogdomain.Item{},
			&catalogdomain.TaxRate{},
			&invoicedomain.Invoice{},
			&invoicedomain.InvoiceItem{},
			&paymentdomain.Payment{},
			&recurringdomain.RecurringDefinition{},
			&recurringdomain.RecurringDefinitionItem{},
		)
	}),
)
