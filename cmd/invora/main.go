package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invora/internal/catalog"
	"github.com/smallbiznis/invora/internal/clock"
	"github.com/smallbiznis/invora/internal/config"
	"github.com/smallbiznis/invora/internal/customer"
	"github.com/smallbiznis/invora/internal/delivery"
	"github.com/smallbiznis/invora/internal/events"
	"github.com/smallbiznis/invora/internal/generator"
	"github.com/smallbiznis/invora/internal/invoice"
	"github.com/smallbiznis/invora/internal/logger"
	"github.com/smallbiznis/invora/internal/migration"
	"github.com/smallbiznis/invora/internal/payment"
	"github.com/smallbiznis/invora/internal/providers/email"
	"github.com/smallbiznis/invora/internal/recurring"
	"github.com/smallbiznis/invora/internal/server"
	"github.com/smallbiznis/invora/pkg/db"
	"go.uber.org/fx"
)

// The monolith: API, generator and delivery worker in one process.
func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		events.Module,
		migration.Module,

		customer.Module,
		catalog.Module,
		invoice.Module,
		payment.Module,
		recurring.Module,

		email.Module,
		delivery.Module,
		generator.Module,

		server.Module,
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
