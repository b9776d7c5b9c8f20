// Package server exposes the billing API over HTTP.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/invora/internal/config"
	"github.com/smallbiznis/invora/internal/delivery"
	"github.com/smallbiznis/invora/internal/generator"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	recurringSvc recurringdomain.Service
	gen          *generator.Generator
	queue        delivery.Queue
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	RecurringSvc recurringdomain.Service
	Generator    *generator.Generator
	Queue        delivery.Queue
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		recurringSvc: p.RecurringSvc,
		gen:          p.Generator,
		queue:        p.Queue,
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) RegisterRoutes() {
	v1 := s.engine.Group("/v1")

	recurring := v1.Group("/recurring-definitions")
	recurring.POST("", s.CreateRecurringDefinition)
	recurring.GET("", s.ListRecurringDefinitions)
	recurring.GET("/:id", s.GetRecurringDefinition)
	recurring.PATCH("/:id", s.UpdateRecurringDefinition)
	recurring.PUT("/:id/status", s.UpdateRecurringDefinitionStatus)
	recurring.DELETE("/:id", s.DeleteRecurringDefinition)

	v1.POST("/generate", s.TriggerGeneration)

	invoices := v1.Group("/invoices")
	invoices.POST("", s.CreateInvoice)
	invoices.GET("", s.ListInvoices)
	invoices.GET("/:id", s.GetInvoice)
	invoices.POST("/:id/send", s.SendInvoice)
	invoices.POST("/:id/viewed", s.MarkInvoiceViewed)
	invoices.POST("/:id/reject", s.RejectInvoice)
	invoices.DELETE("/:id", s.DeleteInvoice)

	invoices.POST("/:id/payments", s.RecordPayment)
	invoices.GET("/:id/payments", s.ListPayments)
	payments := v1.Group("/payments")
	payments.PATCH("/:id", s.UpdatePayment)
	payments.DELETE("/:id", s.DeletePayment)
}

// ownerID resolves the acting account from the X-Owner-ID header. There
// is no authentication layer; the header stands in for it.
func ownerID(c *gin.Context) (snowflake.ID, bool) {
	raw := c.GetHeader("X-Owner-ID")
	if raw == "" {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return snowflake.ID(id), true
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return snowflake.ID(id), true
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidRequest
	}
	return snowflake.ID(id), nil
}
