package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invora/internal/clock"
	customerdomain "github.com/smallbiznis/invora/internal/customer/domain"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invora/internal/observability/metrics"
	"github.com/smallbiznis/invora/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Config struct {
	Concurrency  int
	MaxAttempts  int
	BackoffBase  time.Duration
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 5 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

type WorkerParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Queue       Queue
	Provider    email.Provider
	InvoiceSvc  invoicedomain.Service
	CustomerSvc customerdomain.Service
	Clock       clock.Clock
	Config      Config `optional:"true"`
}

// Worker drains the delivery queue. A send failure reschedules the task
// with exponential backoff until the attempt budget runs out, then the
// task is dead-lettered; the invoice itself is never marked failed.
type Worker struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         Config
	queue       Queue
	provider    email.Provider
	invoiceSvc  invoicedomain.Service
	customerSvc customerdomain.Service
	clock       clock.Clock
}

func NewWorker(p WorkerParam) *Worker {
	return &Worker{
		db:          p.DB,
		log:         p.Log.Named("delivery.worker"),
		cfg:         p.Config.withDefaults(),
		queue:       p.Queue,
		provider:    p.Provider,
		invoiceSvc:  p.InvoiceSvc,
		customerSvc: p.CustomerSvc,
		clock:       p.Clock,
	}
}

// Run polls the queue with cfg.Concurrency workers until ctx ends.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.DrainOnce(ctx); err != nil {
			w.log.Warn("delivery drain failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DrainOnce processes queued tasks until the queue reports empty.
func (w *Worker) DrainOnce(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}
		w.process(ctx, *task)
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	obsmetrics.Billing().IncDeliveryAttempt()

	err := w.deliver(ctx, task)
	if err == nil {
		return
	}

	task.Attempt++
	if task.Attempt >= w.cfg.MaxAttempts {
		obsmetrics.Billing().IncDeliveryFailure()
		w.log.Error("delivery exhausted retries",
			zap.String("invoice_id", task.InvoiceID.String()),
			zap.Int("attempts", task.Attempt),
			zap.Error(err),
		)
		if dlErr := w.queue.DeadLetter(ctx, task, err.Error()); dlErr != nil {
			w.log.Error("dead-letter failed", zap.Error(dlErr))
		}
		return
	}

	obsmetrics.Billing().IncDeliveryRetry()
	delay := w.backoff(task.Attempt)
	w.log.Warn("delivery failed, rescheduling",
		zap.String("invoice_id", task.InvoiceID.String()),
		zap.Int("attempt", task.Attempt),
		zap.Duration("delay", delay),
		zap.Error(err),
	)
	if reErr := w.queue.EnqueueAfter(ctx, task, delay); reErr != nil {
		w.log.Error("reschedule failed", zap.Error(reErr))
	}
}

// backoff doubles per attempt from the configured base: 5s, 10s, 20s.
func (w *Worker) backoff(attempt int) time.Duration {
	return w.cfg.BackoffBase << (attempt - 1)
}

func (w *Worker) deliver(ctx context.Context, task Task) error {
	invoice, customer, err := w.loadRecipient(ctx, task.InvoiceID)
	if err != nil {
		return err
	}
	if customer.Email == "" {
		return fmt.Errorf("customer %s has no email address", customer.ID)
	}

	subject := renderSubject(task.Subject, invoice.Number)
	body, err := renderBody(customer.ContactName, customer.CompanyName, invoice.Number, task.Message, invoice.AmountDue, invoice.DueAt)
	if err != nil {
		return err
	}

	if err := w.provider.Send(ctx, []string{customer.Email}, subject, body); err != nil {
		return err
	}
	return w.invoiceSvc.MarkSent(ctx, invoice.ID)
}

type recipientInvoice struct {
	ID         snowflake.ID
	OwnerID    snowflake.ID
	CustomerID snowflake.ID
	Number     string
	AmountDue  int64
	DueAt      time.Time
}

func (w *Worker) loadRecipient(ctx context.Context, invoiceID snowflake.ID) (*recipientInvoice, *customerdomain.Customer, error) {
	var invoice recipientInvoice
	err := w.db.WithContext(ctx).Raw(
		`SELECT id, owner_id, customer_id, number, amount_due, due_at FROM invoices WHERE id = ?`,
		invoiceID,
	).Scan(&invoice).Error
	if err != nil {
		return nil, nil, err
	}
	if invoice.ID == 0 {
		return nil, nil, invoicedomain.ErrInvoiceNotFound
	}

	customer, err := w.customerSvc.Get(ctx, invoice.OwnerID, invoice.CustomerID)
	if err != nil {
		return nil, nil, err
	}
	return &invoice, customer, nil
}
