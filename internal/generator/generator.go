// Package generator turns due recurring definitions into draft invoices
// and keeps their schedules moving. It runs on a ticker and can also be
// triggered on demand.
package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	"github.com/smallbiznis/invora/internal/clock"
	"github.com/smallbiznis/invora/internal/delivery"
	"github.com/smallbiznis/invora/internal/distlock"
	"github.com/smallbiznis/invora/internal/events"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	"github.com/smallbiznis/invora/internal/invoice/format"
	"github.com/smallbiznis/invora/internal/money"
	obsmetrics "github.com/smallbiznis/invora/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"github.com/smallbiznis/invora/internal/schedule"
	"github.com/smallbiznis/invora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// numberRetries bounds duplicate invoice-number retries per definition.
const numberRetries = 3

const (
	scanLockKey = "invora:generator:scan"
	scanLockTTL = 5 * time.Minute
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	CatalogSvc catalogdomain.Service
	Queue      delivery.Queue
	Bus        *events.Bus
	Redis      *redis.Client `optional:"true"`
	Config     Config        `optional:"true"`
}

type Generator struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	catalogSvc catalogdomain.Service
	queue      delivery.Queue
	bus        *events.Bus
	locker     *distlock.Locker
}

func New(p Params) *Generator {
	return &Generator{
		db:         p.DB,
		log:        p.Log.Named("generator"),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		catalogSvc: p.CatalogSvc,
		queue:      p.Queue,
		bus:        p.Bus,
		locker:     distlock.NewLocker(p.Redis),
	}
}

// RunForever runs generation scans on the configured interval until ctx
// ends.
func (g *Generator) RunForever(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := g.RunOnce(ctx); err != nil {
			g.log.Warn("generation run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one full scan: generate invoices for every due
// definition, then sweep unpaid invoices past their due date. A failing
// definition is skipped and retried next run; it never stops the batch.
func (g *Generator) RunOnce(ctx context.Context) error {
	// With redis configured, only one instance scans at a time. Losing
	// the lock is not an error; the holder covers the same work.
	if g.locker != nil {
		token, ok, err := g.locker.TryLock(ctx, scanLockKey, scanLockTTL)
		if err != nil {
			return err
		}
		if !ok {
			g.log.Debug("generation scan already running elsewhere")
			return nil
		}
		defer func() {
			if err := g.locker.Release(ctx, scanLockKey, token); err != nil {
				g.log.Warn("scan lock release failed", zap.Error(err))
			}
		}()
	}

	metrics := obsmetrics.Billing()
	metrics.IncGeneratorRun()
	start := time.Now()
	defer func() {
		metrics.ObserveGeneratorRun(time.Since(start).Seconds())
	}()

	var runErr error
	if err := g.generateDue(ctx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if err := g.sweepOverdue(ctx); err != nil {
		metrics.IncGeneratorError("overdue_sweep")
		runErr = errors.Join(runErr, err)
	}
	return runErr
}

func (g *Generator) generateDue(ctx context.Context) error {
	now := g.clock.Now()
	metrics := obsmetrics.Billing()
	var jobErr error

	// A definition that fails stays due, so without this it would be
	// re-claimed by the same run forever. It gets its next try on the
	// next run.
	failed := make(map[snowflake.ID]struct{})

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		definitions, err := g.claimDue(ctx, now)
		if err != nil {
			metrics.IncGeneratorError("claim")
			return errors.Join(jobErr, err)
		}

		progressed := false
		for _, definition := range definitions {
			if _, skip := failed[definition.ID]; skip {
				continue
			}
			if err := g.processDefinition(ctx, definition, now); err != nil {
				metrics.IncGeneratorError("generate")
				g.log.Warn("definition generation failed",
					zap.String("definition_id", definition.ID.String()),
					zap.Error(err),
				)
				jobErr = errors.Join(jobErr, fmt.Errorf("definition %s: %w", definition.ID, err))
				failed[definition.ID] = struct{}{}
				continue
			}
			progressed = true
		}

		if !progressed {
			return jobErr
		}
	}
}

// claimDue grabs a batch of due definitions in a short transaction.
// Locked rows are skipped so concurrent runs divide the work; the
// occurrence unique index keeps the race that remains after the claim
// lock is released from producing a second invoice.
func (g *Generator) claimDue(ctx context.Context, now time.Time) ([]recurringdomain.RecurringDefinition, error) {
	var definitions []recurringdomain.RecurringDefinition
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := `SELECT * FROM recurring_definitions
			 WHERE status = ? AND next_occurrence <= ?
			   AND (end_date IS NULL OR end_date >= ?)
			 ORDER BY next_occurrence
			 LIMIT ?` + db.ClaimLockSuffix(tx)
		return tx.Raw(query,
			recurringdomain.DefinitionStatusActive,
			now,
			now,
			g.cfg.BatchSize,
		).Scan(&definitions).Error
	})
	if err != nil {
		return nil, err
	}
	return definitions, nil
}

// processDefinition materializes one invoice for the definition's
// current occurrence and advances the schedule. The schedule moves only
// after the invoice exists, so a mid-flight failure leaves the
// definition due and retried on the next run.
func (g *Generator) processDefinition(ctx context.Context, definition recurringdomain.RecurringDefinition, now time.Time) error {
	occurrence := definition.NextOccurrence

	var invoice *invoicedomain.Invoice
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = g.materializeInvoice(ctx, tx, &definition, occurrence, now)
		if err != nil {
			return err
		}
		return g.advanceSchedule(ctx, tx, &definition, occurrence, now)
	})
	if err != nil {
		return err
	}

	obsmetrics.Billing().IncInvoiceGenerated()
	g.bus.Publish(ctx, events.TopicInvoiceGenerated, invoice.ID.String())

	// Delivery is fire-and-forget: an enqueue failure leaves a DRAFT
	// invoice for manual sending and never rolls the schedule back.
	if err := g.queue.Enqueue(ctx, delivery.Task{InvoiceID: invoice.ID}); err != nil {
		obsmetrics.Billing().IncGeneratorError("enqueue")
		g.log.Error("delivery enqueue failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
	}

	g.log.Info("invoice generated",
		zap.String("definition_id", definition.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.Time("occurrence", occurrence),
	)
	return nil
}

func (g *Generator) materializeInvoice(ctx context.Context, tx *gorm.DB, definition *recurringdomain.RecurringDefinition, occurrence, now time.Time) (*invoicedomain.Invoice, error) {
	// An invoice for this occurrence may already exist if a previous run
	// crashed between insert and schedule advance. Reuse it.
	existing, err := g.findByOccurrence(ctx, tx, definition.ID, occurrence)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var items []recurringdomain.RecurringDefinitionItem
	if err := tx.WithContext(ctx).
		Where("definition_id = ?", definition.ID).
		Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, recurringdomain.ErrNoItems
	}

	itemIDs := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ItemID)
	}
	prices, err := g.catalogSvc.GetPrices(ctx, definition.OwnerID, itemIDs)
	if err != nil {
		return nil, err
	}

	var taxRateBps int64
	if definition.TaxRateID != nil {
		taxRateBps, err = g.catalogSvc.GetTaxRate(ctx, definition.OwnerID, *definition.TaxRateID)
		if err != nil {
			return nil, err
		}
	}

	invoiceID := g.genID.Generate()
	lines := make([]money.Line, 0, len(items))
	invoiceItems := make([]invoicedomain.InvoiceItem, 0, len(items))
	for _, item := range items {
		unit := prices[item.ItemID]
		lines = append(lines, money.Line{UnitAmount: unit, Quantity: item.Quantity})
		invoiceItems = append(invoiceItems, invoicedomain.InvoiceItem{
			ID:         g.genID.Generate(),
			InvoiceID:  invoiceID,
			ItemID:     item.ItemID,
			Quantity:   item.Quantity,
			UnitAmount: unit,
			Amount:     money.LineTotal(unit, item.Quantity),
			CreatedAt:  now,
		})
	}

	subTotal := money.Subtotal(lines)
	taxAmount := money.TaxAmount(subTotal, taxRateBps)
	occurrenceAt := occurrence

	// Terms count from generation time, not the occurrence, so a late
	// catch-up run still gives the customer the full payment window.
	dueAt := now.AddDate(0, 0, definition.DueAfterDays)

	invoice := &invoicedomain.Invoice{
		ID:                    invoiceID,
		OwnerID:               definition.OwnerID,
		CustomerID:            definition.CustomerID,
		Status:                invoicedomain.InvoiceStatusDraft,
		PaymentStatus:         invoicedomain.PaymentStatusUnpaid,
		SubTotal:              subTotal,
		TaxAmount:             taxAmount,
		AmountDue:             money.AmountDue(subTotal, taxAmount),
		TaxRateID:             definition.TaxRateID,
		RecurringDefinitionID: &definition.ID,
		OccurrenceAt:          &occurrenceAt,
		DueAt:                 dueAt,
		Notes:                 definition.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
		Items:                 invoiceItems,
	}

	if err := g.insertNumbered(ctx, tx, invoice); err != nil {
		if db.IsDuplicateKeyErr(err) {
			// Lost the occurrence race to a concurrent run.
			if existing, findErr := g.findByOccurrence(ctx, tx, definition.ID, occurrence); findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return invoice, nil
}

func (g *Generator) findByOccurrence(ctx context.Context, tx *gorm.DB, definitionID snowflake.ID, occurrence time.Time) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Where("recurring_definition_id = ? AND occurrence_at = ?", definitionID, occurrence).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (g *Generator) insertNumbered(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("owner_id = ?", invoice.OwnerID).
		Count(&count).Error; err != nil {
		return err
	}

	var lastErr error
	for attempt := int64(0); attempt < numberRetries; attempt++ {
		number, err := format.FormatInvoiceNumber(format.DefaultInvoiceNumberTemplate, invoice.CreatedAt, count+1+attempt)
		if err != nil {
			return err
		}
		invoice.Number = number

		// Savepoint per attempt: postgres aborts the whole transaction
		// after a failed INSERT, so the retry must roll back to here.
		if err := tx.SavePoint("insert_invoice").Error; err != nil {
			return err
		}
		lastErr = tx.WithContext(ctx).Create(invoice).Error
		if lastErr == nil {
			return nil
		}
		if rbErr := tx.RollbackTo("insert_invoice").Error; rbErr != nil {
			return rbErr
		}
		if !db.IsDuplicateKeyErr(lastErr) {
			return lastErr
		}
		// The occurrence index, not the number index, may have fired;
		// the caller resolves that case.
		if existing, findErr := g.findByOccurrence(ctx, tx, *invoice.RecurringDefinitionID, *invoice.OccurrenceAt); findErr == nil && existing != nil {
			return lastErr
		}
	}
	return lastErr
}

func (g *Generator) advanceSchedule(ctx context.Context, tx *gorm.DB, definition *recurringdomain.RecurringDefinition, occurrence, now time.Time) error {
	next, err := schedule.Advance(definition.Frequency, occurrence, definition.Anchor())
	if err != nil {
		return err
	}

	status := recurringdomain.DefinitionStatusActive
	if definition.EndDate != nil && next.After(*definition.EndDate) {
		status = recurringdomain.DefinitionStatusCompleted
	}

	return tx.WithContext(ctx).Exec(
		`UPDATE recurring_definitions
		 SET next_occurrence = ?, last_generated_at = ?, generated_count = generated_count + 1,
		     status = ?, updated_at = ?
		 WHERE id = ?`,
		next,
		now,
		status,
		now,
		definition.ID,
	).Error
}

// sweepOverdue flips unpaid invoices past their due date to OVERDUE. A
// later payment re-derives the payment status, so OVERDUE recovers to
// PARTIAL or PAID on its own.
func (g *Generator) sweepOverdue(ctx context.Context) error {
	now := g.clock.Now()
	result := g.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET payment_status = ?, updated_at = ?
		 WHERE payment_status IN (?, ?) AND due_at < ? AND status <> ?`,
		invoicedomain.PaymentStatusOverdue,
		now,
		invoicedomain.PaymentStatusUnpaid,
		invoicedomain.PaymentStatusPartial,
		now,
		invoicedomain.InvoiceStatusRejected,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		metrics := obsmetrics.Billing()
		for i := int64(0); i < result.RowsAffected; i++ {
			metrics.IncInvoiceOverdue()
		}
		g.log.Info("invoices marked overdue", zap.Int64("count", result.RowsAffected))
	}
	return nil
}
