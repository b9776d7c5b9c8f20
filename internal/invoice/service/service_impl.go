package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	"github.com/smallbiznis/invora/internal/clock"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	"github.com/smallbiznis/invora/internal/invoice/format"
	"github.com/smallbiznis/invora/internal/money"
	"github.com/smallbiznis/invora/pkg/db"
	"github.com/smallbiznis/invora/pkg/db/option"
	"github.com/smallbiznis/invora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// numberRetries bounds duplicate invoice-number retries inside one create.
const numberRetries = 3

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	CatalogSvc catalogdomain.Service
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	catalogSvc  catalogdomain.Service
	invoicerepo repository.Repository[invoicedomain.Invoice]
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		catalogSvc:  p.CatalogSvc,
		invoicerepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
	}
}

// Create materializes a direct invoice. Catalog prices are resolved now
// and frozen on the lines; later catalog changes never touch this invoice.
func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	if len(req.Lines) == 0 {
		return nil, invoicedomain.ErrNoLineItems
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %s quantity %d", invoicedomain.ErrInvalidQuantity, line.ItemID, line.Quantity)
		}
	}

	itemIDs := make([]snowflake.ID, 0, len(req.Lines))
	for _, line := range req.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	prices, err := s.catalogSvc.GetPrices(ctx, req.OwnerID, itemIDs)
	if err != nil {
		return nil, err
	}

	var taxRateBps int64
	if req.TaxRateID != nil {
		taxRateBps, err = s.catalogSvc.GetTaxRate(ctx, req.OwnerID, *req.TaxRateID)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	invoiceID := s.genID.Generate()

	lines := make([]money.Line, 0, len(req.Lines))
	items := make([]invoicedomain.InvoiceItem, 0, len(req.Lines))
	for _, line := range req.Lines {
		unit := prices[line.ItemID]
		lines = append(lines, money.Line{UnitAmount: unit, Quantity: line.Quantity})
		items = append(items, invoicedomain.InvoiceItem{
			ID:         s.genID.Generate(),
			InvoiceID:  invoiceID,
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			UnitAmount: unit,
			Amount:     money.LineTotal(unit, line.Quantity),
			CreatedAt:  now,
		})
	}

	subTotal := money.Subtotal(lines)
	taxAmount := money.TaxAmount(subTotal, taxRateBps)

	invoice := &invoicedomain.Invoice{
		ID:            invoiceID,
		OwnerID:       req.OwnerID,
		CustomerID:    req.CustomerID,
		Status:        invoicedomain.InvoiceStatusDraft,
		PaymentStatus: invoicedomain.PaymentStatusUnpaid,
		SubTotal:      subTotal,
		TaxAmount:     taxAmount,
		AmountDue:     money.AmountDue(subTotal, taxAmount),
		TaxRateID:     req.TaxRateID,
		DueAt:         req.DueAt,
		Notes:         req.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         items,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insertNumbered(ctx, tx, invoice)
	})
	if err != nil {
		return nil, err
	}
	return invoice, nil
}

// insertNumbered mints a sequential number and inserts the invoice,
// retrying on a number collision under concurrent creates.
func (s *Service) insertNumbered(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice) error {
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
	}
	return lastErr
}

func (s *Service) Get(ctx context.Context, ownerID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return load(ctx, s.db, ownerID, id)
}

// load reads an invoice through the given handle so callers inside a
// transaction see their own uncommitted writes.
func load(ctx context.Context, tx *gorm.DB, ownerID, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) ([]*invoicedomain.Invoice, error) {
	filter := &invoicedomain.Invoice{OwnerID: req.OwnerID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.PaymentStatus != nil {
		filter.PaymentStatus = *req.PaymentStatus
	}
	if req.CustomerID != nil {
		filter.CustomerID = *req.CustomerID
	}

	return s.invoicerepo.Find(ctx, filter,
		option.WithSortBy("created_at", true),
	)
}

// MarkSent advances a delivered DRAFT invoice to SENT. Invoices already
// past DRAFT are left alone so a redelivery cannot regress workflow state.
func (s *Service) MarkSent(ctx context.Context, id snowflake.ID) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		invoicedomain.InvoiceStatusSent,
		now,
		id,
		invoicedomain.InvoiceStatusDraft,
	).Error
}

func (s *Service) MarkViewed(ctx context.Context, ownerID, id snowflake.ID) error {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND status = ?`,
		invoicedomain.InvoiceStatusViewed,
		now,
		id,
		ownerID,
		invoicedomain.InvoiceStatusSent,
	)
	return result.Error
}

func (s *Service) Reject(ctx context.Context, ownerID, id snowflake.ID) error {
	invoice, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if invoice.Status == invoicedomain.InvoiceStatusCompleted {
		// A fully paid invoice cannot be rejected.
		return invoicedomain.ErrInvoiceCompleted
	}
	return s.db.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?`,
		invoicedomain.InvoiceStatusRejected,
		s.clock.Now(),
		id,
	).Error
}

// Delete removes an invoice and its lines. Invoices with recorded
// payments are protected; the payments must be reversed first.
func (s *Service) Delete(ctx context.Context, ownerID, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := load(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		var paymentCount int64
		if err := tx.WithContext(ctx).Table("payments").
			Where("invoice_id = ?", invoice.ID).
			Count(&paymentCount).Error; err != nil {
			return err
		}
		if paymentCount > 0 {
			return invoicedomain.ErrInvoiceHasPayments
		}

		if err := tx.WithContext(ctx).
			Where("invoice_id = ?", invoice.ID).
			Delete(&invoicedomain.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Delete(&invoicedomain.Invoice{}, invoice.ID).Error
	})
}
