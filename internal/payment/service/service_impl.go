package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invora/internal/clock"
	"github.com/smallbiznis/invora/internal/events"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/invora/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
	"github.com/smallbiznis/invora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Bus   *events.Bus
}

// Service applies payment events to invoices. Every mutation runs inside
// a transaction holding an exclusive lock on the invoice row, so two
// concurrent payments cannot both pass the overpayment check against a
// stale balance.
type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	bus   *events.Bus
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		clock: p.Clock,
		bus:   p.Bus,
	}
}

// lockedInvoice is the monetary slice of an invoice read under lock.
type lockedInvoice struct {
	ID            snowflake.ID
	OwnerID       snowflake.ID
	Status        invoicedomain.InvoiceStatus
	PaymentStatus invoicedomain.PaymentStatus
	AmountDue     int64
	AmountPaid    int64
}

func (i *lockedInvoice) RemainingBalance() int64 {
	return i.AmountDue - i.AmountPaid
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, ownerID, invoiceID snowflake.ID) (*lockedInvoice, error) {
	var invoice lockedInvoice
	query := `SELECT id, owner_id, status, payment_status, amount_due, amount_paid
		 FROM invoices
		 WHERE id = ? AND owner_id = ?` + db.RowLockSuffix(tx)
	if err := tx.WithContext(ctx).Raw(query, invoiceID, ownerID).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return &invoice, nil
}

// applyAmountPaid writes the re-derived monetary state back to the
// invoice. PAID forces COMPLETED; dropping below PAID reverts a
// COMPLETED invoice to SENT and never to an earlier workflow state.
func (s *Service) applyAmountPaid(ctx context.Context, tx *gorm.DB, invoice *lockedInvoice, newAmountPaid int64) (becamePaid bool, err error) {
	newPaymentStatus := invoicedomain.PaymentStatusFor(newAmountPaid, invoice.AmountDue)

	newStatus := invoice.Status
	switch {
	case newPaymentStatus == invoicedomain.PaymentStatusPaid:
		newStatus = invoicedomain.InvoiceStatusCompleted
	case invoice.Status == invoicedomain.InvoiceStatusCompleted:
		newStatus = invoicedomain.InvoiceStatusSent
	}

	err = tx.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, payment_status = ?, status = ?, updated_at = ?
		 WHERE id = ?`,
		newAmountPaid,
		newPaymentStatus,
		newStatus,
		s.clock.Now(),
		invoice.ID,
	).Error
	if err != nil {
		return false, err
	}

	becamePaid = newPaymentStatus == invoicedomain.PaymentStatusPaid &&
		invoice.PaymentStatus != invoicedomain.PaymentStatusPaid
	return becamePaid, nil
}

func (s *Service) Record(ctx context.Context, req paymentdomain.RecordPaymentRequest) (*paymentdomain.Payment, error) {
	if req.Amount <= 0 {
		obsmetrics.Billing().IncPaymentRejected("invalid_amount")
		return nil, fmt.Errorf("%w: %d", paymentdomain.ErrInvalidAmount, req.Amount)
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	payment := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		PaidAt:    paidAt,
		Reference: req.Reference,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var becamePaid bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, req.OwnerID, req.InvoiceID)
		if err != nil {
			return err
		}

		// Checked against the live remaining balance, not any historical
		// cumulative amount.
		if req.Amount > invoice.RemainingBalance() {
			obsmetrics.Billing().IncPaymentRejected("overpayment")
			return fmt.Errorf("%w: amount %d, remaining %d",
				paymentdomain.ErrOverpayment, req.Amount, invoice.RemainingBalance())
		}

		if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
			return err
		}

		becamePaid, err = s.applyAmountPaid(ctx, tx, invoice, invoice.AmountPaid+req.Amount)
		return err
	})
	if err != nil {
		return nil, err
	}

	if becamePaid {
		s.bus.Publish(ctx, events.TopicInvoiceFullyPaid, req.InvoiceID.String())
	}
	return payment, nil
}

func (s *Service) Update(ctx context.Context, req paymentdomain.UpdatePaymentRequest) (*paymentdomain.Payment, error) {
	var (
		updated    paymentdomain.Payment
		becamePaid bool
		invoiceID  snowflake.ID
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.findOwned(ctx, tx, req.OwnerID, req.PaymentID)
		if err != nil {
			return err
		}
		invoiceID = payment.InvoiceID

		if req.Amount != nil && *req.Amount != payment.Amount {
			if *req.Amount <= 0 {
				obsmetrics.Billing().IncPaymentRejected("invalid_amount")
				return fmt.Errorf("%w: %d", paymentdomain.ErrInvalidAmount, *req.Amount)
			}

			invoice, err := s.lockInvoice(ctx, tx, req.OwnerID, payment.InvoiceID)
			if err != nil {
				return err
			}

			delta := *req.Amount - payment.Amount
			newAmountPaid := invoice.AmountPaid + delta
			if newAmountPaid > invoice.AmountDue {
				obsmetrics.Billing().IncPaymentRejected("overpayment")
				return fmt.Errorf("%w: edited total %d exceeds due %d",
					paymentdomain.ErrOverpayment, newAmountPaid, invoice.AmountDue)
			}
			if newAmountPaid < 0 {
				obsmetrics.Billing().IncPaymentRejected("negative")
				return fmt.Errorf("%w: edited total %d", paymentdomain.ErrNegativePayment, newAmountPaid)
			}

			becamePaid, err = s.applyAmountPaid(ctx, tx, invoice, newAmountPaid)
			if err != nil {
				return err
			}
			payment.Amount = *req.Amount
		}

		if req.Method != nil {
			payment.Method = *req.Method
		}
		if req.PaidAt != nil {
			payment.PaidAt = *req.PaidAt
		}
		if req.Reference != nil {
			payment.Reference = *req.Reference
		}
		if req.Notes != nil {
			payment.Notes = *req.Notes
		}
		payment.UpdatedAt = s.clock.Now()

		if err := tx.WithContext(ctx).Save(payment).Error; err != nil {
			return err
		}
		updated = *payment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if becamePaid {
		s.bus.Publish(ctx, events.TopicInvoiceFullyPaid, invoiceID.String())
	}
	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, paymentID snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.findOwned(ctx, tx, ownerID, paymentID)
		if err != nil {
			return err
		}

		invoice, err := s.lockInvoice(ctx, tx, ownerID, payment.InvoiceID)
		if err != nil {
			return err
		}

		newAmountPaid := invoice.AmountPaid - payment.Amount
		if newAmountPaid < 0 {
			newAmountPaid = 0
		}
		if _, err := s.applyAmountPaid(ctx, tx, invoice, newAmountPaid); err != nil {
			return err
		}

		return tx.WithContext(ctx).Delete(&paymentdomain.Payment{}, payment.ID).Error
	})
}

func (s *Service) ListByInvoice(ctx context.Context, ownerID, invoiceID snowflake.ID) ([]*paymentdomain.Payment, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Table("invoices").
		Where("id = ? AND owner_id = ?", invoiceID, ownerID).
		Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, invoicedomain.ErrInvoiceNotFound
	}

	var payments []*paymentdomain.Payment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("paid_at DESC").
		Find(&payments).Error
	return payments, err
}

// findOwned loads a payment and verifies the owning invoice belongs to
// the caller.
func (s *Service) findOwned(ctx context.Context, tx *gorm.DB, ownerID, paymentID snowflake.ID) (*paymentdomain.Payment, error) {
	var payment paymentdomain.Payment
	err := tx.WithContext(ctx).Raw(
		`SELECT p.* FROM payments p
		 JOIN invoices i ON i.id = p.invoice_id
		 WHERE p.id = ? AND i.owner_id = ?`,
		paymentID,
		ownerID,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, paymentdomain.ErrPaymentNotFound
	}
	return &payment, nil
}
