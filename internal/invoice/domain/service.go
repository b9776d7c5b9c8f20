package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice_not_found")
	ErrInvoiceHasPayments = errors.New("invoice_has_payments")
	ErrInvoiceCompleted   = errors.New("invoice_completed")
	ErrNoLineItems        = errors.New("invoice_requires_line_items")
	ErrInvalidQuantity    = errors.New("invalid_line_quantity")
)

// LineInput references a catalog item and quantity; price resolution
// happens at creation time.
type LineInput struct {
	ItemID   snowflake.ID
	Quantity int64
}

type CreateInvoiceRequest struct {
	OwnerID    snowflake.ID
	CustomerID snowflake.ID
	TaxRateID  *snowflake.ID
	DueAt      time.Time
	Notes      string
	Lines      []LineInput
}

type ListInvoiceRequest struct {
	OwnerID       snowflake.ID
	Status        *InvoiceStatus
	PaymentStatus *PaymentStatus
	CustomerID    *snowflake.ID
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, ownerID, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) ([]*Invoice, error)
	MarkSent(ctx context.Context, id snowflake.ID) error
	MarkViewed(ctx context.Context, ownerID, id snowflake.ID) error
	Reject(ctx context.Context, ownerID, id snowflake.ID) error
	Delete(ctx context.Context, ownerID, id snowflake.ID) error
}
