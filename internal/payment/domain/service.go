package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrInvalidAmount   = errors.New("invalid_payment_amount")
	// ErrOverpayment rejects a mutation that would push amountPaid past
	// amountDue.
	ErrOverpayment = errors.New("payment_exceeds_remaining_balance")
	// ErrNegativePayment rejects an edit that would drive amountPaid
	// below zero.
	ErrNegativePayment = errors.New("payment_total_would_be_negative")
)

type RecordPaymentRequest struct {
	OwnerID   snowflake.ID
	InvoiceID snowflake.ID
	Amount    int64
	Method    string
	PaidAt    *time.Time
	Reference string
	Notes     string
}

type UpdatePaymentRequest struct {
	OwnerID   snowflake.ID
	PaymentID snowflake.ID
	Amount    *int64
	Method    *string
	PaidAt    *time.Time
	Reference *string
	Notes     *string
}

type Service interface {
	Record(ctx context.Context, req RecordPaymentRequest) (*Payment, error)
	Update(ctx context.Context, req UpdatePaymentRequest) (*Payment, error)
	Delete(ctx context.Context, ownerID, paymentID snowflake.ID) error
	ListByInvoice(ctx context.Context, ownerID, invoiceID snowflake.ID) ([]*Payment, error)
}
