// Package domain contains persistence models and state rules for invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// InvoiceStatus represents invoice workflow states.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusViewed    InvoiceStatus = "VIEWED"
	InvoiceStatusCompleted InvoiceStatus = "COMPLETED"
	InvoiceStatusRejected  InvoiceStatus = "REJECTED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusViewed, InvoiceStatusCompleted, InvoiceStatusRejected:
		return true
	}
	return false
}

// PaymentStatus tracks money received against an invoice.
type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "UNPAID"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusOverdue PaymentStatus = "OVERDUE"
)

// PaymentStatusFor derives the payment status from amounts. It is
// recomputed on every mutation rather than tracked incrementally, so no
// invalid combination of amount and status is reachable.
func PaymentStatusFor(amountPaid, amountDue int64) PaymentStatus {
	switch {
	case amountPaid <= 0:
		return PaymentStatusUnpaid
	case amountPaid < amountDue:
		return PaymentStatusPartial
	default:
		return PaymentStatusPaid
	}
}

// Invoice is a bill issued to a customer. Amounts are minor units.
//
// RecurringDefinitionID together with OccurrenceAt forms the generation
// idempotency key: at most one invoice exists per due occurrence of a
// definition.
type Invoice struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	OwnerID               snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_invoice_owner_number,priority:1" json:"owner_id"`
	CustomerID            snowflake.ID  `gorm:"not null;index" json:"customer_id"`
	Number                string        `gorm:"type:text;not null;uniqueIndex:ux_invoice_owner_number,priority:2" json:"number"`
	Status                InvoiceStatus `gorm:"type:text;not null;default:'DRAFT'" json:"status"`
	PaymentStatus         PaymentStatus `gorm:"type:text;not null;default:'UNPAID'" json:"payment_status"`
	SubTotal              int64         `gorm:"not null;default:0" json:"sub_total"`
	TaxAmount             int64         `gorm:"not null;default:0" json:"tax_amount"`
	AmountDue             int64         `gorm:"not null;default:0" json:"amount_due"`
	AmountPaid            int64         `gorm:"not null;default:0" json:"amount_paid"`
	TaxRateID             *snowflake.ID `gorm:"index" json:"tax_rate_id,omitempty"`
	RecurringDefinitionID *snowflake.ID `gorm:"index;uniqueIndex:ux_invoice_recurring_occurrence,priority:1" json:"recurring_definition_id,omitempty"`
	OccurrenceAt          *time.Time    `gorm:"uniqueIndex:ux_invoice_recurring_occurrence,priority:2" json:"occurrence_at,omitempty"`
	DueAt                 time.Time     `gorm:"not null" json:"due_at"`
	Notes                 string        `gorm:"type:text" json:"notes"`
	CreatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []InvoiceItem `gorm:"foreignKey:InvoiceID" json:"items,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// RemainingBalance is the amount a new payment is evaluated against.
func (i *Invoice) RemainingBalance() int64 {
	return i.AmountDue - i.AmountPaid
}

// InvoiceItem is a line on an invoice. UnitAmount is the catalog price
// frozen at the moment the invoice was created; later catalog changes do
// not touch it.
type InvoiceItem struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID  snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	ItemID     snowflake.ID `gorm:"not null;index" json:"item_id"`
	Quantity   int64        `gorm:"not null" json:"quantity"`
	UnitAmount int64        `gorm:"not null" json:"unit_amount"`
	Amount     int64        `gorm:"not null" json:"amount"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
