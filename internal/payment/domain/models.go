// Package domain contains persistence models for payments.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Payment is money recorded against an invoice. Amount is minor units
// and always positive; corrections go through amount edits or deletion,
// both of which re-derive the owning invoice's monetary state.
type Payment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	Amount    int64        `gorm:"not null" json:"amount"`
	Method    string       `gorm:"type:text;not null" json:"method"`
	PaidAt    time.Time    `gorm:"not null" json:"paid_at"`
	Reference string       `gorm:"type:text" json:"reference"`
	Notes     string       `gorm:"type:text" json:"notes"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
