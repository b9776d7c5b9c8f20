// Package domain contains the item catalog and tax rates, plus the
// price/tax lookup contracts the billing core consumes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Item is a sellable catalog entry. UnitAmount is the current list price
// in minor units; invoices freeze the price they saw at creation time.
type Item struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	UnitAmount  int64        `gorm:"not null;default:0" json:"unit_amount"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Item) TableName() string { return "items" }

// TaxRate is a named tax with its rate in basis points.
type TaxRate struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OwnerID   snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	RateBps   int64        `gorm:"not null;default:0" json:"rate_bps"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TaxRate) TableName() string { return "tax_rates" }
