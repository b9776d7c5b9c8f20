// Package domain contains persistence models and state rules for
// recurring billing definitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invora/internal/schedule"
)

// DefinitionStatus represents the lifecycle of a recurring definition.
// COMPLETED is terminal: a definition whose schedule has run past its end
// date never generates again and cannot be reactivated.
type DefinitionStatus string

const (
	DefinitionStatusActive    DefinitionStatus = "ACTIVE"
	DefinitionStatusPaused    DefinitionStatus = "PAUSED"
	DefinitionStatusCompleted DefinitionStatus = "COMPLETED"
)

func (s DefinitionStatus) Valid() bool {
	switch s {
	case DefinitionStatusActive, DefinitionStatusPaused, DefinitionStatusCompleted:
		return true
	}
	return false
}

// DefaultDueAfterDays is applied when a definition does not set its own
// payment term.
const DefaultDueAfterDays = 30

// RecurringDefinition is the template a generated invoice is stamped
// from. NextOccurrence is the single scheduling cursor: the generator
// claims rows where it has come due and advances it on success.
type RecurringDefinition struct {
	ID              snowflake.ID       `gorm:"primaryKey" json:"id"`
	OwnerID         snowflake.ID       `gorm:"not null;index" json:"owner_id"`
	CustomerID      snowflake.ID       `gorm:"not null;index" json:"customer_id"`
	Name            string             `gorm:"type:text;not null" json:"name"`
	Frequency       schedule.Frequency `gorm:"type:text;not null" json:"frequency"`
	StartDate       time.Time          `gorm:"not null" json:"start_date"`
	EndDate         *time.Time         `json:"end_date,omitempty"`
	DayOfMonth      *int               `json:"day_of_month,omitempty"`
	DayOfWeek       *int               `json:"day_of_week,omitempty"`
	DueAfterDays    int                `gorm:"not null;default:30" json:"due_after_days"`
	TaxRateID       *snowflake.ID      `gorm:"index" json:"tax_rate_id,omitempty"`
	Notes           string             `gorm:"type:text" json:"notes"`
	NextOccurrence  time.Time          `gorm:"not null;index" json:"next_occurrence"`
	LastGeneratedAt *time.Time         `json:"last_generated_at,omitempty"`
	GeneratedCount  int64              `gorm:"not null;default:0" json:"generated_count"`
	Status          DefinitionStatus   `gorm:"type:text;not null;default:'ACTIVE';index" json:"status"`
	CreatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	Items []RecurringDefinitionItem `gorm:"foreignKey:DefinitionID" json:"items,omitempty"`
}

// TableName sets the database table name.
func (RecurringDefinition) TableName() string { return "recurring_definitions" }

// Anchor builds the schedule anchor from the stored calendar fields.
func (d *RecurringDefinition) Anchor() schedule.Anchor {
	return schedule.Anchor{DayOfMonth: d.DayOfMonth, DayOfWeek: d.DayOfWeek}
}

// RecurringDefinitionItem is a template line. Quantity is copied onto
// generated invoices; the unit price is resolved from the catalog at
// generation time, not stored here.
type RecurringDefinitionItem struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	DefinitionID snowflake.ID `gorm:"not null;index" json:"definition_id"`
	ItemID       snowflake.ID `gorm:"not null;index" json:"item_id"`
	Quantity     int64        `gorm:"not null" json:"quantity"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RecurringDefinitionItem) TableName() string { return "recurring_definition_items" }
