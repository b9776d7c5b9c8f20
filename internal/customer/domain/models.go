// Package domain contains persistence models for customers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Customer is a billing counterparty owned by one account.
type Customer struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerID     snowflake.ID      `gorm:"not null;index" json:"owner_id"`
	CompanyName string            `gorm:"type:text;not null" json:"company_name"`
	ContactName string            `gorm:"type:text" json:"contact_name"`
	Email       string            `gorm:"type:text;not null" json:"email"`
	Phone       string            `gorm:"type:text" json:"phone"`
	Address     string            `gorm:"type:text" json:"address"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }
