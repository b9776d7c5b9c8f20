package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/invora/internal/schedule"
)

var (
	ErrDefinitionNotFound = errors.New("recurring_definition_not_found")
	ErrNoItems            = errors.New("recurring_definition_has_no_items")
	ErrInvalidQuantity    = errors.New("invalid_item_quantity")
	ErrInvalidStatus      = errors.New("invalid_definition_status")
	// ErrDefinitionCompleted rejects status changes on a definition whose
	// schedule has already run out.
	ErrDefinitionCompleted = errors.New("recurring_definition_completed")
	ErrInvalidEndDate      = errors.New("end_date_before_start_date")
)

type ItemInput struct {
	ItemID   snowflake.ID
	Quantity int64
}

type CreateDefinitionRequest struct {
	OwnerID      snowflake.ID
	CustomerID   snowflake.ID
	Name         string
	Frequency    schedule.Frequency
	StartDate    time.Time
	EndDate      *time.Time
	DayOfMonth   *int
	DayOfWeek    *int
	DueAfterDays int
	TaxRateID    *snowflake.ID
	Notes        string
	Items        []ItemInput
}

// UpdateDefinitionRequest carries a partial update. A nil field keeps
// the stored value; Items, when present, replaces the full line set.
type UpdateDefinitionRequest struct {
	OwnerID      snowflake.ID
	DefinitionID snowflake.ID
	Name         *string
	Frequency    *schedule.Frequency
	StartDate    *time.Time
	EndDate      *time.Time
	ClearEndDate bool
	DayOfMonth   *int
	DayOfWeek    *int
	DueAfterDays *int
	TaxRateID    *snowflake.ID
	Notes        *string
	Items        []ItemInput
}

type ListDefinitionRequest struct {
	OwnerID    snowflake.ID
	Status     *DefinitionStatus
	CustomerID *snowflake.ID
}

type Service interface {
	Create(ctx context.Context, req CreateDefinitionRequest) (*RecurringDefinition, error)
	Get(ctx context.Context, ownerID, id snowflake.ID) (*RecurringDefinition, error)
	List(ctx context.Context, req ListDefinitionRequest) ([]*RecurringDefinition, error)
	Update(ctx context.Context, req UpdateDefinitionRequest) (*RecurringDefinition, error)
	UpdateStatus(ctx context.Context, ownerID, id snowflake.ID, status DefinitionStatus) error
	Delete(ctx context.Context, ownerID, id snowflake.ID) error
}
