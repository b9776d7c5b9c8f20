package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	"github.com/smallbiznis/invora/internal/clock"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	"github.com/smallbiznis/invora/internal/schedule"
	"github.com/smallbiznis/invora/pkg/db/option"
	"github.com/smallbiznis/invora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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

	genID      *snowflake.Node
	clock      clock.Clock
	catalogSvc catalogdomain.Service
	defrepo    repository.Repository[recurringdomain.RecurringDefinition]
}

func NewService(p ServiceParam) recurringdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("recurring.service"),
		genID: p.GenID,
		clock: p.Clock,

		catalogSvc: p.CatalogSvc,
		defrepo:    repository.ProvideStore[recurringdomain.RecurringDefinition](p.DB),
	}
}

// placeNext computes the scheduling cursor for a definition. A start
// date already in the past is brought up to today first, so a new
// definition never owes a backlog of occurrences.
func (s *Service) placeNext(freq schedule.Frequency, start time.Time, anchor schedule.Anchor) (time.Time, error) {
	base := start
	if today := s.clock.Now(); start.Before(today) {
		base = today
	}
	return schedule.Initial(freq, base, anchor)
}

func validateItems(items []recurringdomain.ItemInput) error {
	if len(items) == 0 {
		return recurringdomain.ErrNoItems
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %s quantity %d", recurringdomain.ErrInvalidQuantity, item.ItemID, item.Quantity)
		}
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req recurringdomain.CreateDefinitionRequest) (*recurringdomain.RecurringDefinition, error) {
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, recurringdomain.ErrInvalidEndDate
	}

	anchor := schedule.Anchor{DayOfMonth: req.DayOfMonth, DayOfWeek: req.DayOfWeek}
	next, err := s.placeNext(req.Frequency, req.StartDate, anchor)
	if err != nil {
		return nil, err
	}

	// Every referenced item must exist before the template is saved.
	itemIDs := make([]snowflake.ID, 0, len(req.Items))
	for _, item := range req.Items {
		itemIDs = append(itemIDs, item.ItemID)
	}
	if _, err := s.catalogSvc.GetPrices(ctx, req.OwnerID, itemIDs); err != nil {
		return nil, err
	}
	if req.TaxRateID != nil {
		if _, err := s.catalogSvc.GetTaxRate(ctx, req.OwnerID, *req.TaxRateID); err != nil {
			return nil, err
		}
	}

	dueAfterDays := req.DueAfterDays
	if dueAfterDays <= 0 {
		dueAfterDays = recurringdomain.DefaultDueAfterDays
	}

	now := s.clock.Now()
	definitionID := s.genID.Generate()

	items := make([]recurringdomain.RecurringDefinitionItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, recurringdomain.RecurringDefinitionItem{
			ID:           s.genID.Generate(),
			DefinitionID: definitionID,
			ItemID:       item.ItemID,
			Quantity:     item.Quantity,
			CreatedAt:    now,
		})
	}

	definition := &recurringdomain.RecurringDefinition{
		ID:             definitionID,
		OwnerID:        req.OwnerID,
		CustomerID:     req.CustomerID,
		Name:           req.Name,
		Frequency:      req.Frequency,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		DayOfMonth:     req.DayOfMonth,
		DayOfWeek:      req.DayOfWeek,
		DueAfterDays:   dueAfterDays,
		TaxRateID:      req.TaxRateID,
		Notes:          req.Notes,
		NextOccurrence: next,
		Status:         recurringdomain.DefinitionStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          items,
	}

	if err := s.db.WithContext(ctx).Create(definition).Error; err != nil {
		return nil, err
	}
	return definition, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id snowflake.ID) (*recurringdomain.RecurringDefinition, error) {
	return load(ctx, s.db, ownerID, id)
}

// load reads a definition through the given handle so callers inside a
// transaction see their own uncommitted writes.
func load(ctx context.Context, tx *gorm.DB, ownerID, id snowflake.ID) (*recurringdomain.RecurringDefinition, error) {
	var definition recurringdomain.RecurringDefinition
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&definition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, recurringdomain.ErrDefinitionNotFound
		}
		return nil, err
	}
	return &definition, nil
}

func (s *Service) List(ctx context.Context, req recurringdomain.ListDefinitionRequest) ([]*recurringdomain.RecurringDefinition, error) {
	filter := &recurringdomain.RecurringDefinition{OwnerID: req.OwnerID}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.CustomerID != nil {
		filter.CustomerID = *req.CustomerID
	}

	return s.defrepo.Find(ctx, filter,
		option.WithSortBy("created_at", true),
	)
}

// Update applies a partial edit. Any change to frequency, start date or
// anchors recomputes NextOccurrence from scratch; an untouched schedule
// keeps its cursor so in-flight progress is not reset.
func (s *Service) Update(ctx context.Context, req recurringdomain.UpdateDefinitionRequest) (*recurringdomain.RecurringDefinition, error) {
	if req.Items != nil {
		if err := validateItems(req.Items); err != nil {
			return nil, err
		}
	}

	var definition *recurringdomain.RecurringDefinition
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		definition, err = load(ctx, tx, req.OwnerID, req.DefinitionID)
		if err != nil {
			return err
		}

		scheduleChanged := false
		if req.Frequency != nil && *req.Frequency != definition.Frequency {
			definition.Frequency = *req.Frequency
			scheduleChanged = true
		}
		if req.StartDate != nil && !req.StartDate.Equal(definition.StartDate) {
			definition.StartDate = *req.StartDate
			scheduleChanged = true
		}
		if req.DayOfMonth != nil {
			definition.DayOfMonth = req.DayOfMonth
			scheduleChanged = true
		}
		if req.DayOfWeek != nil {
			definition.DayOfWeek = req.DayOfWeek
			scheduleChanged = true
		}
		if req.ClearEndDate {
			definition.EndDate = nil
		} else if req.EndDate != nil {
			definition.EndDate = req.EndDate
		}
		if definition.EndDate != nil && definition.EndDate.Before(definition.StartDate) {
			return recurringdomain.ErrInvalidEndDate
		}

		if req.Name != nil {
			definition.Name = *req.Name
		}
		if req.DueAfterDays != nil && *req.DueAfterDays > 0 {
			definition.DueAfterDays = *req.DueAfterDays
		}
		if req.TaxRateID != nil {
			if _, err := s.catalogSvc.GetTaxRate(ctx, req.OwnerID, *req.TaxRateID); err != nil {
				return err
			}
			definition.TaxRateID = req.TaxRateID
		}
		if req.Notes != nil {
			definition.Notes = *req.Notes
		}

		if scheduleChanged {
			next, err := s.placeNext(definition.Frequency, definition.StartDate, definition.Anchor())
			if err != nil {
				return err
			}
			definition.NextOccurrence = next
		}

		if req.Items != nil {
			if err := tx.WithContext(ctx).
				Where("definition_id = ?", definition.ID).
				Delete(&recurringdomain.RecurringDefinitionItem{}).Error; err != nil {
				return err
			}

			now := s.clock.Now()
			items := make([]recurringdomain.RecurringDefinitionItem, 0, len(req.Items))
			for _, item := range req.Items {
				items = append(items, recurringdomain.RecurringDefinitionItem{
					ID:           s.genID.Generate(),
					DefinitionID: definition.ID,
					ItemID:       item.ItemID,
					Quantity:     item.Quantity,
					CreatedAt:    now,
				})
			}
			if err := tx.WithContext(ctx).Create(&items).Error; err != nil {
				return err
			}
			definition.Items = items
		}

		definition.UpdatedAt = s.clock.Now()
		return tx.WithContext(ctx).Omit("Items").Save(definition).Error
	})
	if err != nil {
		return nil, err
	}
	return definition, nil
}

// UpdateStatus toggles between ACTIVE and PAUSED. COMPLETED is set only
// by the generator when the schedule runs past its end date and cannot
// be assigned or left by hand.
func (s *Service) UpdateStatus(ctx context.Context, ownerID, id snowflake.ID, status recurringdomain.DefinitionStatus) error {
	if status != recurringdomain.DefinitionStatusActive && status != recurringdomain.DefinitionStatusPaused {
		return fmt.Errorf("%w: %s", recurringdomain.ErrInvalidStatus, status)
	}

	definition, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if definition.Status == recurringdomain.DefinitionStatusCompleted {
		return recurringdomain.ErrDefinitionCompleted
	}

	return s.db.WithContext(ctx).Exec(
		`UPDATE recurring_definitions SET status = ?, updated_at = ? WHERE id = ?`,
		status,
		s.clock.Now(),
		id,
	).Error
}

// Delete removes a definition and its template lines. Invoices already
// generated from it are kept; they reference the definition id only as
// provenance.
func (s *Service) Delete(ctx context.Context, ownerID, id snowflake.ID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		definition, err := load(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}

		if err := tx.WithContext(ctx).
			Where("definition_id = ?", definition.ID).
			Delete(&recurringdomain.RecurringDefinitionItem{}).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Delete(&recurringdomain.RecurringDefinition{}, definition.ID).Error
	})
}
