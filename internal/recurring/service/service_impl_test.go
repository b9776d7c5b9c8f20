package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	catalogdomain "github.com/smallbiznis/invora/internal/catalog/domain"
	catalogservice "github.com/smallbiznis/invora/internal/catalog/service"
	"github.com/smallbiznis/invora/internal/clock"
	recurringdomain "github.com/smallbiznis/invora/internal/recurring/domain"
	recurringservice "github.com/smallbiznis/invora/internal/recurring/service"
	"github.com/smallbiznis/invora/internal/schedule"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc     recurringdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	ownerID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:recurring_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Item{},
		&catalogdomain.TaxRate{},
		&recurringdomain.RecurringDefinition{},
		&recurringdomain.RecurringDefinitionItem{},
	))

	node, err := snowflake.NewNode(22)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC))
	catalogSvc := catalogservice.NewService(catalogservice.ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
	})
	svc := recurringservice.NewService(recurringservice.ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      fake,
		CatalogSvc: catalogSvc,
	})

	return &fixture{
		svc:     svc,
		db:      db,
		node:    node,
		clock:   fake,
		ownerID: node.Generate(),
	}
}

func (f *fixture) seedItem(t *testing.T, unitAmount int64) snowflake.ID {
	t.Helper()

	item := &catalogdomain.Item{
		ID:         f.node.Generate(),
		OwnerID:    f.ownerID,
		Name:       "Consulting",
		UnitAmount: unitAmount,
		CreatedAt:  f.clock.Now(),
		UpdatedAt:  f.clock.Now(),
	}
	require.NoError(t, f.db.Create(item).Error)
	return item.ID
}

func intp(v int) *int { return &v }

func TestCreatePlacesInitialOccurrence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	// 2025-07-01 is a Tuesday; the anchored Friday is 2025-07-04.
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Name:       "Weekly retainer",
		Frequency:  schedule.FrequencyWeekly,
		StartDate:  start,
		DayOfWeek:  intp(5),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 2}},
	})
	require.NoError(t, err)

	require.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), def.NextOccurrence)
	require.Equal(t, recurringdomain.DefinitionStatusActive, def.Status)
	require.Equal(t, recurringdomain.DefaultDueAfterDays, def.DueAfterDays)
	require.Len(t, def.Items, 1)
}

func TestCreateBackdatedStartPlacesFromToday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	// Start long in the past; the cursor is placed from today, not the
	// start date, so no backlog of occurrences is owed.
	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Name:       "Monthly hosting",
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		DayOfMonth: intp(15),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), def.NextOccurrence)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)
	start := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	_, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  start,
	})
	require.ErrorIs(t, err, recurringdomain.ErrNoItems)

	_, err = f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  start,
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 0}},
	})
	require.ErrorIs(t, err, recurringdomain.ErrInvalidQuantity)

	_, err = f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  start,
		DayOfMonth: intp(32),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.ErrorIs(t, err, schedule.ErrInvalidAnchor)

	end := start.AddDate(0, 0, -1)
	_, err = f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  start,
		EndDate:    &end,
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.ErrorIs(t, err, recurringdomain.ErrInvalidEndDate)

	// Unknown catalog item.
	_, err = f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  start,
		Items:      []recurringdomain.ItemInput{{ItemID: f.node.Generate(), Quantity: 1}},
	})
	require.ErrorIs(t, err, catalogdomain.ErrItemNotFound)
}

func TestUpdateRecomputesCursorOnlyOnScheduleChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Name:       "Monthly hosting",
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		DayOfMonth: intp(1),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.NoError(t, err)
	originalCursor := def.NextOccurrence

	// Renaming does not move the cursor.
	name := "Monthly hosting (gold)"
	updated, err := f.svc.Update(ctx, recurringdomain.UpdateDefinitionRequest{
		OwnerID:      f.ownerID,
		DefinitionID: def.ID,
		Name:         &name,
	})
	require.NoError(t, err)
	require.Equal(t, originalCursor, updated.NextOccurrence)
	require.Equal(t, name, updated.Name)

	// Changing the anchor does.
	updated, err = f.svc.Update(ctx, recurringdomain.UpdateDefinitionRequest{
		OwnerID:      f.ownerID,
		DefinitionID: def.ID,
		DayOfMonth:   intp(20),
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 7, 20, 0, 0, 0, 0, time.UTC), updated.NextOccurrence)
}

func TestUpdateReplacesItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemA := f.seedItem(t, 50000)
	itemB := f.seedItem(t, 70000)

	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyMonthly,
		StartDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Items:      []recurringdomain.ItemInput{{ItemID: itemA, Quantity: 1}},
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, recurringdomain.UpdateDefinitionRequest{
		OwnerID:      f.ownerID,
		DefinitionID: def.ID,
		Items: []recurringdomain.ItemInput{
			{ItemID: itemA, Quantity: 3},
			{ItemID: itemB, Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.Len(t, updated.Items, 2)

	var count int64
	require.NoError(t, f.db.Model(&recurringdomain.RecurringDefinitionItem{}).
		Where("definition_id = ?", def.ID).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyDaily,
		StartDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.UpdateStatus(ctx, f.ownerID, def.ID, recurringdomain.DefinitionStatusPaused))
	got, err := f.svc.Get(ctx, f.ownerID, def.ID)
	require.NoError(t, err)
	require.Equal(t, recurringdomain.DefinitionStatusPaused, got.Status)

	// COMPLETED cannot be assigned by hand.
	err = f.svc.UpdateStatus(ctx, f.ownerID, def.ID, recurringdomain.DefinitionStatusCompleted)
	require.ErrorIs(t, err, recurringdomain.ErrInvalidStatus)

	// And once reached, it is terminal.
	require.NoError(t, f.db.Exec(
		`UPDATE recurring_definitions SET status = ? WHERE id = ?`,
		recurringdomain.DefinitionStatusCompleted, def.ID,
	).Error)
	err = f.svc.UpdateStatus(ctx, f.ownerID, def.ID, recurringdomain.DefinitionStatusActive)
	require.ErrorIs(t, err, recurringdomain.ErrDefinitionCompleted)
}

func TestDeleteRemovesDefinitionAndItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyDaily,
		StartDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.ownerID, def.ID))

	_, err = f.svc.Get(ctx, f.ownerID, def.ID)
	require.ErrorIs(t, err, recurringdomain.ErrDefinitionNotFound)

	var count int64
	require.NoError(t, f.db.Model(&recurringdomain.RecurringDefinitionItem{}).Count(&count).Error)
	require.Equal(t, int64(0), count)
}

func TestGetEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	itemID := f.seedItem(t, 50000)

	def, err := f.svc.Create(ctx, recurringdomain.CreateDefinitionRequest{
		OwnerID:    f.ownerID,
		CustomerID: f.node.Generate(),
		Frequency:  schedule.FrequencyDaily,
		StartDate:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		Items:      []recurringdomain.ItemInput{{ItemID: itemID, Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.node.Generate(), def.ID)
	require.ErrorIs(t, err, recurringdomain.ErrDefinitionNotFound)
}
