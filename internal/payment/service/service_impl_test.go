package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/invora/internal/clock"
	"github.com/smallbiznis/invora/internal/events"
	invoicedomain "github.com/smallbiznis/invora/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/invora/internal/payment/domain"
	paymentservice "github.com/smallbiznis/invora/internal/payment/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payments_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
	))
	return db
}

type fixture struct {
	svc     paymentdomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	bus     *events.Bus
	ownerID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(21)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	bus := events.NewBus(zap.NewNop())

	svc := paymentservice.NewService(paymentservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Bus:   bus,
	})

	return &fixture{
		svc:     svc,
		db:      db,
		node:    node,
		clock:   fake,
		bus:     bus,
		ownerID: node.Generate(),
	}
}

func (f *fixture) seedInvoice(t *testing.T, amountDue int64, status invoicedomain.InvoiceStatus) snowflake.ID {
	t.Helper()

	invoice := &invoicedomain.Invoice{
		ID:            f.node.Generate(),
		OwnerID:       f.ownerID,
		CustomerID:    f.node.Generate(),
		Number:        fmt.Sprintf("INV-20250601-%06d", f.node.Generate()%1000000),
		Status:        status,
		PaymentStatus: invoicedomain.PaymentStatusUnpaid,
		SubTotal:      amountDue,
		AmountDue:     amountDue,
		DueAt:         f.clock.Now().AddDate(0, 0, 30),
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(invoice).Error)
	return invoice.ID
}

func (f *fixture) invoiceState(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()

	var invoice invoicedomain.Invoice
	require.NoError(t, f.db.First(&invoice, id).Error)
	return &invoice
}

func TestPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 100000, invoicedomain.InvoiceStatusSent)

	var fullyPaid []string
	f.bus.Subscribe(events.TopicInvoiceFullyPaid, func(_ context.Context, id string) {
		fullyPaid = append(fullyPaid, id)
	})

	// Partial payment leaves the workflow state alone.
	first, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    40000,
		Method:    "bank_transfer",
	})
	require.NoError(t, err)

	inv := f.invoiceState(t, invoiceID)
	require.Equal(t, int64(40000), inv.AmountPaid)
	require.Equal(t, invoicedomain.PaymentStatusPartial, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusSent, inv.Status)
	require.Empty(t, fullyPaid)

	// Settling the remainder completes the invoice and fires the event.
	second, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    60000,
		Method:    "card",
	})
	require.NoError(t, err)

	inv = f.invoiceState(t, invoiceID)
	require.Equal(t, int64(100000), inv.AmountPaid)
	require.Equal(t, invoicedomain.PaymentStatusPaid, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusCompleted, inv.Status)
	require.Equal(t, []string{invoiceID.String()}, fullyPaid)

	// Deleting the settling payment reverts COMPLETED to SENT, never to
	// DRAFT.
	require.NoError(t, f.svc.Delete(ctx, f.ownerID, second.ID))

	inv = f.invoiceState(t, invoiceID)
	require.Equal(t, int64(40000), inv.AmountPaid)
	require.Equal(t, invoicedomain.PaymentStatusPartial, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusSent, inv.Status)

	require.NoError(t, f.svc.Delete(ctx, f.ownerID, first.ID))

	inv = f.invoiceState(t, invoiceID)
	require.Equal(t, int64(0), inv.AmountPaid)
	require.Equal(t, invoicedomain.PaymentStatusUnpaid, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusSent, inv.Status)
}

func TestRecordRejectsOverpayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 50000, invoicedomain.InvoiceStatusSent)

	_, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    30000,
		Method:    "cash",
	})
	require.NoError(t, err)

	// Evaluated against the live remaining balance of 20000.
	_, err = f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    20001,
		Method:    "cash",
	})
	require.ErrorIs(t, err, paymentdomain.ErrOverpayment)

	var count int64
	require.NoError(t, f.db.Model(&paymentdomain.Payment{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	inv := f.invoiceState(t, invoiceID)
	require.Equal(t, int64(30000), inv.AmountPaid)

	// Exactly the remaining balance is allowed.
	_, err = f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    20000,
		Method:    "cash",
	})
	require.NoError(t, err)

	inv = f.invoiceState(t, invoiceID)
	require.Equal(t, invoicedomain.PaymentStatusPaid, inv.PaymentStatus)
}

func TestRecordRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 50000, invoicedomain.InvoiceStatusSent)

	for _, amount := range []int64{0, -100} {
		_, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
			OwnerID:   f.ownerID,
			InvoiceID: invoiceID,
			Amount:    amount,
			Method:    "cash",
		})
		require.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
	}
}

func TestRecordUnknownInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: f.node.Generate(),
		Amount:    100,
		Method:    "cash",
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestRecordEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 50000, invoicedomain.InvoiceStatusSent)

	_, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.node.Generate(),
		InvoiceID: invoiceID,
		Amount:    100,
		Method:    "cash",
	})
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestUpdatePaymentAmount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 100000, invoicedomain.InvoiceStatusSent)

	payment, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    40000,
		Method:    "cash",
	})
	require.NoError(t, err)

	// Raising the amount past the total is rejected.
	over := int64(100001)
	_, err = f.svc.Update(ctx, paymentdomain.UpdatePaymentRequest{
		OwnerID:   f.ownerID,
		PaymentID: payment.ID,
		Amount:    &over,
	})
	require.ErrorIs(t, err, paymentdomain.ErrOverpayment)

	// Raising it to exactly the total completes the invoice.
	full := int64(100000)
	updated, err := f.svc.Update(ctx, paymentdomain.UpdatePaymentRequest{
		OwnerID:   f.ownerID,
		PaymentID: payment.ID,
		Amount:    &full,
	})
	require.NoError(t, err)
	require.Equal(t, full, updated.Amount)

	inv := f.invoiceState(t, invoiceID)
	require.Equal(t, invoicedomain.PaymentStatusPaid, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusCompleted, inv.Status)

	// Lowering it reverts the completion.
	lower := int64(25000)
	_, err = f.svc.Update(ctx, paymentdomain.UpdatePaymentRequest{
		OwnerID:   f.ownerID,
		PaymentID: payment.ID,
		Amount:    &lower,
	})
	require.NoError(t, err)

	inv = f.invoiceState(t, invoiceID)
	require.Equal(t, int64(25000), inv.AmountPaid)
	require.Equal(t, invoicedomain.PaymentStatusPartial, inv.PaymentStatus)
	require.Equal(t, invoicedomain.InvoiceStatusSent, inv.Status)
}

func TestUpdatePaymentMetadataOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 100000, invoicedomain.InvoiceStatusSent)

	payment, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    40000,
		Method:    "cash",
	})
	require.NoError(t, err)

	method := "card"
	reference := "TXN-1234"
	updated, err := f.svc.Update(ctx, paymentdomain.UpdatePaymentRequest{
		OwnerID:   f.ownerID,
		PaymentID: payment.ID,
		Method:    &method,
		Reference: &reference,
	})
	require.NoError(t, err)
	require.Equal(t, "card", updated.Method)
	require.Equal(t, "TXN-1234", updated.Reference)
	require.Equal(t, int64(40000), updated.Amount)

	inv := f.invoiceState(t, invoiceID)
	require.Equal(t, int64(40000), inv.AmountPaid)
}

func TestUpdateUnknownPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	amount := int64(100)
	_, err := f.svc.Update(ctx, paymentdomain.UpdatePaymentRequest{
		OwnerID:   f.ownerID,
		PaymentID: f.node.Generate(),
		Amount:    &amount,
	})
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestListByInvoice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	invoiceID := f.seedInvoice(t, 100000, invoicedomain.InvoiceStatusSent)

	earlier := f.clock.Now().Add(-48 * time.Hour)
	_, err := f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    10000,
		Method:    "cash",
		PaidAt:    &earlier,
	})
	require.NoError(t, err)

	_, err = f.svc.Record(ctx, paymentdomain.RecordPaymentRequest{
		OwnerID:   f.ownerID,
		InvoiceID: invoiceID,
		Amount:    20000,
		Method:    "card",
	})
	require.NoError(t, err)

	payments, err := f.svc.ListByInvoice(ctx, f.ownerID, invoiceID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	require.Equal(t, int64(20000), payments[0].Amount)
	require.Equal(t, int64(10000), payments[1].Amount)

	_, err = f.svc.ListByInvoice(ctx, f.ownerID, f.node.Generate())
	require.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}
