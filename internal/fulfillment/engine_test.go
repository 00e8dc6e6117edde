package fulfillment

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bookloop/orderflow/internal/affiliates"
	"github.com/bookloop/orderflow/internal/idempotency"
	"github.com/bookloop/orderflow/internal/listings"
	"github.com/bookloop/orderflow/internal/notifications"
	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/internal/payments/paymentstest"
	"github.com/bookloop/orderflow/internal/refunds"
	"github.com/bookloop/orderflow/internal/settlement"
	"github.com/bookloop/orderflow/pkg/config"
	"github.com/bookloop/orderflow/pkg/db"
	"github.com/bookloop/orderflow/pkg/db/dbtest"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	"github.com/bookloop/orderflow/pkg/outbox"
	"github.com/bookloop/orderflow/pkg/outbox/payloads"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeSettings struct {
	window  time.Duration
	fee     decimal.Decimal
	updates map[string]string
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		window:  48 * time.Hour,
		fee:     decimal.NewFromInt(10),
		updates: map[string]string{},
	}
}

func (f *fakeSettings) CommitWindow(context.Context) (time.Duration, error) { return f.window, nil }

func (f *fakeSettings) PlatformFeePercent(context.Context) (decimal.Decimal, error) {
	return f.fee, nil
}

func (f *fakeSettings) AffiliateCommissionPercent(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(2), nil
}

func (f *fakeSettings) Update(_ context.Context, key, value string) error {
	f.updates[key] = value
	return nil
}

type recordingCanceller struct {
	calls []string
	err   error
}

func (r *recordingCanceller) CancelShipment(_ context.Context, tracking string) error {
	r.calls = append(r.calls, tracking)
	return r.err
}

type harness struct {
	client    *db.Client
	engine    *Engine
	guard     *idempotency.Guard
	settings  *fakeSettings
	bob       *paymentstest.Provider
	paystack  *paymentstest.Provider
	canceller *recordingCanceller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	orderRepo := orders.NewRepository(conn)
	machine, err := orders.NewMachine(orderRepo, emitter, nil)
	require.NoError(t, err)
	guard, err := idempotency.NewGuard(client)
	require.NoError(t, err)
	settings := newFakeSettings()
	aff, err := affiliates.NewService(settings, nil)
	require.NoError(t, err)
	notifier, err := notifications.NewService(emitter, nil)
	require.NoError(t, err)
	payRepo := payments.NewRepository(conn)

	bob := paymentstest.New(enums.PaymentProviderBobPay)
	paystack := paymentstest.New(enums.PaymentProviderPaystack)
	registry, err := payments.NewRegistry(bob, paystack)
	require.NoError(t, err)
	canceller := &recordingCanceller{}
	router, err := refunds.NewRouter(registry, canceller, nil)
	require.NoError(t, err)
	refundSvc, err := refunds.NewService(refunds.Deps{
		DB:         client,
		Guard:      guard,
		Orders:     orderRepo,
		Machine:    machine,
		Payments:   payRepo,
		Router:     router,
		Affiliates: aff,
		Notifier:   notifier,
		Outbox:     emitter,
	})
	require.NoError(t, err)
	settler, err := settlement.NewEngine(settings, nil, nil)
	require.NoError(t, err)

	engine, err := NewEngine(Deps{
		DB:         client,
		Guard:      guard,
		Orders:     orderRepo,
		Machine:    machine,
		Payments:   payRepo,
		Providers:  registry,
		Listings:   listings.NewBookReader(conn),
		Settings:   settings,
		Refunds:    refundSvc,
		Settlement: settler,
		Affiliates: aff,
		Notifier:   notifier,
		Outbox:     emitter,
		URLs: config.URLConfig{
			PublicBaseURL: "https://api.bookloop.test",
			FrontendURL:   "https://bookloop.test",
		},
	})
	require.NoError(t, err)
	engine.now = func() time.Time { return t0 }

	return &harness{
		client:    client,
		engine:    engine,
		guard:     guard,
		settings:  settings,
		bob:       bob,
		paystack:  paystack,
		canceller: canceller,
	}
}

func (h *harness) at(now time.Time) {
	h.engine.now = func() time.Time { return now }
}

func (h *harness) seedBook(t *testing.T, price string) *models.Book {
	t.Helper()
	book := &models.Book{
		ID:       uuid.New(),
		SellerID: uuid.New(),
		Title:    "The Left Hand of Darkness",
		Price:    decimal.RequireFromString(price),
		Status:   listings.StatusActive,
	}
	require.NoError(t, h.client.DB().Create(book).Error)
	return book
}

// checkout runs a checkout for a fresh book priced 250.00.
func (h *harness) checkout(t *testing.T, provider enums.PaymentProvider) *models.Order {
	t.Helper()
	book := h.seedBook(t, "250.00")
	res, err := h.engine.Checkout(context.Background(), CheckoutInput{
		BuyerID:    uuid.New(),
		BuyerEmail: "buyer@example.com",
		BookID:     book.ID,
		Provider:   provider,
	})
	require.NoError(t, err)
	return res.Order
}

func confirmation(order *models.Order, reference string) *payments.PaymentEvent {
	return &payments.PaymentEvent{
		Provider:      order.PaymentProvider,
		Kind:          payments.EventPaymentConfirmed,
		OrderID:       order.ID,
		Reference:     reference,
		TransactionID: "9001",
		Amount:        order.Amount,
		PaymentMethod: "card",
		Raw:           json.RawMessage(`{"event":"charge.success"}`),
	}
}

// paidOrder checks out with provider and confirms the payment at t0.
func (h *harness) paidOrder(t *testing.T, provider enums.PaymentProvider, reference string) *models.Order {
	t.Helper()
	order := h.checkout(t, provider)
	outcome, err := h.engine.HandlePaymentEvent(context.Background(), confirmation(order, reference))
	require.NoError(t, err)
	require.Equal(t, idempotency.OutcomeApplied, outcome)
	return h.reload(t, order.ID)
}

// committedOrder pays and commits an order, attaching tracking when given.
func (h *harness) committedOrder(t *testing.T, tracking string) *models.Order {
	t.Helper()
	order := h.paidOrder(t, enums.PaymentProviderPaystack, "")
	_, err := h.engine.Commit(context.Background(), order.ID, order.SellerID)
	require.NoError(t, err)
	if tracking != "" {
		_, err = h.engine.AttachShipment(context.Background(), order.ID, order.SellerID, ShipmentInput{TrackingNumber: tracking, Courier: "courier-guy"})
		require.NoError(t, err)
	}
	return h.reload(t, order.ID)
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, h.client.DB().Where("id = ?", id).First(&order).Error)
	return &order
}

func (h *harness) notifications(t *testing.T, orderID uuid.UUID) map[enums.NotificationTemplate]int {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, h.client.DB().
		Where("aggregate_id = ? AND event_type = ?", orderID, enums.EventNotificationRequested).
		Find(&rows).Error)
	counts := map[enums.NotificationTemplate]int{}
	for _, row := range rows {
		var envelope struct {
			Data payloads.NotificationRequestedEvent `json:"data"`
		}
		require.NoError(t, json.Unmarshal(row.Payload, &envelope))
		counts[envelope.Data.Template]++
	}
	return counts
}

func (h *harness) walletCredits(t *testing.T, orderID uuid.UUID) []models.WalletTransaction {
	t.Helper()
	var rows []models.WalletTransaction
	require.NoError(t, h.client.DB().Where("order_id = ?", orderID).Find(&rows).Error)
	return rows
}

func strPtr(v string) *string { return &v }
