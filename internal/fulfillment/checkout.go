package fulfillment

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bookloop/orderflow/internal/orders"
	"github.com/bookloop/orderflow/internal/payments"
	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/outbox"
)

// ReasonPaymentInitFailed is recorded when the processor refuses to open a payment page.
const ReasonPaymentInitFailed = "payment_initialization_failed"

// CheckoutInput is a buyer's intent to buy one book.
type CheckoutInput struct {
	BuyerID    uuid.UUID
	BuyerEmail string
	BookID     uuid.UUID
	Provider   enums.PaymentProvider
}

type CheckoutResult struct {
	Order      *models.Order
	PaymentURL string
}

// Checkout creates the order, opens a hosted payment page with the chosen
// processor and leaves the order in pending_payment. The order id doubles as
// the processor reference.
func (e *Engine) Checkout(ctx context.Context, input CheckoutInput) (*CheckoutResult, error) {
	if input.BuyerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer id required")
	}
	if input.BookID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "book id required")
	}
	input.BuyerEmail = strings.TrimSpace(input.BuyerEmail)
	if input.BuyerEmail == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email required")
	}
	if !input.Provider.IsKnown() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment provider")
	}
	provider, err := e.providers.Get(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "payment provider is not available")
	}

	book, err := e.listings.FindAvailable(ctx, input.BookID)
	if err != nil {
		return nil, userError(err)
	}
	if book.SellerID == input.BuyerID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sellers cannot buy their own listing")
	}

	orderID := uuid.New()
	reference := orderID.String()
	actor := &outbox.ActorRef{UserID: input.BuyerID, Role: string(enums.RefundInitiatorBuyer)}
	ctx = e.logg.WithFields(ctx, map[string]any{
		"order_id": reference,
		"provider": string(input.Provider),
	})

	var order *models.Order
	err = e.db.WithTx(ctx, func(tx *gorm.DB) error {
		created := &models.Order{
			ID:               orderID,
			BuyerID:          input.BuyerID,
			SellerID:         book.SellerID,
			BookID:           book.ID,
			ItemName:         book.Title,
			BuyerEmail:       input.BuyerEmail,
			Amount:           book.Price,
			PaymentProvider:  input.Provider,
			PaymentReference: &reference,
			Status:           enums.OrderStatusCreated,
			PaymentStatus:    enums.PaymentStatusPending,
			DeliveryStatus:   enums.DeliveryStatusNone,
			RefundStatus:     enums.RefundStatusNone,
		}
		if err := e.orders.WithTx(tx).Create(ctx, created); err != nil {
			return err
		}
		if err := e.payments.WithTx(tx).CreateTransaction(ctx, &models.PaymentTransaction{
			OrderID:           orderID,
			Provider:          input.Provider,
			ProviderReference: reference,
			Amount:            book.Price,
			Status:            enums.TransactionStatusPending,
		}); err != nil {
			return err
		}
		order, err = e.machine.Transition(ctx, tx, orderID, orders.Change{
			To:     enums.OrderStatusPendingPayment,
			Reason: "checkout",
			Actor:  actor,
		})
		return err
	})
	if err != nil {
		return nil, userError(err)
	}

	intent, initErr := provider.InitializePayment(ctx, payments.InitializeRequest{
		OrderID:    orderID,
		Reference:  reference,
		Amount:     order.Amount,
		BuyerEmail: order.BuyerEmail,
		ItemName:   order.ItemName,
		SuccessURL: e.urls.ReturnURL(reference, "success"),
		PendingURL: e.urls.ReturnURL(reference, "pending"),
		CancelURL:  e.urls.ReturnURL(reference, "cancel"),
		NotifyURL:  e.urls.NotifyURL(string(input.Provider)),
	})
	if initErr != nil {
		e.abandonCheckout(ctx, orderID, actor, initErr)
		if pkgerrors.As(initErr) != nil {
			return nil, initErr
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, initErr, "payment provider unavailable")
	}

	fields := map[string]any{"payment_url": intent.PaymentURL}
	if intent.ProviderTransactionID != "" {
		fields["provider_transaction_id"] = intent.ProviderTransactionID
	}
	if len(intent.RawResponse) > 0 {
		fields["raw_response"] = string(intent.RawResponse)
	}
	if _, err := e.payments.UpdateTransaction(ctx, orderID, input.Provider, reference, fields); err != nil {
		// The payment page exists; the webhook settles the attempt either way.
		e.logg.Error(ctx, "failed to store payment initialization", err)
	}

	e.logg.Info(ctx, "checkout initialized")
	return &CheckoutResult{Order: order, PaymentURL: intent.PaymentURL}, nil
}

func (e *Engine) abandonCheckout(ctx context.Context, orderID uuid.UUID, actor *outbox.ActorRef, cause error) {
	now := e.now().UTC()
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := e.payments.WithTx(tx).SettleTransaction(ctx, orderID, enums.TransactionStatusFailed, nil); err != nil {
			return err
		}
		_, err := e.machine.Transition(ctx, tx, orderID, orders.Change{
			To: enums.OrderStatusCancelled,
			Fields: map[string]any{
				"payment_status":      enums.PaymentStatusFailed,
				"cancelled_at":        now,
				"cancellation_reason": ReasonPaymentInitFailed,
			},
			Reason: ReasonPaymentInitFailed,
			Actor:  actor,
		})
		return err
	})
	e.logg.Error(ctx, "payment initialization failed", cause)
	if err != nil {
		e.logg.Error(ctx, "failed to cancel order after payment initialization failure", err)
	}
}
