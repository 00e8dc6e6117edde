package payments

import (
	"strings"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

// ProviderRef identifies a charge at its processor. It is one of BobPayRef,
// PaystackRef or UnknownRef.
type ProviderRef interface {
	Provider() enums.PaymentProvider
	sealed()
}

type BobPayRef struct {
	PaymentID string
}

func (BobPayRef) Provider() enums.PaymentProvider { return enums.PaymentProviderBobPay }
func (BobPayRef) sealed()                         {}

type PaystackRef struct {
	Reference     string
	TransactionID string
}

func (PaystackRef) Provider() enums.PaymentProvider { return enums.PaymentProviderPaystack }
func (PaystackRef) sealed()                         {}

type UnknownRef struct{}

func (UnknownRef) Provider() enums.PaymentProvider { return enums.PaymentProviderUnknown }
func (UnknownRef) sealed()                         {}

// RefFor builds the processor handle for an order from its stored data.
// txn is the successful payment transaction and may be nil.
func RefFor(order *models.Order, txn *models.PaymentTransaction) ProviderRef {
	if order == nil {
		return UnknownRef{}
	}
	reference := ""
	if order.PaymentReference != nil {
		reference = strings.TrimSpace(*order.PaymentReference)
	}
	transactionID := ""
	if txn != nil && txn.ProviderTransactionID != nil {
		transactionID = strings.TrimSpace(*txn.ProviderTransactionID)
	}

	switch DetectProvider(order, txn) {
	case enums.PaymentProviderBobPay:
		if reference == "" {
			reference = transactionID
		}
		return BobPayRef{PaymentID: reference}
	case enums.PaymentProviderPaystack:
		if reference == "" && txn != nil {
			reference = strings.TrimSpace(txn.ProviderReference)
		}
		return PaystackRef{Reference: reference, TransactionID: transactionID}
	default:
		return UnknownRef{}
	}
}
