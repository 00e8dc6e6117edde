package payments

import (
	"bytes"
	"strings"

	"github.com/bookloop/orderflow/pkg/db/models"
	"github.com/bookloop/orderflow/pkg/enums"
)

var (
	bobPayMethods = map[string]struct{}{
		"bobpay":      {},
		"instant_eft": {},
		"capitec_pay": {},
		"scan_to_pay": {},
		"payshap":     {},
	}
	paystackMethods = map[string]struct{}{
		"paystack":      {},
		"card":          {},
		"bank":          {},
		"ussd":          {},
		"mobile_money":  {},
		"bank_transfer": {},
	}

	bobPayMarkers   = [][]byte{[]byte(`"custom_payment_id"`), []byte(`"short_reference"`), []byte("bobpay")}
	paystackMarkers = [][]byte{[]byte(`"authorization_url"`), []byte(`"access_code"`), []byte(`"charge.`), []byte("paystack")}
)

// DetectProvider decides which processor owns an order. The provider recorded
// at creation wins. Older rows fall back to the stored payment method and then
// to markers in the raw processor response. Anything else is unknown.
func DetectProvider(order *models.Order, txn *models.PaymentTransaction) enums.PaymentProvider {
	if order != nil && order.PaymentProvider.IsKnown() {
		return order.PaymentProvider
	}
	if txn == nil {
		return enums.PaymentProviderUnknown
	}
	if txn.Provider.IsKnown() {
		return txn.Provider
	}
	if txn.PaymentMethod != nil {
		method := strings.ToLower(strings.TrimSpace(*txn.PaymentMethod))
		if _, ok := bobPayMethods[method]; ok {
			return enums.PaymentProviderBobPay
		}
		if _, ok := paystackMethods[method]; ok {
			return enums.PaymentProviderPaystack
		}
	}
	raw := bytes.ToLower(txn.RawResponse)
	for _, marker := range bobPayMarkers {
		if bytes.Contains(raw, marker) {
			return enums.PaymentProviderBobPay
		}
	}
	for _, marker := range paystackMarkers {
		if bytes.Contains(raw, marker) {
			return enums.PaymentProviderPaystack
		}
	}
	return enums.PaymentProviderUnknown
}
