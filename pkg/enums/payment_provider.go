package enums

import (
	"fmt"
	"strings"
)

// PaymentProvider names the processor that captured an order's payment.
type PaymentProvider string

const (
	PaymentProviderBobPay   PaymentProvider = "bobpay"
	PaymentProviderPaystack PaymentProvider = "paystack"
	PaymentProviderUnknown  PaymentProvider = "unknown"
)

var validPaymentProviders = []PaymentProvider{
	PaymentProviderBobPay,
	PaymentProviderPaystack,
	PaymentProviderUnknown,
}

// String implements fmt.Stringer.
func (p PaymentProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentProvider.
func (p PaymentProvider) IsValid() bool {
	for _, candidate := range validPaymentProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsKnown reports whether refunds can be routed to the provider.
func (p PaymentProvider) IsKnown() bool {
	return p == PaymentProviderBobPay || p == PaymentProviderPaystack
}

// ParsePaymentProvider converts raw input into a PaymentProvider. Matching is case-insensitive.
func ParsePaymentProvider(value string) (PaymentProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validPaymentProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment provider %q", value)
}
