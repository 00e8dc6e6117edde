package courier

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bookloop/orderflow/pkg/enums"
)

// SignatureHeader carries the optional hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Courier-Signature"

// Kind is the normalized meaning of a tracking update.
type Kind string

const (
	KindDeliveryUpdated   Kind = "delivery_updated"
	KindDeliveryConfirmed Kind = "delivery_confirmed"
	KindShipmentCancelled Kind = "shipment_cancelled"
)

var ErrMalformedEvent = errors.New("malformed courier event")

var statusAliases = map[string]enums.DeliveryStatus{
	"submitted":            enums.DeliveryStatusSubmitted,
	"created":              enums.DeliveryStatusSubmitted,
	"booked":               enums.DeliveryStatusSubmitted,
	"shipped":              enums.DeliveryStatusShipped,
	"picked_up":            enums.DeliveryStatusShipped,
	"collected_by_courier": enums.DeliveryStatusShipped,
	"in_transit":           enums.DeliveryStatusInTransit,
	"out_for_delivery":     enums.DeliveryStatusInTransit,
	"at_hub":               enums.DeliveryStatusInTransit,
	"delivered":            enums.DeliveryStatusDelivered,
	"collected":            enums.DeliveryStatusCollected,
	"collected_by_buyer":   enums.DeliveryStatusCollected,
	"cancelled":            enums.DeliveryStatusCancelled,
	"canceled":             enums.DeliveryStatusCancelled,
}

// Event is a parsed courier webhook.
type Event struct {
	EventType         string               `json:"event_type"`
	TrackingReference string               `json:"tracking_reference"`
	RawStatus         string               `json:"status"`
	Location          *string              `json:"location,omitempty"`
	Status            enums.DeliveryStatus `json:"-"`
}

// Kind classifies the event.
func (e Event) Kind() Kind {
	switch e.Status {
	case enums.DeliveryStatusDelivered, enums.DeliveryStatusCollected:
		return KindDeliveryConfirmed
	case enums.DeliveryStatusCancelled:
		return KindShipmentCancelled
	default:
		return KindDeliveryUpdated
	}
}

// IdempotencyKey is tracking_reference:event_type:status. Couriers that send
// one generic event_type carry progression in status, so status is part of
// the key.
func (e Event) IdempotencyKey() string {
	if e.EventType == "" {
		return e.TrackingReference + ":" + string(e.Status)
	}
	return e.TrackingReference + ":" + e.EventType + ":" + string(e.Status)
}

// ParseEvent decodes a webhook body. The status field wins; when it is absent
// the suffix of event_type (shipment.delivered) is used.
func ParseEvent(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	event.TrackingReference = strings.TrimSpace(event.TrackingReference)
	event.EventType = strings.TrimSpace(event.EventType)
	if event.TrackingReference == "" {
		return nil, fmt.Errorf("%w: tracking_reference required", ErrMalformedEvent)
	}

	candidate := normalize(event.RawStatus)
	if candidate == "" {
		if idx := strings.LastIndex(event.EventType, "."); idx >= 0 {
			candidate = normalize(event.EventType[idx+1:])
		} else {
			candidate = normalize(event.EventType)
		}
	}
	status, ok := statusAliases[candidate]
	if !ok {
		return nil, fmt.Errorf("%w: unknown status %q", ErrMalformedEvent, candidate)
	}
	event.Status = status
	return &event, nil
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the header value against the expected HMAC.
func VerifySignature(body []byte, header, secret string) bool {
	given := strings.ToLower(strings.TrimSpace(header))
	if given == "" || secret == "" {
		return false
	}
	return hmac.Equal([]byte(given), []byte(Sign(body, secret)))
}

func normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	value = strings.ReplaceAll(value, "-", "_")
	return strings.ReplaceAll(value, " ", "_")
}
