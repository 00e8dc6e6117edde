// Package courier talks to the shipping provider: it cancels shipments and
// normalizes tracking webhooks.
package courier

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/bookloop/orderflow/pkg/config"
	pkgerrors "github.com/bookloop/orderflow/pkg/errors"
	"github.com/bookloop/orderflow/pkg/httpjson"
)

// ErrNotConfigured is returned by New when no courier API is configured.
var ErrNotConfigured = errors.New("courier api not configured")

// Canceller cancels a booked shipment by tracking number.
type Canceller interface {
	CancelShipment(ctx context.Context, trackingNumber string) error
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func New(cfg config.CourierConfig, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = httpjson.DefaultTimeout
	}
	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(cfg.APIKey),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CancelShipment cancels the shipment. A shipment the courier does not know
// about counts as cancelled.
func (c *Client) CancelShipment(ctx context.Context, trackingNumber string) error {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	_, err := httpjson.Do(ctx, c.httpClient, httpjson.Request{
		Method: http.MethodPost,
		URL:    httpjson.JoinURL(c.baseURL, "/shipments/"+url.PathEscape(trackingNumber)+"/cancel"),
		Header: http.Header{"X-Api-Key": {c.apiKey}},
	}, nil)
	if httpjson.StatusCode(err) == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel courier shipment")
	}
	return nil
}
