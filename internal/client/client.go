// Package client implements the collaborator contracts over HTTP: pricing
// quotes, wallet balance, payment methods, the checkout gateway, and the
// booking lifecycle service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
	"github.com/lessonbook/checkout/internal/domain/wallet"
)

// Client calls the platform backend that hosts the collaborator endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

var (
	_ pricing.Quoter         = (*Client)(nil)
	_ wallet.BalanceService  = (*Client)(nil)
	_ payment.MethodsService = (*Client)(nil)
	_ payment.Gateway        = (*Client)(nil)
	_ payment.BookingService = (*Client)(nil)
)

// New creates a Client for the given base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// apiError is the backend's error envelope.
type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
	// FloorCents accompanies price-floor rejections.
	FloorCents booking.Cents `json:"floorCents,omitempty"`
}

// do performs a JSON round trip. Error responses are decoded into the
// vendor error vocabulary; a 422 carrying a price-floor detail becomes a
// pricing.FloorViolationError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)

		if resp.StatusCode == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(apiErr.Detail), "price floor") {
			return &pricing.FloorViolationError{
				Detail:     apiErr.Detail,
				FloorCents: apiErr.FloorCents,
			}
		}

		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Detail
		}
		if msg == "" {
			msg = resp.Status
		}
		return &payment.VendorError{Code: apiErr.Code, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s %s response", method, path)
	}
	return nil
}

// GetPreview requests a pricing quote. Passing a credit amount doubles as
// the server-side apply-credit operation.
func (c *Client) GetPreview(ctx context.Context, bookingID string, creditCents, referralCents booking.Cents) (*pricing.Preview, error) {
	req := struct {
		BookingID     string        `json:"bookingId"`
		CreditCents   booking.Cents `json:"creditCents"`
		ReferralCents booking.Cents `json:"referralCents,omitempty"`
	}{bookingID, creditCents, referralCents}

	var preview pricing.Preview
	if err := c.do(ctx, http.MethodPost, "/v1/pricing/preview", req, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// GetBalance fetches the wallet balance.
func (c *Client) GetBalance(ctx context.Context) (*wallet.Balance, error) {
	var bal wallet.Balance
	if err := c.do(ctx, http.MethodGet, "/v1/wallet/balance", nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}

// List fetches the stored payment methods.
func (c *Client) List(ctx context.Context) ([]payment.Method, error) {
	var methods []payment.Method
	if err := c.do(ctx, http.MethodGet, "/v1/payment-methods", nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// CreateCheckout submits payment for a created booking.
func (c *Client) CreateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	var result payment.CheckoutResult
	if err := c.do(ctx, http.MethodPost, "/v1/checkout", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateBooking creates the booking. Idempotency is the backend's concern.
func (c *Client) CreateBooking(ctx context.Context, draft booking.Draft) (*payment.Record, error) {
	var record payment.Record
	if err := c.do(ctx, http.MethodPost, "/v1/bookings", draft, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// CancelBooking cancels a created booking. Best-effort; callers log and
// swallow failures.
func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/bookings/"+bookingID, nil, nil)
}
