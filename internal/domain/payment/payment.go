package payment

import (
	"context"

	"github.com/lessonbook/checkout/internal/domain/booking"
)

// Method is a stored payment instrument.
type Method struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int    `json:"expMonth"`
	ExpYear  int    `json:"expYear"`
}

// MethodsService lists the user's stored payment methods. Callers must
// tolerate absence or failure by degrading to an empty list.
type MethodsService interface {
	List(ctx context.Context) ([]Method, error)
}

// CheckoutRequest is the submission sent to the payment gateway.
type CheckoutRequest struct {
	BookingID            string        `json:"bookingId"`
	PaymentMethodID      string        `json:"paymentMethodId,omitempty"`
	RequestedCreditCents booking.Cents `json:"requestedCreditCents"`
	ReferralCents        booking.Cents `json:"referralCents,omitempty"`
	AmountCents          booking.Cents `json:"amountCents"`
}

// CheckoutResult is the gateway's response. Status strings are
// vendor-defined; only the allow-list in IsAcceptedStatus counts as success.
type CheckoutResult struct {
	Status         string        `json:"status"`
	AmountCents    booking.Cents `json:"amountCents"`
	RequiresAction bool          `json:"requiresAction"`
	ClientSecret   string        `json:"clientSecret,omitempty"`
}

// Gateway submits payment for a created booking.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

// Record is the booking lifecycle service's view of a created booking.
type Record struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// BookingService creates and cancels bookings. Idempotency of creation is
// the collaborator's responsibility; cancellation is best-effort.
type BookingService interface {
	CreateBooking(ctx context.Context, draft booking.Draft) (*Record, error)
	CancelBooking(ctx context.Context, bookingID string) error
}

// acceptedStatuses is the explicit allow-list of terminal payment statuses.
// Anything else, including superficially plausible strings, is a failure:
// an ambiguous transaction must never complete silently.
var acceptedStatuses = map[string]struct{}{
	"succeeded":        {},
	"processing":       {},
	"authorized":       {},
	"scheduled":        {},
	"requires_capture": {},
}

// IsAcceptedStatus reports whether a gateway status counts as success.
func IsAcceptedStatus(status string) bool {
	_, ok := acceptedStatuses[status]
	return ok
}
