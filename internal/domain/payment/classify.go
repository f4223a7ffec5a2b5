package payment

import (
	"strings"

	"github.com/go-faster/errors"
)

// Category is the small user-facing outcome vocabulary that the wide
// vendor-specific error surface collapses into.
type Category string

const (
	CategoryGeneric            Category = "generic"
	CategoryInsufficientFunds  Category = "insufficient_funds"
	CategoryCardDeclined       Category = "card_declined"
	CategoryCardExpired        Category = "card_expired"
	CategoryCardReused         Category = "card_reused"
	CategoryGatewayTimeout     Category = "gateway_timeout"
	CategoryActionRequired     Category = "action_required"
	CategoryMethodRequired     Category = "method_required"
	CategoryBookingIncomplete  Category = "booking_incomplete"
	CategoryBookingUnavailable Category = "booking_unavailable"
)

// Message returns the user-facing text for a category.
func (c Category) Message() string {
	switch c {
	case CategoryInsufficientFunds:
		return "Your card has insufficient funds. Please try a different payment method."
	case CategoryCardDeclined:
		return "Your card was declined. Please try a different payment method."
	case CategoryCardExpired:
		return "Your card has expired. Please update your payment method."
	case CategoryCardReused:
		return "This card was already used for this booking. Please try a different payment method."
	case CategoryGatewayTimeout:
		return "The payment provider timed out. No charge was made; please try again."
	case CategoryActionRequired:
		return "Your bank requires additional verification for this payment. Please complete verification with your bank and try again."
	case CategoryMethodRequired:
		return "A payment method is required to complete this booking."
	case CategoryBookingIncomplete:
		return "The booking is missing required details. Please review the date and time."
	case CategoryBookingUnavailable:
		return "This time slot is no longer available. Please pick another time."
	default:
		return "Something went wrong processing your payment. You have not been charged."
	}
}

// VendorError is a structured error surfaced by a payment collaborator.
// Code is the preferred classification input; Message feeds the substring
// fallback when no code is present.
type VendorError struct {
	Code    string
	Message string
}

func (e *VendorError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// codeCategories maps structured vendor codes to categories.
var codeCategories = map[string]Category{
	"insufficient_funds":      CategoryInsufficientFunds,
	"card_declined":           CategoryCardDeclined,
	"generic_decline":         CategoryCardDeclined,
	"expired_card":            CategoryCardExpired,
	"duplicate_transaction":   CategoryCardReused,
	"processing_error":        CategoryGeneric,
	"gateway_timeout":         CategoryGatewayTimeout,
	"authentication_required": CategoryActionRequired,
}

// messagePatterns is the substring fallback for collaborators that only
// expose prose. Matching free text from a vendor is inherently fragile;
// it exists solely as a last resort behind the structured-code path, and
// anything unrecognized falls through to CategoryGeneric.
var messagePatterns = []struct {
	substr   string
	category Category
}{
	{"insufficient funds", CategoryInsufficientFunds},
	{"insufficient_funds", CategoryInsufficientFunds},
	{"card was declined", CategoryCardDeclined},
	{"declined", CategoryCardDeclined},
	{"expired", CategoryCardExpired},
	{"already been used", CategoryCardReused},
	{"duplicate", CategoryCardReused},
	{"timed out", CategoryGatewayTimeout},
	{"timeout", CategoryGatewayTimeout},
	{"authentication", CategoryActionRequired},
}

// Classify maps a payment collaborator error to a Category. Structured
// vendor codes win; prose matching is the fallback; anything else is
// CategoryGeneric.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}

	var ve *VendorError
	if errors.As(err, &ve) && ve.Code != "" {
		if cat, ok := codeCategories[ve.Code]; ok {
			return cat
		}
	}

	msg := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		if strings.Contains(msg, p.substr) {
			return p.category
		}
	}
	return CategoryGeneric
}
