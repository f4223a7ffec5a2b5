// Package wallet defines the student wallet collaborator contract and the
// persisted record of the user's credit choice.
package wallet

import (
	"context"
	"time"

	"github.com/lessonbook/checkout/internal/domain/booking"
)

// Balance is the wallet state reported by the credit balance service.
type Balance struct {
	AvailableCents booking.Cents `json:"availableCents"`
	PendingCents   booking.Cents `json:"pendingCents"`
	ExpiresAt      *time.Time    `json:"expiresAt,omitempty"`
}

// BalanceService reports the user's wallet balance.
type BalanceService interface {
	GetBalance(ctx context.Context) (*Balance, error)
}

// CreditDecision records the user's wallet-credit choice for one booking
// identity. Created on the first auto-apply, overwritten on every explicit
// change, never read across different bookings.
type CreditDecision struct {
	AppliedCents      booking.Cents `json:"appliedCents"`
	ExplicitlyRemoved bool          `json:"explicitlyRemoved"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// DecisionKey returns the store key for a draft's credit decision.
func DecisionKey(d booking.Draft) string {
	return "credit-decision:" + d.IdentityKey()
}
