package pricing

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/lessonbook/checkout/internal/domain/booking"
)

// consistencyToleranceCents absorbs rounding differences between the server's
// line-item arithmetic and the summed total.
const consistencyToleranceCents = 1

// ErrInconsistentPreview is returned when a preview violates the zero-sum
// invariant. This indicates a defect in the quote service, not a recoverable
// state.
var ErrInconsistentPreview = errors.New("pricing preview violates zero-sum invariant")

// LineItem is a single labelled amount in a preview.
type LineItem struct {
	Label       string        `json:"label"`
	AmountCents booking.Cents `json:"amountCents"`
}

// Preview is a server-computed quote for a booking draft. It is immutable
// once received and superseded wholesale by the next preview.
type Preview struct {
	BasePriceCents       booking.Cents `json:"basePriceCents"`
	StudentFeeCents      booking.Cents `json:"studentFeeCents"`
	CreditAppliedCents   booking.Cents `json:"creditAppliedCents"`
	ReferralAppliedCents booking.Cents `json:"referralAppliedCents"`
	StudentPayCents      booking.Cents `json:"studentPayCents"`
	LineItems            []LineItem    `json:"lineItems,omitempty"`
}

// CheckConsistency verifies
//
//	student_pay == base_price + student_fee - credit_applied - referral_applied
//
// within rounding tolerance.
func (p *Preview) CheckConsistency() error {
	want := p.BasePriceCents + p.StudentFeeCents - p.CreditAppliedCents - p.ReferralAppliedCents
	diff := p.StudentPayCents - want
	if diff < -consistencyToleranceCents || diff > consistencyToleranceCents {
		return errors.Wrapf(ErrInconsistentPreview,
			"student_pay=%d, expected %d", p.StudentPayCents, want)
	}
	return nil
}

// Quoter is the pricing quote collaborator. Requesting a preview with a
// credit amount is also the server-side "apply credit" operation: the server
// recomputes and commits the applied credit, and may reject the combination
// with a FloorViolationError.
type Quoter interface {
	GetPreview(ctx context.Context, bookingID string, creditCents, referralCents booking.Cents) (*Preview, error)
}

// FloorViolationError reports that the requested credit/price combination
// fell below a server-enforced minimum price.
type FloorViolationError struct {
	Detail     string
	FloorCents booking.Cents
}

func (e *FloorViolationError) Error() string {
	return "price floor violation: " + e.Detail
}

// IsFloorViolation reports whether err wraps a FloorViolationError.
func IsFloorViolation(err error) bool {
	var fv *FloorViolationError
	return errors.As(err, &fv)
}
