package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
)

// Attempt is one audit row per submission, recorded regardless of outcome.
type Attempt struct {
	SessionID     string
	BookingID     string
	AmountCents   booking.Cents
	CreditCents   booking.Cents
	ReferralCents booking.Cents
	Outcome       string
	Message       string
	CreatedAt     time.Time
}

// AttemptRecorder persists submission attempts. Recording is best-effort;
// failures are logged and never affect the flow outcome.
type AttemptRecorder interface {
	Record(ctx context.Context, a Attempt) error
}

// Engine executes the terminal checkout transaction: create the booking,
// submit payment when required, classify failures, and issue compensating
// cancellation when payment fails after the booking was created.
type Engine struct {
	gateway  payment.Gateway
	bookings payment.BookingService
	attempts AttemptRecorder
	lg       *zap.Logger
	now      func() time.Time
}

// NewEngine creates a submission Engine. attempts may be nil to disable the
// audit ledger.
func NewEngine(gateway payment.Gateway, bookings payment.BookingService, attempts AttemptRecorder, lg *zap.Logger) *Engine {
	return &Engine{
		gateway:  gateway,
		bookings: bookings,
		attempts: attempts,
		lg:       lg,
		now:      time.Now,
	}
}

// Outcome is the classified result of a submission.
type Outcome struct {
	// Event is the state-machine event the submission produced: accepted,
	// rejected, or floor-rejected.
	Event     Event
	BookingID string
	Category  payment.Category
	Message   string
	Floor     *FloorViolation
}

func rejected(cat payment.Category) Outcome {
	return Outcome{Event: EventRejected, Category: cat, Message: cat.Message()}
}

// Submit runs the submission sequence for a session in PROCESSING.
//
// Validation failures never reach the network. The booking is created first;
// payment, when required, references the created booking. A payment failure
// after booking creation triggers a best-effort compensating cancellation
// whose own failure is logged and never surfaced: the user sees the original
// payment error, not a secondary cancellation error.
func (e *Engine) Submit(ctx context.Context, sessionID string, draft booking.Draft, preview *pricing.Preview, st State) Outcome {
	amountDue := AmountDue(preview, draft)
	creditApplied := AppliedCredit(preview, st.CreditsToUse)
	referral := referralOf(preview)

	out := e.submit(ctx, draft, st, amountDue, creditApplied, referral)
	e.record(ctx, sessionID, draft, out, amountDue, creditApplied, referral)
	return out
}

func (e *Engine) submit(ctx context.Context, draft booking.Draft, st State, amountDue, creditApplied, referral booking.Cents) Outcome {
	// Booking readiness: all of instructor, service, date, and start time
	// are required. Missing any one fails closed rather than silently
	// proceeding with a partial booking.
	if !bookingReady(draft) {
		return rejected(payment.CategoryBookingIncomplete)
	}

	// A zero-amount order with zero credit skips payment submission
	// entirely; credit-covered orders still run checkout so the redemption
	// is recorded server-side.
	shouldProcess := amountDue > 0 || creditApplied > 0

	if shouldProcess && amountDue > 0 && st.PaymentMethodID == "" {
		return rejected(payment.CategoryMethodRequired)
	}

	record, err := e.bookings.CreateBooking(ctx, draft)
	if err != nil {
		var fvErr *pricing.FloorViolationError
		if errors.As(err, &fvErr) {
			// Recoverable: the user can adjust credits/price in place.
			return Outcome{Event: EventFloorRejected, Floor: &FloorViolation{
				Message:    fvErr.Detail,
				FloorCents: fvErr.FloorCents,
			}}
		}
		cat := payment.Classify(err)
		if cat == payment.CategoryGeneric {
			cat = payment.CategoryBookingUnavailable
		}
		e.lg.Warn("booking creation failed", zap.Error(err))
		return rejected(cat)
	}
	if record == nil || record.ID == "" {
		e.lg.Warn("booking service returned no record")
		return rejected(payment.CategoryBookingUnavailable)
	}

	if !shouldProcess {
		return Outcome{Event: EventAccepted, BookingID: record.ID}
	}

	result, err := e.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		BookingID:            record.ID,
		PaymentMethodID:      st.PaymentMethodID,
		RequestedCreditCents: creditApplied,
		ReferralCents:        referral,
		AmountCents:          amountDue,
	})
	if err != nil {
		e.compensate(ctx, record.ID)
		cat := payment.Classify(err)
		e.lg.Warn("payment submission failed",
			zap.String("booking_id", record.ID),
			zap.String("category", string(cat)),
			zap.Error(err))
		out := rejected(cat)
		out.BookingID = record.ID
		return out
	}

	// A requires-action response cannot be completed synchronously in this
	// flow; it is a failure with a distinct, user-actionable message.
	if result.RequiresAction {
		e.compensate(ctx, record.ID)
		out := rejected(payment.CategoryActionRequired)
		out.BookingID = record.ID
		return out
	}

	if !payment.IsAcceptedStatus(result.Status) {
		e.compensate(ctx, record.ID)
		e.lg.Warn("unrecognized payment status treated as failure",
			zap.String("booking_id", record.ID),
			zap.String("status", result.Status))
		out := rejected(payment.CategoryGeneric)
		out.BookingID = record.ID
		return out
	}

	return Outcome{Event: EventAccepted, BookingID: record.ID}
}

// compensate cancels a created booking after a failed payment. Failure here
// is swallowed: the user must see the payment error, not a cancellation one.
func (e *Engine) compensate(ctx context.Context, bookingID string) {
	if err := e.bookings.CancelBooking(ctx, bookingID); err != nil {
		e.lg.Error("compensating cancellation failed",
			zap.String("booking_id", bookingID),
			zap.Error(err))
	}
}

func (e *Engine) record(ctx context.Context, sessionID string, draft booking.Draft, out Outcome, amountDue, credit, referral booking.Cents) {
	if e.attempts == nil {
		return
	}
	a := Attempt{
		SessionID:     sessionID,
		BookingID:     out.BookingID,
		AmountCents:   amountDue,
		CreditCents:   credit,
		ReferralCents: referral,
		Outcome:       string(out.Event),
		Message:       out.Message,
		CreatedAt:     e.now(),
	}
	if a.BookingID == "" {
		a.BookingID = draft.BookingID
	}
	if err := e.attempts.Record(ctx, a); err != nil {
		e.lg.Warn("failed to record checkout attempt", zap.Error(err))
	}
}

// bookingReady checks the submission guard: resolved instructor, service,
// date, and start time.
func bookingReady(d booking.Draft) bool {
	if d.InstructorID == "" || d.ServiceID == "" {
		return false
	}
	n := booking.Normalize(d)
	return n.Date != nil && n.StartMinute != nil
}

func referralOf(preview *pricing.Preview) booking.Cents {
	if preview == nil {
		return 0
	}
	return preview.ReferralAppliedCents
}
