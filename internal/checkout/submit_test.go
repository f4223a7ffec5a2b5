package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
)

func newEngine(t *testing.T, gw *fakeGateway, bk *fakeBookings, rec *fakeRecorder) *Engine {
	t.Helper()
	var attempts AttemptRecorder
	if rec != nil {
		attempts = rec
	}
	return NewEngine(gw, bk, attempts, zaptest.NewLogger(t))
}

func processingState(methodID string) State {
	return State{Step: StepProcessing, PaymentMethodID: methodID}
}

func TestSubmitHappyPath(t *testing.T) {
	gw := &fakeGateway{result: &payment.CheckoutResult{Status: "succeeded", AmountCents: 9500}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-42", Status: "created"}}
	rec := &fakeRecorder{}
	e := newEngine(t, gw, bk, rec)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 500), processingState("pm-1"))

	assert.Equal(t, EventAccepted, out.Event)
	assert.Equal(t, "bk-42", out.BookingID)
	assert.Equal(t, 1, bk.created)
	assert.Empty(t, bk.cancelled)

	assert.Equal(t, "bk-42", gw.lastReq.BookingID)
	assert.Equal(t, "pm-1", gw.lastReq.PaymentMethodID)
	assert.Equal(t, cents(9500), gw.lastReq.AmountCents)
	assert.Equal(t, cents(500), gw.lastReq.RequestedCreditCents)

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, "sess-1", rec.attempts[0].SessionID)
	assert.Equal(t, "accepted", rec.attempts[0].Outcome)
}

func TestSubmitIncompleteBookingNeverReachesNetwork(t *testing.T) {
	tests := []struct {
		name string
		edit func(d booking.Draft) booking.Draft
	}{
		{"missing instructor", func(d booking.Draft) booking.Draft { d.InstructorID = ""; return d }},
		{"missing service", func(d booking.Draft) booking.Draft { d.ServiceID = ""; return d }},
		{"unparseable date", func(d booking.Draft) booking.Draft { d.Date = "someday"; return d }},
		{"missing start", func(d booking.Draft) booking.Draft { d.StartTime = ""; return d }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft := tt.edit(draftWithTotal("100.00"))

			gw := &fakeGateway{}
			bk := &fakeBookings{record: &payment.Record{ID: "bk-1"}}
			e := newEngine(t, gw, bk, nil)

			out := e.Submit(context.Background(), "sess-1", draft, nil, processingState("pm-1"))
			assert.Equal(t, EventRejected, out.Event)
			assert.Equal(t, payment.CategoryBookingIncomplete, out.Category)
			assert.Equal(t, 0, bk.created)
			assert.Equal(t, 0, gw.calls)
		})
	}
}

func TestSubmitMethodRequiredWhenAmountDue(t *testing.T) {
	gw := &fakeGateway{}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-1"}}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState(""))
	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryMethodRequired, out.Category)
	assert.Equal(t, 0, bk.created)
}

func TestSubmitZeroAmountZeroCreditSkipsPayment(t *testing.T) {
	gw := &fakeGateway{}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-1"}}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("0.00"),
		consistent(0, 0), processingState(""))
	assert.Equal(t, EventAccepted, out.Event)
	assert.Equal(t, "bk-1", out.BookingID)
	assert.Equal(t, 1, bk.created)
	assert.Equal(t, 0, gw.calls)
}

func TestSubmitCreditCoveredOrderStillRunsCheckout(t *testing.T) {
	// Fully credit-covered: amount due is zero but the redemption must be
	// recorded server-side, so checkout still runs. No method is required
	// when nothing is charged.
	gw := &fakeGateway{result: &payment.CheckoutResult{Status: "succeeded"}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-1"}}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 10000), processingState(""))
	assert.Equal(t, EventAccepted, out.Event)
	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, cents(10000), gw.lastReq.RequestedCreditCents)
	assert.Equal(t, cents(0), gw.lastReq.AmountCents)
}

func TestSubmitPaymentFailureCompensates(t *testing.T) {
	gw := &fakeGateway{err: &payment.VendorError{Code: "card_declined", Message: "declined"}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-9"}}
	rec := &fakeRecorder{}
	e := newEngine(t, gw, bk, rec)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))

	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryCardDeclined, out.Category)
	assert.Equal(t, payment.CategoryCardDeclined.Message(), out.Message)
	// The created booking was cancelled.
	assert.Equal(t, []string{"bk-9"}, bk.cancelled)

	require.Len(t, rec.attempts, 1)
	assert.Equal(t, "rejected", rec.attempts[0].Outcome)
	assert.Equal(t, "bk-9", rec.attempts[0].BookingID)
}

func TestSubmitCompensationFailureIsSwallowed(t *testing.T) {
	// Scenario: payment fails AND the compensating cancellation fails. The
	// user must see the payment error, never the cancellation error.
	gw := &fakeGateway{err: &payment.VendorError{Code: "insufficient_funds"}}
	bk := &fakeBookings{
		record:    &payment.Record{ID: "bk-9"},
		cancelErr: errors.New("cancel endpoint down"),
	}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))

	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryInsufficientFunds, out.Category)
	assert.NotContains(t, out.Message, "cancel")
	assert.Equal(t, []string{"bk-9"}, bk.cancelled)
}

func TestSubmitRequiresActionFailsWithDistinctMessage(t *testing.T) {
	gw := &fakeGateway{result: &payment.CheckoutResult{Status: "requires_action", RequiresAction: true}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-9"}}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))

	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryActionRequired, out.Category)
	assert.Equal(t, []string{"bk-9"}, bk.cancelled)
}

func TestSubmitUnknownStatusNeverSucceedsSilently(t *testing.T) {
	gw := &fakeGateway{result: &payment.CheckoutResult{Status: "probably_fine"}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-9"}}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))

	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryGeneric, out.Category)
	assert.Equal(t, []string{"bk-9"}, bk.cancelled)
}

func TestSubmitBookingFloorRejection(t *testing.T) {
	bk := &fakeBookings{createErr: &pricing.FloorViolationError{
		Detail: "price below instructor floor", FloorCents: 8000,
	}}
	gw := &fakeGateway{}
	e := newEngine(t, gw, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 5000), processingState("pm-1"))

	assert.Equal(t, EventFloorRejected, out.Event)
	require.NotNil(t, out.Floor)
	assert.Equal(t, cents(8000), out.Floor.FloorCents)
	assert.Equal(t, 0, gw.calls)
}

func TestSubmitBookingCreationFailure(t *testing.T) {
	bk := &fakeBookings{createErr: errors.New("slot already taken")}
	e := newEngine(t, &fakeGateway{}, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))
	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryBookingUnavailable, out.Category)
}

func TestSubmitEmptyBookingRecordRejected(t *testing.T) {
	bk := &fakeBookings{record: &payment.Record{}}
	e := newEngine(t, &fakeGateway{}, bk, nil)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))
	assert.Equal(t, EventRejected, out.Event)
	assert.Equal(t, payment.CategoryBookingUnavailable, out.Category)
}

func TestSubmitRecorderFailureDoesNotChangeOutcome(t *testing.T) {
	gw := &fakeGateway{result: &payment.CheckoutResult{Status: "succeeded"}}
	bk := &fakeBookings{record: &payment.Record{ID: "bk-1"}}
	rec := &fakeRecorder{err: errors.New("ledger down")}
	e := newEngine(t, gw, bk, rec)

	out := e.Submit(context.Background(), "sess-1", draftWithTotal("100.00"),
		consistent(10000, 0), processingState("pm-1"))
	assert.Equal(t, EventAccepted, out.Event)
}
