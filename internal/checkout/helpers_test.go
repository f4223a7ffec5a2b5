package checkout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
	"github.com/lessonbook/checkout/internal/domain/wallet"
)

func cents(v int64) booking.Cents { return booking.Cents(v) }

func draftWithTotal(total string) booking.Draft {
	return booking.Draft{
		BookingID:    "b1",
		InstructorID: "i1",
		ServiceID:    "s1",
		Date:         "2026-03-14",
		StartTime:    "14:00",
		DurationMins: json.Number("60"),
		TotalAmount:  total,
	}
}

// consistent builds a preview satisfying the zero-sum invariant for the
// given base and credit.
func consistent(base, credit booking.Cents) *pricing.Preview {
	return &pricing.Preview{
		BasePriceCents:     base,
		CreditAppliedCents: credit,
		StudentPayCents:    base - credit,
	}
}

// quoterFunc adapts a function to the pricing.Quoter interface.
type quoterFunc func(ctx context.Context, bookingID string, credit, referral booking.Cents) (*pricing.Preview, error)

func (f quoterFunc) GetPreview(ctx context.Context, bookingID string, credit, referral booking.Cents) (*pricing.Preview, error) {
	return f(ctx, bookingID, credit, referral)
}

// quoteCall records one GetPreview invocation.
type quoteCall struct {
	bookingID string
	credit    booking.Cents
	referral  booking.Cents
}

// fakeQuoter answers GetPreview from a queue of responses, recording every
// call. An empty queue echoes the request as a consistent preview over
// baseCents.
type fakeQuoter struct {
	mu        sync.Mutex
	calls     []quoteCall
	responses []quoteResponse
	baseCents booking.Cents
}

type quoteResponse struct {
	preview *pricing.Preview
	err     error
}

func (q *fakeQuoter) push(p *pricing.Preview, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.responses = append(q.responses, quoteResponse{preview: p, err: err})
}

func (q *fakeQuoter) GetPreview(_ context.Context, bookingID string, credit, referral booking.Cents) (*pricing.Preview, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, quoteCall{bookingID: bookingID, credit: credit, referral: referral})
	if len(q.responses) > 0 {
		r := q.responses[0]
		q.responses = q.responses[1:]
		return r.preview, r.err
	}
	return consistent(q.baseCents, credit), nil
}

func (q *fakeQuoter) callCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.calls)
}

func (q *fakeQuoter) lastCall() quoteCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[len(q.calls)-1]
}

type fakeBalance struct {
	balance *wallet.Balance
	err     error
}

func (b *fakeBalance) GetBalance(context.Context) (*wallet.Balance, error) {
	return b.balance, b.err
}

// fakeBookings scripts booking creation and records cancellations.
type fakeBookings struct {
	mu        sync.Mutex
	record    *payment.Record
	createErr error
	cancelErr error
	created   int
	cancelled []string
}

func (b *fakeBookings) CreateBooking(context.Context, booking.Draft) (*payment.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.created++
	if b.createErr != nil {
		return nil, b.createErr
	}
	return b.record, nil
}

func (b *fakeBookings) CancelBooking(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, id)
	return b.cancelErr
}

// fakeGateway scripts the payment submission.
type fakeGateway struct {
	mu      sync.Mutex
	result  *payment.CheckoutResult
	err     error
	lastReq payment.CheckoutRequest
	calls   int
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req payment.CheckoutRequest) (*payment.CheckoutResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

// fakeRecorder collects audit attempts.
type fakeRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (r *fakeRecorder) Record(_ context.Context, at Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, at)
	return r.err
}
