package pricing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lessonbook/checkout/internal/domain/booking"
)

// DefaultDebounceWindow coalesces rapid successive edits into a single quote
// request. Freeform editing (a live address field, duration spinners) can
// produce many draft replacements per second.
const DefaultDebounceWindow = 300 * time.Millisecond

// Reconciler decides whether a booking edit invalidates the current preview
// and requests a replacement quote, debounced. Requests are never queued: a
// newer request supersedes any in-flight one, and a superseded response is
// discarded no matter when it resolves. Supersession is decided by a
// monotonically increasing generation per issued request, not by resolution
// order.
type Reconciler struct {
	quoter    Quoter
	window    time.Duration
	lg        *zap.Logger
	onPreview func(*Preview, uint64)
	onError   func(error)

	mu      sync.Mutex
	timer   *time.Timer
	pending quoteRequest
	gen     uint64
	closed  bool
}

type quoteRequest struct {
	bookingID     string
	creditCents   booking.Cents
	referralCents booking.Cents
}

// NewReconciler creates a Reconciler. onPreview receives each preview that
// survived generation gating, along with the generation that produced it;
// onError receives failures of the latest request only.
func NewReconciler(q Quoter, window time.Duration, lg *zap.Logger, onPreview func(*Preview, uint64), onError func(error)) *Reconciler {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Reconciler{
		quoter:    q,
		window:    window,
		lg:        lg,
		onPreview: onPreview,
		onError:   onError,
	}
}

// Observe compares the previous and next draft and, when the edit is
// price-affecting, schedules a debounced quote request. It returns the
// detected cause so callers can surface it.
func (r *Reconciler) Observe(prev, next booking.Draft, creditCents, referralCents booking.Cents) CauseKind {
	cause := DetermineCause(prev, next)
	if cause == CauseNone {
		return cause
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return cause
	}
	r.pending = quoteRequest{
		bookingID:     next.BookingID,
		creditCents:   creditCents,
		referralCents: referralCents,
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.window, r.fire)
	return cause
}

// RequestNow issues a quote request immediately, bypassing the debounce
// window. Used for the initial load and after credit commits.
func (r *Reconciler) RequestNow(bookingID string, creditCents, referralCents booking.Cents) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = quoteRequest{bookingID: bookingID, creditCents: creditCents, referralCents: referralCents}
	r.mu.Unlock()
	r.fire()
}

// Close stops any pending debounce timer. In-flight requests resolve but
// their results are discarded.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++ // invalidate in-flight responses
}

// fire snapshots the pending request, stamps it with a fresh generation, and
// resolves it asynchronously. The response is applied only when no newer
// request has been issued in the meantime.
func (r *Reconciler) fire() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.gen++
	myGen := r.gen
	req := r.pending
	r.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		preview, err := r.quoter.GetPreview(ctx, req.bookingID, req.creditCents, req.referralCents)

		r.mu.Lock()
		stale := r.gen != myGen || r.closed
		r.mu.Unlock()
		if stale {
			r.lg.Debug("discarding superseded preview response",
				zap.Uint64("generation", myGen),
				zap.String("booking_id", req.bookingID))
			return
		}

		if err != nil {
			r.lg.Warn("preview request failed",
				zap.Uint64("generation", myGen),
				zap.Error(err))
			if r.onError != nil {
				r.onError(err)
			}
			return
		}
		r.onPreview(preview, myGen)
	}()
}
