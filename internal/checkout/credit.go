package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/pricing"
	"github.com/lessonbook/checkout/internal/domain/wallet"
	"github.com/lessonbook/checkout/internal/kvstore"
)

// ErrSupersededCommit reports that a newer credit commit was issued while
// this one was in flight. The caller must discard the result: the newest
// issued request wins regardless of resolution order.
var ErrSupersededCommit = errors.New("credit commit superseded by a newer request")

// CreditManager owns the wallet-credit amount applied to the order. It
// auto-applies credit at most once per booking identity, persists the user's
// explicit choice through a fallible store, and keeps the committed amount
// stable across price-floor rejections.
type CreditManager struct {
	quoter  pricing.Quoter
	balance wallet.BalanceService
	store   kvstore.Store
	lg      *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	gen uint64
}

// NewCreditManager creates a CreditManager.
func NewCreditManager(quoter pricing.Quoter, balance wallet.BalanceService, store kvstore.Store, lg *zap.Logger) *CreditManager {
	return &CreditManager{
		quoter:  quoter,
		balance: balance,
		store:   store,
		lg:      lg,
		now:     time.Now,
	}
}

// CommitResult describes the outcome of a credit operation.
type CommitResult struct {
	// Preview is the refreshed server quote, nil when no network call was
	// made (no-op commits, adopted decisions).
	Preview *pricing.Preview
	// CommittedCents is the credit amount now committed server-side.
	CommittedCents booking.Cents
	// Skipped reports that the operation was a safety no-op.
	Skipped bool
}

// Decision loads the persisted credit decision for a draft, if any. Corrupt
// or unavailable store values degrade to "no decision".
func (m *CreditManager) Decision(ctx context.Context, draft booking.Draft) (wallet.CreditDecision, bool) {
	return kvstore.GetJSON[wallet.CreditDecision](ctx, m.store, wallet.DecisionKey(draft))
}

func (m *CreditManager) saveDecision(ctx context.Context, draft booking.Draft, applied booking.Cents, removed bool) {
	ok := kvstore.SetJSON(ctx, m.store, wallet.DecisionKey(draft), wallet.CreditDecision{
		AppliedCents:      applied,
		ExplicitlyRemoved: removed,
		UpdatedAt:         m.now(),
	})
	if !ok {
		// Losing the decision record only costs a repeated auto-apply
		// prompt on the next visit; the flow itself is unaffected.
		m.lg.Warn("failed to persist credit decision",
			zap.String("identity", draft.IdentityKey()))
	}
}

// Balance fetches the wallet balance, degrading to zero on failure.
func (m *CreditManager) Balance(ctx context.Context) wallet.Balance {
	bal, err := m.balance.GetBalance(ctx)
	if err != nil || bal == nil {
		if err != nil {
			m.lg.Warn("wallet balance unavailable", zap.Error(err))
		}
		return wallet.Balance{}
	}
	return *bal
}

// AutoApply runs the once-per-booking automatic credit application.
//
// When no decision is stored and the preview already reports applied credit,
// the preview is adopted as the decision without re-issuing a commit. When a
// decision exists (the user set or cleared credits, or a prior auto-apply
// ran), nothing happens. Otherwise a positive wallet balance commits
// min(balance, total due) through the regular commit path.
func (m *CreditManager) AutoApply(ctx context.Context, draft booking.Draft, preview *pricing.Preview, referral booking.Cents) (*CommitResult, error) {
	if _, found := m.Decision(ctx, draft); found {
		return &CommitResult{CommittedCents: appliedOf(preview), Skipped: true}, nil
	}

	if preview != nil && preview.CreditAppliedCents > 0 {
		// The server already applied credit; treat the preview as
		// authoritative rather than re-committing.
		m.saveDecision(ctx, draft, preview.CreditAppliedCents, false)
		return &CommitResult{CommittedCents: preview.CreditAppliedCents, Skipped: true}, nil
	}

	bal := m.Balance(ctx)
	if bal.AvailableCents <= 0 {
		return &CommitResult{Skipped: true}, nil
	}

	due := totalDue(preview, draft)
	return m.Commit(ctx, draft, min(bal.AvailableCents, due), due, appliedOf(preview), referral)
}

// Commit applies a credit amount server-side and persists the decision.
// The requested amount is clamped to [0, totalDue]. Requesting the amount
// that is already committed is a no-op and issues no network call.
//
// On a price-floor rejection the committed amount is left untouched and the
// FloorViolationError is returned for the caller to surface; any other
// failure is wrapped without mutating the committed amount. A successful
// commit records the decision (with the explicit-removal flag when the
// amount is zero).
func (m *CreditManager) Commit(ctx context.Context, draft booking.Draft, requested, totalDue, current, referral booking.Cents) (*CommitResult, error) {
	clamped := clamp(requested, 0, totalDue)
	if clamped == current {
		return &CommitResult{CommittedCents: current, Skipped: true}, nil
	}

	m.mu.Lock()
	m.gen++
	myGen := m.gen
	m.mu.Unlock()

	preview, err := m.quoter.GetPreview(ctx, draft.BookingID, clamped, referral)

	// The staleness check and the decision write share one critical section.
	// A newer commit bumps gen under mu before it can persist, so a slow
	// older commit can never pass its check and then overwrite the newer
	// decision.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != myGen {
		return nil, ErrSupersededCommit
	}

	if err != nil {
		if pricing.IsFloorViolation(err) {
			return nil, err
		}
		return nil, errors.Wrap(err, "apply credit")
	}

	m.saveDecision(ctx, draft, clamped, clamped == 0)
	return &CommitResult{Preview: preview, CommittedCents: clamped}, nil
}

// totalDue is the order total the credit is clamped against: what the
// student would owe with no credit applied.
func totalDue(preview *pricing.Preview, draft booking.Draft) booking.Cents {
	if preview != nil {
		return preview.StudentPayCents + preview.CreditAppliedCents
	}
	total, _ := draft.TotalCents()
	return total
}

func appliedOf(preview *pricing.Preview) booking.Cents {
	if preview == nil {
		return 0
	}
	return preview.CreditAppliedCents
}

func clamp(v, lo, hi booking.Cents) booking.Cents {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
