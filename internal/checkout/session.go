package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/payment"
	"github.com/lessonbook/checkout/internal/domain/pricing"
	"github.com/lessonbook/checkout/internal/domain/wallet"
	"github.com/lessonbook/checkout/internal/kvstore"
)

// ErrSessionNotFound is returned for unknown or expired session IDs.
var ErrSessionNotFound = errors.New("checkout session not found")

// ErrMissingBookingID is returned when a session is opened without a
// booking identity.
var ErrMissingBookingID = errors.New("booking id is required")

// Session owns one checkout flow: the booking draft, the latest pricing
// preview, and the flow state. All mutation goes through its methods; the
// draft is only ever replaced via a transform of the previous value.
//
// The mutex is never held across collaborator calls. In-flight results are
// reconciled against the current state on arrival, with superseded results
// discarded by generation tokens rather than hard cancellation.
type Session struct {
	ID        string
	CreatedAt time.Time

	reconciler *pricing.Reconciler
	credits    *CreditManager
	engine     *Engine
	methods    payment.MethodsService
	lg         *zap.Logger

	mu      sync.Mutex
	draft   booking.Draft
	preview *pricing.Preview
	state   State
}

// Snapshot is the read-only view handed to transports.
type Snapshot struct {
	ID            string           `json:"id"`
	State         State            `json:"state"`
	Draft         booking.Draft    `json:"draft"`
	Preview       *pricing.Preview `json:"preview,omitempty"`
	AmountDue     booking.Cents    `json:"amountDueCents"`
	CreditApplied booking.Cents    `json:"creditAppliedCents"`
}

// Snapshot returns the current session view.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.ID,
		State:         s.state,
		Draft:         s.draft,
		Preview:       s.preview,
		AmountDue:     AmountDue(s.preview, s.draft),
		CreditApplied: AppliedCredit(s.preview, s.state.CreditsToUse),
	}
}

// applyPreview installs a newly arrived preview. The preview's credit amount
// takes precedence over the locally tracked one, and any floor advisory is
// cleared: a successful reconciliation supersedes the rejection it warned
// about.
func (s *Session) applyPreview(p *pricing.Preview, gen uint64) {
	if err := p.CheckConsistency(); err != nil {
		// A zero-sum violation is a quote-service defect, not a state the
		// flow can recover into. Log loudly and refuse the preview.
		s.lg.Error("rejecting inconsistent pricing preview",
			zap.String("session_id", s.ID),
			zap.Uint64("generation", gen),
			zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preview = p
	s.state.CreditsToUse = p.CreditAppliedCents
	s.state.Floor = nil
}

func (s *Session) previewError(err error) {
	// The previous preview stays authoritative; the flow tolerates a
	// degraded quote service.
	s.lg.Warn("preview refresh failed", zap.String("session_id", s.ID), zap.Error(err))
}

// UpdateDraft replaces the booking draft via a transform of the previous
// draft and runs the reconciler over the edit. It returns the detected
// preview cause.
func (s *Session) UpdateDraft(transform func(booking.Draft) booking.Draft) pricing.CauseKind {
	s.mu.Lock()
	prev := s.draft
	next := transform(prev)
	s.draft = next
	credit := s.state.CreditsToUse
	referral := referralOf(s.preview)
	s.mu.Unlock()

	return s.reconciler.Observe(prev, next, credit, referral)
}

// SelectMethod records the chosen payment method and advances method
// selection to confirmation. An explicit method change clears any floor
// advisory.
func (s *Session) SelectMethod(methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Transition(s.state.Step, EventMethodChosen)
	if err != nil {
		return err
	}
	s.state.Step = next
	s.state.PaymentMethodID = methodID
	s.state.Floor = nil
	return nil
}

// SetCredits explicitly commits a credit amount. State is mutated only after
// the server call resolves; a floor rejection attaches an advisory and
// leaves both the step and the committed amount unchanged.
func (s *Session) SetCredits(ctx context.Context, requested booking.Cents) error {
	s.mu.Lock()
	draft := s.draft
	preview := s.preview
	current := s.state.CreditsToUse
	referral := referralOf(preview)
	s.mu.Unlock()

	res, err := s.credits.Commit(ctx, draft, requested, totalDue(preview, draft), current, referral)
	if err != nil {
		if errors.Is(err, ErrSupersededCommit) {
			return nil
		}
		var fv *pricing.FloorViolationError
		if errors.As(err, &fv) {
			s.mu.Lock()
			s.state.Floor = &FloorViolation{Message: fv.Detail, FloorCents: fv.FloorCents}
			s.mu.Unlock()
			return err
		}
		return err
	}

	if res.Preview != nil {
		s.applyPreview(res.Preview, 0)
	}
	s.mu.Lock()
	s.state.CreditsToUse = res.CommittedCents
	s.state.Floor = nil
	s.mu.Unlock()
	return nil
}

// ToggleCredits switches wallet credit fully on or off. Toggling on with a
// zero wallet balance is a no-op.
func (s *Session) ToggleCredits(ctx context.Context, on bool) error {
	if !on {
		return s.SetCredits(ctx, 0)
	}
	bal := s.credits.Balance(ctx)
	if bal.AvailableCents <= 0 {
		return nil
	}
	return s.SetCredits(ctx, bal.AvailableCents)
}

// Confirm runs the terminal submission: CONFIRMATION → PROCESSING, then the
// engine decides SUCCESS, ERROR, or a recoverable return to CONFIRMATION.
func (s *Session) Confirm(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	next, err := Transition(s.state.Step, EventConfirm)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, err
	}
	s.state.Step = next
	draft := s.draft
	preview := s.preview
	st := s.state
	s.mu.Unlock()

	outcome := s.engine.Submit(ctx, s.ID, draft, preview, st)

	s.mu.Lock()
	defer s.mu.Unlock()
	step, err := Transition(s.state.Step, outcome.Event)
	if err != nil {
		// The submission raced a competing transition; keep the flow where
		// it is and surface the conflict.
		return s.snapshotLocked(), err
	}
	s.state.Step = step
	switch outcome.Event {
	case EventRejected:
		s.state.LastError = outcome.Message
	case EventFloorRejected:
		s.state.Floor = outcome.Floor
		if s.state.Floor == nil {
			s.state.Floor = &FloorViolation{Message: "the price is below the allowed minimum"}
		}
	case EventAccepted:
		s.state.LastError = ""
		s.state.Floor = nil
		if outcome.BookingID != "" {
			s.draft.BookingID = outcome.BookingID
		}
	}
	return s.snapshotLocked(), nil
}

// Back returns from confirmation to method selection.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Transition(s.state.Step, EventBack)
	if err != nil {
		return err
	}
	s.state.Step = next
	return nil
}

// Retry restarts the flow after a terminal error. The transient error state
// is reset; the committed credit survives because it lives server-side.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Transition(s.state.Step, EventRetry)
	if err != nil {
		return err
	}
	s.state.Step = next
	s.state.LastError = ""
	s.state.Floor = nil
	return nil
}

// Methods lists the user's payment methods, degrading to an empty list when
// the collaborator is absent or failing.
func (s *Session) Methods(ctx context.Context) []payment.Method {
	if s.methods == nil {
		return []payment.Method{}
	}
	methods, err := s.methods.List(ctx)
	if err != nil || methods == nil {
		if err != nil {
			s.lg.Warn("payment methods unavailable", zap.Error(err))
		}
		return []payment.Method{}
	}
	return methods
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            s.ID,
		State:         s.state,
		Draft:         s.draft,
		Preview:       s.preview,
		AmountDue:     AmountDue(s.preview, s.draft),
		CreditApplied: AppliedCredit(s.preview, s.state.CreditsToUse),
	}
}

// Close releases the session's debounce timer and invalidates in-flight
// quote requests.
func (s *Session) Close() {
	s.reconciler.Close()
}

// ManagerDeps bundles the collaborators a Manager wires into each session.
type ManagerDeps struct {
	Quoter   pricing.Quoter
	Balance  wallet.BalanceService
	Methods  payment.MethodsService
	Gateway  payment.Gateway
	Bookings payment.BookingService
	Attempts AttemptRecorder
	Store    kvstore.Store
	Window   time.Duration
	Logger   *zap.Logger
}

// Manager creates and tracks live checkout sessions.
type Manager struct {
	deps ManagerDeps

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session Manager.
func NewManager(deps ManagerDeps) *Manager {
	if deps.Window <= 0 {
		deps.Window = pricing.DefaultDebounceWindow
	}
	return &Manager{
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// Open starts a checkout session for a draft: fetch the initial preview
// (tolerating a degraded quote service), run the one-time credit auto-apply,
// and place the flow at method selection.
func (m *Manager) Open(ctx context.Context, draft booking.Draft, inline bool) (*Session, error) {
	if draft.BookingID == "" {
		return nil, ErrMissingBookingID
	}

	lg := m.deps.Logger
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		credits:   NewCreditManager(m.deps.Quoter, m.deps.Balance, m.deps.Store, lg),
		engine:    NewEngine(m.deps.Gateway, m.deps.Bookings, m.deps.Attempts, lg),
		methods:   m.deps.Methods,
		lg:        lg,
		draft:     draft,
		state:     State{Step: StepMethodSelection, Inline: inline},
	}
	s.reconciler = pricing.NewReconciler(m.deps.Quoter, m.deps.Window, lg, s.applyPreview, s.previewError)

	preview, err := m.deps.Quoter.GetPreview(ctx, draft.BookingID, 0, 0)
	if err != nil {
		lg.Warn("initial preview unavailable, falling back to draft total",
			zap.String("booking_id", draft.BookingID),
			zap.Error(err))
	} else if cerr := preview.CheckConsistency(); cerr != nil {
		lg.Error("initial preview inconsistent", zap.Error(cerr))
	} else {
		s.preview = preview
		s.state.CreditsToUse = preview.CreditAppliedCents
	}

	if res, err := s.credits.AutoApply(ctx, draft, s.preview, 0); err != nil {
		// Auto-apply is a convenience; its failure never blocks checkout.
		lg.Warn("credit auto-apply failed", zap.Error(err))
	} else {
		if res.Preview != nil {
			s.preview = res.Preview
		}
		s.state.CreditsToUse = res.CommittedCents
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s, nil
}

// Get looks up a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close removes a session and releases its resources.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}
