package checkout

import (
	"fmt"

	"github.com/lessonbook/checkout/internal/domain/booking"
	"github.com/lessonbook/checkout/internal/domain/pricing"
)

// Step is the checkout flow position. The flow is
//
//	METHOD_SELECTION → CONFIRMATION → PROCESSING → {SUCCESS | ERROR}
//
// with ERROR → METHOD_SELECTION on retry and CONFIRMATION →
// METHOD_SELECTION on back. An inline display mode may render method
// selection and confirmation together, but it tracks the same step value,
// so transition rules are identical regardless of presentation.
type Step string

const (
	StepMethodSelection Step = "METHOD_SELECTION"
	StepConfirmation    Step = "CONFIRMATION"
	StepProcessing      Step = "PROCESSING"
	StepSuccess         Step = "SUCCESS"
	StepError           Step = "ERROR"
)

// Event drives a step transition.
type Event string

const (
	// EventMethodChosen fires once a payment method is selected.
	EventMethodChosen Event = "method-chosen"
	// EventBack returns from confirmation to method selection.
	EventBack Event = "back"
	// EventConfirm is the user's explicit confirmation.
	EventConfirm Event = "confirm"
	// EventAccepted reports that booking creation and payment both resolved
	// with an accepted status.
	EventAccepted Event = "accepted"
	// EventRejected reports any terminal submission failure.
	EventRejected Event = "rejected"
	// EventFloorRejected reports a recoverable price-floor rejection: the
	// user can adjust credits in place, so the flow returns to confirmation
	// rather than the terminal-looking error step.
	EventFloorRejected Event = "floor-rejected"
	// EventRetry restarts the flow after an error.
	EventRetry Event = "retry"
)

// IllegalTransitionError reports an event that is not legal from the
// current step.
type IllegalTransitionError struct {
	From  Step
	Event Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal checkout transition: %s from %s", e.Event, e.From)
}

// transitions is the exhaustive legal-transition table. Anything absent is
// illegal by construction; there is no way to reach, say, PROCESSING from
// SUCCESS.
var transitions = map[Step]map[Event]Step{
	StepMethodSelection: {
		EventMethodChosen: StepConfirmation,
	},
	StepConfirmation: {
		EventMethodChosen: StepConfirmation,
		EventBack:         StepMethodSelection,
		EventConfirm:      StepProcessing,
	},
	StepProcessing: {
		EventAccepted:      StepSuccess,
		EventRejected:      StepError,
		EventFloorRejected: StepConfirmation,
	},
	StepError: {
		EventRetry: StepMethodSelection,
	},
	StepSuccess: {},
}

// Transition applies an event to a step, or fails with
// IllegalTransitionError.
func Transition(from Step, ev Event) (Step, error) {
	if next, ok := transitions[from][ev]; ok {
		return next, nil
	}
	return from, &IllegalTransitionError{From: from, Event: ev}
}

// FloorViolation is the ephemeral advisory attached to the flow state when
// the server rejects a credit/price combination. Cleared on any successful
// reconciliation or explicit method change.
type FloorViolation struct {
	Message    string        `json:"message"`
	FloorCents booking.Cents `json:"floorCents"`
}

// State is the orchestrator's own transient state, reset on retry.
type State struct {
	Step            Step            `json:"step"`
	Inline          bool            `json:"inline,omitempty"`
	PaymentMethodID string          `json:"paymentMethodId,omitempty"`
	CreditsToUse    booking.Cents   `json:"creditsToUse"`
	LastError       string          `json:"lastError,omitempty"`
	Floor           *FloorViolation `json:"floor,omitempty"`
}

// AmountDue computes what the student owes right now. The server-computed
// preview is authoritative when present; otherwise the draft's own total is
// the fallback. Credit amounts volunteered by the preview take precedence
// over the locally tracked amount to prevent drift between server-computed
// and locally guessed totals.
func AmountDue(preview *pricing.Preview, draft booking.Draft) booking.Cents {
	if preview != nil {
		return preview.StudentPayCents
	}
	total, ok := draft.TotalCents()
	if !ok {
		return 0
	}
	return total
}

// AppliedCredit reports the committed credit for display: the preview's
// value when a preview exists, else the locally tracked amount.
func AppliedCredit(preview *pricing.Preview, local booking.Cents) booking.Cents {
	if preview != nil {
		return preview.CreditAppliedCents
	}
	return local
}
