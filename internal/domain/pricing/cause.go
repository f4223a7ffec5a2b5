package pricing

import "github.com/lessonbook/checkout/internal/domain/booking"

// CauseKind classifies why a booking edit invalidates the current preview.
type CauseKind string

const (
	// CauseNone means the edit does not affect the price.
	CauseNone CauseKind = "none"
	// CauseDurationChange means the normalized lesson duration changed.
	CauseDurationChange CauseKind = "duration-change"
	// CauseDateTimeChange means the normalized date or start time changed.
	CauseDateTimeChange CauseKind = "date-time-change"
)

// DetermineCause compares two draft snapshots and decides whether the edit
// requires a fresh pricing preview. Location-only and metadata-only edits
// never fire a cause; unparseable values normalize to absent and absent
// values never count as changed.
func DetermineCause(prev, next booking.Draft) CauseKind {
	a := booking.Normalize(prev)
	b := booking.Normalize(next)

	if !a.SameDuration(b) {
		return CauseDurationChange
	}
	if !a.SameDate(b) || !a.SameStart(b) {
		return CauseDateTimeChange
	}
	return CauseNone
}
