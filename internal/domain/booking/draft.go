package booking

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Cents is a monetary amount in minor currency units.
type Cents int64

// Draft is the mutable snapshot of the lesson being purchased. It is owned
// by a checkout session and only ever replaced, never mutated in place.
//
// Scheduling fields are kept in their raw client representation: dates may be
// ISO dates, full timestamps, or free text; times may be 12-hour, 24-hour, or
// HH:MM:SS; durations may arrive as numbers or strings. Normalize converts
// them into comparable values.
type Draft struct {
	BookingID    string `json:"bookingId"`
	InstructorID string `json:"instructorId"`
	ServiceID    string `json:"serviceId"`

	Date         string      `json:"date,omitempty"`
	StartTime    string      `json:"startTime,omitempty"`
	EndTime      string      `json:"endTime,omitempty"`
	DurationMins json.Number `json:"durationMins,omitempty"`

	Location string `json:"location,omitempty"`
	Online   bool   `json:"online,omitempty"`

	// BasePrice and TotalAmount are decimal strings, e.g. "115.00".
	BasePrice   string `json:"basePrice,omitempty"`
	TotalAmount string `json:"totalAmount,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IdentityKey returns the composite identity used to key persisted
// per-booking records such as credit decisions.
func (d Draft) IdentityKey() string {
	return strings.Join([]string{d.BookingID, d.InstructorID, d.ServiceID}, "|")
}

// TotalCents parses the draft's total amount into minor units. The second
// return value reports whether the field held a parseable amount.
func (d Draft) TotalCents() (Cents, bool) {
	return ParseAmount(d.TotalAmount)
}

// ParseAmount converts a decimal money string ("115.00", "84", "$45.50")
// into minor units. Unparseable or empty input yields (0, false).
func ParseAmount(s string) (Cents, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, false
	}
	dec, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	return Cents(dec.Shift(2).Round(0).IntPart()), true
}

// FormatAmount renders minor units back into a decimal string with two
// fractional digits.
func FormatAmount(c Cents) string {
	return decimal.New(int64(c), -2).StringFixed(2)
}
