package booking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDateForms(t *testing.T) {
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		date string
	}{
		{"iso date", "2026-03-14"},
		{"rfc3339", "2026-03-14T18:00:00Z"},
		{"timestamp no zone", "2026-03-14T18:00:00"},
		{"timestamp with space", "2026-03-14 18:00:00"},
		{"long free text", "March 14, 2026"},
		{"short free text", "Mar 14, 2026"},
		{"us slashes", "03/14/2026"},
		{"iso slashes", "2026/03/14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(Draft{Date: tt.date})
			require.NotNil(t, n.Date)
			assert.True(t, n.Date.Equal(want), "got %v", *n.Date)
		})
	}
}

func TestNormalizeUnparseableDateIsAbsent(t *testing.T) {
	n := Normalize(Draft{Date: "next tuesday-ish"})
	assert.Nil(t, n.Date)

	n = Normalize(Draft{})
	assert.Nil(t, n.Date)
	assert.Nil(t, n.StartMinute)
	assert.Nil(t, n.DurationMins)
}

func TestNormalizeClockForms(t *testing.T) {
	tests := []struct {
		name  string
		start string
		want  int
	}{
		{"24 hour", "14:00", 14 * 60},
		{"with seconds", "14:00:00", 14 * 60},
		{"12 hour", "2:00pm", 14 * 60},
		{"12 hour spaced", "2:00 PM", 14 * 60},
		{"hour only", "2pm", 14 * 60},
		{"morning", "09:30", 9*60 + 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(Draft{StartTime: tt.start})
			require.NotNil(t, n.StartMinute)
			assert.Equal(t, tt.want, *n.StartMinute)
		})
	}
}

func TestNormalizeStartFromTimestampDate(t *testing.T) {
	// A full timestamp in the date field carries the start time too.
	n := Normalize(Draft{Date: "2026-03-14T18:00:00Z"})
	require.NotNil(t, n.Date)
	require.NotNil(t, n.StartMinute)
	assert.Equal(t, 18*60, *n.StartMinute)
}

func TestNormalizeDuration(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		want  *int
	}{
		{
			name:  "explicit integer",
			draft: Draft{DurationMins: json.Number("90")},
			want:  intPtr(90),
		},
		{
			name:  "explicit decimal",
			draft: Draft{DurationMins: json.Number("90.0")},
			want:  intPtr(90),
		},
		{
			name:  "derived from start and end",
			draft: Draft{StartTime: "14:00", EndTime: "15:30"},
			want:  intPtr(90),
		},
		{
			name:  "explicit zero falls back to derived",
			draft: Draft{DurationMins: json.Number("0"), StartTime: "14:00", EndTime: "15:00"},
			want:  intPtr(60),
		},
		{
			name:  "negative span clamps to zero",
			draft: Draft{StartTime: "15:00", EndTime: "14:00"},
			want:  intPtr(0),
		},
		{
			name:  "nothing to derive from",
			draft: Draft{},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Normalize(tt.draft)
			if tt.want == nil {
				assert.Nil(t, n.DurationMins)
				return
			}
			require.NotNil(t, n.DurationMins)
			assert.Equal(t, *tt.want, *n.DurationMins)
		})
	}
}

func TestSameComparisonsTreatAbsentAsUnchanged(t *testing.T) {
	known := Normalize(Draft{Date: "2026-03-14", StartTime: "14:00", DurationMins: json.Number("60")})
	absent := Normalize(Draft{})

	assert.True(t, known.SameDate(absent))
	assert.True(t, absent.SameDate(known))
	assert.True(t, known.SameStart(absent))
	assert.True(t, known.SameDuration(absent))

	other := Normalize(Draft{Date: "2026-03-15", StartTime: "15:00", DurationMins: json.Number("90")})
	assert.False(t, known.SameDate(other))
	assert.False(t, known.SameStart(other))
	assert.False(t, known.SameDuration(other))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     string
		want   Cents
		wantOK bool
	}{
		{"115.00", 11500, true},
		{"84", 8400, true},
		{"$45.50", 4550, true},
		{" $12.34 ", 1234, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "115.00", FormatAmount(11500))
	assert.Equal(t, "0.05", FormatAmount(5))
}

func TestIdentityKey(t *testing.T) {
	d := Draft{BookingID: "b1", InstructorID: "i1", ServiceID: "s1"}
	assert.Equal(t, "b1|i1|s1", d.IdentityKey())
}

func intPtr(v int) *int { return &v }
