package pricing

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckConsistency(t *testing.T) {
	tests := []struct {
		name    string
		preview Preview
		wantErr bool
	}{
		{
			name: "balanced",
			preview: Preview{
				BasePriceCents:     10000,
				StudentFeeCents:    1500,
				CreditAppliedCents: 2000,
				StudentPayCents:    9500,
			},
		},
		{
			name: "balanced with referral",
			preview: Preview{
				BasePriceCents:       10000,
				StudentFeeCents:      1500,
				CreditAppliedCents:   2000,
				ReferralAppliedCents: 1000,
				StudentPayCents:      8500,
			},
		},
		{
			name: "one cent rounding tolerated",
			preview: Preview{
				BasePriceCents:  10000,
				StudentFeeCents: 1500,
				StudentPayCents: 11501,
			},
		},
		{
			name: "off by two",
			preview: Preview{
				BasePriceCents:  10000,
				StudentFeeCents: 1500,
				StudentPayCents: 11502,
			},
			wantErr: true,
		},
		{
			name: "credit not reflected in total",
			preview: Preview{
				BasePriceCents:     10000,
				StudentFeeCents:    1500,
				CreditAppliedCents: 2000,
				StudentPayCents:    11500,
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.preview.CheckConsistency()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInconsistentPreview))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestIsFloorViolation(t *testing.T) {
	fv := &FloorViolationError{Detail: "below minimum", FloorCents: 5000}
	assert.True(t, IsFloorViolation(fv))
	assert.True(t, IsFloorViolation(errors.Wrap(fv, "apply credit")))
	assert.False(t, IsFloorViolation(errors.New("boom")))
	assert.False(t, IsFloorViolation(nil))
}
