// Package referral validates referral codes against the code ledger, with a
// bloom-filter prefilter in front of the database. Code dumps number in the
// millions, so the filter screens obvious misses before any query runs.
package referral

import (
	"context"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnknownCode is returned when a referral code does not exist.
var ErrUnknownCode = errors.New("unknown referral code")

const (
	minCodeLen = 6
	maxCodeLen = 12
)

// Rule describes the discount attached to a referral code.
type Rule struct {
	Code        string
	Percent     decimal.Decimal
	Description string
}

// Repository provides lookup and enumeration of referral codes.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
	// EachCode streams every known code, for filter warming.
	EachCode(ctx context.Context, fn func(code string) error) error
}

// Validator answers "is this code valid, and what does it grant".
type Validator struct {
	repo   Repository
	filter *bloom.BloomFilter
}

// NewValidator creates a Validator. filter may be nil, in which case every
// lookup hits the repository.
func NewValidator(repo Repository, filter *bloom.BloomFilter) *Validator {
	return &Validator{repo: repo, filter: filter}
}

// WarmFilter builds a bloom filter sized for capacity codes and fills it
// from the repository.
func WarmFilter(ctx context.Context, repo Repository, capacity uint, fpr float64) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(capacity, fpr)
	err := repo.EachCode(ctx, func(code string) error {
		filter.AddString(code)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "warm referral filter")
	}
	return filter, nil
}

// Validate normalizes and checks a referral code. Structurally invalid codes
// and bloom-filter misses fail without touching the repository.
func (v *Validator) Validate(ctx context.Context, code string) (*Rule, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < minCodeLen || len(code) > maxCodeLen {
		return nil, ErrUnknownCode
	}
	if v.filter != nil && !v.filter.TestString(code) {
		return nil, ErrUnknownCode
	}

	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUnknownCode) {
			return nil, ErrUnknownCode
		}
		return nil, errors.Wrap(err, "lookup referral code")
	}
	return rule, nil
}
