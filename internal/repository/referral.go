package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonbook/checkout/internal/domain/referral"
)

const (
	findReferralSQL = `SELECT code, percent, description FROM referral_codes WHERE code = UPPER($1)`
	listReferralSQL = `SELECT code FROM referral_codes`
	upsertReferralSQL = `INSERT INTO referral_codes (code, percent, description)
		VALUES (UPPER($1), $2, $3)
		ON CONFLICT (code) DO NOTHING`
)

var _ referral.Repository = (*ReferralRepository)(nil)

// ReferralRepository implements referral.Repository backed by PostgreSQL.
type ReferralRepository struct {
	pool *pgxpool.Pool
}

// NewReferralRepository returns a ReferralRepository that uses the given pool.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{pool: pool}
}

// FindByCode looks up a referral code. Returns referral.ErrUnknownCode when
// no matching code exists.
func (r *ReferralRepository) FindByCode(ctx context.Context, code string) (*referral.Rule, error) {
	var rule referral.Rule
	err := r.pool.QueryRow(ctx, findReferralSQL, code).
		Scan(&rule.Code, &rule.Percent, &rule.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, referral.ErrUnknownCode
		}
		return nil, errors.Wrapf(err, "find referral code %q", code)
	}
	return &rule, nil
}

// EachCode streams every stored code to fn.
func (r *ReferralRepository) EachCode(ctx context.Context, fn func(code string) error) error {
	rows, err := r.pool.Query(ctx, listReferralSQL)
	if err != nil {
		return errors.Wrap(err, "list referral codes")
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return errors.Wrap(err, "scan referral code")
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	return errors.Wrap(rows.Err(), "iterate referral codes")
}

// Insert stores a referral code, ignoring duplicates.
func (r *ReferralRepository) Insert(ctx context.Context, rule referral.Rule) error {
	_, err := r.pool.Exec(ctx, upsertReferralSQL, rule.Code, rule.Percent, rule.Description)
	return errors.Wrapf(err, "insert referral code %q", rule.Code)
}
