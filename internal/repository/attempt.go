package repository

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lessonbook/checkout/internal/checkout"
)

const recordAttemptSQL = `INSERT INTO checkout_attempts
	(id, session_id, booking_id, amount_cents, credit_cents, referral_cents, outcome, message, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

var _ checkout.AttemptRecorder = (*AttemptRepository)(nil)

// AttemptRepository persists the checkout-attempt audit ledger.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository returns an AttemptRepository that uses the given pool.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Record inserts one attempt row.
func (r *AttemptRepository) Record(ctx context.Context, a checkout.Attempt) error {
	_, err := r.pool.Exec(ctx, recordAttemptSQL,
		uuid.New(), a.SessionID, a.BookingID,
		int64(a.AmountCents), int64(a.CreditCents), int64(a.ReferralCents),
		a.Outcome, a.Message, a.CreatedAt,
	)
	return errors.Wrap(err, "record checkout attempt")
}
