package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `id, user_id, tier, status, started_at, expires_at, created_at, updated_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	err := row.Scan(&s.ID, &s.UserID, &s.Tier, &s.Status, &s.StartedAt, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, sub *model.Subscription) error {
	// One subscription per user; renewals update the row in place.
	const q = `
INSERT INTO subscriptions (
  id, user_id, tier, status, started_at, expires_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
) ON CONFLICT (user_id) DO UPDATE SET
  tier=$3, status=$4, expires_at=$6, updated_at=$8;`

	_, err := execSQL(ctx, r.pool, tx, q, sub.ID, sub.UserID, sub.Tier, sub.Status, sub.StartedAt, sub.ExpiresAt, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) MarkExpired(ctx context.Context, tx repository.Tx, userID int64) (bool, error) {
	const q = `
    UPDATE subscriptions
       SET status = 'expired',
           updated_at = NOW()
     WHERE user_id = $1
       AND status IN ('active', 'trial')
       AND expires_at < NOW();`

	cmd, err := execSQL(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *subscriptionRepo) ListExpired(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status IN ('active','trial') AND expires_at < $1 ORDER BY expires_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, now, limit)
}

func (r *subscriptionRepo) ListExpiringWithin(ctx context.Context, tx repository.Tx, within time.Duration, limit int) ([]*model.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE status IN ('active','trial') AND expires_at BETWEEN NOW() AND NOW() + $1 ORDER BY expires_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, within, limit)
}

func (r *subscriptionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
