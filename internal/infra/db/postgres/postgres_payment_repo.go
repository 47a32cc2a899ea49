package postgres

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-paid-channel/internal/domain"
	"telegram-paid-channel/internal/domain/model"
	"telegram-paid-channel/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `id, user_id, tier, provider, external_id, amount, currency, status, description, idempotency_key, created_at, updated_at, paid_at, subscription_id`

func scanPayment(row pgx.Row) (*model.Payment, error) {
	p := &model.Payment{}
	err := row.Scan(&p.ID, &p.UserID, &p.Tier, &p.Provider, &p.ExternalID, &p.Amount, &p.Currency, &p.Status, &p.Description, &p.IdempotencyKey, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt, &p.SubscriptionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return p, nil
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, tier, provider, external_id, amount, currency, status, description, idempotency_key, created_at, updated_at, paid_at, subscription_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
) ON CONFLICT (id) DO UPDATE SET
  user_id=$2, tier=$3, provider=$4, external_id=$5, amount=$6, currency=$7, status=$8, description=$9, updated_at=$12, paid_at=$13, subscription_id=$14;`

	_, err := execSQL(ctx, r.pool, tx, q, p.ID, p.UserID, p.Tier, p.Provider, p.ExternalID, p.Amount, p.Currency, p.Status, p.Description, p.IdempotencyKey, p.CreatedAt, p.UpdatedAt, p.PaidAt, p.SubscriptionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func hashKeyToInt64(provider, externalID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(provider + "|" + externalID))
	return int64(h.Sum64() & ((1 << 63) - 1))
}

func (r *paymentRepo) LockKey(ctx context.Context, tx repository.Tx, provider, externalID string) error {
	if _, ok := tx.(pgx.Tx); !ok {
		return domain.ErrInvalidExecContext
	}
	_, err := execSQL(ctx, r.pool, tx, "SELECT pg_advisory_xact_lock($1);", hashKeyToInt64(provider, externalID))
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) FindByProviderExternalID(ctx context.Context, tx repository.Tx, provider, externalID string) (*model.Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE provider=$1 AND external_id=$2`
	// Lock the row inside a transaction so concurrent deliveries of the same
	// notification serialize on this key.
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, provider, externalID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) UpdateStatusIfPending(
	ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, paidAt *time.Time,
) (bool, error) {
	const q = `
    UPDATE payments
       SET status = $2,
           paid_at = COALESCE($3, paid_at),
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) SetSubscriptionID(ctx context.Context, tx repository.Tx, paymentID, subscriptionID string) error {
	const q = `UPDATE payments SET subscription_id=$2, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, paymentID, subscriptionID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, domain.ErrNotFound
	}
	return out, nil
}
