package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists requests in PostgreSQL. Transitions are a conditional
// UPDATE on (id, status), which keeps CompareAndSwap atomic across workers.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createRequestsTableSQL = `
CREATE TABLE IF NOT EXISTS inscription_requests (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    payment_address TEXT NOT NULL,
    amount_sats BIGINT NOT NULL,
    fee_rate DOUBLE PRECISION NOT NULL,
    send_amount_sats BIGINT NOT NULL,
    fee_sats BIGINT NOT NULL,
    estimated_vbytes INT NOT NULL,
    status TEXT NOT NULL,
    payment_tx_id TEXT,
    inscription_id TEXT,
    failure_reason TEXT,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);
`

const createRequestsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS inscription_requests_status_idx ON inscription_requests (status, created_at);
`

const createRequestsPaymentTxIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS inscription_requests_payment_tx_idx ON inscription_requests (payment_tx_id)
WHERE payment_tx_id IS NOT NULL;
`

const selectRequestColumns = `
SELECT id, wallet_address, payment_address, amount_sats, fee_rate,
       send_amount_sats, fee_sats, estimated_vbytes, status,
       COALESCE(payment_tx_id, ''), COALESCE(inscription_id, ''), COALESCE(failure_reason, ''),
       created_at, updated_at
FROM inscription_requests
`

const pgUniqueViolation = "23505"

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	for _, stmt := range []string{createRequestsTableSQL, createRequestsStatusIndexSQL, createRequestsPaymentTxIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate inscription_requests: %w", err)
		}
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Request, error) {
	row := p.pool.QueryRow(ctx, selectRequestColumns+`WHERE id = $1`, id)
	req, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return req, err
}

func (p *PostgresStore) Put(ctx context.Context, req Request) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO inscription_requests (
    id, wallet_address, payment_address, amount_sats, fee_rate,
    send_amount_sats, fee_sats, estimated_vbytes, status,
    payment_tx_id, inscription_id, failure_reason, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), $13, $14)
`, req.ID, req.WalletAddress, req.PaymentAddress, req.AmountSats, req.FeeRate,
		req.Quote.SendAmountSats, req.Quote.FeeSats, req.Quote.EstimatedVBytes, string(req.Status),
		req.PaymentTxID, req.InscriptionID, req.FailureReason, req.CreatedAt, req.UpdatedAt)

	if pgErr := uniqueViolation(err); pgErr != nil {
		if pgErr.ConstraintName == "inscription_requests_payment_tx_idx" {
			return fmt.Errorf("%w: %s", ErrPaymentTxReused, req.PaymentTxID)
		}
		return fmt.Errorf("%w: %s", ErrDuplicateID, req.ID)
	}
	return err
}

func (p *PostgresStore) CompareAndSwap(ctx context.Context, id string, from Status, next Request) error {
	tag, err := p.pool.Exec(ctx, `
UPDATE inscription_requests
SET status = $3,
    payment_tx_id = NULLIF($4, ''),
    inscription_id = NULLIF($5, ''),
    failure_reason = NULLIF($6, ''),
    updated_at = $7
WHERE id = $1 AND status = $2
`, id, string(from), string(next.Status), next.PaymentTxID, next.InscriptionID, next.FailureReason, next.UpdatedAt)
	if uniqueViolation(err) != nil {
		return fmt.Errorf("%w: %s", ErrPaymentTxReused, next.PaymentTxID)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	cur, err := p.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s, expected %s", ErrInvalidTransition, id, cur.Status, from)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status) ([]Request, error) {
	rows, err := p.pool.Query(ctx, selectRequestColumns+`WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func uniqueViolation(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr
	}
	return nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var (
		req    Request
		status string
	)
	err := row.Scan(
		&req.ID, &req.WalletAddress, &req.PaymentAddress, &req.AmountSats, &req.FeeRate,
		&req.Quote.SendAmountSats, &req.Quote.FeeSats, &req.Quote.EstimatedVBytes, &status,
		&req.PaymentTxID, &req.InscriptionID, &req.FailureReason,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return Request{}, err
	}
	req.Status = Status(status)
	req.Quote.TotalAmountSats = req.AmountSats
	req.Quote.FeeRate = req.FeeRate
	return req, nil
}
