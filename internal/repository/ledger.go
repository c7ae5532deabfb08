package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-bot/internal/model"
)

// LedgerRepository handles the append-only points history. Every balance
// change goes through Append; the sum of deltas per user is the source of
// truth for points_balance.
type LedgerRepository struct {
	db Querier
}

// NewLedgerRepository creates a new LedgerRepository instance.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *LedgerRepository) WithTx(tx pgx.Tx) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// Append records one points movement.
func (r *LedgerRepository) Append(ctx context.Context, userID int64, delta int64, reason string, transactionID *int64) (*model.PointsLedgerEntry, error) {
	const query = `
		INSERT INTO points_history (user_id, delta, reason, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, user_id, delta, reason, transaction_id, created_at
	`

	var entry model.PointsLedgerEntry
	err := r.db.QueryRow(ctx, query, userID, delta, reason, transactionID).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.Delta,
		&entry.Reason,
		&entry.TransactionID,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return &entry, nil
}

// ListByUser retrieves a user's points history, newest first.
func (r *LedgerRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.PointsLedgerEntry, error) {
	const query = `
		SELECT id, user_id, delta, reason, transaction_id, created_at
		FROM points_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.PointsLedgerEntry
	for rows.Next() {
		var entry model.PointsLedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Delta,
			&entry.Reason,
			&entry.TransactionID,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}

// SumForUser reproduces a user's balance from the ledger. Reconciliation
// jobs compare this against the cached points_balance.
func (r *LedgerRepository) SumForUser(ctx context.Context, userID int64) (int64, error) {
	const query = `SELECT COALESCE(SUM(delta), 0) FROM points_history WHERE user_id = $1`

	var sum int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger for user: %w", err)
	}
	return sum, nil
}
