package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-bot/internal/model"
)

var (
	ErrQRNotFound = errors.New("qr code not found")
)

const qrColumns = "code_id, place_id, token, status, is_active, max_scans, scans_count, issued_at, expires_at"

// QRRepository handles QR code persistence and the redemption bookkeeping
// around it (scan counts, status, fraud flags).
type QRRepository struct {
	db Querier
}

// NewQRRepository creates a new QRRepository instance.
func NewQRRepository(pool *pgxpool.Pool) *QRRepository {
	return &QRRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *QRRepository) WithTx(tx pgx.Tx) *QRRepository {
	return &QRRepository{db: tx}
}

func scanQR(row pgx.Row) (*model.QRCode, error) {
	var code model.QRCode
	err := row.Scan(
		&code.CodeID,
		&code.PlaceID,
		&code.Token,
		&code.Status,
		&code.IsActive,
		&code.MaxScans,
		&code.ScansCount,
		&code.IssuedAt,
		&code.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &code, nil
}

// Create inserts a newly issued QR code.
func (r *QRRepository) Create(ctx context.Context, code *model.QRCode) (*model.QRCode, error) {
	const query = `
		INSERT INTO qr_codes (code_id, place_id, token, status, is_active, max_scans, scans_count, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, 0, NOW(), $6)
		RETURNING ` + qrColumns

	created, err := scanQR(r.db.QueryRow(ctx, query,
		code.CodeID,
		code.PlaceID,
		code.Token,
		model.QRStatusIssued,
		code.MaxScans,
		code.ExpiresAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create qr code: %w", err)
	}
	return created, nil
}

// GetByToken retrieves a QR code by its signed token.
func (r *QRRepository) GetByToken(ctx context.Context, token string) (*model.QRCode, error) {
	const query = `SELECT ` + qrColumns + ` FROM qr_codes WHERE token = $1`

	code, err := scanQR(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQRNotFound
		}
		return nil, fmt.Errorf("failed to get qr code: %w", err)
	}
	return code, nil
}

// GetByTokenForUpdate retrieves a QR code row-locked for the current
// transaction, serializing concurrent redemption attempts on the same token.
func (r *QRRepository) GetByTokenForUpdate(ctx context.Context, token string) (*model.QRCode, error) {
	const query = `SELECT ` + qrColumns + ` FROM qr_codes WHERE token = $1 FOR UPDATE`

	code, err := scanQR(r.db.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQRNotFound
		}
		return nil, fmt.Errorf("failed to get qr code for update: %w", err)
	}
	return code, nil
}

// MarkRedeemed increments the scan count and moves an ISSUED code to
// REDEEMED. The status guard makes the transition effective at most once.
func (r *QRRepository) MarkRedeemed(ctx context.Context, codeID string) (*model.QRCode, error) {
	const query = `
		UPDATE qr_codes
		SET scans_count = scans_count + 1, status = $2
		WHERE code_id = $1 AND status = $3
		RETURNING ` + qrColumns

	code, err := scanQR(r.db.QueryRow(ctx, query, codeID, model.QRStatusRedeemed, model.QRStatusIssued))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQRNotFound
		}
		return nil, fmt.Errorf("failed to mark qr redeemed: %w", err)
	}
	return code, nil
}

// MarkRejected moves a code to the terminal REJECTED state.
func (r *QRRepository) MarkRejected(ctx context.Context, codeID string) error {
	const query = `
		UPDATE qr_codes
		SET status = $2
		WHERE code_id = $1 AND status = $3
	`

	if _, err := r.db.Exec(ctx, query, codeID, model.QRStatusRejected, model.QRStatusIssued); err != nil {
		return fmt.Errorf("failed to mark qr rejected: %w", err)
	}
	return nil
}

// FlagFraud records a fraud flag for manual review. Called outside the
// redemption transaction so the flag survives its rollback.
func (r *QRRepository) FlagFraud(ctx context.Context, userID int64, codeID string, score float64, details string) error {
	const query = `
		INSERT INTO fraud_flags (user_id, code_id, score, details, created_at)
		VALUES ($1, $2, $3, $4, NOW())
	`

	if _, err := r.db.Exec(ctx, query, userID, codeID, score, details); err != nil {
		return fmt.Errorf("failed to flag fraud: %w", err)
	}
	return nil
}

// ListFraudFlags returns recent fraud flags for review tooling.
func (r *QRRepository) ListFraudFlags(ctx context.Context, since time.Time, limit int) ([]*model.FraudFlag, error) {
	const query = `
		SELECT id, user_id, code_id, score, details, created_at
		FROM fraud_flags
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fraud flags: %w", err)
	}
	defer rows.Close()

	var flags []*model.FraudFlag
	for rows.Next() {
		var f model.FraudFlag
		if err := rows.Scan(&f.ID, &f.UserID, &f.CodeID, &f.Score, &f.Details, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fraud flag: %w", err)
		}
		flags = append(flags, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fraud flags: %w", err)
	}
	return flags, nil
}
