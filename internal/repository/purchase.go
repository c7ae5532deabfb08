package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"loyalty-bot/internal/model"
)

var (
	ErrPurchaseNotFound = errors.New("purchase transaction not found")

	// ErrDuplicateQRToken means a purchase already exists for the token.
	// The ledger writer treats it as "already processed" and reads the
	// existing row back instead of failing.
	ErrDuplicateQRToken = errors.New("purchase already recorded for qr token")
)

const purchaseColumns = `id, place_id, user_id, amount_gross, base_discount_pct, extra_discount_pct,
		extra_value, amount_partner_due, amount_user_subsidy, final_user_price,
		points_spent, points_earned, redeem_rate_snapshot, qr_token, status, created_at`

// PurchaseRepository handles the append-only purchase transaction records.
// Rows are immutable after creation; the unique qr_token constraint is the
// idempotency key for the whole redemption.
type PurchaseRepository struct {
	db Querier
}

// NewPurchaseRepository creates a new PurchaseRepository instance.
func NewPurchaseRepository(pool *pgxpool.Pool) *PurchaseRepository {
	return &PurchaseRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *PurchaseRepository) WithTx(tx pgx.Tx) *PurchaseRepository {
	return &PurchaseRepository{db: tx}
}

func scanPurchase(row pgx.Row) (*model.PurchaseTransaction, error) {
	var p model.PurchaseTransaction
	err := row.Scan(
		&p.ID,
		&p.PlaceID,
		&p.UserID,
		&p.AmountGross,
		&p.BaseDiscountPct,
		&p.ExtraDiscountPct,
		&p.ExtraValue,
		&p.AmountPartnerDue,
		&p.AmountUserSubsidy,
		&p.FinalUserPrice,
		&p.PointsSpent,
		&p.PointsEarned,
		&p.RedeemRate,
		&p.QRToken,
		&p.Status,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a purchase transaction. Returns ErrDuplicateQRToken when a
// purchase already exists for the same qr_token.
func (r *PurchaseRepository) Create(ctx context.Context, p *model.PurchaseTransaction) (*model.PurchaseTransaction, error) {
	const query = `
		INSERT INTO purchase_transactions (
			place_id, user_id, amount_gross, base_discount_pct, extra_discount_pct,
			extra_value, amount_partner_due, amount_user_subsidy, final_user_price,
			points_spent, points_earned, redeem_rate_snapshot, qr_token, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		RETURNING ` + purchaseColumns

	created, err := scanPurchase(r.db.QueryRow(ctx, query,
		p.PlaceID,
		p.UserID,
		p.AmountGross,
		p.BaseDiscountPct,
		p.ExtraDiscountPct,
		p.ExtraValue,
		p.AmountPartnerDue,
		p.AmountUserSubsidy,
		p.FinalUserPrice,
		p.PointsSpent,
		p.PointsEarned,
		p.RedeemRate,
		p.QRToken,
		p.Status,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateQRToken
		}
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return created, nil
}

// GetByQRToken retrieves the purchase recorded for a QR token.
func (r *PurchaseRepository) GetByQRToken(ctx context.Context, qrToken string) (*model.PurchaseTransaction, error) {
	const query = `SELECT ` + purchaseColumns + ` FROM purchase_transactions WHERE qr_token = $1`

	p, err := scanPurchase(r.db.QueryRow(ctx, query, qrToken))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase by qr token: %w", err)
	}
	return p, nil
}

// ListByPlace retrieves recent purchases for a place, newest first. Partner
// settlement tooling reads these.
func (r *PurchaseRepository) ListByPlace(ctx context.Context, placeID int64, limit int) ([]*model.PurchaseTransaction, error) {
	const query = `
		SELECT ` + purchaseColumns + `
		FROM purchase_transactions
		WHERE place_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, placeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var purchases []*model.PurchaseTransaction
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan purchase: %w", err)
		}
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating purchases: %w", err)
	}
	return purchases, nil
}
