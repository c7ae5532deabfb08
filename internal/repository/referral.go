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
	ErrSelfReferral    = errors.New("user cannot refer themselves")
	ErrAlreadyReferred = errors.New("user already has a referrer")
	ErrReferralCycle   = errors.New("referral edge would create a cycle")
)

// ReferralRepository handles the referral tree, bonus records and the
// denormalized per-referrer stats. The tree is a strictly acyclic edge list
// with at most one referrer per user, enforced at insertion so distribution
// never needs runtime cycle detection.
type ReferralRepository struct {
	db   Querier
	pool *pgxpool.Pool
}

// NewReferralRepository creates a new ReferralRepository instance.
func NewReferralRepository(pool *pgxpool.Pool) *ReferralRepository {
	return &ReferralRepository{db: pool, pool: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *ReferralRepository) WithTx(tx pgx.Tx) *ReferralRepository {
	return &ReferralRepository{db: tx}
}

// AttachReferrer records that userID was referred by referrerID. Rejects
// self-referral, a second referrer, and any edge that would close a cycle.
// Also bumps the referrer's total_referrals counter and mirrors the edge in
// users.referred_by.
//
// The edge insert, the mirror and the stats bump are one transaction, and
// both user rows are locked in id order first. Two sessions attaching edges
// between the same pair therefore serialize, and the second one sees the
// first one's edge when it walks the ancestor chain.
func (r *ReferralRepository) AttachReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return ErrSelfReferral
	}

	if r.pool == nil {
		// Already inside a caller's transaction.
		return r.attachReferrer(ctx, r.db, userID, referrerID)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin referral transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := r.attachReferrer(ctx, tx, userID, referrerID); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit referral attach: %w", err)
	}
	return nil
}

func (r *ReferralRepository) attachReferrer(ctx context.Context, q Querier, userID, referrerID int64) error {
	// Consistent lock order keeps a pair of mutual attaches deadlock-free.
	const lockQuery = `SELECT id FROM users WHERE id IN ($1, $2) ORDER BY id FOR UPDATE`
	rows, err := q.Query(ctx, lockQuery, userID, referrerID)
	if err != nil {
		return fmt.Errorf("failed to lock user rows: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to lock user rows: %w", err)
	}

	// Walking up from the prospective referrer must not reach the user.
	const cycleQuery = `
		WITH RECURSIVE ancestors AS (
			SELECT referrer_id FROM referral_edges WHERE user_id = $1
			UNION ALL
			SELECT e.referrer_id
			FROM referral_edges e
			JOIN ancestors a ON e.user_id = a.referrer_id
		)
		SELECT EXISTS(SELECT 1 FROM ancestors WHERE referrer_id = $2)
	`

	var wouldCycle bool
	if err := q.QueryRow(ctx, cycleQuery, referrerID, userID).Scan(&wouldCycle); err != nil {
		return fmt.Errorf("failed to check referral cycle: %w", err)
	}
	if wouldCycle {
		return ErrReferralCycle
	}

	const insertQuery = `
		INSERT INTO referral_edges (user_id, referrer_id, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := q.Exec(ctx, insertQuery, userID, referrerID); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyReferred
		}
		return fmt.Errorf("failed to attach referrer: %w", err)
	}

	if _, err := q.Exec(ctx, `UPDATE users SET referred_by = $2, updated_at = NOW() WHERE id = $1`, userID, referrerID); err != nil {
		return fmt.Errorf("failed to set referred_by: %w", err)
	}

	const statsQuery = `
		INSERT INTO referral_stats (user_id, total_referrals)
		VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE
		SET total_referrals = referral_stats.total_referrals + 1
	`
	if _, err := q.Exec(ctx, statsQuery, referrerID); err != nil {
		return fmt.Errorf("failed to bump referral stats: %w", err)
	}

	return nil
}

// GetChain walks the referral tree upward from userID and returns the
// referrer IDs in level order (level 1 first). The walk is capped at
// maxLevels inside the query.
func (r *ReferralRepository) GetChain(ctx context.Context, userID int64, maxLevels int) ([]int64, error) {
	const query = `
		WITH RECURSIVE chain AS (
			SELECT referrer_id, 1 AS level
			FROM referral_edges
			WHERE user_id = $1
			UNION ALL
			SELECT e.referrer_id, c.level + 1
			FROM referral_edges e
			JOIN chain c ON e.user_id = c.referrer_id
			WHERE c.level < $2
		)
		SELECT referrer_id FROM chain ORDER BY level
	`

	rows, err := r.db.Query(ctx, query, userID, maxLevels)
	if err != nil {
		return nil, fmt.Errorf("failed to get referral chain: %w", err)
	}
	defer rows.Close()

	var chain []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan referrer id: %w", err)
		}
		chain = append(chain, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral chain: %w", err)
	}
	return chain, nil
}

// InsertBonus records a referral bonus, keyed by (source transaction,
// referrer, level). Returns false with no error when the bonus already
// exists: the unique constraint, not application logic, enforces idempotent
// crediting.
func (r *ReferralRepository) InsertBonus(ctx context.Context, bonus *model.ReferralBonus) (bool, error) {
	const query = `
		INSERT INTO referral_bonuses (referrer_id, referred_id, level, bonus_amount, source_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (source_transaction_id, referrer_id, level) DO NOTHING
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		bonus.ReferrerID,
		bonus.ReferredID,
		bonus.Level,
		bonus.BonusAmount,
		bonus.SourceTransactionID,
	).Scan(&bonus.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert referral bonus: %w", err)
	}
	return true, nil
}

// ListBonusesByTransaction retrieves the bonuses credited for one purchase.
func (r *ReferralRepository) ListBonusesByTransaction(ctx context.Context, transactionID int64) ([]*model.ReferralBonus, error) {
	const query = `
		SELECT id, referrer_id, referred_id, level, bonus_amount, source_transaction_id, created_at
		FROM referral_bonuses
		WHERE source_transaction_id = $1
		ORDER BY level
	`

	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list referral bonuses: %w", err)
	}
	defer rows.Close()

	var bonuses []*model.ReferralBonus
	for rows.Next() {
		var b model.ReferralBonus
		err := rows.Scan(&b.ID, &b.ReferrerID, &b.ReferredID, &b.Level, &b.BonusAmount, &b.SourceTransactionID, &b.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan referral bonus: %w", err)
		}
		bonuses = append(bonuses, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral bonuses: %w", err)
	}
	return bonuses, nil
}

// AddEarnings bumps the referrer's per-level earnings cache.
func (r *ReferralRepository) AddEarnings(ctx context.Context, referrerID int64, level int, amount float64) error {
	if level < 1 || level > 3 {
		return fmt.Errorf("invalid referral level %d", level)
	}

	query := fmt.Sprintf(`
		INSERT INTO referral_stats (user_id, level%d_earnings)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET level%d_earnings = referral_stats.level%d_earnings + EXCLUDED.level%d_earnings
	`, level, level, level, level)

	if _, err := r.db.Exec(ctx, query, referrerID, amount); err != nil {
		return fmt.Errorf("failed to add referral earnings: %w", err)
	}
	return nil
}

// GetStats retrieves the denormalized referral stats for a user. A missing
// row means no referrals yet and comes back zeroed.
func (r *ReferralRepository) GetStats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	const query = `
		SELECT user_id, total_referrals, level1_earnings, level2_earnings, level3_earnings
		FROM referral_stats
		WHERE user_id = $1
	`

	var stats model.ReferralStats
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&stats.UserID,
		&stats.TotalReferrals,
		&stats.Level1Earnings,
		&stats.Level2Earnings,
		&stats.Level3Earnings,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.ReferralStats{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get referral stats: %w", err)
	}
	return &stats, nil
}
