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
	ErrConfigNotFound = errors.New("loyalty config not found")
)

// LoyaltyConfigRepository reads the global loyalty configuration. The config
// is a singleton row, versioned only by updated_at; admin tooling writes it,
// the engine reads the latest per redemption.
type LoyaltyConfigRepository struct {
	db Querier
}

// NewLoyaltyConfigRepository creates a new LoyaltyConfigRepository instance.
func NewLoyaltyConfigRepository(pool *pgxpool.Pool) *LoyaltyConfigRepository {
	return &LoyaltyConfigRepository{db: pool}
}

// WithTx returns a copy of the repository bound to the given transaction.
func (r *LoyaltyConfigRepository) WithTx(tx pgx.Tx) *LoyaltyConfigRepository {
	return &LoyaltyConfigRepository{db: tx}
}

// Get returns the current loyalty configuration. A missing row is
// ErrConfigNotFound: callers must fail closed rather than substitute
// defaults for live money math.
func (r *LoyaltyConfigRepository) Get(ctx context.Context) (*model.LoyaltyConfig, error) {
	const query = `
		SELECT redeem_rate, rounding_rule, max_accrual_percent, updated_at
		FROM loyalty_config
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var cfg model.LoyaltyConfig
	err := r.db.QueryRow(ctx, query).Scan(
		&cfg.RedeemRate,
		&cfg.RoundingRule,
		&cfg.MaxAccrualPct,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get loyalty config: %w", err)
	}
	return &cfg, nil
}

// Put replaces the loyalty configuration. Used by admin tooling and tests.
func (r *LoyaltyConfigRepository) Put(ctx context.Context, cfg *model.LoyaltyConfig) error {
	const query = `
		INSERT INTO loyalty_config (id, redeem_rate, rounding_rule, max_accrual_percent, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET redeem_rate = EXCLUDED.redeem_rate,
		    rounding_rule = EXCLUDED.rounding_rule,
		    max_accrual_percent = EXCLUDED.max_accrual_percent,
		    updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, cfg.RedeemRate, cfg.RoundingRule, cfg.MaxAccrualPct); err != nil {
		return fmt.Errorf("failed to put loyalty config: %w", err)
	}
	return nil
}
