package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// migrations is the full schema, applied in order. Statements are
// idempotent so startup can always run the whole list.
var migrations = []struct {
	name string
	sql  string
}{
	{
		name: "users",
		sql: `
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				username VARCHAR(255) NOT NULL,
				points_balance BIGINT NOT NULL DEFAULT 0,
				referred_by BIGINT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "places",
		sql: `
			CREATE TABLE IF NOT EXISTS places (
				id BIGSERIAL PRIMARY KEY,
				partner_id BIGINT NOT NULL,
				name VARCHAR(255) NOT NULL,
				base_discount_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
				loyalty_accrual_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
				max_percent_per_bill DOUBLE PRECISION NOT NULL DEFAULT 0,
				min_purchase DOUBLE PRECISION NOT NULL DEFAULT 0,
				latitude DOUBLE PRECISION,
				longitude DOUBLE PRECISION,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_places_partner ON places(partner_id);
		`,
	},
	{
		name: "loyalty_config",
		sql: `
			CREATE TABLE IF NOT EXISTS loyalty_config (
				id INT PRIMARY KEY,
				redeem_rate DOUBLE PRECISION NOT NULL,
				rounding_rule VARCHAR(20) NOT NULL,
				max_accrual_percent DOUBLE PRECISION NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
		`,
	},
	{
		name: "qr_codes",
		sql: `
			CREATE TABLE IF NOT EXISTS qr_codes (
				code_id VARCHAR(64) PRIMARY KEY,
				place_id BIGINT NOT NULL REFERENCES places(id) ON DELETE CASCADE,
				token TEXT NOT NULL UNIQUE,
				status VARCHAR(20) NOT NULL DEFAULT 'issued',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				max_scans INT NOT NULL DEFAULT 1,
				scans_count INT NOT NULL DEFAULT 0,
				issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMPTZ NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_qr_codes_place ON qr_codes(place_id);
		`,
	},
	{
		name: "purchase_transactions",
		sql: `
			CREATE TABLE IF NOT EXISTS purchase_transactions (
				id BIGSERIAL PRIMARY KEY,
				place_id BIGINT NOT NULL REFERENCES places(id),
				user_id BIGINT NOT NULL REFERENCES users(id),
				amount_gross DOUBLE PRECISION NOT NULL,
				base_discount_pct DOUBLE PRECISION NOT NULL,
				extra_discount_pct DOUBLE PRECISION NOT NULL,
				extra_value DOUBLE PRECISION NOT NULL,
				amount_partner_due DOUBLE PRECISION NOT NULL,
				amount_user_subsidy DOUBLE PRECISION NOT NULL,
				final_user_price DOUBLE PRECISION NOT NULL,
				points_spent BIGINT NOT NULL,
				points_earned BIGINT NOT NULL,
				redeem_rate_snapshot DOUBLE PRECISION NOT NULL,
				qr_token TEXT NOT NULL UNIQUE,
				status VARCHAR(20) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_purchases_place_time ON purchase_transactions(place_id, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_purchases_user_time ON purchase_transactions(user_id, created_at DESC);
		`,
	},
	{
		name: "points_history",
		sql: `
			CREATE TABLE IF NOT EXISTS points_history (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				delta BIGINT NOT NULL,
				reason VARCHAR(50) NOT NULL,
				transaction_id BIGINT REFERENCES purchase_transactions(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_points_history_user_time ON points_history(user_id, created_at DESC);
		`,
	},
	{
		name: "referral_edges",
		sql: `
			CREATE TABLE IF NOT EXISTS referral_edges (
				user_id BIGINT PRIMARY KEY REFERENCES users(id),
				referrer_id BIGINT NOT NULL REFERENCES users(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_referral_edges_referrer ON referral_edges(referrer_id);
		`,
	},
	{
		name: "referral_bonuses",
		sql: `
			CREATE TABLE IF NOT EXISTS referral_bonuses (
				id BIGSERIAL PRIMARY KEY,
				referrer_id BIGINT NOT NULL REFERENCES users(id),
				referred_id BIGINT NOT NULL REFERENCES users(id),
				level INT NOT NULL,
				bonus_amount DOUBLE PRECISION NOT NULL,
				source_transaction_id BIGINT NOT NULL REFERENCES purchase_transactions(id),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (source_transaction_id, referrer_id, level)
			);
			CREATE INDEX IF NOT EXISTS idx_referral_bonuses_referrer ON referral_bonuses(referrer_id);
		`,
	},
	{
		name: "referral_stats",
		sql: `
			CREATE TABLE IF NOT EXISTS referral_stats (
				user_id BIGINT PRIMARY KEY REFERENCES users(id),
				total_referrals BIGINT NOT NULL DEFAULT 0,
				level1_earnings DOUBLE PRECISION NOT NULL DEFAULT 0,
				level2_earnings DOUBLE PRECISION NOT NULL DEFAULT 0,
				level3_earnings DOUBLE PRECISION NOT NULL DEFAULT 0
			);
		`,
	},
	{
		name: "fraud_flags",
		sql: `
			CREATE TABLE IF NOT EXISTS fraud_flags (
				id BIGSERIAL PRIMARY KEY,
				user_id BIGINT NOT NULL,
				code_id VARCHAR(64) NOT NULL,
				score DOUBLE PRECISION NOT NULL,
				details TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);
			CREATE INDEX IF NOT EXISTS idx_fraud_flags_time ON fraud_flags(created_at DESC);
		`,
	},
}

// Migrate applies the database schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	log.Info().Msg("Running database migrations...")

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			log.Error().Err(err).Str("migration", m.name).Msg("Migration failed")
			return err
		}
		log.Debug().Str("migration", m.name).Msg("Migration applied")
	}

	log.Info().Msg("All migrations completed successfully")
	return nil
}
