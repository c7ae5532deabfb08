// Package model defines the data models for the loyalty bot.
package model

import "time"

// User represents a loyalty program member.
// The points balance is a cached projection: it must equal the sum of the
// user's points_history deltas, and only the redemption/referral code paths
// mutate it (always together with a ledger row).
type User struct {
	ID            int64     `db:"id"`
	Username      string    `db:"username"`
	PointsBalance int64     `db:"points_balance"`
	ReferredBy    *int64    `db:"referred_by"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Place represents a partner venue. All percentage fields are in [0,100].
// Places are edited by partner tooling; the engine only reads them.
type Place struct {
	ID              int64     `db:"id"`
	PartnerID       int64     `db:"partner_id"`
	Name            string    `db:"name"`
	BaseDiscountPct float64   `db:"base_discount_pct"`
	AccrualPct      float64   `db:"loyalty_accrual_pct"`
	MaxPctPerBill   float64   `db:"max_percent_per_bill"`
	MinPurchase     float64   `db:"min_purchase"`
	Latitude        *float64  `db:"latitude"`
	Longitude       *float64  `db:"longitude"`
	CreatedAt       time.Time `db:"created_at"`
}

// Rounding rules for monetary amounts.
const (
	RoundingBankers = "bankers"
	RoundingNone    = "none"
)

// LoyaltyConfig is the global loyalty configuration, stored as a singleton
// row and loaded fresh for every redemption. There are no in-code defaults:
// if the row cannot be read, money math does not run.
type LoyaltyConfig struct {
	RedeemRate    float64   `db:"redeem_rate"`
	RoundingRule  string    `db:"rounding_rule"`
	MaxAccrualPct float64   `db:"max_accrual_percent"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// QR code statuses. EXPIRED is implicit (now > expires_at) and never stored;
// it is checked before any other transition.
const (
	QRStatusIssued   = "issued"
	QRStatusRedeemed = "redeemed"
	QRStatusRejected = "rejected"
)

// QRCode represents a signed, time-limited, scan-capped redemption credential.
type QRCode struct {
	CodeID     string    `db:"code_id"`
	PlaceID    int64     `db:"place_id"`
	Token      string    `db:"token"`
	Status     string    `db:"status"`
	IsActive   bool      `db:"is_active"`
	MaxScans   int       `db:"max_scans"`
	ScansCount int       `db:"scans_count"`
	IssuedAt   time.Time `db:"issued_at"`
	ExpiresAt  time.Time `db:"expires_at"`
}

// PurchaseTransaction records one successful redemption. Rows are append-only
// and unique per QR token, which is what makes retried redemptions safe.
type PurchaseTransaction struct {
	ID                int64     `db:"id"`
	PlaceID           int64     `db:"place_id"`
	UserID            int64     `db:"user_id"`
	AmountGross       float64   `db:"amount_gross"`
	BaseDiscountPct   float64   `db:"base_discount_pct"`
	ExtraDiscountPct  float64   `db:"extra_discount_pct"`
	ExtraValue        float64   `db:"extra_value"`
	AmountPartnerDue  float64   `db:"amount_partner_due"`
	AmountUserSubsidy float64   `db:"amount_user_subsidy"`
	FinalUserPrice    float64   `db:"final_user_price"`
	PointsSpent       int64     `db:"points_spent"`
	PointsEarned      int64     `db:"points_earned"`
	RedeemRate        float64   `db:"redeem_rate_snapshot"`
	QRToken           string    `db:"qr_token"`
	Status            string    `db:"status"`
	CreatedAt         time.Time `db:"created_at"`
}

// ReferralBonus records one credited referral bonus. The unique key
// (source_transaction_id, referrer_id, level) enforces idempotent crediting.
type ReferralBonus struct {
	ID                  int64     `db:"id"`
	ReferrerID          int64     `db:"referrer_id"`
	ReferredID          int64     `db:"referred_id"`
	Level               int       `db:"level"`
	BonusAmount         float64   `db:"bonus_amount"`
	SourceTransactionID int64     `db:"source_transaction_id"`
	CreatedAt           time.Time `db:"created_at"`
}

// PointsLedgerEntry is one append-only balance change. Summing deltas per
// user reproduces points_balance.
type PointsLedgerEntry struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	Delta         int64     `db:"delta"`
	Reason        string    `db:"reason"`
	TransactionID *int64    `db:"transaction_id"`
	CreatedAt     time.Time `db:"created_at"`
}

// ReferralStats is a denormalized per-referrer summary. It is a cache over
// referral_bonuses and can be rebuilt from the ledger.
type ReferralStats struct {
	UserID         int64   `db:"user_id"`
	TotalReferrals int64   `db:"total_referrals"`
	Level1Earnings float64 `db:"level1_earnings"`
	Level2Earnings float64 `db:"level2_earnings"`
	Level3Earnings float64 `db:"level3_earnings"`
}

// FraudFlag marks a rejected scan for manual review. Flags survive the
// aborted redemption unit.
type FraudFlag struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	CodeID    string    `db:"code_id"`
	Score     float64   `db:"score"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
}

// Ledger reasons for categorizing balance changes.
const (
	ReasonPurchaseRedeem = "purchase_redeem" // points debited to fund the extra discount
	ReasonPurchaseEarn   = "purchase_earn"   // points accrued on a purchase
	ReasonReferralBonus  = "referral_bonus"  // multi-level referral bonus credit
	ReasonAdminAdjust    = "admin_adjust"    // manual adjustment by an admin
)
