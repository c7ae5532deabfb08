// Package referral implements multi-level referral bonus distribution over
// the acyclic referral tree.
package referral

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/config"
	"loyalty-bot/internal/model"
	"loyalty-bot/internal/repository"
)

// MaxLevels is how far up the referral tree bonuses reach.
const MaxLevels = 3

// Policy is the flat per-level bonus table: one percentage and one
// minimum-bonus threshold per level. A computed bonus below its threshold is
// skipped at that level entirely, never floored up to the threshold.
type Policy struct {
	LevelPercentages [MaxLevels]float64
	MinBonuses       [MaxLevels]float64
}

// PolicyFromConfig builds a Policy from the app configuration.
func PolicyFromConfig(cfg config.ReferralConfig) (Policy, error) {
	var p Policy
	if len(cfg.LevelPercentages) != MaxLevels || len(cfg.MinBonuses) != MaxLevels {
		return p, fmt.Errorf("referral policy needs exactly %d levels", MaxLevels)
	}
	copy(p.LevelPercentages[:], cfg.LevelPercentages)
	copy(p.MinBonuses[:], cfg.MinBonuses)
	return p, nil
}

// BonusAt computes the bonus at a level (1-based) for a purchase amount.
// The second result is false when the level earns nothing (below threshold
// or out of range).
func (p Policy) BonusAt(level int, purchaseAmount float64) (float64, bool) {
	if level < 1 || level > MaxLevels {
		return 0, false
	}
	bonus := purchaseAmount * p.LevelPercentages[level-1] / 100
	if bonus < p.MinBonuses[level-1] {
		return 0, false
	}
	return bonus, true
}

// Distributor credits referral bonuses up the tree. It always runs inside
// the ledger writer's transaction; the (source_transaction_id, referrer_id,
// level) unique constraint makes repeated calls for the same transaction
// no-ops.
type Distributor struct {
	referralRepo *repository.ReferralRepository
	userRepo     *repository.UserRepository
	ledgerRepo   *repository.LedgerRepository
	policy       Policy
}

// NewDistributor creates a Distributor.
func NewDistributor(
	referralRepo *repository.ReferralRepository,
	userRepo *repository.UserRepository,
	ledgerRepo *repository.LedgerRepository,
	policy Policy,
) *Distributor {
	return &Distributor{
		referralRepo: referralRepo,
		userRepo:     userRepo,
		ledgerRepo:   ledgerRepo,
		policy:       policy,
	}
}

// WithTx returns a copy of the distributor bound to the given transaction.
func (d *Distributor) WithTx(tx pgx.Tx) *Distributor {
	return &Distributor{
		referralRepo: d.referralRepo.WithTx(tx),
		userRepo:     d.userRepo.WithTx(tx),
		ledgerRepo:   d.ledgerRepo.WithTx(tx),
		policy:       d.policy,
	}
}

// Distribute walks the referral chain from buyerID up to MaxLevels and
// credits each eligible referrer. redeemRate converts the currency bonus to
// the points credited on the referrer's ledger: floor(bonus / redeemRate).
// Returns the bonuses actually credited by this call.
func (d *Distributor) Distribute(ctx context.Context, transactionID, buyerID int64, purchaseAmount, redeemRate float64) ([]*model.ReferralBonus, error) {
	if redeemRate <= 0 {
		return nil, fmt.Errorf("invalid redeem rate %v", redeemRate)
	}

	chain, err := d.referralRepo.GetChain(ctx, buyerID, MaxLevels)
	if err != nil {
		return nil, fmt.Errorf("failed to load referral chain: %w", err)
	}

	var credited []*model.ReferralBonus
	for i, referrerID := range chain {
		level := i + 1

		bonusAmount, ok := d.policy.BonusAt(level, purchaseAmount)
		if !ok {
			log.Debug().
				Int64("referrer_id", referrerID).
				Int("level", level).
				Float64("purchase_amount", purchaseAmount).
				Msg("Referral bonus below threshold, skipping level")
			continue
		}

		bonus := &model.ReferralBonus{
			ReferrerID:          referrerID,
			ReferredID:          buyerID,
			Level:               level,
			BonusAmount:         bonusAmount,
			SourceTransactionID: transactionID,
		}

		inserted, err := d.referralRepo.InsertBonus(ctx, bonus)
		if err != nil {
			return nil, err
		}
		if !inserted {
			// Already credited for this transaction; a retried call must
			// not move points again.
			continue
		}

		points := int64(math.Floor(bonusAmount / redeemRate))
		if points > 0 {
			if _, err := d.userRepo.ApplyPointsDelta(ctx, referrerID, points); err != nil {
				return nil, fmt.Errorf("failed to credit referrer %d: %w", referrerID, err)
			}
			if _, err := d.ledgerRepo.Append(ctx, referrerID, points, model.ReasonReferralBonus, &transactionID); err != nil {
				return nil, err
			}
		}

		if err := d.referralRepo.AddEarnings(ctx, referrerID, level, bonusAmount); err != nil {
			return nil, err
		}

		credited = append(credited, bonus)
	}

	return credited, nil
}
