// Package loyalty implements the benefit calculator: the pure arithmetic of
// discounts, points redemption and accrual for a single purchase.
package loyalty

import (
	"math"

	"loyalty-bot/internal/model"
)

// BenefitBreakdown is the full outcome of the benefit computation for one
// purchase. It is a pure value; persisting it is the ledger writer's job.
type BenefitBreakdown struct {
	AmountGross        float64
	BaseDiscountPct    float64
	BaseDiscountAmount float64
	ExtraValue         float64
	ExtraDiscountPct   float64
	PointsSpent        int64
	PointsEarned       int64
	AmountPartnerDue   float64
	AmountUserSubsidy  float64
	FinalUserPrice     float64
	RedeemRate         float64
}

// ComputeBenefits computes the benefit breakdown for one purchase.
//
// pointsToSpend, when non-nil, overrides the automatic "redeem as much as
// allowed" behavior; it must be >= 0 and within the user's balance.
//
// Invariants (see the calculator tests):
//   - BaseDiscountAmount + ExtraValue <= AmountGross
//   - ExtraValue <= AmountGross * place.MaxPctPerBill / 100
//   - PointsSpent * RedeemRate >= ExtraValue
func ComputeBenefits(pointsBalance int64, place *model.Place, cfg *model.LoyaltyConfig, amountGross float64, pointsToSpend *int64) (*BenefitBreakdown, error) {
	if amountGross <= 0 {
		return nil, ErrInvalidAmount
	}
	if cfg == nil || cfg.RedeemRate <= 0 {
		return nil, ErrConfigUnavailable
	}
	if place == nil {
		return nil, ErrNotFound
	}
	if pointsToSpend != nil {
		if *pointsToSpend < 0 || *pointsToSpend > pointsBalance {
			return nil, ErrInsufficientBalance
		}
	}

	rate := cfg.RedeemRate

	baseDiscountAmount := amountGross * place.BaseDiscountPct / 100
	maxExtraValue := amountGross * place.MaxPctPerBill / 100

	var extraValue float64
	var pointsSpent int64
	if pointsToSpend != nil {
		extraValue = math.Min(float64(*pointsToSpend)*rate, maxExtraValue)
		pointsSpent = *pointsToSpend
	} else {
		extraValue = math.Min(float64(pointsBalance)*rate, maxExtraValue)
		// Ceil so the platform never under-charges points on redemption.
		pointsSpent = int64(math.Ceil(extraValue / rate))
		// Float division can land a hair above an exact quotient; never
		// charge beyond the balance that funded extraValue.
		if pointsSpent > pointsBalance {
			pointsSpent = pointsBalance
		}
	}

	extraDiscountPct := extraValue / amountGross * 100

	amountPartnerDue := amountGross - baseDiscountAmount
	amountUserSubsidy := extraValue
	finalUserPrice := amountGross - baseDiscountAmount - extraValue

	// Accrual: capped by the global maximum, zero below the per-place
	// minimum purchase. Floor so accrual never over-grants.
	accrualPct := math.Min(place.AccrualPct, cfg.MaxAccrualPct)
	var pointsEarned int64
	if amountGross >= place.MinPurchase {
		pointsEarned = int64(math.Floor(amountGross * accrualPct / 100 / rate))
	}

	if cfg.RoundingRule == model.RoundingBankers {
		finalUserPrice = math.RoundToEven(finalUserPrice)
		amountPartnerDue = math.RoundToEven(amountPartnerDue)
		amountUserSubsidy = math.RoundToEven(amountUserSubsidy)
	}

	return &BenefitBreakdown{
		AmountGross:        amountGross,
		BaseDiscountPct:    place.BaseDiscountPct,
		BaseDiscountAmount: baseDiscountAmount,
		ExtraValue:         extraValue,
		ExtraDiscountPct:   extraDiscountPct,
		PointsSpent:        pointsSpent,
		PointsEarned:       pointsEarned,
		AmountPartnerDue:   amountPartnerDue,
		AmountUserSubsidy:  amountUserSubsidy,
		FinalUserPrice:     finalUserPrice,
		RedeemRate:         rate,
	}, nil
}
