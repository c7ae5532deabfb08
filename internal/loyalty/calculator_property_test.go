// Property-based tests for the benefit calculator invariants.
package loyalty

import (
	"testing"

	"pgregory.net/rapid"

	"loyalty-bot/internal/model"
)

// TestBenefitInvariantsProperty checks, for arbitrary valid inputs:
//   - total discount never exceeds the bill
//   - the extra value never exceeds the per-bill cap
//   - points spent always cover the redeemed value
func TestBenefitInvariantsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		place := &model.Place{
			BaseDiscountPct: rapid.Float64Range(0, 100).Draw(t, "basePct"),
			AccrualPct:      rapid.Float64Range(0, 100).Draw(t, "accrualPct"),
			MaxPctPerBill:   rapid.Float64Range(0, 100).Draw(t, "maxPct"),
			MinPurchase:     rapid.Float64Range(0, 100000).Draw(t, "minPurchase"),
		}
		cfg := &model.LoyaltyConfig{
			RedeemRate:    rapid.Float64Range(1, 100000).Draw(t, "rate"),
			RoundingRule:  model.RoundingNone,
			MaxAccrualPct: rapid.Float64Range(0, 100).Draw(t, "maxAccrual"),
		}
		balance := rapid.Int64Range(0, 1_000_000).Draw(t, "balance")
		gross := rapid.Float64Range(1, 10_000_000).Draw(t, "gross")

		b, err := ComputeBenefits(balance, place, cfg, gross, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// Small epsilon for float accumulation; the invariants are exact in
		// real arithmetic.
		const eps = 1e-6

		// Total discount stays within the bill whenever the configured
		// percentages can sum to at most 100.
		if place.BaseDiscountPct+place.MaxPctPerBill <= 100 {
			if b.BaseDiscountAmount+b.ExtraValue > gross*(1+eps) {
				t.Fatalf("total discount %v exceeds bill %v", b.BaseDiscountAmount+b.ExtraValue, gross)
			}
		}

		cap := gross * place.MaxPctPerBill / 100
		if b.ExtraValue > cap*(1+eps)+eps {
			t.Fatalf("extra value %v exceeds cap %v", b.ExtraValue, cap)
		}

		if float64(b.PointsSpent)*cfg.RedeemRate < b.ExtraValue*(1-eps)-eps {
			t.Fatalf("points spent %d at rate %v under-cover extra value %v",
				b.PointsSpent, cfg.RedeemRate, b.ExtraValue)
		}

		if b.PointsSpent > balance {
			t.Fatalf("points spent %d exceed balance %d", b.PointsSpent, balance)
		}

		if b.PointsEarned < 0 {
			t.Fatalf("negative accrual %d", b.PointsEarned)
		}
	})
}

// TestOverrideNeverExceedsCapProperty checks that an explicit points override
// still respects the per-bill cap on redeemed value.
func TestOverrideNeverExceedsCapProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		place := &model.Place{
			BaseDiscountPct: rapid.Float64Range(0, 50).Draw(t, "basePct"),
			MaxPctPerBill:   rapid.Float64Range(0, 100).Draw(t, "maxPct"),
		}
		cfg := &model.LoyaltyConfig{
			RedeemRate:   rapid.Float64Range(1, 10000).Draw(t, "rate"),
			RoundingRule: model.RoundingNone,
		}
		balance := rapid.Int64Range(1, 100_000).Draw(t, "balance")
		override := rapid.Int64Range(0, balance).Draw(t, "override")
		gross := rapid.Float64Range(1, 1_000_000).Draw(t, "gross")

		b, err := ComputeBenefits(balance, place, cfg, gross, &override)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cap := gross * place.MaxPctPerBill / 100
		if b.ExtraValue > cap+1e-6 {
			t.Fatalf("extra value %v exceeds cap %v with override %d", b.ExtraValue, cap, override)
		}
		if b.PointsSpent != override {
			t.Fatalf("points spent %d != override %d", b.PointsSpent, override)
		}
	})
}
