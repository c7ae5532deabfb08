// Package loyalty tests for the benefit calculator.
package loyalty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-bot/internal/model"
)

func testPlace() *model.Place {
	return &model.Place{
		ID:              1,
		PartnerID:       10,
		Name:            "Test Cafe",
		BaseDiscountPct: 12,
		AccrualPct:      5,
		MaxPctPerBill:   50,
		MinPurchase:     0,
	}
}

func testConfig() *model.LoyaltyConfig {
	return &model.LoyaltyConfig{
		RedeemRate:    5000,
		RoundingRule:  model.RoundingNone,
		MaxAccrualPct: 10,
	}
}

func ptr(v int64) *int64 { return &v }

// TestComputeBenefits_WorkedExample checks the canonical worked example:
// gross 100000, base 12%, rate 5000, cap 50%, balance 10 points, no override.
func TestComputeBenefits_WorkedExample(t *testing.T) {
	b, err := ComputeBenefits(10, testPlace(), testConfig(), 100000, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(12000), b.BaseDiscountAmount)
	assert.Equal(t, float64(50000), b.ExtraValue)
	assert.Equal(t, int64(10), b.PointsSpent)
	assert.Equal(t, float64(88000), b.AmountPartnerDue)
	assert.Equal(t, float64(50000), b.AmountUserSubsidy)
	assert.Equal(t, float64(38000), b.FinalUserPrice)
	assert.Equal(t, float64(50), b.ExtraDiscountPct)
}

func TestComputeBenefits_CapLimitsRedemption(t *testing.T) {
	// Balance worth more than the per-bill cap: only the cap is redeemed.
	b, err := ComputeBenefits(100, testPlace(), testConfig(), 100000, nil)
	require.NoError(t, err)

	assert.Equal(t, float64(50000), b.ExtraValue) // cap = 50% of 100000
	assert.Equal(t, int64(10), b.PointsSpent)     // ceil(50000/5000), not 100
}

func TestComputeBenefits_Override(t *testing.T) {
	tests := []struct {
		name        string
		balance     int64
		override    int64
		wantExtra   float64
		wantSpent   int64
		wantErr     error
	}{
		{"partial redemption", 10, 4, 20000, 4, nil},
		{"zero override", 10, 0, 0, 0, nil},
		{"override above cap keeps cap value", 100, 20, 50000, 20, nil},
		{"override above balance", 3, 4, 0, 0, ErrInsufficientBalance},
		{"negative override", 10, -1, 0, 0, ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ComputeBenefits(tt.balance, testPlace(), testConfig(), 100000, ptr(tt.override))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExtra, b.ExtraValue)
			assert.Equal(t, tt.wantSpent, b.PointsSpent)
		})
	}
}

func TestComputeBenefits_Accrual(t *testing.T) {
	place := testPlace()
	place.MinPurchase = 50000

	// Below the minimum purchase: nothing accrues.
	b, err := ComputeBenefits(0, place, testConfig(), 40000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.PointsEarned)

	// At/above the minimum: floor(G * accrual% / rate).
	b, err = ComputeBenefits(0, place, testConfig(), 100000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.PointsEarned) // floor(100000*5/100/5000) = 1

	// Accrual is capped by the global max_accrual_percent.
	place.AccrualPct = 80
	cfg := testConfig()
	cfg.MaxAccrualPct = 10
	b, err = ComputeBenefits(0, place, cfg, 100000, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.PointsEarned) // 10%, not 80%
}

func TestComputeBenefits_BankersRounding(t *testing.T) {
	place := testPlace()
	place.BaseDiscountPct = 0
	place.MaxPctPerBill = 100
	cfg := testConfig()
	cfg.RoundingRule = model.RoundingBankers
	cfg.RedeemRate = 0.25

	// 3 points * 0.25 = 0.75 extra; final price 100 - 0.75 = 99.25.
	// Hits a non-tie first, then a half-to-even tie.
	b, err := ComputeBenefits(3, place, cfg, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(99), b.FinalUserPrice)   // 99.25 rounds down
	assert.Equal(t, float64(100), b.AmountPartnerDue)

	// Tie case: 2 points * 0.25 = 0.5 subsidy rounds to the even neighbor 0.
	b, err = ComputeBenefits(2, place, cfg, 100, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(0), b.AmountUserSubsidy)  // 0.5 -> 0 (even)
	assert.Equal(t, float64(100), b.FinalUserPrice)   // 99.5 -> 100 (even)
}

func TestComputeBenefits_Errors(t *testing.T) {
	_, err := ComputeBenefits(10, testPlace(), testConfig(), 0, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ComputeBenefits(10, testPlace(), testConfig(), -5, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ComputeBenefits(10, testPlace(), nil, 100, nil)
	assert.ErrorIs(t, err, ErrConfigUnavailable)

	_, err = ComputeBenefits(10, testPlace(), &model.LoyaltyConfig{RedeemRate: 0}, 100, nil)
	assert.ErrorIs(t, err, ErrConfigUnavailable)

	_, err = ComputeBenefits(10, nil, testConfig(), 100, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
