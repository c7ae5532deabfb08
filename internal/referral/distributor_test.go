package referral

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"loyalty-bot/internal/config"
)

func testPolicy() Policy {
	return Policy{
		LevelPercentages: [MaxLevels]float64{50, 30, 20},
		MinBonuses:       [MaxLevels]float64{10, 5, 2},
	}
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := PolicyFromConfig(config.ReferralConfig{
		LevelPercentages: []float64{50, 30, 20},
		MinBonuses:       []float64{10, 5, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, testPolicy(), p)

	_, err = PolicyFromConfig(config.ReferralConfig{
		LevelPercentages: []float64{50, 30},
		MinBonuses:       []float64{10, 5, 2},
	})
	assert.Error(t, err)
}

func TestPolicyBonusAt(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name   string
		level  int
		amount float64
		want   float64
		wantOK bool
	}{
		{"level 1", 1, 100000, 50000, true},
		{"level 2", 2, 100000, 30000, true},
		{"level 3", 3, 100000, 20000, true},
		{"level 1 below threshold skips", 1, 18, 0, false},
		{"level 1 at threshold credits", 1, 20, 10, true},
		{"level 3 below threshold skips", 3, 9, 0, false},
		{"level 0 out of range", 0, 100000, 0, false},
		{"level 4 out of range", 4, 100000, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.BonusAt(tt.level, tt.amount)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestPolicyThresholdProperty checks that a level either credits at least
// its threshold or credits nothing at all - bonuses are never floored up.
func TestPolicyThresholdProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := Policy{}
		for i := 0; i < MaxLevels; i++ {
			p.LevelPercentages[i] = rapid.Float64Range(0, 100).Draw(t, "pct")
			p.MinBonuses[i] = rapid.Float64Range(0, 1000).Draw(t, "min")
		}
		amount := rapid.Float64Range(0, 1_000_000).Draw(t, "amount")
		level := rapid.IntRange(1, MaxLevels).Draw(t, "level")

		bonus, ok := p.BonusAt(level, amount)
		if ok {
			if bonus < p.MinBonuses[level-1] {
				t.Fatalf("credited bonus %v below threshold %v", bonus, p.MinBonuses[level-1])
			}
			want := amount * p.LevelPercentages[level-1] / 100
			if bonus != want {
				t.Fatalf("bonus %v != amount*pct %v", bonus, want)
			}
		} else if bonus != 0 {
			t.Fatalf("skipped level returned non-zero bonus %v", bonus)
		}
	})
}
