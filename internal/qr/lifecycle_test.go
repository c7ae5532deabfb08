package qr

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyalty-bot/internal/model"
)

func issuedCode(expiresIn time.Duration) *model.QRCode {
	return &model.QRCode{
		CodeID:    "code-1",
		PlaceID:   1,
		Status:    model.QRStatusIssued,
		IsActive:  true,
		MaxScans:  1,
		IssuedAt:  time.Now(),
		ExpiresAt: time.Now().Add(expiresIn),
	}
}

func TestEvaluateScan(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		mutate     func(*model.QRCode)
		sigOK      bool
		score      float64
		wantReason RejectReason
	}{
		{"valid scan passes", func(c *model.QRCode) {}, true, 0, ""},
		{"already redeemed", func(c *model.QRCode) { c.Status = model.QRStatusRedeemed }, true, 0, ReasonAlreadyRedeemed},
		{"previously rejected", func(c *model.QRCode) { c.Status = model.QRStatusRejected }, true, 0, ReasonInvalid},
		{"expired", func(c *model.QRCode) { c.ExpiresAt = now.Add(-time.Minute) }, true, 0, ReasonExpired},
		{"inactive", func(c *model.QRCode) { c.IsActive = false }, true, 0, ReasonInvalid},
		{"bad signature", func(c *model.QRCode) {}, false, 0, ReasonInvalid},
		{"scan limit reached", func(c *model.QRCode) { c.ScansCount = 1 }, true, 0, ReasonScanLimit},
		{"unlimited scans ignores count", func(c *model.QRCode) { c.MaxScans = 0; c.ScansCount = 99 }, true, 0, ""},
		{"fraud score above threshold", func(c *model.QRCode) {}, true, 101, ReasonFraud},
		{"fraud score at threshold passes", func(c *model.QRCode) {}, true, 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := issuedCode(time.Hour)
			tt.mutate(code)

			err := EvaluateScan(code, now, tt.sigOK, tt.score, 100)
			if tt.wantReason == "" {
				assert.NoError(t, err)
				return
			}

			var rejected *RejectedError
			require.True(t, errors.As(err, &rejected), "expected RejectedError, got %v", err)
			assert.Equal(t, tt.wantReason, rejected.Reason)
		})
	}
}

// A redeemed code answers "already-redeemed" even once it has also expired:
// the terminal state wins so retries stay deterministic.
func TestEvaluateScan_RedeemedBeatsExpired(t *testing.T) {
	code := issuedCode(-time.Minute)
	code.Status = model.QRStatusRedeemed

	err := EvaluateScan(code, time.Now(), true, 0, 100)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, ReasonAlreadyRedeemed, rejected.Reason)
}

// Expiry is checked before the signature: a tampered expired code still
// reads as "expired".
func TestEvaluateScan_ExpiredBeatsInvalid(t *testing.T) {
	code := issuedCode(-time.Minute)

	err := EvaluateScan(code, time.Now(), false, 0, 100)
	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, ReasonExpired, rejected.Reason)
}
