// Property-based tests for the redemption decision sequence. The simulation
// mirrors how ProcessRedemption applies EvaluateScan verdicts to the stored
// code, without database dependencies.
package service

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"loyalty-bot/internal/model"
	"loyalty-bot/internal/qr"
)

// scanEvent is one redemption attempt in a simulated scan sequence.
type scanEvent struct {
	afterExpiry bool
	sigValid    bool
	fraudScore  float64
}

// applyScan mirrors the state transitions the redemption service persists
// for each verdict: success moves the code to REDEEMED; invalid, scan-limit
// and fraud are terminal REJECTED; expiry and already-redeemed leave the
// row untouched.
func applyScan(code *model.QRCode, ev scanEvent, threshold float64) *qr.RejectedError {
	now := code.ExpiresAt.Add(-time.Minute)
	if ev.afterExpiry {
		now = code.ExpiresAt.Add(time.Minute)
	}

	err := qr.EvaluateScan(code, now, ev.sigValid, ev.fraudScore, threshold)
	if err == nil {
		code.Status = model.QRStatusRedeemed
		code.ScansCount++
		return nil
	}

	rejected := err.(*qr.RejectedError)
	switch rejected.Reason {
	case qr.ReasonInvalid, qr.ReasonScanLimit, qr.ReasonFraud:
		code.Status = model.QRStatusRejected
	}
	return rejected
}

func drawScanEvent(t *rapid.T, label string) scanEvent {
	return scanEvent{
		afterExpiry: rapid.Bool().Draw(t, label+"_expired"),
		sigValid:    rapid.Float64Range(0, 1).Draw(t, label+"_sig") > 0.2,
		fraudScore:  rapid.Float64Range(0, 200).Draw(t, label+"_score"),
	}
}

// TestScanSequenceRedeemsAtMostOnce checks that no scan sequence, whatever
// its mix of verdicts, can produce more than one successful redemption.
func TestScanSequenceRedeemsAtMostOnce(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := &model.QRCode{
			CodeID:    "prop-code",
			Status:    model.QRStatusIssued,
			IsActive:  true,
			MaxScans:  rapid.IntRange(1, 3).Draw(t, "maxScans"),
			ExpiresAt: time.Now().Add(time.Hour),
		}
		const threshold = 100.0

		numScans := rapid.IntRange(1, 20).Draw(t, "numScans")
		successes := 0
		for i := 0; i < numScans; i++ {
			if applyScan(code, drawScanEvent(t, "scan"), threshold) == nil {
				successes++
			}
		}

		if successes > 1 {
			t.Fatalf("sequence produced %d successful redemptions", successes)
		}
		if successes == 1 && code.Status != model.QRStatusRedeemed {
			t.Fatalf("successful redemption left status %q", code.Status)
		}
	})
}

// TestRedeemedCodeAlwaysAnswersAlreadyRedeemed checks that REDEEMED is
// terminal and deterministic: every later scan gets the same answer no
// matter its signals, even after expiry.
func TestRedeemedCodeAlwaysAnswersAlreadyRedeemed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := &model.QRCode{
			CodeID:     "prop-code",
			Status:     model.QRStatusRedeemed,
			IsActive:   true,
			MaxScans:   1,
			ScansCount: 1,
			ExpiresAt:  time.Now().Add(time.Hour),
		}

		numScans := rapid.IntRange(1, 10).Draw(t, "numScans")
		for i := 0; i < numScans; i++ {
			rejected := applyScan(code, drawScanEvent(t, "scan"), 100)
			if rejected == nil || rejected.Reason != qr.ReasonAlreadyRedeemed {
				t.Fatalf("scan of redeemed code answered %v", rejected)
			}
			if code.ScansCount != 1 {
				t.Fatalf("scan of redeemed code changed scans_count to %d", code.ScansCount)
			}
		}
	})
}

// TestRejectedCodeStaysRejected checks that a terminal rejection can never
// be scanned back to life.
func TestRejectedCodeStaysRejected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := &model.QRCode{
			CodeID:    "prop-code",
			Status:    model.QRStatusRejected,
			IsActive:  true,
			MaxScans:  1,
			ExpiresAt: time.Now().Add(time.Hour),
		}

		numScans := rapid.IntRange(1, 10).Draw(t, "numScans")
		for i := 0; i < numScans; i++ {
			rejected := applyScan(code, drawScanEvent(t, "scan"), 100)
			if rejected == nil {
				t.Fatal("rejected code was redeemed")
			}
			if rejected.Reason != qr.ReasonInvalid {
				t.Fatalf("rejected code answered %q", rejected.Reason)
			}
		}
	})
}

// TestExpiryBeatsOtherSignals checks that an expired but still ISSUED code
// answers "expired" regardless of signature or fraud signals, and keeps its
// stored status so a later audit sees it as never used.
func TestExpiryBeatsOtherSignals(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := &model.QRCode{
			CodeID:    "prop-code",
			Status:    model.QRStatusIssued,
			IsActive:  rapid.Bool().Draw(t, "active"),
			MaxScans:  1,
			ExpiresAt: time.Now().Add(time.Hour),
		}

		ev := drawScanEvent(t, "scan")
		ev.afterExpiry = true

		rejected := applyScan(code, ev, 100)
		if rejected == nil || rejected.Reason != qr.ReasonExpired {
			t.Fatalf("expired code answered %v", rejected)
		}
		if code.Status != model.QRStatusIssued {
			t.Fatalf("expiry changed stored status to %q", code.Status)
		}
	})
}
