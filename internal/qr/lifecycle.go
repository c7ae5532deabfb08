package qr

import (
	"fmt"
	"time"

	"loyalty-bot/internal/model"
)

// RejectReason identifies why a scan was refused.
type RejectReason string

const (
	ReasonExpired         RejectReason = "expired"
	ReasonInvalid         RejectReason = "invalid"
	ReasonScanLimit       RejectReason = "scan-limit"
	ReasonFraud           RejectReason = "fraud"
	ReasonAlreadyRedeemed RejectReason = "already-redeemed"
)

// RejectedError is returned when a redemption attempt is refused. The
// reason is part of the contract: callers map it to user-facing messages
// and retry policy.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("qr redemption rejected: %s", e.Reason)
}

// Rejected constructs a RejectedError.
func Rejected(reason RejectReason) *RejectedError {
	return &RejectedError{Reason: reason}
}

// EvaluateScan runs the redemption decision sequence for a scanned code and
// returns nil when the code may transition to REDEEMED.
//
// Check order:
//  1. terminal states: a REDEEMED code always answers "already-redeemed"
//     regardless of expiry, so retries are deterministic; a REJECTED code
//     answers "invalid"
//  2. expiry against the stored expires_at
//  3. active flag and token signature
//  4. scan-count limit (when max_scans > 0)
//  5. fraud score against the threshold
func EvaluateScan(code *model.QRCode, now time.Time, signatureValid bool, fraudScore, fraudThreshold float64) error {
	switch code.Status {
	case model.QRStatusRedeemed:
		return Rejected(ReasonAlreadyRedeemed)
	case model.QRStatusRejected:
		return Rejected(ReasonInvalid)
	}

	if now.After(code.ExpiresAt) {
		return Rejected(ReasonExpired)
	}

	if !code.IsActive || !signatureValid {
		return Rejected(ReasonInvalid)
	}

	if code.MaxScans > 0 && code.ScansCount >= code.MaxScans {
		return Rejected(ReasonScanLimit)
	}

	if fraudScore > fraudThreshold {
		return Rejected(ReasonFraud)
	}

	return nil
}
