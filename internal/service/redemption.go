// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/loyalty"
	"loyalty-bot/internal/model"
	"loyalty-bot/internal/qr"
	"loyalty-bot/internal/referral"
	"loyalty-bot/internal/repository"
)

// ScanLocation is the scanner-reported position, when available.
type ScanLocation struct {
	Latitude  float64
	Longitude float64
}

// RedemptionService is the ledger writer: it runs QR validation, benefit
// computation, purchase recording, points movement and referral
// distribution as one atomic unit of work. It holds no in-process locks;
// row locks and unique constraints serialize concurrent attempts on the
// same token.
type RedemptionService struct {
	pool         *pgxpool.Pool
	userRepo     *repository.UserRepository
	placeRepo    *repository.PlaceRepository
	cfgRepo      *repository.LoyaltyConfigRepository
	qrRepo       *repository.QRRepository
	purchaseRepo *repository.PurchaseRepository
	ledgerRepo   *repository.LedgerRepository
	distributor  *referral.Distributor
	signer       *qr.TokenSigner
	scorer       *qr.FraudScorer
}

// NewRedemptionService creates a RedemptionService.
func NewRedemptionService(
	pool *pgxpool.Pool,
	userRepo *repository.UserRepository,
	placeRepo *repository.PlaceRepository,
	cfgRepo *repository.LoyaltyConfigRepository,
	qrRepo *repository.QRRepository,
	purchaseRepo *repository.PurchaseRepository,
	ledgerRepo *repository.LedgerRepository,
	distributor *referral.Distributor,
	signer *qr.TokenSigner,
	scorer *qr.FraudScorer,
) *RedemptionService {
	return &RedemptionService{
		pool:         pool,
		userRepo:     userRepo,
		placeRepo:    placeRepo,
		cfgRepo:      cfgRepo,
		qrRepo:       qrRepo,
		purchaseRepo: purchaseRepo,
		ledgerRepo:   ledgerRepo,
		distributor:  distributor,
		signer:       signer,
		scorer:       scorer,
	}
}

// ProcessRedemption validates the scanned QR token, computes the benefit
// breakdown and persists the whole outcome atomically: the purchase record,
// the buyer's debit/credit ledger rows and the referral bonuses either all
// commit or none do.
//
// A retried call for an already-processed token returns the existing
// purchase (idempotent read-through on the unique qr_token constraint); a
// scan of a code some *other* call already redeemed is rejected with reason
// "already-redeemed".
func (s *RedemptionService) ProcessRedemption(
	ctx context.Context,
	qrToken string,
	userID, placeID int64,
	amountGross float64,
	pointsToSpend *int64,
	scanLoc *ScanLocation,
) (*model.PurchaseTransaction, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, loyalty.ErrNotFound
		}
		return nil, err
	}

	place, err := s.placeRepo.GetByID(ctx, placeID)
	if err != nil {
		if errors.Is(err, repository.ErrPlaceNotFound) {
			return nil, loyalty.ErrNotFound
		}
		return nil, err
	}

	// The signature verdict feeds the state machine; an unverifiable token
	// is not an immediate error because expiry must win over "invalid".
	sigOK := false
	if claims, verr := s.signer.Verify(qrToken); verr == nil {
		sigOK = claims.PlaceID == placeID
	}

	score, err := s.scorer.Score(ctx, qr.ScanContext{
		UserID:     userID,
		AccountAge: time.Since(user.CreatedAt),
		DistanceKm: scanDistance(place, scanLoc),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to score scan: %w", err)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin redemption transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	qrRepo := s.qrRepo.WithTx(tx)

	code, err := qrRepo.GetByTokenForUpdate(ctx, qrToken)
	if err != nil {
		if errors.Is(err, repository.ErrQRNotFound) {
			return nil, qr.Rejected(qr.ReasonInvalid)
		}
		return nil, err
	}
	if code.PlaceID != placeID {
		return nil, qr.Rejected(qr.ReasonInvalid)
	}

	if err := qr.EvaluateScan(code, time.Now(), sigOK, score, s.scorer.Threshold()); err != nil {
		var rejected *qr.RejectedError
		if errors.As(err, &rejected) && rejected.Reason == qr.ReasonAlreadyRedeemed {
			// A retry by the same buyer is idempotent and gets the original
			// record back; anyone else scanning a spent code is refused.
			_ = tx.Rollback(ctx)
			if purchase, perr := s.purchaseRepo.GetByQRToken(ctx, qrToken); perr == nil && purchase.UserID == userID {
				return purchase, nil
			}
			return nil, err
		}
		return nil, s.reject(ctx, tx, code, userID, score, err)
	}

	if _, err := qrRepo.MarkRedeemed(ctx, code.CodeID); err != nil {
		return nil, err
	}

	cfg, err := s.cfgRepo.WithTx(tx).Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, loyalty.ErrConfigUnavailable
		}
		return nil, err
	}

	// Re-read the balance under the row lock; the pre-transaction read was
	// only for the fraud signals.
	lockedUser, err := s.userRepo.WithTx(tx).GetByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}

	breakdown, err := loyalty.ComputeBenefits(lockedUser.PointsBalance, place, cfg, amountGross, pointsToSpend)
	if err != nil {
		return nil, err
	}

	purchase, err := s.purchaseRepo.WithTx(tx).Create(ctx, &model.PurchaseTransaction{
		PlaceID:           placeID,
		UserID:            userID,
		AmountGross:       breakdown.AmountGross,
		BaseDiscountPct:   breakdown.BaseDiscountPct,
		ExtraDiscountPct:  breakdown.ExtraDiscountPct,
		ExtraValue:        breakdown.ExtraValue,
		AmountPartnerDue:  breakdown.AmountPartnerDue,
		AmountUserSubsidy: breakdown.AmountUserSubsidy,
		FinalUserPrice:    breakdown.FinalUserPrice,
		PointsSpent:       breakdown.PointsSpent,
		PointsEarned:      breakdown.PointsEarned,
		RedeemRate:        breakdown.RedeemRate,
		QRToken:           qrToken,
		Status:            model.QRStatusRedeemed,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateQRToken) {
			// Lost a race with a concurrent attempt on the same token:
			// the redemption already happened, return its record.
			_ = tx.Rollback(ctx)
			return s.purchaseRepo.GetByQRToken(ctx, qrToken)
		}
		return nil, err
	}

	userRepo := s.userRepo.WithTx(tx)
	ledgerRepo := s.ledgerRepo.WithTx(tx)

	if breakdown.PointsSpent > 0 {
		if _, err := userRepo.ApplyPointsDelta(ctx, userID, -breakdown.PointsSpent); err != nil {
			return nil, err
		}
		if _, err := ledgerRepo.Append(ctx, userID, -breakdown.PointsSpent, model.ReasonPurchaseRedeem, &purchase.ID); err != nil {
			return nil, err
		}
	}
	if breakdown.PointsEarned > 0 {
		if _, err := userRepo.ApplyPointsDelta(ctx, userID, breakdown.PointsEarned); err != nil {
			return nil, err
		}
		if _, err := ledgerRepo.Append(ctx, userID, breakdown.PointsEarned, model.ReasonPurchaseEarn, &purchase.ID); err != nil {
			return nil, err
		}
	}

	bonuses, err := s.distributor.WithTx(tx).Distribute(ctx, purchase.ID, userID, amountGross, cfg.RedeemRate)
	if err != nil {
		return nil, fmt.Errorf("failed to distribute referral bonuses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit redemption: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int64("place_id", placeID).
		Int64("purchase_id", purchase.ID).
		Float64("amount_gross", amountGross).
		Int64("points_spent", breakdown.PointsSpent).
		Int64("points_earned", breakdown.PointsEarned).
		Int("referral_bonuses", len(bonuses)).
		Msg("Redemption processed")

	return purchase, nil
}

// reject finalizes a refused scan. Terminal rejections (invalid, scan-limit,
// fraud) persist the REJECTED status; "expired" stays implicit and
// "already-redeemed" leaves the code untouched. No points move either way.
// Fraud additionally records a review flag outside the redemption unit.
func (s *RedemptionService) reject(ctx context.Context, tx pgx.Tx, code *model.QRCode, userID int64, score float64, cause error) error {
	var rejected *qr.RejectedError
	if !errors.As(cause, &rejected) {
		return cause
	}

	switch rejected.Reason {
	case qr.ReasonInvalid, qr.ReasonScanLimit, qr.ReasonFraud:
		if err := s.qrRepo.WithTx(tx).MarkRejected(ctx, code.CodeID); err != nil {
			log.Warn().Err(err).Str("code_id", code.CodeID).Msg("Failed to persist QR rejection")
		} else if err := tx.Commit(ctx); err != nil {
			log.Warn().Err(err).Str("code_id", code.CodeID).Msg("Failed to commit QR rejection")
		}
	}

	if rejected.Reason == qr.ReasonFraud {
		details := fmt.Sprintf("fraud score %.1f over threshold %.1f", score, s.scorer.Threshold())
		if err := s.qrRepo.FlagFraud(ctx, userID, code.CodeID, score, details); err != nil {
			log.Error().Err(err).Int64("user_id", userID).Str("code_id", code.CodeID).Msg("Failed to record fraud flag")
		}
		log.Warn().
			Int64("user_id", userID).
			Str("code_id", code.CodeID).
			Float64("score", score).
			Msg("Scan rejected for fraud, flagged for review")
	}

	return cause
}

// scanDistance computes the scan-to-place distance when both coordinates
// are known.
func scanDistance(place *model.Place, loc *ScanLocation) *float64 {
	if loc == nil || place.Latitude == nil || place.Longitude == nil {
		return nil
	}
	d := qr.HaversineKm(*place.Latitude, *place.Longitude, loc.Latitude, loc.Longitude)
	return &d
}
