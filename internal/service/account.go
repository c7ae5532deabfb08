package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/loyalty"
	"loyalty-bot/internal/model"
	"loyalty-bot/internal/repository"
)

// AccountService manages user accounts, referral enrollment and balance
// queries.
type AccountService struct {
	pool         *pgxpool.Pool
	userRepo     *repository.UserRepository
	referralRepo *repository.ReferralRepository
	ledgerRepo   *repository.LedgerRepository
}

// NewAccountService creates an AccountService.
func NewAccountService(pool *pgxpool.Pool, userRepo *repository.UserRepository, referralRepo *repository.ReferralRepository, ledgerRepo *repository.LedgerRepository) *AccountService {
	return &AccountService{
		pool:         pool,
		userRepo:     userRepo,
		referralRepo: referralRepo,
		ledgerRepo:   ledgerRepo,
	}
}

// EnsureUser finds or registers the user. referrerID, when non-nil, attaches
// the referral edge for a newly created account; enrollment is permanent and
// only happens on first contact, so a bad deep link never rewires an
// existing user.
func (s *AccountService) EnsureUser(ctx context.Context, id int64, username string, referrerID *int64) (*model.User, error) {
	user, created, err := s.userRepo.GetOrCreate(ctx, id, username)
	if err != nil {
		return nil, err
	}

	if created && referrerID != nil {
		// Deep links survive in chat history long after the referrer is gone;
		// skip dead links instead of tripping the foreign key.
		if ok, eerr := s.userRepo.Exists(ctx, *referrerID); eerr != nil || !ok {
			log.Warn().Err(eerr).
				Int64("user_id", id).
				Int64("referrer_id", *referrerID).
				Msg("Referral link points to unknown referrer, skipped")
		} else if err := s.referralRepo.AttachReferrer(ctx, id, *referrerID); err != nil {
			// Enrollment is best effort: a self-referral or a dead link
			// must not block registration.
			log.Warn().Err(err).
				Int64("user_id", id).
				Int64("referrer_id", *referrerID).
				Msg("Referral enrollment skipped")
		} else {
			referred := *referrerID
			user.ReferredBy = &referred
			log.Info().
				Int64("user_id", id).
				Int64("referrer_id", referred).
				Msg("User enrolled via referral link")
		}
	}

	if !created && user.Username != username && username != "" {
		if err := s.userRepo.UpdateUsername(ctx, id, username); err != nil {
			log.Warn().Err(err).Int64("user_id", id).Msg("Failed to refresh username")
		}
	}

	return user, nil
}

// GetBalance returns the user's cached points balance.
func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, loyalty.ErrNotFound
		}
		return 0, err
	}
	return user.PointsBalance, nil
}

// GetHistory returns the user's most recent ledger entries, newest first.
func (s *AccountService) GetHistory(ctx context.Context, userID int64, limit int) ([]*model.PointsLedgerEntry, error) {
	return s.ledgerRepo.ListByUser(ctx, userID, limit)
}

// GetReferralStats returns the aggregated referral summary for the user.
func (s *AccountService) GetReferralStats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	return s.referralRepo.GetStats(ctx, userID)
}

// AdminAdjust applies a manual balance correction together with its ledger
// row, atomically. delta may be negative.
func (s *AccountService) AdminAdjust(ctx context.Context, userID, delta int64) (*model.User, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin adjustment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	user, err := s.userRepo.WithTx(tx).ApplyPointsDelta(ctx, userID, delta)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, loyalty.ErrNotFound
		}
		return nil, err
	}
	if _, err := s.ledgerRepo.WithTx(tx).Append(ctx, userID, delta, model.ReasonAdminAdjust, nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit adjustment: %w", err)
	}

	log.Info().
		Int64("user_id", userID).
		Int64("delta", delta).
		Int64("balance", user.PointsBalance).
		Msg("Manual balance adjustment")

	return user, nil
}
