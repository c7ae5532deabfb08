package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/loyalty"
	"loyalty-bot/internal/model"
	"loyalty-bot/internal/repository"
)

// PartnerService covers venue administration and settlement reads.
type PartnerService struct {
	placeRepo    *repository.PlaceRepository
	purchaseRepo *repository.PurchaseRepository
	cfgRepo      *repository.LoyaltyConfigRepository
	qrRepo       *repository.QRRepository
}

// NewPartnerService creates a PartnerService.
func NewPartnerService(
	placeRepo *repository.PlaceRepository,
	purchaseRepo *repository.PurchaseRepository,
	cfgRepo *repository.LoyaltyConfigRepository,
	qrRepo *repository.QRRepository,
) *PartnerService {
	return &PartnerService{
		placeRepo:    placeRepo,
		purchaseRepo: purchaseRepo,
		cfgRepo:      cfgRepo,
		qrRepo:       qrRepo,
	}
}

// CreatePlace registers a partner venue. Percentage fields are validated to
// [0,100] here so malformed venues never reach the calculator.
func (s *PartnerService) CreatePlace(ctx context.Context, place *model.Place) (*model.Place, error) {
	for _, pct := range []float64{place.BaseDiscountPct, place.AccrualPct, place.MaxPctPerBill} {
		if pct < 0 || pct > 100 {
			return nil, loyalty.ErrInvalidAmount
		}
	}
	if place.MinPurchase < 0 {
		return nil, loyalty.ErrInvalidAmount
	}

	created, err := s.placeRepo.Create(ctx, place)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("place_id", created.ID).
		Int64("partner_id", created.PartnerID).
		Str("name", created.Name).
		Msg("Place registered")

	return created, nil
}

// ListPlaces returns a partner's venues.
func (s *PartnerService) ListPlaces(ctx context.Context, partnerID int64) ([]*model.Place, error) {
	return s.placeRepo.ListByPartner(ctx, partnerID)
}

// ListPurchases returns recent redemptions at a venue for settlement.
func (s *PartnerService) ListPurchases(ctx context.Context, placeID int64, limit int) ([]*model.PurchaseTransaction, error) {
	if _, err := s.placeRepo.GetByID(ctx, placeID); err != nil {
		if errors.Is(err, repository.ErrPlaceNotFound) {
			return nil, loyalty.ErrNotFound
		}
		return nil, err
	}
	return s.purchaseRepo.ListByPlace(ctx, placeID, limit)
}

// GetLoyaltyConfig reads the current global configuration.
func (s *PartnerService) GetLoyaltyConfig(ctx context.Context) (*model.LoyaltyConfig, error) {
	cfg, err := s.cfgRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrConfigNotFound) {
			return nil, loyalty.ErrConfigUnavailable
		}
		return nil, err
	}
	return cfg, nil
}

// SetLoyaltyConfig replaces the global configuration.
func (s *PartnerService) SetLoyaltyConfig(ctx context.Context, cfg *model.LoyaltyConfig) error {
	if cfg.RedeemRate <= 0 || cfg.MaxAccrualPct < 0 || cfg.MaxAccrualPct > 100 {
		return loyalty.ErrInvalidAmount
	}
	if cfg.RoundingRule != model.RoundingBankers && cfg.RoundingRule != model.RoundingNone {
		return loyalty.ErrInvalidAmount
	}

	if err := s.cfgRepo.Put(ctx, cfg); err != nil {
		return err
	}

	log.Info().
		Float64("redeem_rate", cfg.RedeemRate).
		Str("rounding_rule", cfg.RoundingRule).
		Float64("max_accrual_pct", cfg.MaxAccrualPct).
		Msg("Loyalty config updated")

	return nil
}

// ListFraudFlags returns flags raised in the given window for review.
func (s *PartnerService) ListFraudFlags(ctx context.Context, window time.Duration, limit int) ([]*model.FraudFlag, error) {
	return s.qrRepo.ListFraudFlags(ctx, time.Now().Add(-window), limit)
}
