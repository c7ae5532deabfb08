package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"loyalty-bot/internal/loyalty"
	"loyalty-bot/internal/model"
	"loyalty-bot/internal/qr"
	"loyalty-bot/internal/repository"
)

// IssuanceService mints signed QR codes for partner venues.
type IssuanceService struct {
	placeRepo  *repository.PlaceRepository
	qrRepo     *repository.QRRepository
	signer     *qr.TokenSigner
	defaultTTL time.Duration
}

// NewIssuanceService creates an IssuanceService. defaultTTL applies when the
// caller does not pick an expiry.
func NewIssuanceService(placeRepo *repository.PlaceRepository, qrRepo *repository.QRRepository, signer *qr.TokenSigner, defaultTTL time.Duration) *IssuanceService {
	return &IssuanceService{
		placeRepo:  placeRepo,
		qrRepo:     qrRepo,
		signer:     signer,
		defaultTTL: defaultTTL,
	}
}

// IssuedQR is a freshly minted code together with its rendered image.
type IssuedQR struct {
	Code     *model.QRCode
	ImagePNG string // base64-encoded PNG
}

// IssueQRCode creates a signed single-venue QR code. ttl <= 0 falls back to
// the configured default; maxScans < 1 is clamped to 1.
func (s *IssuanceService) IssueQRCode(ctx context.Context, placeID int64, ttl time.Duration, maxScans int) (*IssuedQR, error) {
	if _, err := s.placeRepo.GetByID(ctx, placeID); err != nil {
		if errors.Is(err, repository.ErrPlaceNotFound) {
			return nil, loyalty.ErrNotFound
		}
		return nil, err
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if maxScans < 1 {
		maxScans = 1
	}

	codeID := uuid.NewString()
	issuedAt := time.Now()
	expiresAt := issuedAt.Add(ttl)

	token, err := s.signer.Sign(codeID, placeID, issuedAt, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign qr token: %w", err)
	}

	code, err := s.qrRepo.Create(ctx, &model.QRCode{
		CodeID:    codeID,
		PlaceID:   placeID,
		Token:     token,
		Status:    model.QRStatusIssued,
		IsActive:  true,
		MaxScans:  maxScans,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	image, err := qr.RenderPNG(token, 512)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr image: %w", err)
	}

	log.Info().
		Str("code_id", codeID).
		Int64("place_id", placeID).
		Time("expires_at", expiresAt).
		Int("max_scans", maxScans).
		Msg("QR code issued")

	return &IssuedQR{Code: code, ImagePNG: image}, nil
}
