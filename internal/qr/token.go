// Package qr implements the QR lifecycle: token signing and verification,
// image rendering, the redemption state machine and fraud scoring.
package qr

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/skip2/go-qrcode"
)

// ErrBadSignature is returned when a token's HMAC does not verify or the
// token is structurally invalid.
var ErrBadSignature = errors.New("qr token signature invalid")

// Claims is the signed payload of a QR token. The code ID travels as the
// registered "jti" claim.
type Claims struct {
	PlaceID int64 `json:"place_id"`
	jwt.RegisteredClaims
}

// TokenSigner signs and verifies QR tokens with HMAC-SHA256.
type TokenSigner struct {
	secret []byte
}

// NewTokenSigner creates a TokenSigner over the shared secret.
func NewTokenSigner(secret string) *TokenSigner {
	return &TokenSigner{secret: []byte(secret)}
}

// Sign produces the compact signed token for a QR code.
func (s *TokenSigner) Sign(codeID string, placeID int64, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		PlaceID: placeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        codeID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign qr token: %w", err)
	}
	return token, nil
}

// Verify checks the token's signature and returns its claims. Expiry is
// deliberately NOT validated here: the state machine checks the stored
// expires_at first so an expired code is rejected as "expired", not
// "invalid".
func (s *TokenSigner) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrBadSignature
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrBadSignature
	}
	return claims, nil
}

// RenderPNG renders the token as a base64-encoded PNG for display by
// partner tooling.
func RenderPNG(token string, size int) (string, error) {
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("failed to render qr image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
