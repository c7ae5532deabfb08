package qr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSignVerify(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	issued := time.Now()
	expires := issued.Add(time.Hour)

	token, err := signer.Sign("code-123", 7, issued, expires)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "code-123", claims.ID)
	assert.Equal(t, int64(7), claims.PlaceID)
}

func TestTokenVerify_WrongSecret(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Sign("code-123", 7, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	other := NewTokenSigner("other-secret")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestTokenVerify_Tampered(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	token, err := signer.Sign("code-123", 7, time.Now(), time.Now().Add(time.Hour))
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "xx"
	_, err = signer.Verify(tampered)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = signer.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrBadSignature)
}

// An expired token must still verify: expiry is the state machine's call,
// and it reports "expired" rather than "invalid".
func TestTokenVerify_ExpiredStillVerifies(t *testing.T) {
	signer := NewTokenSigner("test-secret")
	issued := time.Now().Add(-2 * time.Hour)
	token, err := signer.Sign("code-123", 7, issued, issued.Add(time.Hour))
	require.NoError(t, err)

	claims, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "code-123", claims.ID)
}

func TestRenderPNG(t *testing.T) {
	img, err := RenderPNG("some-token", 256)
	require.NoError(t, err)
	assert.NotEmpty(t, img)
}
