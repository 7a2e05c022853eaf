package jwttoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func Test_Token(t *testing.T) {
	key, pemBytes := newKey(t)
	svc, err := NewKeypairService("xy12345.ap-southeast-1", "recon_svc", pemBytes, 0)
	require.NoError(t, err)

	token, err := svc.Token()
	require.NoError(t, err)

	claims, err := ValidateToken(token, &key.PublicKey)
	require.NoError(t, err)

	fp, err := PublicKeyFingerprint(&key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "XY12345.RECON_SVC."+fp, claims.Issuer)
	assert.Equal(t, "XY12345.RECON_SVC", claims.Subject)
	assert.True(t, strings.HasPrefix(fp, "SHA256:"))
	assert.WithinDuration(t, time.Now().Add(DefaultLifetime), claims.ExpiresAt.Time, time.Minute)
}

func Test_TokenIsCachedUntilNearExpiry(t *testing.T) {
	_, pemBytes := newKey(t)
	svc, err := NewKeypairService("acct", "user", pemBytes, time.Hour)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	first, err := svc.Token()
	require.NoError(t, err)
	second, err := svc.Token()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(56 * time.Minute)
	third, err := svc.Token()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	_, pemBytes := newKey(t)
	other, _ := newKey(t)
	svc, err := NewKeypairService("acct", "user", pemBytes, 0)
	require.NoError(t, err)

	token, err := svc.Token()
	require.NoError(t, err)

	_, err = ValidateToken(token, &other.PublicKey)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func Test_NewKeypairService_BadPEM(t *testing.T) {
	_, err := NewKeypairService("acct", "user", []byte("not a key"), 0)
	require.Error(t, err)
}
