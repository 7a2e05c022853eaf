// Package jwttoken issues the RS256 keypair tokens the query API accepts.
package jwttoken

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultLifetime is just under the one-hour ceiling the API enforces.
const DefaultLifetime = 59 * time.Minute

// refreshMargin is how long before expiry a cached token is replaced.
const refreshMargin = 5 * time.Minute

var ErrInvalidToken = errors.New("invalid token")

// KeypairService signs tokens with an account user's RSA key. Tokens are
// cached and reused until close to expiry.
type KeypairService struct {
	privateKey  *rsa.PrivateKey
	account     string
	user        string
	fingerprint string
	lifetime    time.Duration
	now         func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

// NewKeypairService parses a PEM encoded private key (PKCS#1 or PKCS#8).
// Account and user are upper-cased as the API expects.
func NewKeypairService(account, user string, privateKeyPEM []byte, lifetime time.Duration) (*KeypairService, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	fp, err := PublicKeyFingerprint(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &KeypairService{
		privateKey:  key,
		account:     normalizeAccount(account),
		user:        strings.ToUpper(user),
		fingerprint: fp,
		lifetime:    lifetime,
		now:         time.Now,
	}, nil
}

// PublicKeyFingerprint is "SHA256:" plus the base64 SHA-256 of the DER
// encoded public key.
func PublicKeyFingerprint(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return "SHA256:" + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Qualified returns ACCOUNT.USER.
func (s *KeypairService) Qualified() string {
	return s.account + "." + s.user
}

// Issuer returns ACCOUNT.USER.SHA256:<fingerprint>.
func (s *KeypairService) Issuer() string {
	return s.Qualified() + "." + s.fingerprint
}

// Token returns a valid signed token, reusing the cached one when it has
// more than refreshMargin left.
func (s *KeypairService) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.cached != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.cached, nil
	}

	expires := now.Add(s.lifetime)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    s.Issuer(),
		Subject:   s.Qualified(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	})
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	s.cached, s.expires = signed, expires
	return signed, nil
}

// ValidateToken verifies a token against pub and returns its claims.
func ValidateToken(tokenString string, pub *rsa.PublicKey) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// normalizeAccount drops any region or cloud suffix ("xy12345.ap-southeast-1")
// since the token names the bare account locator.
func normalizeAccount(account string) string {
	account = strings.ToUpper(account)
	if i := strings.Index(account, "."); i > 0 {
		account = account[:i]
	}
	return account
}
