package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string   `json:"email,omitempty"`
	OrgID string   `json:"org,omitempty"`
	Roles []string `json:"roles"`
}

// TokenIssuer signs ES256 access tokens.
type TokenIssuer struct {
	signingKey *ecdsa.PrivateKey
	issuer     string
	ttl        time.Duration
}

// NewTokenIssuer creates an issuer signing with key.
func NewTokenIssuer(signingKey *ecdsa.PrivateKey, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if signingKey == nil {
		return nil, errors.New("signing key is required")
	}
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token TTL must be greater than 0")
	}
	return &TokenIssuer{signingKey: signingKey, issuer: issuer, ttl: ttl}, nil
}

// PublicKey returns the key tokens are verified with.
func (i *TokenIssuer) PublicKey() *ecdsa.PublicKey {
	return &i.signingKey.PublicKey
}

// Issuer returns the iss claim value.
func (i *TokenIssuer) Issuer() string {
	return i.issuer
}

// IssueForUser creates a signed token for user scoped to orgID.
func (i *TokenIssuer) IssueForUser(user *models.User, orgID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email: user.Email,
		Roles: user.Roles,
	}
	if orgID != uuid.Nil {
		claims.OrgID = orgID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(i.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// GenerateSigningKey creates a new P-256 key.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// LoadSigningKey reads a PEM-encoded ECDSA private key from path.
func LoadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	return key, nil
}

// EncodePrivateKeyPEM encodes key in SEC 1 PEM form.
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}
