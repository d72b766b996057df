package auth

import (
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rentdesk/internal/models"
)

const testIssuer = "https://rentdesk.test"

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	issuer, err := NewTokenIssuer(key, testIssuer, time.Hour)
	require.NoError(t, err)
	return issuer
}

func createSignedToken(t *testing.T, privateKey *ecdsa.PrivateKey, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tokenStr, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return tokenStr
}

func TestNewTokenIssuer(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	_, err = NewTokenIssuer(nil, testIssuer, time.Hour)
	require.Error(t, err)
	_, err = NewTokenIssuer(key, "", time.Hour)
	require.Error(t, err)
	_, err = NewTokenIssuer(key, testIssuer, 0)
	require.Error(t, err)
}

func TestIssueAndVerify(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewJWTVerifier(issuer.PublicKey(), testIssuer)

	user := &models.User{
		UserID: uuid.New(),
		Email:  "jane@example.com",
		Roles:  []string{models.RoleOwner},
	}
	orgID := uuid.New()

	token, expiresAt, err := issuer.IssueForUser(user, orgID)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	principal, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, user.UserID, principal.UserID)
	require.Equal(t, orgID, principal.OrgID)
	require.Equal(t, user.Email, principal.Email)
	require.Equal(t, []string{models.RoleOwner}, principal.Roles)
}

func TestVerify_rejects(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewJWTVerifier(issuer.PublicKey(), testIssuer)
	now := time.Now()

	otherKey, err := GenerateSigningKey()
	require.NoError(t, err)

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name: "expired",
			token: func() string {
				return createSignedToken(t, issuer.signingKey, &Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   uuid.NewString(),
					Issuer:    testIssuer,
					ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
				}})
			},
		},
		{
			name: "wrong issuer",
			token: func() string {
				return createSignedToken(t, issuer.signingKey, &Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   uuid.NewString(),
					Issuer:    "https://elsewhere.test",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}})
			},
		},
		{
			name: "wrong key",
			token: func() string {
				return createSignedToken(t, otherKey, &Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   uuid.NewString(),
					Issuer:    testIssuer,
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}})
			},
		},
		{
			name: "missing expiry",
			token: func() string {
				return createSignedToken(t, issuer.signingKey, &Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject: uuid.NewString(),
					Issuer:  testIssuer,
				}})
			},
		},
		{
			name: "subject not a uuid",
			token: func() string {
				return createSignedToken(t, issuer.signingKey, &Claims{RegisteredClaims: jwt.RegisteredClaims{
					Subject:   "jane",
					Issuer:    testIssuer,
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				}})
			},
		},
		{
			name:  "garbage",
			token: func() string { return "not-a-jwt" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			principal, err := verifier.Verify(tt.token())
			require.Error(t, err)
			require.Nil(t, principal)
		})
	}
}

func TestMiddleware(t *testing.T) {
	issuer := newTestIssuer(t)
	verifier := NewJWTVerifier(issuer.PublicKey(), testIssuer)

	user := &models.User{UserID: uuid.New(), Roles: []string{models.RoleOwner}}
	token, _, err := issuer.IssueForUser(user, uuid.Nil)
	require.NoError(t, err)

	var seen *Principal
	handler := verifier.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name          string
		authorization string
		wantStatus    int
		wantPrincipal bool
	}{
		{name: "no header passes anonymous", wantStatus: http.StatusNoContent},
		{name: "valid bearer", authorization: "Bearer " + token, wantStatus: http.StatusNoContent, wantPrincipal: true},
		{name: "lowercase scheme", authorization: "bearer " + token, wantStatus: http.StatusNoContent, wantPrincipal: true},
		{name: "invalid token", authorization: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", authorization: "Basic Zm9vOmJhcg==", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authorization != "" {
				req.Header.Set("Authorization", tt.authorization)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantPrincipal {
				require.NotNil(t, seen)
				require.Equal(t, user.UserID, seen.UserID)
				require.Equal(t, uuid.Nil, seen.OrgID)
			} else {
				require.Nil(t, seen)
			}
		})
	}
}

func TestLoadSigningKey(t *testing.T) {
	key, err := GenerateSigningKey()
	require.NoError(t, err)

	data, err := EncodePrivateKeyPEM(key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "signing.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadSigningKey(path)
	require.NoError(t, err)
	require.True(t, key.Equal(loaded))

	_, err = LoadSigningKey(filepath.Join(t.TempDir(), "missing.pem"))
	require.Error(t, err)
}
