package auth

import (
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	httpmiddleware "github.com/wolfeidau/rentdesk/internal/http"
)

// JWTVerifier verifies ES256 access tokens issued by TokenIssuer.
type JWTVerifier struct {
	publicKey *ecdsa.PublicKey
	issuer    string
}

// NewJWTVerifier creates a new JWT verifier.
func NewJWTVerifier(publicKey *ecdsa.PublicKey, issuer string) *JWTVerifier {
	return &JWTVerifier{
		publicKey: publicKey,
		issuer:    issuer,
	}
}

// Verify validates the token signature, issuer and expiry and returns the principal.
func (v *JWTVerifier) Verify(tokenString string) (*Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub claim: %w", err)
	}

	principal := &Principal{
		UserID: userID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}

	if claims.OrgID != "" {
		orgID, err := uuid.Parse(claims.OrgID)
		if err != nil {
			return nil, fmt.Errorf("invalid org claim: %w", err)
		}
		principal.OrgID = orgID
	}

	return principal, nil
}

// Middleware returns an HTTP middleware that verifies bearer tokens when present.
// Requests without an Authorization header pass through unauthenticated so
// public routes such as onboarding work; a present but invalid token is rejected.
func (v *JWTVerifier) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, present := extractBearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := v.Verify(tokenString)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to verify JWT")
				httpmiddleware.WriteError(w, r, apperror.Unauthenticated("invalid or expired token"))
				return
			}

			zerolog.Ctx(r.Context()).Debug().
				Str("user_id", principal.UserID.String()).
				Msg("JWT authenticated")

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
		})
	}
}

// extractBearerToken extracts the JWT from the Authorization header.
// present is true whenever an Authorization header was sent, even if malformed.
func extractBearerToken(r *http.Request) (token string, present bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", true
	}

	return strings.TrimSpace(token), true
}
