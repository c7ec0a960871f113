package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure reasons, surfaced distinctly so callers can tell an
// expired token from a forged or garbled one. All of them fail closed.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrTokenSignature   = errors.New("token signature invalid")
	ErrTokenMalformed   = errors.New("token malformed")
)

// Token uses. Refresh tokens cannot be presented on normal API calls.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims carried by both access and refresh tokens. BootstrapAdmin marks the
// environment-configured subscription admin, the only principal whose claims
// are trusted without a store lookup (it has no store row).
type Claims struct {
	UserID           string `json:"userId"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	Active           bool   `json:"active"`
	ActiveBusinessID string `json:"activeBusinessId,omitempty"`
	BootstrapAdmin   bool   `json:"bootstrapAdmin,omitempty"`
	Use              string `json:"use,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens with issuer/audience
// assertions. Verification is pure and CPU-bound; a TokenManager is safe for
// concurrent use.
type TokenManager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager creates a token manager. Zero TTLs fall back to the
// defaults of 7 days for access tokens and 30 days for refresh tokens.
func NewTokenManager(secret, issuer, audience string, accessTTL, refreshTTL time.Duration) *TokenManager {
	if secret == "" {
		secret = "change-me-in-production"
	}
	if issuer == "" {
		issuer = "QUE-Accounting"
	}
	if audience == "" {
		audience = "QUE-Accounting-Users"
	}
	if accessTTL <= 0 {
		accessTTL = 7 * 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Issue signs an access token for the given claims.
func (tm *TokenManager) Issue(claims Claims) (string, error) {
	return tm.sign(claims, UseAccess, tm.accessTTL)
}

// IssueRefresh signs a longer-lived refresh token carrying the same identity.
func (tm *TokenManager) IssueRefresh(claims Claims) (string, error) {
	return tm.sign(claims, UseRefresh, tm.refreshTTL)
}

func (tm *TokenManager) sign(claims Claims, use string, ttl time.Duration) (string, error) {
	if claims.UserID == "" && !claims.BootstrapAdmin {
		return "", fmt.Errorf("userId required in claims")
	}
	now := time.Now()
	claims.Use = use
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    tm.issuer,
		Audience:  jwt.ClaimStrings{tm.audience},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// Verify parses and validates an access token. Any signature mismatch,
// expiry, issuer/audience mismatch or malformed payload yields a rejection
// with a distinguishable reason.
func (tm *TokenManager) Verify(tokenString string) (*Claims, error) {
	return tm.verify(tokenString, UseAccess)
}

// VerifyRefresh parses and validates a refresh token.
func (tm *TokenManager) VerifyRefresh(tokenString string) (*Claims, error) {
	return tm.verify(tokenString, UseRefresh)
}

func (tm *TokenManager) verify(tokenString, use string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (interface{}, error) {
			return tm.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithAudience(tm.audience),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	// Tokens issued before the use field existed carry no use claim and are
	// treated as access tokens.
	got := claims.Use
	if got == "" {
		got = UseAccess
	}
	if got != use {
		return nil, fmt.Errorf("%w: wrong token use %q", ErrTokenMalformed, claims.Use)
	}
	return claims, nil
}

// ExtractToken pulls the bearer token out of an Authorization header value.
func ExtractToken(authHeader string) (string, error) {
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("invalid authorization header")
	}
	return parts[1], nil
}
