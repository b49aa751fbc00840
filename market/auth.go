package market

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agrimart/bridge/lib/store"
)

// tokenTTL is the lifetime of the bearer tokens issued at login.
const tokenTTL = 24 * time.Hour

// Errors returned by the token capability.
var (
	ErrNoToken  = errors.New("missing bearer token")
	ErrBadToken = errors.New("invalid or expired token")
)

// Claims bind a bearer token to the caller's identity, role and on-chain signing
// account.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	SignerID uint32 `json:"signerId"`
	jwt.RegisteredClaims
}

// issueToken signs a token for the given credential row.
func (m *Market) issueToken(u store.User) (string, error) {
	claims := &Claims{
		Username: u.Username,
		Role:     "member",
		SignerID: u.SignerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
			Issuer:    "agrimart-market",
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.jwtKey)
}

// callerClaims authenticates the request's Authorization header and returns the
// caller's claims.
func (m *Market) callerClaims(r *http.Request) (*Claims, error) {
	tok := r.Header.Get("Authorization")
	if tok == "" {
		return nil, ErrNoToken
	}

	tok = strings.TrimPrefix(tok, "Bearer ")

	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (interface{}, error) {
		return m.jwtKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrBadToken
	}

	return claims, nil
}
