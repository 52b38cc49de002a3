// Package security holds the JWT plumbing for the ops/admin surface. The
// short-lived opaque handoff tokens used by the protocols live in
// internal/auth; these bearer tokens only gate the HTTP admin endpoints.
package security

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminTokens creates and validates admin bearer tokens.
type AdminTokens struct {
	secret    []byte
	expiresIn time.Duration
}

func NewAdminTokens(secret string, expiresIn time.Duration) *AdminTokens {
	return &AdminTokens{
		secret:    []byte(secret),
		expiresIn: expiresIn,
	}
}

// Create mints an admin token with the default TTL.
func (t *AdminTokens) Create() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  "admin",
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(t.expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates a token and checks the admin role claim.
func (t *AdminTokens) Verify(tokenStr string) error {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return jwt.ErrSignatureInvalid
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return jwt.ErrTokenMalformed
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
