// Package auth issues and validates the platform session tokens that guard
// the API surface. A session token is minted after a successful OAuth
// callback against an upstream source; it proves to this service that the
// browser completed a login, independent of the upstream bearer tokens held
// in the credential context.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chartview/chartview/internal/token"
)

// ErrInvalidSession signals a session token that failed verification.
var ErrInvalidSession = errors.New("invalid session token")

// SessionClaims is the payload of a platform session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Source string `json:"src"`
}

// SessionManager mints and verifies HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

func NewSessionManager(secret string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: "chartview",
	}
}

// Issue mints a session token for the given subject after a login against
// source.
func (m *SessionManager) Issue(subject string, source token.Source) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Source: source.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token.
func (m *SessionManager) Verify(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
