// Package token issues and verifies the signed bearer tokens that admit a
// session without resending a password.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Service struct {
	secret []byte
	ttl    time.Duration
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Issue produces an HS256-signed token carrying the username claim,
// expiring after the configured TTL.
func (s *Service) Issue(username string) (string, error) {
	now := time.Now()
	c := claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
}

// Verify reports whether the token is well formed, correctly signed and
// unexpired. Every failure mode collapses to false: callers must not be
// able to distinguish a bad signature from an expired token.
func (s *Service) Verify(tok string) bool {
	_, ok := s.Claims(tok)
	return ok
}

// Claims returns the username claim of a valid token. The claim is taken
// at face value; user existence is not re-checked here.
func (s *Service) Claims(tok string) (string, bool) {
	if tok == "" {
		return "", false
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(tok, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", false
	}

	return c.Username, true
}
