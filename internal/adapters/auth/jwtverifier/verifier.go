package jwtverifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"consent-ledger/internal/ports/auth"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims del token: sub = actor id, role = patient|doctor|system.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier implementa auth.AuthVerifier con tokens HS256 firmados por el
// servicio de identidad con un secreto compartido.
type Verifier struct {
	secret []byte
}

func New(secret string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Verifier{secret: []byte(secret)}, nil
}

func (v *Verifier) Verify(_ context.Context, token string) (auth.Claims, error) {
	claims := &Claims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return auth.Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return auth.Claims{}, ErrInvalidToken
	}

	uid := strings.TrimSpace(claims.Subject)
	if uid == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	role := auth.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return auth.Claims{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return auth.Claims{UserID: uid, Role: role}, nil
}

// Issue firma un token; lo usan los tests y herramientas de desarrollo.
func Issue(secret, userID string, role auth.Role, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: string(role),
	})
	return token.SignedString([]byte(secret))
}
