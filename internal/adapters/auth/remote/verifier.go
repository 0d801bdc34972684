package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"consent-ledger/internal/ports/auth"
)

var (
	ErrTokenEmpty      = errors.New("token is empty")
	ErrInvalidIdentity = errors.New("identity response invalid")
	ErrRoleNotAllowed  = errors.New("role not allowed")
)

// Verifier implementa auth.AuthVerifier sobre el servicio de identidad.
// El servicio sólo dice quién es; qué roles entran lo decide el Verifier.
type Verifier struct {
	client  *Client
	allowed map[auth.Role]bool
}

type VerifierOption func(*Verifier)

// WithRoles restringe los roles aceptados. Sin esta opción entra cualquier
// rol válido.
func WithRoles(roles ...auth.Role) VerifierOption {
	return func(v *Verifier) {
		v.allowed = make(map[auth.Role]bool, len(roles))
		for _, r := range roles {
			v.allowed[r] = true
		}
	}
}

func NewVerifier(client *Client, opts ...VerifierOption) *Verifier {
	v := &Verifier{client: client}
	for _, o := range opts {
		o(v)
	}
	return v
}

func (v *Verifier) Verify(ctx context.Context, token string) (auth.Claims, error) {
	if v == nil || v.client == nil {
		return auth.Claims{}, ErrNotConfigured
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return auth.Claims{}, ErrTokenEmpty
	}

	id, err := v.client.VerifyToken(ctx, token)
	if err != nil {
		return auth.Claims{}, fmt.Errorf("remote verify failed: %w", err)
	}
	return v.claims(id)
}

func (v *Verifier) claims(id Identity) (auth.Claims, error) {
	uid := strings.TrimSpace(id.UserID)
	if uid == "" {
		return auth.Claims{}, fmt.Errorf("%w: missing user_id", ErrInvalidIdentity)
	}
	role := auth.Role(strings.ToLower(strings.TrimSpace(id.Role)))
	if !role.Valid() {
		return auth.Claims{}, fmt.Errorf("%w: unknown role %q", ErrInvalidIdentity, id.Role)
	}
	if v.allowed != nil && !v.allowed[role] {
		return auth.Claims{}, fmt.Errorf("%w: %s", ErrRoleNotAllowed, role)
	}
	return auth.Claims{UserID: uid, Role: role}, nil
}
