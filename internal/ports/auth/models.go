package auth

import "context"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleSystem  Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleSystem:
		return true
	}
	return false
}

// Claims es la identidad del llamador: el actorId que ve el motor de grants
// y el rol con el que se deduce la vista por defecto.
type Claims struct {
	UserID string
	Role   Role
}

// AuthVerifier valida un bearer token (jwtverifier, remote).
type AuthVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}
