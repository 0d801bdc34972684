package accessgrants

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusDenied  Status = "denied"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// AllStatuses en el orden en que los muestra la UI.
var AllStatuses = []Status{StatusPending, StatusActive, StatusDenied, StatusExpired, StatusRevoked}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDenied, StatusExpired, StatusRevoked:
		return true
	}
	return false
}

// Terminal: denied, expired y revoked no admiten más transiciones.
func (s Status) Terminal() bool {
	return s == StatusDenied || s == StatusExpired || s == StatusRevoked
}

type Decision string

const (
	DecisionGrant Decision = "grant"
	DecisionDeny  Decision = "deny"
)

// SystemActorID firma las transiciones que nadie pidió (expiración).
const SystemActorID = "system"

// Grant es el permiso de un grantee (médico) sobre datos de un subject (paciente).
type Grant struct {
	ID string

	SubjectID string // dueño de los datos
	GranteeID string // quien pide acceso

	Scope   []string // categorías de datos, orden del pedido
	Purpose string

	Status Status

	RequestedAt time.Time
	DecidedAt   *time.Time // set al salir de pending
	ExpiresAt   *time.Time // set sólo en active/expired

	// Revision sube en cada cambio de estado; es el token de CAS.
	Revision int64
}

// ScopeKey identifica el scope como conjunto (independiente del orden).
func (g Grant) ScopeKey() string { return scopeKey(g.Scope) }

// Covers indica si el grant incluye la categoría pedida.
func (g Grant) Covers(category string) bool {
	for _, s := range g.Scope {
		if equalFoldTrim(s, category) {
			return true
		}
	}
	return false
}

// AuditEntry registra una transición. Append-only.
type AuditEntry struct {
	ID      string
	GrantID string
	Seq     int64 // 1-based por grant

	FromStatus Status // "" para la creación
	ToStatus   Status

	ActorID   string
	Timestamp time.Time
	Reason    string

	PrevHash string
	Hash     string
}

type auditPayload struct {
	ID         string    `cbor:"id"`
	GrantID    string    `cbor:"grant_id"`
	Seq        int64     `cbor:"seq"`
	FromStatus string    `cbor:"from"`
	ToStatus   string    `cbor:"to"`
	ActorID    string    `cbor:"actor"`
	Timestamp  time.Time `cbor:"ts"`
	Reason     string    `cbor:"reason"`
}

func (e AuditEntry) ChainPrev() string { return e.PrevHash }
func (e AuditEntry) ChainHash() string { return e.Hash }

func (e AuditEntry) ChainPayload() any {
	return auditPayload{
		ID:         e.ID,
		GrantID:    e.GrantID,
		Seq:        e.Seq,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorID:    e.ActorID,
		Timestamp:  e.Timestamp.UTC(),
		Reason:     e.Reason,
	}
}
