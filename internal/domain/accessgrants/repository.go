package accessgrants

import (
	"context"
	"time"

	"consent-ledger/internal/platform/ledger"
)

// GrantStore no valida reglas de dominio (eso es del Service); sí garantiza
// que cada escritura es atómica junto con su entrada de auditoría.
//
// Los adapters devuelven ErrNotFound, ErrStaleRevision y ErrDuplicateRequest
// de este paquete en lugar de sus errores nativos.
type GrantStore interface {
	Get(ctx context.Context, id string) (Grant, error)

	// Create inserta g y su primera entrada. ErrDuplicateRequest si ya
	// existe un grant pending/active con el mismo (subject, grantee, scope).
	Create(ctx context.Context, g Grant, entry AuditEntry) error

	// Put reemplaza el grant sólo si la revision guardada es expected
	// (ErrStaleRevision si no) y agrega entry en la misma operación.
	Put(ctx context.Context, g Grant, expected int64, entry AuditEntry) error

	// Sin statuses => todos.
	ListBySubject(ctx context.Context, subjectID string, statuses ...Status) ([]Grant, error)
	ListByGrantee(ctx context.Context, granteeID string, statuses ...Status) ([]Grant, error)

	// ListDueForExpiry: grants active con ExpiresAt <= now.
	ListDueForExpiry(ctx context.Context, now time.Time) ([]Grant, error)
}

// AuditLog no tiene update ni delete.
type AuditLog interface {
	// Append encadena e al final del log del grant y la devuelve sellada.
	Append(ctx context.Context, e AuditEntry) (AuditEntry, error)
	ListByGrant(ctx context.Context, grantID string) ([]AuditEntry, error)
}

type Repository interface {
	GrantStore
	AuditLog
}

// SealEntry encadena e detrás de last (nil si es la primera). Los adapters
// la llaman dentro de su sección atómica.
func SealEntry(last *AuditEntry, e AuditEntry) (AuditEntry, error) {
	e.Seq = 1
	e.PrevHash = ""
	if last != nil {
		e.Seq = last.Seq + 1
		e.PrevHash = last.Hash
	}
	e.Timestamp = e.Timestamp.UTC()

	h, err := ledger.Seal(e.PrevHash, e.ChainPayload())
	if err != nil {
		return AuditEntry{}, err
	}
	e.Hash = h
	return e, nil
}

// VerifyChain recalcula la cadena completa de un grant.
func VerifyChain(entries []AuditEntry) error {
	return ledger.Verify(entries)
}

// MatchesStatus es el filtro común de los adapters para listados.
func MatchesStatus(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
