package accessgrants

import "time"

// EffectiveStatus es el único lugar que decide si un grant venció.
// Un grant active con now >= ExpiresAt ya está expired aunque nadie lo haya persistido.
func EffectiveStatus(g Grant, now time.Time) Status {
	if g.Status == StatusActive && g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return StatusExpired
	}
	return g.Status
}

// Expired indica si hay una expiración pendiente de persistir.
func Expired(g Grant, now time.Time) bool {
	return g.Status == StatusActive && EffectiveStatus(g, now) == StatusExpired
}

// Effective devuelve una copia con el status efectivo. No toca Revision.
func (g Grant) Effective(now time.Time) Grant {
	g.Status = EffectiveStatus(g, now)
	return g
}

// Remaining es el tiempo que le queda a un grant active (0 si no aplica).
func (g Grant) Remaining(now time.Time) time.Duration {
	if EffectiveStatus(g, now) != StatusActive || g.ExpiresAt == nil {
		return 0
	}
	return g.ExpiresAt.Sub(now)
}
