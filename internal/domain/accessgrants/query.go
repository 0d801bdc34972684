package accessgrants

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"consent-ledger/internal/platform/clock"
)

// Query arma las vistas de lectura para la UI. Nunca escribe: la
// expiración se aplica sobre la vista y la persiste el sweeper o el
// siguiente write.
type Query struct {
	store GrantStore
	clock clock.Clock
}

func NewQuery(store GrantStore, c clock.Clock) *Query {
	if c == nil {
		c = clock.Real()
	}
	return &Query{store: store, clock: c}
}

type Filter struct {
	// Statuses efectivos; vacío => todos.
	Statuses []Status
	// Text busca (case-insensitive) en subject, grantee, scope y purpose.
	Text string
}

// View agrupa por status efectivo. Counts se calcula después del filtro de
// texto y antes del de status (las tarjetas del dashboard muestran todo),
// por eso se lee siempre el listado completo del store.
type View struct {
	Pending []Grant
	Active  []Grant
	Denied  []Grant
	Expired []Grant
	Revoked []Grant

	Counts map[Status]int
}

// All devuelve los grants de la vista, más recientes primero.
func (v View) All() []Grant {
	out := make([]Grant, 0, len(v.Pending)+len(v.Active)+len(v.Denied)+len(v.Expired)+len(v.Revoked))
	out = append(out, v.Pending...)
	out = append(out, v.Active...)
	out = append(out, v.Denied...)
	out = append(out, v.Expired...)
	out = append(out, v.Revoked...)
	sortRecentFirst(out)
	return out
}

func (q *Query) ForSubject(ctx context.Context, subjectID string, f Filter) (View, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return View{}, fmt.Errorf("%w: subject id required", ErrValidation)
	}
	if err := validateStatuses(f.Statuses); err != nil {
		return View{}, err
	}
	items, err := q.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return View{}, err
	}
	return q.project(items, f), nil
}

func (q *Query) ForGrantee(ctx context.Context, granteeID string, f Filter) (View, error) {
	granteeID = strings.TrimSpace(granteeID)
	if granteeID == "" {
		return View{}, fmt.Errorf("%w: grantee id required", ErrValidation)
	}
	if err := validateStatuses(f.Statuses); err != nil {
		return View{}, err
	}
	items, err := q.store.ListByGrantee(ctx, granteeID)
	if err != nil {
		return View{}, err
	}
	return q.project(items, f), nil
}

// HasAccess responde si grantee tiene hoy un grant active de subject que
// cubra category. Devuelve el grant que lo habilita.
func (q *Query) HasAccess(ctx context.Context, subjectID, granteeID, category string) (Grant, bool, error) {
	subjectID = strings.TrimSpace(subjectID)
	granteeID = strings.TrimSpace(granteeID)
	category = strings.TrimSpace(category)
	if subjectID == "" || granteeID == "" || category == "" {
		return Grant{}, false, fmt.Errorf("%w: subject, grantee and scope are required", ErrValidation)
	}

	items, err := q.store.ListByGrantee(ctx, granteeID, StatusActive)
	if err != nil {
		return Grant{}, false, err
	}

	now := q.clock.Now()
	var best Grant
	found := false
	for _, g := range items {
		if g.SubjectID != subjectID || !g.Covers(category) {
			continue
		}
		if EffectiveStatus(g, now) != StatusActive {
			continue
		}
		// El que vence más tarde.
		if !found || g.ExpiresAt.After(*best.ExpiresAt) {
			best = g
			found = true
		}
	}
	return best, found, nil
}

func (q *Query) project(items []Grant, f Filter) View {
	now := q.clock.Now()
	text := strings.ToLower(strings.TrimSpace(f.Text))

	v := View{Counts: map[Status]int{}}
	for _, s := range AllStatuses {
		v.Counts[s] = 0
	}

	for _, raw := range items {
		g := raw.Effective(now)

		if text != "" && !matchesText(g, text) {
			continue
		}
		v.Counts[g.Status]++

		if !MatchesStatus(g.Status, f.Statuses) {
			continue
		}

		switch g.Status {
		case StatusPending:
			v.Pending = append(v.Pending, g)
		case StatusActive:
			v.Active = append(v.Active, g)
		case StatusDenied:
			v.Denied = append(v.Denied, g)
		case StatusExpired:
			v.Expired = append(v.Expired, g)
		case StatusRevoked:
			v.Revoked = append(v.Revoked, g)
		}
	}

	sortRecentFirst(v.Pending)
	sortRecentFirst(v.Active)
	sortRecentFirst(v.Denied)
	sortRecentFirst(v.Expired)
	sortRecentFirst(v.Revoked)
	return v
}

func validateStatuses(statuses []Status) error {
	for _, s := range statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, s)
		}
	}
	return nil
}

func matchesText(g Grant, text string) bool {
	if strings.Contains(strings.ToLower(g.GranteeID), text) ||
		strings.Contains(strings.ToLower(g.SubjectID), text) ||
		strings.Contains(strings.ToLower(g.Purpose), text) {
		return true
	}
	for _, s := range g.Scope {
		if strings.Contains(strings.ToLower(s), text) {
			return true
		}
	}
	return false
}

func sortRecentFirst(items []Grant) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].RequestedAt.Equal(items[j].RequestedAt) {
			return items[i].RequestedAt.After(items[j].RequestedAt)
		}
		return items[i].ID < items[j].ID
	})
}
