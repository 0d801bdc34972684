package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"consent-ledger/internal/domain/accessgrants"
)

// grantRepo implementa accessgrants.Repository en memoria. El mutex sólo
// protege los mapas; la exclusión entre escritores del mismo grant la da
// el chequeo de revision (CAS) dentro de la sección crítica.
type grantRepo struct {
	mu    sync.RWMutex
	byID  map[string]accessgrants.Grant
	open  map[string]string // subject/grantee/scopeKey de grants pending|active -> id
	audit map[string][]accessgrants.AuditEntry
}

func NewGrantsRepo() accessgrants.Repository {
	return &grantRepo{
		byID:  make(map[string]accessgrants.Grant),
		open:  make(map[string]string),
		audit: make(map[string][]accessgrants.AuditEntry),
	}
}

func (r *grantRepo) Get(ctx context.Context, id string) (accessgrants.Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.byID[id]
	if !ok {
		return accessgrants.Grant{}, accessgrants.ErrNotFound
	}
	return clone(g), nil
}

func (r *grantRepo) Create(ctx context.Context, g accessgrants.Grant, entry accessgrants.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(g.ID) == "" {
		return errors.New("grant id required")
	}
	if _, exists := r.byID[g.ID]; exists {
		return errors.New("grant already exists")
	}

	key := openKey(g)
	if isOpen(g.Status) {
		if _, taken := r.open[key]; taken {
			return accessgrants.ErrDuplicateRequest
		}
	}

	sealed, err := accessgrants.SealEntry(nil, entry)
	if err != nil {
		return err
	}

	r.byID[g.ID] = clone(g)
	if isOpen(g.Status) {
		r.open[key] = g.ID
	}
	r.audit[g.ID] = []accessgrants.AuditEntry{sealed}
	return nil
}

func (r *grantRepo) Put(ctx context.Context, g accessgrants.Grant, expected int64, entry accessgrants.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[g.ID]
	if !ok {
		return accessgrants.ErrNotFound
	}
	if cur.Revision != expected {
		return accessgrants.ErrStaleRevision
	}

	sealed, err := accessgrants.SealEntry(r.lastLocked(g.ID), entry)
	if err != nil {
		return err
	}

	r.byID[g.ID] = clone(g)
	if isOpen(cur.Status) && !isOpen(g.Status) {
		if r.open[openKey(cur)] == g.ID {
			delete(r.open, openKey(cur))
		}
	}
	r.audit[g.ID] = append(r.audit[g.ID], sealed)
	return nil
}

func (r *grantRepo) ListBySubject(ctx context.Context, subjectID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return r.list(func(g accessgrants.Grant) bool {
		return g.SubjectID == subjectID && accessgrants.MatchesStatus(g.Status, statuses)
	}), nil
}

func (r *grantRepo) ListByGrantee(ctx context.Context, granteeID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return r.list(func(g accessgrants.Grant) bool {
		return g.GranteeID == granteeID && accessgrants.MatchesStatus(g.Status, statuses)
	}), nil
}

func (r *grantRepo) ListDueForExpiry(ctx context.Context, now time.Time) ([]accessgrants.Grant, error) {
	return r.list(func(g accessgrants.Grant) bool {
		return accessgrants.Expired(g, now)
	}), nil
}

func (r *grantRepo) Append(ctx context.Context, e accessgrants.AuditEntry) (accessgrants.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if strings.TrimSpace(e.GrantID) == "" {
		return accessgrants.AuditEntry{}, errors.New("audit entry grant id required")
	}

	sealed, err := accessgrants.SealEntry(r.lastLocked(e.GrantID), e)
	if err != nil {
		return accessgrants.AuditEntry{}, err
	}
	r.audit[e.GrantID] = append(r.audit[e.GrantID], sealed)
	return sealed, nil
}

func (r *grantRepo) ListByGrant(ctx context.Context, grantID string) ([]accessgrants.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.audit[grantID]
	out := make([]accessgrants.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (r *grantRepo) lastLocked(grantID string) *accessgrants.AuditEntry {
	entries := r.audit[grantID]
	if len(entries) == 0 {
		return nil
	}
	last := entries[len(entries)-1]
	return &last
}

func (r *grantRepo) list(keep func(accessgrants.Grant) bool) []accessgrants.Grant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]accessgrants.Grant, 0)
	for _, g := range r.byID {
		if keep(g) {
			out = append(out, clone(g))
		}
	}

	// Orden estable por requested_at asc (mismo orden que postgres)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func isOpen(s accessgrants.Status) bool {
	return s == accessgrants.StatusPending || s == accessgrants.StatusActive
}

func openKey(g accessgrants.Grant) string {
	return g.SubjectID + "\x00" + g.GranteeID + "\x00" + g.ScopeKey()
}

// clone evita que el llamador mute el estado guardado vía slices/punteros.
func clone(g accessgrants.Grant) accessgrants.Grant {
	g.Scope = append([]string(nil), g.Scope...)
	if g.DecidedAt != nil {
		t := *g.DecidedAt
		g.DecidedAt = &t
	}
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		g.ExpiresAt = &t
	}
	return g
}
