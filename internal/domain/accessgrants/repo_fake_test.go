package accessgrants

import (
	"context"
	"errors"
	"sync"
	"time"
)

// -------------------------
// Test repo (in-memory, con CAS)
// -------------------------

type testRepo struct {
	mu    sync.Mutex
	byID  map[string]Grant
	audit map[string][]AuditEntry

	// putHook corre antes del CAS; si devuelve error, Put falla con él.
	putHook func(g Grant) error
	puts    int
}

func newTestRepo() *testRepo {
	return &testRepo{
		byID:  map[string]Grant{},
		audit: map[string][]AuditEntry{},
	}
}

func (r *testRepo) Get(ctx context.Context, id string) (Grant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.byID[id]
	if !ok {
		return Grant{}, ErrNotFound
	}
	return g, nil
}

func (r *testRepo) Create(ctx context.Context, g Grant, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g.ID == "" {
		return errors.New("repo: id required")
	}
	for _, cur := range r.byID {
		if cur.SubjectID == g.SubjectID && cur.GranteeID == g.GranteeID &&
			cur.ScopeKey() == g.ScopeKey() && !cur.Status.Terminal() {
			return ErrDuplicateRequest
		}
	}
	sealed, err := SealEntry(nil, entry)
	if err != nil {
		return err
	}
	r.byID[g.ID] = g
	r.audit[g.ID] = []AuditEntry{sealed}
	return nil
}

func (r *testRepo) Put(ctx context.Context, g Grant, expected int64, entry AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.puts++
	if r.putHook != nil {
		if err := r.putHook(g); err != nil {
			return err
		}
	}

	cur, ok := r.byID[g.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Revision != expected {
		return ErrStaleRevision
	}

	entries := r.audit[g.ID]
	var last *AuditEntry
	if len(entries) > 0 {
		last = &entries[len(entries)-1]
	}
	sealed, err := SealEntry(last, entry)
	if err != nil {
		return err
	}
	r.byID[g.ID] = g
	r.audit[g.ID] = append(entries, sealed)
	return nil
}

func (r *testRepo) ListBySubject(ctx context.Context, subjectID string, statuses ...Status) ([]Grant, error) {
	return r.filter(func(g Grant) bool {
		return g.SubjectID == subjectID && MatchesStatus(g.Status, statuses)
	}), nil
}

func (r *testRepo) ListByGrantee(ctx context.Context, granteeID string, statuses ...Status) ([]Grant, error) {
	return r.filter(func(g Grant) bool {
		return g.GranteeID == granteeID && MatchesStatus(g.Status, statuses)
	}), nil
}

func (r *testRepo) ListDueForExpiry(ctx context.Context, now time.Time) ([]Grant, error) {
	return r.filter(func(g Grant) bool { return Expired(g, now) }), nil
}

func (r *testRepo) Append(ctx context.Context, e AuditEntry) (AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.audit[e.GrantID]
	var last *AuditEntry
	if len(entries) > 0 {
		last = &entries[len(entries)-1]
	}
	sealed, err := SealEntry(last, e)
	if err != nil {
		return AuditEntry{}, err
	}
	r.audit[e.GrantID] = append(entries, sealed)
	return sealed, nil
}

func (r *testRepo) ListByGrant(ctx context.Context, grantID string) ([]AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]AuditEntry(nil), r.audit[grantID]...), nil
}

func (r *testRepo) filter(keep func(Grant) bool) []Grant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Grant, 0)
	for _, g := range r.byID {
		if keep(g) {
			out = append(out, g)
		}
	}
	return out
}

func (r *testRepo) auditLen(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.audit[id])
}
