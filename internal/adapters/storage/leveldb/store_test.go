package leveldb

import (
	"context"
	"sync"
	"testing"
	"time"

	"consent-ledger/internal/domain/accessgrants"
	"consent-ledger/internal/platform/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	require.NoError(t, err)
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newGrant(id, subject, grantee string, scope ...string) accessgrants.Grant {
	return accessgrants.Grant{
		ID:          id,
		SubjectID:   subject,
		GranteeID:   grantee,
		Scope:       scope,
		Status:      accessgrants.StatusPending,
		RequestedAt: t0,
		Revision:    1,
	}
}

func created(g accessgrants.Grant) accessgrants.AuditEntry {
	return accessgrants.AuditEntry{ID: g.ID + "-1", GrantID: g.ID, ToStatus: accessgrants.StatusPending, ActorID: g.GranteeID, Timestamp: t0}
}

func activate(g accessgrants.Grant, ttl time.Duration) (accessgrants.Grant, accessgrants.AuditEntry) {
	next := g
	exp := t0.Add(ttl)
	next.Status = accessgrants.StatusActive
	next.DecidedAt = &t0
	next.ExpiresAt = &exp
	next.Revision = g.Revision + 1
	return next, accessgrants.AuditEntry{
		ID: g.ID + "-2", GrantID: g.ID,
		FromStatus: accessgrants.StatusPending, ToStatus: accessgrants.StatusActive,
		ActorID: g.SubjectID, Timestamp: t0,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := newGrant("g1", "U1", "D1", "EEG", "Lab Results")
	g.Purpose = "control"
	require.NoError(t, s.Create(ctx, g, created(g)))

	got, err := s.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, g.Scope, got.Scope)
	assert.Equal(t, "control", got.Purpose)
	assert.Equal(t, accessgrants.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Revision)
	assert.True(t, got.RequestedAt.Equal(t0))
	assert.Nil(t, got.DecidedAt)

	next, entry := activate(g, time.Hour)
	require.NoError(t, s.Put(ctx, next, 1, entry))

	got, err = s.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, accessgrants.StatusActive, got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(t0.Add(time.Hour)))

	trail, err := s.ListByGrant(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, int64(2), trail[1].Seq)
	assert.NoError(t, accessgrants.VerifyChain(trail))

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, accessgrants.ErrNotFound)
}

func TestStore_CAS(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := newGrant("g1", "U1", "D1", "EEG")
	require.NoError(t, s.Create(ctx, g, created(g)))

	next, entry := activate(g, time.Hour)
	require.NoError(t, s.Put(ctx, next, 1, entry))
	assert.ErrorIs(t, s.Put(ctx, next, 1, entry), accessgrants.ErrStaleRevision)
	assert.ErrorIs(t, s.Put(ctx, newGrant("nope", "U1", "D1", "EEG"), 1, entry), accessgrants.ErrNotFound)

	trail, _ := s.ListByGrant(ctx, "g1")
	assert.Len(t, trail, 2)
}

func TestStore_IndexesFollowStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a := newGrant("a", "U1", "D1", "EEG")
	b := newGrant("b", "U1", "D2", "MRI")
	b.RequestedAt = t0.Add(time.Minute)
	require.NoError(t, s.Create(ctx, a, created(a)))
	require.NoError(t, s.Create(ctx, b, created(b)))

	next, entry := activate(b, time.Hour)
	require.NoError(t, s.Put(ctx, next, 1, entry))

	all, err := s.ListBySubject(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)

	pending, err := s.ListBySubject(ctx, "U1", accessgrants.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)

	active, err := s.ListByGrantee(ctx, "D2", accessgrants.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)

	stale, err := s.ListByGrantee(ctx, "D2", accessgrants.StatusPending)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestStore_OpenKeyUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := newGrant("g1", "U1", "D1", "EEG", "MRI")
	require.NoError(t, s.Create(ctx, g, created(g)))

	dup := newGrant("g2", "U1", "D1", "mri", "eeg")
	assert.ErrorIs(t, s.Create(ctx, dup, created(dup)), accessgrants.ErrDuplicateRequest)

	denied := g
	denied.Status = accessgrants.StatusDenied
	denied.Revision = 2
	require.NoError(t, s.Put(ctx, denied, 1, accessgrants.AuditEntry{
		ID: "g1-2", GrantID: "g1", FromStatus: accessgrants.StatusPending, ToStatus: accessgrants.StatusDenied, ActorID: "U1", Timestamp: t0,
	}))

	require.NoError(t, s.Create(ctx, dup, created(dup)))
}

func TestStore_ListDueForExpiry(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	short := newGrant("short", "U1", "D1", "EEG")
	long := newGrant("long", "U1", "D1", "MRI")
	for _, g := range []accessgrants.Grant{short, long} {
		require.NoError(t, s.Create(ctx, g, created(g)))
	}
	n1, e1 := activate(short, time.Hour)
	n2, e2 := activate(long, 24*time.Hour)
	require.NoError(t, s.Put(ctx, n1, 1, e1))
	require.NoError(t, s.Put(ctx, n2, 1, e2))

	due, err := s.ListDueForExpiry(ctx, t0.Add(time.Hour-time.Nanosecond))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.ListDueForExpiry(ctx, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "short", due[0].ID)

	// Expirado ya no figura.
	expired := n1
	expired.Status = accessgrants.StatusExpired
	expired.Revision = 3
	require.NoError(t, s.Put(ctx, expired, 2, accessgrants.AuditEntry{
		ID: "short-3", GrantID: "short", FromStatus: accessgrants.StatusActive, ToStatus: accessgrants.StatusExpired, ActorID: accessgrants.SystemActorID, Timestamp: t0,
	}))
	due, err = s.ListDueForExpiry(ctx, t0.Add(48*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "long", due[0].ID)
}

func TestStore_ConcurrentPut(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	g := newGrant("g1", "U1", "D1", "EEG")
	require.NoError(t, s.Create(ctx, g, created(g)))
	next, entry := activate(g, time.Hour)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Put(ctx, next, 1, entry) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	trail, _ := s.ListByGrant(ctx, "g1")
	assert.Len(t, trail, 2)
}

func TestStore_WithService(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	clk := clock.Fake(t0)
	svc := accessgrants.NewService(s, accessgrants.Options{Clock: clk})

	g, err := svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D1", Scope: []string{"EEG"}})
	require.NoError(t, err)
	_, err = svc.Decide(ctx, accessgrants.DecideInput{GrantID: g.ID, ActorID: "U1", Decision: accessgrants.DecisionGrant, TTL: time.Hour})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	g, changed, err := svc.ReconcileExpiry(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, accessgrants.StatusExpired, g.Status)
	assert.NoError(t, svc.VerifyAudit(ctx, g.ID))
}

func TestStore_WithService_RejectsUnreadableText(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := accessgrants.NewService(s, accessgrants.Options{Clock: clock.Fake(t0)})

	_, err := svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D1", Scope: []string{"EEG\xff"}})
	require.ErrorIs(t, err, accessgrants.ErrValidation)

	_, err = svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D1", Scope: []string{"EEG"}, Purpose: "seguimiento \xfe"})
	require.ErrorIs(t, err, accessgrants.ErrValidation)

	// Los listados del paciente siguen legibles.
	g, err := svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D2", Scope: []string{"EEG"}})
	require.NoError(t, err)

	items, err := s.ListBySubject(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, g.ID, items[0].ID)
}
