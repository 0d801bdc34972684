package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"consent-ledger/internal/domain/accessgrants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func pendingGrant(id string) accessgrants.Grant {
	return accessgrants.Grant{
		ID:          id,
		SubjectID:   "U1",
		GranteeID:   "D1",
		Scope:       []string{"EEG"},
		Status:      accessgrants.StatusPending,
		RequestedAt: t0,
		Revision:    1,
	}
}

func entryFor(g accessgrants.Grant, from accessgrants.Status) accessgrants.AuditEntry {
	return accessgrants.AuditEntry{
		ID:         g.ID + "-" + string(g.Status),
		GrantID:    g.ID,
		FromStatus: from,
		ToStatus:   g.Status,
		ActorID:    "U1",
		Timestamp:  t0,
	}
}

func TestGrantRepo_CreateAndCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	g := pendingGrant("g1")
	require.NoError(t, repo.Create(ctx, g, entryFor(g, "")))

	got, err := repo.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, g, got)

	next := g
	next.Status = accessgrants.StatusActive
	next.Revision = 2
	exp := t0.Add(time.Hour)
	next.ExpiresAt = &exp

	require.NoError(t, repo.Put(ctx, next, 1, entryFor(next, accessgrants.StatusPending)))

	// Mismo expected otra vez: la revision ya avanzó.
	err = repo.Put(ctx, next, 1, entryFor(next, accessgrants.StatusPending))
	assert.ErrorIs(t, err, accessgrants.ErrStaleRevision)

	trail, err := repo.ListByGrant(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, int64(2), trail[1].Seq)
	assert.Equal(t, trail[0].Hash, trail[1].PrevHash)
	assert.NoError(t, accessgrants.VerifyChain(trail))

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, accessgrants.ErrNotFound)
	assert.ErrorIs(t, repo.Put(ctx, pendingGrant("missing"), 1, accessgrants.AuditEntry{}), accessgrants.ErrNotFound)
}

func TestGrantRepo_OpenIndex(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	g := pendingGrant("g1")
	require.NoError(t, repo.Create(ctx, g, entryFor(g, "")))

	dup := pendingGrant("g2")
	dup.Scope = []string{"eeg"}
	assert.ErrorIs(t, repo.Create(ctx, dup, entryFor(dup, "")), accessgrants.ErrDuplicateRequest)

	// Al pasar a terminal libera la clave.
	denied := g
	denied.Status = accessgrants.StatusDenied
	denied.Revision = 2
	require.NoError(t, repo.Put(ctx, denied, 1, entryFor(denied, accessgrants.StatusPending)))

	require.NoError(t, repo.Create(ctx, dup, entryFor(dup, "")))
}

func TestGrantRepo_Lists(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	a := pendingGrant("a")
	b := pendingGrant("b")
	b.GranteeID = "D2"
	b.RequestedAt = t0.Add(time.Minute)
	b.Status = accessgrants.StatusActive
	exp := t0.Add(time.Hour)
	b.ExpiresAt = &exp
	c := pendingGrant("c")
	c.SubjectID = "U2"

	for _, g := range []accessgrants.Grant{b, a, c} {
		require.NoError(t, repo.Create(ctx, g, entryFor(g, "")))
	}

	bySubject, err := repo.ListBySubject(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, bySubject, 2)
	assert.Equal(t, "a", bySubject[0].ID)
	assert.Equal(t, "b", bySubject[1].ID)

	active, err := repo.ListBySubject(ctx, "U1", accessgrants.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "b", active[0].ID)

	byGrantee, err := repo.ListByGrantee(ctx, "D1", accessgrants.StatusPending)
	require.NoError(t, err)
	assert.Len(t, byGrantee, 2)

	due, err := repo.ListDueForExpiry(ctx, exp.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = repo.ListDueForExpiry(ctx, exp)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "b", due[0].ID)
}

func TestGrantRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	g := pendingGrant("g1")
	require.NoError(t, repo.Create(ctx, g, entryFor(g, "")))

	got, _ := repo.Get(ctx, "g1")
	got.Scope[0] = "tampered"

	again, _ := repo.Get(ctx, "g1")
	assert.Equal(t, "EEG", again.Scope[0])
}

func TestGrantRepo_AppendChains(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	first, err := repo.Append(ctx, accessgrants.AuditEntry{ID: "e1", GrantID: "g1", ToStatus: accessgrants.StatusPending, Timestamp: t0})
	require.NoError(t, err)
	second, err := repo.Append(ctx, accessgrants.AuditEntry{ID: "e2", GrantID: "g1", FromStatus: accessgrants.StatusPending, ToStatus: accessgrants.StatusDenied, Timestamp: t0})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, first.Hash, second.PrevHash)

	_, err = repo.Append(ctx, accessgrants.AuditEntry{ID: "e3"})
	assert.Error(t, err)
}

func TestGrantRepo_ConcurrentCAS(t *testing.T) {
	ctx := context.Background()
	repo := NewGrantsRepo()

	g := pendingGrant("g1")
	require.NoError(t, repo.Create(ctx, g, entryFor(g, "")))

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := g
			next.Status = accessgrants.StatusDenied
			next.Revision = 2
			if err := repo.Put(ctx, next, 1, entryFor(next, accessgrants.StatusPending)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	trail, _ := repo.ListByGrant(ctx, "g1")
	assert.Len(t, trail, 2)
}

func TestGrantRepo_WithService(t *testing.T) {
	ctx := context.Background()
	svc := accessgrants.NewService(NewGrantsRepo(), accessgrants.Options{})

	g, err := svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D1", Scope: []string{"EEG"}})
	require.NoError(t, err)

	_, err = svc.RequestAccess(ctx, accessgrants.RequestInput{SubjectID: "U1", GranteeID: "D1", Scope: []string{"EEG"}})
	assert.ErrorIs(t, err, accessgrants.ErrDuplicateRequest)

	g, err = svc.Decide(ctx, accessgrants.DecideInput{GrantID: g.ID, ActorID: "U1", Decision: accessgrants.DecisionGrant, TTL: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, accessgrants.StatusActive, g.Status)
	assert.NoError(t, svc.VerifyAudit(ctx, g.ID))
}
