// Package leveldb guarda grants y auditoría en un LevelDB embebido, para
// despliegues de un solo nodo sin Postgres.
//
// Layout de claves (separador \x00):
//
//	g <id>                               -> grantRecord (CBOR)
//	s <subject> <status> <id>            -> ""
//	e <grantee> <status> <id>            -> ""
//	o <subject> <grantee> <scopeKey>     -> id (sólo pending/active)
//	x <expiresAt unix-nano> <id>         -> "" (sólo active)
//	a <id> <seq>                         -> auditRecord (CBOR)
//
// Cada operación escribe grant, índices y auditoría en un único Batch.
package leveldb

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"consent-ledger/internal/domain/accessgrants"
	"consent-ledger/internal/platform/codec"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	sep     = "\x00"
	stripes = 64
)

type Store struct {
	db *leveldb.DB

	// createMu serializa Create para que el chequeo de la clave "o" y su
	// escritura sean atómicos. Las escrituras de un grant existente sólo
	// toman el lock de su franja.
	createMu sync.Mutex
	locks    [stripes]sync.Mutex
}

// Open abre (o crea) la base en path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb open %s: %w", path, err)
	}
	return New(db), nil
}

// New envuelve una base ya abierta (tests usan storage.NewMemStorage).
func New(db *leveldb.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type grantRecord struct {
	ID          string     `cbor:"id"`
	SubjectID   string     `cbor:"subject"`
	GranteeID   string     `cbor:"grantee"`
	Scope       []string   `cbor:"scope"`
	Purpose     string     `cbor:"purpose"`
	Status      string     `cbor:"status"`
	RequestedAt time.Time  `cbor:"requested_at"`
	DecidedAt   *time.Time `cbor:"decided_at"`
	ExpiresAt   *time.Time `cbor:"expires_at"`
	Revision    int64      `cbor:"revision"`
}

type auditRecord struct {
	ID         string    `cbor:"id"`
	GrantID    string    `cbor:"grant_id"`
	Seq        int64     `cbor:"seq"`
	FromStatus string    `cbor:"from"`
	ToStatus   string    `cbor:"to"`
	ActorID    string    `cbor:"actor"`
	Timestamp  time.Time `cbor:"ts"`
	Reason     string    `cbor:"reason"`
	PrevHash   string    `cbor:"prev_hash"`
	Hash       string    `cbor:"hash"`
}

func (s *Store) Get(ctx context.Context, id string) (accessgrants.Grant, error) {
	if strings.TrimSpace(id) == "" {
		return accessgrants.Grant{}, accessgrants.ErrNotFound
	}
	return s.load(id)
}

func (s *Store) Create(ctx context.Context, g accessgrants.Grant, entry accessgrants.AuditEntry) error {
	if strings.TrimSpace(g.ID) == "" {
		return errors.New("grant id required")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()
	mu := s.lockFor(g.ID)
	mu.Lock()
	defer mu.Unlock()

	if ok, err := s.db.Has(grantKey(g.ID), nil); err != nil {
		return err
	} else if ok {
		return errors.New("grant already exists")
	}
	if isOpen(g.Status) {
		ok, err := s.db.Has(openKey(g), nil)
		if err != nil {
			return err
		}
		if ok {
			return accessgrants.ErrDuplicateRequest
		}
	}

	sealed, err := accessgrants.SealEntry(nil, entry)
	if err != nil {
		return err
	}

	b := new(leveldb.Batch)
	if err := putGrant(b, g); err != nil {
		return err
	}
	if err := putAudit(b, sealed); err != nil {
		return err
	}
	return s.db.Write(b, &opt.WriteOptions{Sync: true})
}

func (s *Store) Put(ctx context.Context, g accessgrants.Grant, expected int64, entry accessgrants.AuditEntry) error {
	mu := s.lockFor(g.ID)
	mu.Lock()
	defer mu.Unlock()

	cur, err := s.load(g.ID)
	if err != nil {
		return err
	}
	if cur.Revision != expected {
		return accessgrants.ErrStaleRevision
	}

	last, err := s.lastAudit(g.ID)
	if err != nil {
		return err
	}
	sealed, err := accessgrants.SealEntry(last, entry)
	if err != nil {
		return err
	}

	b := new(leveldb.Batch)
	deleteIndexes(b, cur)
	if err := putGrant(b, g); err != nil {
		return err
	}
	if err := putAudit(b, sealed); err != nil {
		return err
	}
	return s.db.Write(b, &opt.WriteOptions{Sync: true})
}

func (s *Store) ListBySubject(ctx context.Context, subjectID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return s.listIndex("s", subjectID, statuses)
}

func (s *Store) ListByGrantee(ctx context.Context, granteeID string, statuses ...accessgrants.Status) ([]accessgrants.Grant, error) {
	return s.listIndex("e", granteeID, statuses)
}

func (s *Store) ListDueForExpiry(ctx context.Context, now time.Time) ([]accessgrants.Grant, error) {
	// x/<nanos>/<id> ordena por vencimiento; se corta en el primero > now.
	limit := key("x", nanos(now.Add(time.Nanosecond)))
	it := s.db.NewIterator(&util.Range{Start: []byte("x" + sep), Limit: limit}, nil)
	defer it.Release()

	out := make([]accessgrants.Grant, 0)
	for it.Next() {
		id := lastPart(it.Key())
		g, err := s.load(id)
		if errors.Is(err, accessgrants.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if accessgrants.Expired(g, now) {
			out = append(out, g)
		}
	}
	return out, it.Error()
}

func (s *Store) Append(ctx context.Context, e accessgrants.AuditEntry) (accessgrants.AuditEntry, error) {
	if strings.TrimSpace(e.GrantID) == "" {
		return accessgrants.AuditEntry{}, errors.New("audit entry grant id required")
	}

	mu := s.lockFor(e.GrantID)
	mu.Lock()
	defer mu.Unlock()

	last, err := s.lastAudit(e.GrantID)
	if err != nil {
		return accessgrants.AuditEntry{}, err
	}
	sealed, err := accessgrants.SealEntry(last, e)
	if err != nil {
		return accessgrants.AuditEntry{}, err
	}

	b := new(leveldb.Batch)
	if err := putAudit(b, sealed); err != nil {
		return accessgrants.AuditEntry{}, err
	}
	if err := s.db.Write(b, &opt.WriteOptions{Sync: true}); err != nil {
		return accessgrants.AuditEntry{}, err
	}
	return sealed, nil
}

func (s *Store) ListByGrant(ctx context.Context, grantID string) ([]accessgrants.AuditEntry, error) {
	it := s.db.NewIterator(util.BytesPrefix(key("a", grantID, "")), nil)
	defer it.Release()

	out := make([]accessgrants.AuditEntry, 0)
	for it.Next() {
		e, err := decodeAudit(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, it.Error()
}

func (s *Store) load(id string) (accessgrants.Grant, error) {
	raw, err := s.db.Get(grantKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return accessgrants.Grant{}, accessgrants.ErrNotFound
	}
	if err != nil {
		return accessgrants.Grant{}, err
	}

	var rec grantRecord
	if err := codec.Unmarshal(raw, &rec); err != nil {
		return accessgrants.Grant{}, fmt.Errorf("decode grant %s: %w", id, err)
	}
	return fromRecord(rec), nil
}

func (s *Store) lastAudit(grantID string) (*accessgrants.AuditEntry, error) {
	it := s.db.NewIterator(util.BytesPrefix(key("a", grantID, "")), nil)
	defer it.Release()

	if !it.Last() {
		return nil, it.Error()
	}
	e, err := decodeAudit(it.Value())
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) listIndex(prefix, owner string, statuses []accessgrants.Status) ([]accessgrants.Grant, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, nil
	}
	if len(statuses) == 0 {
		statuses = accessgrants.AllStatuses
	}

	out := make([]accessgrants.Grant, 0)
	for _, st := range statuses {
		it := s.db.NewIterator(util.BytesPrefix(key(prefix, owner, string(st), "")), nil)
		for it.Next() {
			g, err := s.load(lastPart(it.Key()))
			if errors.Is(err, accessgrants.ErrNotFound) {
				continue
			}
			if err != nil {
				it.Release()
				return nil, err
			}
			out = append(out, g)
		}
		err := it.Error()
		it.Release()
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.locks[h.Sum32()%stripes]
}

func putGrant(b *leveldb.Batch, g accessgrants.Grant) error {
	raw, err := codec.Marshal(toRecord(g))
	if err != nil {
		return fmt.Errorf("encode grant %s: %w", g.ID, err)
	}
	b.Put(grantKey(g.ID), raw)
	b.Put(key("s", g.SubjectID, string(g.Status), g.ID), nil)
	b.Put(key("e", g.GranteeID, string(g.Status), g.ID), nil)
	if isOpen(g.Status) {
		b.Put(openKey(g), []byte(g.ID))
	}
	if g.Status == accessgrants.StatusActive && g.ExpiresAt != nil {
		b.Put(key("x", nanos(*g.ExpiresAt), g.ID), nil)
	}
	return nil
}

func deleteIndexes(b *leveldb.Batch, g accessgrants.Grant) {
	b.Delete(key("s", g.SubjectID, string(g.Status), g.ID))
	b.Delete(key("e", g.GranteeID, string(g.Status), g.ID))
	if isOpen(g.Status) {
		b.Delete(openKey(g))
	}
	if g.ExpiresAt != nil {
		b.Delete(key("x", nanos(*g.ExpiresAt), g.ID))
	}
}

func putAudit(b *leveldb.Batch, e accessgrants.AuditEntry) error {
	raw, err := codec.Marshal(auditRecord{
		ID:         e.ID,
		GrantID:    e.GrantID,
		Seq:        e.Seq,
		FromStatus: string(e.FromStatus),
		ToStatus:   string(e.ToStatus),
		ActorID:    e.ActorID,
		Timestamp:  e.Timestamp.UTC(),
		Reason:     e.Reason,
		PrevHash:   e.PrevHash,
		Hash:       e.Hash,
	})
	if err != nil {
		return fmt.Errorf("encode audit %s: %w", e.ID, err)
	}
	b.Put(key("a", e.GrantID, fmt.Sprintf("%020d", e.Seq)), raw)
	return nil
}

func decodeAudit(raw []byte) (accessgrants.AuditEntry, error) {
	var rec auditRecord
	if err := codec.Unmarshal(raw, &rec); err != nil {
		return accessgrants.AuditEntry{}, fmt.Errorf("decode audit: %w", err)
	}
	return accessgrants.AuditEntry{
		ID:         rec.ID,
		GrantID:    rec.GrantID,
		Seq:        rec.Seq,
		FromStatus: accessgrants.Status(rec.FromStatus),
		ToStatus:   accessgrants.Status(rec.ToStatus),
		ActorID:    rec.ActorID,
		Timestamp:  rec.Timestamp.UTC(),
		Reason:     rec.Reason,
		PrevHash:   rec.PrevHash,
		Hash:       rec.Hash,
	}, nil
}

func toRecord(g accessgrants.Grant) grantRecord {
	return grantRecord{
		ID:          g.ID,
		SubjectID:   g.SubjectID,
		GranteeID:   g.GranteeID,
		Scope:       g.Scope,
		Purpose:     g.Purpose,
		Status:      string(g.Status),
		RequestedAt: g.RequestedAt.UTC(),
		DecidedAt:   utcPtr(g.DecidedAt),
		ExpiresAt:   utcPtr(g.ExpiresAt),
		Revision:    g.Revision,
	}
}

func fromRecord(rec grantRecord) accessgrants.Grant {
	return accessgrants.Grant{
		ID:          rec.ID,
		SubjectID:   rec.SubjectID,
		GranteeID:   rec.GranteeID,
		Scope:       rec.Scope,
		Purpose:     rec.Purpose,
		Status:      accessgrants.Status(rec.Status),
		RequestedAt: rec.RequestedAt.UTC(),
		DecidedAt:   utcPtr(rec.DecidedAt),
		ExpiresAt:   utcPtr(rec.ExpiresAt),
		Revision:    rec.Revision,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isOpen(s accessgrants.Status) bool {
	return s == accessgrants.StatusPending || s == accessgrants.StatusActive
}

func key(parts ...string) []byte {
	return []byte(strings.Join(parts, sep))
}

func grantKey(id string) []byte { return key("g", id) }

func openKey(g accessgrants.Grant) []byte {
	return key("o", g.SubjectID, g.GranteeID, g.ScopeKey())
}

// nanos con ancho fijo para que el orden lexicográfico sea el temporal.
func nanos(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

func lastPart(k []byte) string {
	s := string(k)
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[i+1:]
	}
	return s
}
