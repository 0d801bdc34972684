package accessgrants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"consent-ledger/internal/platform/clock"
	"consent-ledger/internal/platform/logger"

	"github.com/google/uuid"
)

const DefaultMaxAttempts = 3

type Options struct {
	Clock  clock.Clock
	Logger logger.Logger

	// MaxAttempts acota el reintento de CAS cuando el llamador no presenta revision.
	MaxAttempts int

	// MaxTTL > 0 rechaza grants más largos.
	MaxTTL time.Duration
}

// Service es el motor del ciclo de vida: request, decide, revoke, expire.
// No serializa llamadores: la única exclusión mutua es el CAS del store.
type Service struct {
	repo        Repository
	clock       clock.Clock
	log         logger.Logger
	maxAttempts int
	maxTTL      time.Duration
	newID       func() string
}

func NewService(repo Repository, opts Options) *Service {
	c := opts.Clock
	if c == nil {
		c = clock.Real()
	}
	l := opts.Logger
	if l == nil {
		l = logger.Discard()
	}
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	return &Service{
		repo:        repo,
		clock:       c,
		log:         l.With(map[string]any{"component": "accessgrants"}),
		maxAttempts: attempts,
		maxTTL:      opts.MaxTTL,
		newID:       uuid.NewString,
	}
}

// now trunca a microsegundos: es la precisión de timestamptz y el hash de
// auditoría tiene que sobrevivir el round-trip por cualquier store.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

type RequestInput struct {
	SubjectID string
	GranteeID string
	Scope     []string
	Purpose   string
}

func (s *Service) RequestAccess(ctx context.Context, in RequestInput) (Grant, error) {
	subjectID := strings.TrimSpace(in.SubjectID)
	granteeID := strings.TrimSpace(in.GranteeID)

	if subjectID == "" || granteeID == "" {
		return Grant{}, fmt.Errorf("%w: subject and grantee are required", ErrValidation)
	}
	if err := validText("subject id", subjectID); err != nil {
		return Grant{}, err
	}
	if err := validText("grantee id", granteeID); err != nil {
		return Grant{}, err
	}
	if err := validText("purpose", in.Purpose); err != nil {
		return Grant{}, err
	}
	if subjectID == granteeID {
		return Grant{}, fmt.Errorf("%w: grantee cannot request access to own data", ErrValidation)
	}

	scope, err := normalizeScope(in.Scope)
	if err != nil {
		return Grant{}, err
	}
	key := scopeKey(scope)

	now := s.now()

	open, err := s.repo.ListBySubject(ctx, subjectID, StatusPending, StatusActive)
	if err != nil {
		return Grant{}, err
	}
	for _, g := range open {
		if g.GranteeID != granteeID || g.ScopeKey() != key {
			continue
		}
		// Un active vencido ya es terminal: se persiste la expiración y deja de bloquear.
		if Expired(g, now) {
			if _, _, err := s.ReconcileExpiry(ctx, g.ID); err != nil {
				return Grant{}, err
			}
			continue
		}
		return Grant{}, ErrDuplicateRequest
	}

	g := Grant{
		ID:          s.newID(),
		SubjectID:   subjectID,
		GranteeID:   granteeID,
		Scope:       scope,
		Purpose:     strings.TrimSpace(in.Purpose),
		Status:      StatusPending,
		RequestedAt: now,
		Revision:    1,
	}
	entry := AuditEntry{
		ID:        s.newID(),
		GrantID:   g.ID,
		ToStatus:  StatusPending,
		ActorID:   granteeID,
		Timestamp: now,
	}

	if err := s.repo.Create(ctx, g, entry); err != nil {
		return Grant{}, err
	}

	s.logTransition(entry)
	return g, nil
}

type DecideInput struct {
	GrantID  string
	ActorID  string
	Decision Decision
	TTL      time.Duration // obligatorio para DecisionGrant
	Reason   string        // obligatorio para DecisionDeny

	// Revision > 0 exige que coincida con la guardada.
	Revision int64
}

func (s *Service) Decide(ctx context.Context, in DecideInput) (Grant, error) {
	reason := strings.TrimSpace(in.Reason)
	if err := validText("reason", reason); err != nil {
		return Grant{}, err
	}

	switch in.Decision {
	case DecisionGrant:
		if in.TTL <= 0 {
			return Grant{}, fmt.Errorf("%w: ttl must be positive", ErrValidation)
		}
		if s.maxTTL > 0 && in.TTL > s.maxTTL {
			return Grant{}, fmt.Errorf("%w: ttl exceeds maximum of %s", ErrValidation, s.maxTTL)
		}
	case DecisionDeny:
		if reason == "" {
			return Grant{}, fmt.Errorf("%w: reason is required to deny", ErrValidation)
		}
	default:
		return Grant{}, fmt.Errorf("%w: unknown decision %q", ErrValidation, in.Decision)
	}

	return s.apply(ctx, in.GrantID, in.ActorID, in.Revision, func(g Grant, now time.Time) (Grant, AuditEntry, error) {
		if g.Status != StatusPending {
			return Grant{}, AuditEntry{}, fmt.Errorf("%w: cannot decide a %s grant", ErrInvalidTransition, g.Status)
		}

		next := g
		decided := now
		next.DecidedAt = &decided

		if in.Decision == DecisionGrant {
			exp := now.Add(in.TTL)
			next.Status = StatusActive
			next.ExpiresAt = &exp
		} else {
			next.Status = StatusDenied
			next.ExpiresAt = nil
		}

		return next, AuditEntry{Reason: reason}, nil
	})
}

type RevokeInput struct {
	GrantID  string
	ActorID  string
	Reason   string
	Revision int64
}

func (s *Service) Revoke(ctx context.Context, in RevokeInput) (Grant, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return Grant{}, fmt.Errorf("%w: reason is required to revoke", ErrValidation)
	}
	if err := validText("reason", reason); err != nil {
		return Grant{}, err
	}

	return s.apply(ctx, in.GrantID, in.ActorID, in.Revision, func(g Grant, now time.Time) (Grant, AuditEntry, error) {
		if g.Status != StatusActive {
			return Grant{}, AuditEntry{}, fmt.Errorf("%w: cannot revoke a %s grant", ErrInvalidTransition, g.Status)
		}
		next := g
		next.Status = StatusRevoked
		// expiresAt sólo vive en active/expired.
		next.ExpiresAt = nil
		return next, AuditEntry{Reason: reason}, nil
	})
}

// ReconcileExpiry persiste la expiración si corresponde. Idempotente: sobre
// un grant ya expired (o todavía vigente) no hace nada y no es error.
// changed indica si esta llamada escribió la transición.
func (s *Service) ReconcileExpiry(ctx context.Context, grantID string) (g Grant, changed bool, err error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, false, fmt.Errorf("%w: grant id required", ErrValidation)
	}

	for attempt := 1; ; attempt++ {
		cur, err := s.repo.Get(ctx, grantID)
		if err != nil {
			return Grant{}, false, err
		}

		now := s.now()
		if !Expired(cur, now) {
			return cur, false, nil
		}

		next, entry := s.expire(cur, now)
		err = s.repo.Put(ctx, next, cur.Revision, entry)
		if err == nil {
			s.logTransition(entry)
			return next, true, nil
		}
		if !errors.Is(err, ErrStaleRevision) {
			return Grant{}, false, err
		}
		if attempt >= s.maxAttempts {
			return Grant{}, false, fmt.Errorf("%w: reconcile %s after %d attempts", ErrConflict, grantID, attempt)
		}
	}
}

// Get lee un grant aplicando la expiración de forma perezosa. Si persistir
// falla, igual devuelve la vista correcta en el tiempo.
func (s *Service) Get(ctx context.Context, grantID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	if grantID == "" {
		return Grant{}, fmt.Errorf("%w: grant id required", ErrValidation)
	}

	g, err := s.repo.Get(ctx, grantID)
	if err != nil {
		return Grant{}, err
	}

	now := s.now()
	if !Expired(g, now) {
		return g, nil
	}

	reconciled, _, err := s.ReconcileExpiry(ctx, grantID)
	if err != nil {
		s.log.Warn("lazy expiry not persisted", map[string]any{"grant_id": grantID, "err": err})
		return g.Effective(now), nil
	}
	return reconciled, nil
}

// GetForParty es Get restringido al paciente y al grantee. Para cualquier
// otro actor responde ErrNotFound antes de escribir nada, así no se
// distingue un grant ajeno de uno inexistente.
func (s *Service) GetForParty(ctx context.Context, grantID, actorID string) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	actorID = strings.TrimSpace(actorID)
	if grantID == "" || actorID == "" {
		return Grant{}, fmt.Errorf("%w: grant id and actor are required", ErrValidation)
	}

	g, err := s.repo.Get(ctx, grantID)
	if err != nil {
		return Grant{}, err
	}
	if g.SubjectID != actorID && g.GranteeID != actorID {
		return Grant{}, ErrNotFound
	}
	return s.Get(ctx, grantID)
}

// AuditTrail devuelve las transiciones del grant en orden.
func (s *Service) AuditTrail(ctx context.Context, grantID string) ([]AuditEntry, error) {
	if _, err := s.Get(ctx, grantID); err != nil {
		return nil, err
	}
	return s.repo.ListByGrant(ctx, grantID)
}

// VerifyAudit recalcula la cadena de hashes y chequea que el último
// ToStatus coincida con el status guardado.
func (s *Service) VerifyAudit(ctx context.Context, grantID string) error {
	g, err := s.repo.Get(ctx, strings.TrimSpace(grantID))
	if err != nil {
		return err
	}
	entries, err := s.repo.ListByGrant(ctx, g.ID)
	if err != nil {
		return err
	}
	if err := VerifyChain(entries); err != nil {
		return err
	}
	if len(entries) == 0 || entries[len(entries)-1].ToStatus != g.Status {
		return fmt.Errorf("audit trail of %s does not end in %s", g.ID, g.Status)
	}
	return nil
}

type transitionFunc func(g Grant, now time.Time) (Grant, AuditEntry, error)

// apply es el camino común de decide/revoke: autorización, revision
// presentada, expiración perezosa, transición y CAS con reintento acotado.
func (s *Service) apply(ctx context.Context, grantID, actorID string, presented int64, fn transitionFunc) (Grant, error) {
	grantID = strings.TrimSpace(grantID)
	actorID = strings.TrimSpace(actorID)
	if grantID == "" || actorID == "" {
		return Grant{}, fmt.Errorf("%w: grant id and actor are required", ErrValidation)
	}
	if err := validText("grant id", grantID); err != nil {
		return Grant{}, err
	}
	if err := validText("actor id", actorID); err != nil {
		return Grant{}, err
	}
	if presented < 0 {
		return Grant{}, fmt.Errorf("%w: revision must not be negative", ErrValidation)
	}

	for attempt := 1; ; attempt++ {
		cur, err := s.repo.Get(ctx, grantID)
		if err != nil {
			return Grant{}, err
		}

		// Sólo el dueño de los datos decide y revoca.
		if cur.SubjectID != actorID {
			return Grant{}, ErrForbidden
		}
		if presented > 0 && cur.Revision != presented {
			return Grant{}, fmt.Errorf("%w: presented %d, current %d", ErrStaleRevision, presented, cur.Revision)
		}

		now := s.now()

		if Expired(cur, now) {
			if _, _, err := s.ReconcileExpiry(ctx, grantID); err != nil {
				s.log.Warn("expiry on write path not persisted", map[string]any{"grant_id": grantID, "err": err})
			}
			return Grant{}, fmt.Errorf("%w: grant expired", ErrInvalidTransition)
		}

		next, entry, err := fn(cur, now)
		if err != nil {
			return Grant{}, err
		}

		next.Revision = cur.Revision + 1
		entry.ID = s.newID()
		entry.GrantID = cur.ID
		entry.FromStatus = cur.Status
		entry.ToStatus = next.Status
		entry.ActorID = actorID
		entry.Timestamp = now

		err = s.repo.Put(ctx, next, cur.Revision, entry)
		if err == nil {
			s.logTransition(entry)
			return next, nil
		}
		if !errors.Is(err, ErrStaleRevision) {
			return Grant{}, err
		}
		// La revision que vio el llamador ya no existe: que relea.
		if presented > 0 {
			return Grant{}, err
		}
		if attempt >= s.maxAttempts {
			return Grant{}, fmt.Errorf("%w: %s after %d attempts", ErrConflict, grantID, attempt)
		}
	}
}

func (s *Service) expire(g Grant, now time.Time) (Grant, AuditEntry) {
	next := g
	next.Status = StatusExpired
	next.Revision = g.Revision + 1

	return next, AuditEntry{
		ID:         s.newID(),
		GrantID:    g.ID,
		FromStatus: StatusActive,
		ToStatus:   StatusExpired,
		ActorID:    SystemActorID,
		Timestamp:  now,
	}
}

func (s *Service) logTransition(e AuditEntry) {
	s.log.Info("grant transition", map[string]any{
		"grant_id": e.GrantID,
		"from":     string(e.FromStatus),
		"to":       string(e.ToStatus),
		"actor_id": e.ActorID,
	})
}
