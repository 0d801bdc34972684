package jobs

import (
	"context"
	"sync/atomic"
	"time"

	"consent-ledger/internal/domain/accessgrants"
	"consent-ledger/internal/platform/clock"
	"consent-ledger/internal/platform/logger"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepInterval    = time.Minute
	DefaultSweepParallelism = 4
)

// DueLister es la parte del store que usa el sweeper.
type DueLister interface {
	ListDueForExpiry(ctx context.Context, now time.Time) ([]accessgrants.Grant, error)
}

// Reconciler persiste la expiración de un grant (lo implementa accessgrants.Service).
type Reconciler interface {
	ReconcileExpiry(ctx context.Context, grantID string) (accessgrants.Grant, bool, error)
}

type SweeperOptions struct {
	Interval    time.Duration
	Parallelism int
	Clock       clock.Clock
	Logger      logger.Logger
}

// ExpirySweeper persiste periódicamente las expiraciones que nadie leyó.
// Cada iteración es un conjunto de ReconcileExpiry independientes, así que
// puede solaparse consigo misma o saltearse sin romper nada.
type ExpirySweeper struct {
	store       DueLister
	engine      Reconciler
	clock       clock.Clock
	log         logger.Logger
	interval    time.Duration
	parallelism int
}

type SweepResult struct {
	Scanned int
	Expired int
	Failed  int
}

func NewExpirySweeper(store DueLister, engine Reconciler, opts SweeperOptions) *ExpirySweeper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSweepInterval
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultSweepParallelism
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	return &ExpirySweeper{
		store:       store,
		engine:      engine,
		clock:       opts.Clock,
		log:         opts.Logger.With(map[string]any{"component": "expiry_sweeper"}),
		interval:    opts.Interval,
		parallelism: opts.Parallelism,
	}
}

// Run barre una vez al arrancar y luego en cada tick, hasta que ctx se cancele.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.log.Info("expiry sweeper started", map[string]any{
		"interval":    s.interval.String(),
		"parallelism": s.parallelism,
	})

	s.runOnce(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("expiry sweeper stopped", nil)
			return nil
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ExpirySweeper) runOnce(ctx context.Context) {
	res, err := s.SweepOnce(ctx)
	if err != nil {
		s.log.Warn("expiry sweep failed", map[string]any{"err": err})
		return
	}
	if res.Scanned > 0 {
		s.log.Info("expiry sweep completed", map[string]any{
			"scanned": res.Scanned,
			"expired": res.Expired,
			"failed":  res.Failed,
		})
	}
}

// SweepOnce reconcilia todos los grants vencidos. Un fallo en un grant se
// registra y no corta el barrido. Si ctx se cancela deja de lanzar
// reconciliaciones nuevas; las que ya están en curso terminan.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	due, err := s.store.ListDueForExpiry(ctx, s.clock.Now())
	if err != nil {
		return SweepResult{}, err
	}

	var (
		expired atomic.Int64
		failed  atomic.Int64
		g       errgroup.Group
	)
	g.SetLimit(s.parallelism)

	// Una escritura CAS empezada no se interrumpe.
	work := context.WithoutCancel(ctx)

	scanned := 0
	for _, grant := range due {
		if ctx.Err() != nil {
			break
		}
		scanned++

		id := grant.ID
		g.Go(func() error {
			_, changed, err := s.engine.ReconcileExpiry(work, id)
			if err != nil {
				failed.Add(1)
				s.log.Warn("grant expiry not persisted", map[string]any{"grant_id": id, "err": err})
				return nil
			}
			if changed {
				expired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return SweepResult{
		Scanned: scanned,
		Expired: int(expired.Load()),
		Failed:  int(failed.Load()),
	}, nil
}
