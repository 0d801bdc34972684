package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"consent-ledger/internal/adapters/auth/jwtverifier"
	"consent-ledger/internal/adapters/auth/remote"
	"consent-ledger/internal/adapters/storage/leveldb"
	mem "consent-ledger/internal/adapters/storage/memory"
	pg "consent-ledger/internal/adapters/storage/postgres"
	"consent-ledger/internal/config"
	"consent-ledger/internal/domain/accessgrants"
	"consent-ledger/internal/jobs"
	"consent-ledger/internal/platform/logger"
	"consent-ledger/internal/ports/auth"
	"consent-ledger/internal/router"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "consent-ledger: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: logger.ParseFormat(cfg.Log.Format),
		App:    "consent-ledger",
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openStore(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeRepo()

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	if verifier == nil {
		log.Warn("dev auth enabled: X-Debug-User-ID is trusted", nil)
	}

	svc := accessgrants.NewService(repo, accessgrants.Options{
		Logger:      log,
		MaxAttempts: cfg.Grants.CASAttempts,
		MaxTTL:      cfg.Grants.MaxTTL,
	})
	q := accessgrants.NewQuery(repo, nil)

	sweeper := jobs.NewExpirySweeper(repo, svc, jobs.SweeperOptions{
		Interval:    cfg.Sweep.Interval,
		Parallelism: cfg.Sweep.Parallelism,
		Logger:      log,
	})

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: router.NewRouter(router.Options{
			AuthVerifier: verifier,
			Service:      svc,
			Query:        q,
			Logger:       log,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		log.Info("starting server", map[string]any{"addr": cfg.HTTP.Addr, "storage": cfg.Storage.Driver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore devuelve el Repository del driver configurado y su cierre.
func openStore(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (accessgrants.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := pg.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.RunMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pg.NewGrantsRepo(db), func() { _ = db.Close() }, nil

	case config.DriverLevelDB:
		store, err := leveldb.Open(cfg.LevelDBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				log.Error("leveldb close failed", map[string]any{"err": err})
			}
		}, nil

	case config.DriverMemory:
		return mem.NewGrantsRepo(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}

// newVerifier: JWT si hay secreto, si no el servicio remoto, si no modo dev (nil).
func newVerifier(cfg config.AuthConfig) (auth.AuthVerifier, error) {
	switch {
	case cfg.JWTSecret != "":
		return jwtverifier.New(cfg.JWTSecret)
	case cfg.RemoteURL != "":
		client, err := remote.NewClient(remote.Config{BaseURL: cfg.RemoteURL, APIKey: cfg.RemoteAPIKey})
		if err != nil {
			return nil, err
		}
		var opts []remote.VerifierOption
		if len(cfg.RemoteRoles) > 0 {
			roles := make([]auth.Role, 0, len(cfg.RemoteRoles))
			for _, r := range cfg.RemoteRoles {
				roles = append(roles, auth.Role(r))
			}
			opts = append(opts, remote.WithRoles(roles...))
		}
		return remote.NewVerifier(client, opts...), nil
	case cfg.DevMode:
		return nil, nil
	}
	return nil, errors.New("no identity verifier configured")
}
