package router

import (
	"net/http"

	mem "consent-ledger/internal/adapters/storage/memory"
	_ "consent-ledger/internal/docs"
	"consent-ledger/internal/domain/accessgrants"
	"consent-ledger/internal/middleware"
	"consent-ledger/internal/platform/logger"
	"consent-ledger/internal/ports/auth"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Options struct {
	AuthVerifier auth.AuthVerifier // puede ser nil (modo dev)

	// Opcional: si Service es nil se arma uno en memoria (dev/tests).
	Service *accessgrants.Service
	Query   *accessgrants.Query

	Logger logger.Logger
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Use(middleware.AuthContext(opts.AuthVerifier))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	svc, q := opts.Service, opts.Query
	if svc == nil {
		repo := mem.NewGrantsRepo()
		svc = accessgrants.NewService(repo, accessgrants.Options{Logger: log})
		q = accessgrants.NewQuery(repo, nil)
	}

	accessgrants.RegisterRoutes(r, svc, q, log)

	return r
}
