package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/aciencia/apiserver/config"
	"github.com/aciencia/apiserver/internal/auth"
	"github.com/aciencia/apiserver/internal/db"
	"github.com/aciencia/apiserver/internal/handlers"
	"github.com/aciencia/apiserver/internal/memstore"
	"github.com/aciencia/apiserver/internal/mq"
	"github.com/aciencia/apiserver/internal/services"
	"github.com/aciencia/apiserver/internal/storage"
	"github.com/aciencia/apiserver/internal/store"
	"github.com/aciencia/apiserver/types"
)

// Deps are the collaborators the router is composed from.
type Deps struct {
	Logger   zerolog.Logger
	Tokens   *auth.TokenService
	Elements *services.ElementService
	Relation *services.RelationService
	Users    *services.UserService
	Auth     *services.AuthService

	// Images enables the image upload routes.
	Images bool
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.MQ
}

// New constructs a Server from cfg: it opens the configured store, the
// optional event broker and image storage, and composes the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWT)
	if err != nil {
		return nil, err
	}

	srv := &Server{}
	ok := false
	defer func() {
		if !ok {
			srv.close()
		}
	}()

	var (
		elementRepo services.ElementRepository
		userRepo    services.UserRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres, "":
		if srv.db, err = db.Open(ctx, cfg); err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		elementRepo = store.NewElementRepository(srv.db)
		userRepo = store.NewUserRepository(srv.db)
	case config.StoreDriverMemory:
		mem, err := memstore.New()
		if err != nil {
			return nil, err
		}
		elementRepo = memstore.NewElementRepository(mem)
		userRepo = memstore.NewUserRepository(mem)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	var events services.EventPublisher
	if srv.events, err = mq.Open(ctx, cfg.MQ); err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}
	if srv.events != nil {
		events = srv.events
	}

	var images services.ImageStore
	blobs, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if blobs != nil {
		images = blobs
	}

	srv.router = NewRouter(Deps{
		Logger:   logger,
		Tokens:   tokens,
		Elements: services.NewElementService(elementRepo, events, images, cfg.Storage.PublicURL),
		Relation: services.NewRelationService(elementRepo, events),
		Users:    services.NewUserService(userRepo),
		Auth:     services.NewAuthService(userRepo, tokens),
		Images:   images != nil,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      srv.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info().
		Str("store", cfg.StoreDriver).
		Str("mq", cfg.MQ.Backend).
		Str("storage", cfg.Storage.Backend).
		Int("port", port).
		Msg("server configured")

	ok = true
	return srv, nil
}

// NewRouter composes the middleware chain and every route.
func NewRouter(deps Deps) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		hlog.NewHandler(deps.Logger),
		hlog.RequestIDHandler("request_id", "X-Request-Id"),
		hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		}),
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
		middleware.GetHead,
		handlers.Authenticate(deps.Tokens),
	)

	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, deps.Auth)
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, deps.Users)
	})
	for _, kind := range types.Kinds {
		router.Route("/"+kind.Plural(), func(r chi.Router) {
			handlers.ElementRouter(r, kind, deps.Elements, deps.Relation, deps.Images)
		})
	}

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the store and broker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.events != nil {
		_ = s.events.Close()
		s.events = nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
}
