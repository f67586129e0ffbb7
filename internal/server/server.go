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
	"github.com/jjudge-oj/identity/config"
	"github.com/jjudge-oj/identity/internal/auth"
	"github.com/jjudge-oj/identity/internal/db"
	"github.com/jjudge-oj/identity/internal/handlers"
	"github.com/jjudge-oj/identity/internal/logging"
	"github.com/jjudge-oj/identity/internal/notify"
	"github.com/jjudge-oj/identity/internal/services"
	"github.com/jjudge-oj/identity/internal/store"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	dispatcher *notify.Dispatcher
	sink       *Sink
	logger     *zap.Logger
}

// New connects to the database and the notification transport and builds
// the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sink, err := NewSink(ctx, cfg, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(sink, cfg.Notify.Workers, cfg.Notify.QueueSize, cfg.Notify.SendTimeout, logger)

	service, err := services.NewAuthService(store.NewAccountRepository(dbConn), dispatcher, cfg, auth.SystemClock{}, logger)
	if err != nil {
		dispatcher.Close()
		_ = sink.Close()
		_ = dbConn.Close()
		return nil, err
	}

	router := NewRouter(service, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		dispatcher: dispatcher,
		sink:       sink,
		logger:     logger,
	}, nil
}

// NewRouter mounts every route on a chi router with the standard
// middleware stack.
func NewRouter(service handlers.IdentityService, logger *zap.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(logger.Named("http")),
		middleware.Timeout(60*time.Second),
		handlers.Identify(service),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, service, logger)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, service, logger)
	})
	router.Route("/guest", func(r chi.Router) {
		handlers.GuestRouter(r, service, logger)
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, drains
// pending notifications and releases the database and broker.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	s.dispatcher.Close()
	if closeErr := s.sink.Close(); closeErr != nil {
		s.logger.Warn("close notification transport", zap.Error(closeErr))
	}
	if closeErr := s.db.Close(); closeErr != nil {
		s.logger.Warn("close database", zap.Error(closeErr))
	}
	return err
}
