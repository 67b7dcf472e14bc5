package apiserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/auth"
	"github.com/callinsights/transcribe-orchestrator/internal/config"
	handlers "github.com/callinsights/transcribe-orchestrator/internal/handlers/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/service"
	"github.com/callinsights/transcribe-orchestrator/pkg/metrics"
	"github.com/callinsights/transcribe-orchestrator/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

const (
	gracefulShutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg         *config.Config
	listener    net.Listener
	batchJobSrv *service.BatchJobService
	dispatcher  *service.ResumptionDispatcher
}

// New returns a new instance of the orchestrator API server.
func New(
	cfg *config.Config,
	listener net.Listener,
	batchJobSrv *service.BatchJobService,
	dispatcher *service.ResumptionDispatcher,
) *Server {
	return &Server{
		cfg:         cfg,
		listener:    listener,
		batchJobSrv: batchJobSrv,
		dispatcher:  dispatcher,
	}
}

// Router builds the handler tree served by Run. Protected routes require an
// authenticated user; caller credentials are optional at this level.
func (s *Server) Router() (http.Handler, error) {
	authenticator, err := auth.NewAuthenticator(s.cfg.Service.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	router := chi.NewRouter()

	metricMiddleware := metrics.NewMiddleware("api_server")
	metricMiddleware.MustRegisterDefault()

	router.Use(
		metricMiddleware.Handler,
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{"https://*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.RequestID,
		middleware.Logger(),
		chiMiddleware.Recoverer,
	)

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticator.Authenticator, auth.CallerCredentials)
		handlers.NewServiceHandler(s.batchJobSrv, s.dispatcher).Routes(r)
	})

	return router, nil
}

func (s *Server) Run(ctx context.Context) error {
	zap.S().Named("api_server").Info("Initializing API server")

	router, err := s.Router()
	if err != nil {
		return err
	}
	srv := http.Server{Addr: s.cfg.Service.Address, Handler: router}

	go func() {
		<-ctx.Done()
		zap.S().Named("api_server").Infof("Shutdown signal received: %s", ctx.Err())
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		srv.SetKeepAlivesEnabled(false)
		_ = srv.Shutdown(ctxTimeout)
		zap.S().Named("api_server").Info("api server terminated")
	}()

	zap.S().Named("api_server").Infof("Listening on %s...", s.listener.Addr().String())
	if err := srv.Serve(s.listener); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
