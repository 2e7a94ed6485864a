package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"VaultQueue/internal/observability"
)

// Options configures the HTTP API surface.
type Options struct {
	Addr           string
	AllowedOrigins string
}

// Server is the HTTP API server. Queries are served from the
// projections; commands are accepted and handed to the ingest service.
type Server struct {
	httpServer    *http.Server
	addr          string
	healthChecker *observability.HealthChecker
	logger        zerolog.Logger
}

// NewServer assembles the router and wraps it with compression, CORS
// and panic recovery.
func NewServer(opts Options, queries *Queries, commands *Commands, healthChecker *observability.HealthChecker) *Server {
	logger := observability.NewLogger("api")

	router := mux.NewRouter()
	queries.Mount(router, "/v1")
	commands.Mount(router, "/v1")

	if healthChecker != nil {
		router.Path("/healthz").Methods(http.MethodGet).HandlerFunc(healthChecker.LivenessHandler)
		router.Path("/readyz").Methods(http.MethodGet).HandlerFunc(healthChecker.ReadinessHandler)
	}

	origins := []string{"*"}
	if opts.AllowedOrigins != "" {
		origins = origins[:0]
		for _, o := range strings.Split(opts.AllowedOrigins, ",") {
			origins = append(origins, strings.ToLower(strings.TrimSpace(o)))
		}
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
	)(handler)
	handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(&recoveryLogger{logger: logger}),
	)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		addr:          opts.Addr,
		healthChecker: healthChecker,
		logger:        logger,
	}
}

// Start runs the HTTP server until the context is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP API shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("HTTP API listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// recoveryLogger adapts zerolog to gorilla's recovery handler.
type recoveryLogger struct {
	logger zerolog.Logger
}

func (rl *recoveryLogger) Println(v ...interface{}) {
	rl.logger.Error().Interface("panic", v).Msg("handler panicked")
}
