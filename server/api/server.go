package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/stakebridge/relay-oracle/server/api/middleware"
)

// Server is the daemon's single HTTP surface: the healthcheck and the
// prometheus exporter share one listener. The middleware stack is fixed —
// panic recovery, request ids, access logging, GET-only CORS — and every
// registered route is read-only.
type Server struct {
	cfg    Config
	log    zerolog.Logger
	router *mux.Router
}

func NewServer(cfg Config, log zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "http-api").Logger(),
		router: mux.NewRouter(),
	}
}

// Handle registers a GET route.
func (s *Server) Handle(path string, h http.Handler) {
	s.router.Handle(path, h).Methods(http.MethodGet)
}

// HandleFunc registers a GET route backed by a handler func.
func (s *Server) HandleFunc(path string, fn func(http.ResponseWriter, *http.Request)) {
	s.router.HandleFunc(path, fn).Methods(http.MethodGet)
}

// handler wraps the router in the fixed middleware stack.
func (s *Server) handler() http.Handler {
	h := http.Handler(s.router)
	h = middleware.Logger(s.log)(h)
	h = middleware.RequestID()(h)
	h = middleware.Recover(s.log)(h)
	return handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet}),
	)(h)
}

// Start serves until the context is canceled, then drains in-flight scrapes
// within the configured grace.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("HTTP surface starting")

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP surface drain incomplete")
		return err
	}
	s.log.Info().Msg("HTTP surface stopped")
	return nil
}
