// Package server runs the OAuth callback endpoint that completes merchant
// authorization, plus health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/huolala/pkg/huolala"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Exchanger completes a code exchange and persists the token.
type Exchanger interface {
	Exchange(ctx context.Context, code string, grantType huolala.GrantType) (*huolala.TokenRecord, error)
}

// Authorizer builds the merchant authorization page URL.
type Authorizer interface {
	AuthorizeURL(redirectURI string) string
}

// Config holds server configuration.
type Config struct {
	Port        int
	RedirectURI string
}

// Server is the HTTP server for the OAuth callback flow.
type Server struct {
	port        int
	redirectURI string
	authorizer  Authorizer
	exchanger   Exchanger
	gatherer    prometheus.Gatherer
	logger      *otelzap.Logger
}

// New creates a new server instance.
func New(cfg Config, authorizer Authorizer, exchanger Exchanger, gatherer prometheus.Gatherer, logger *otelzap.Logger) *Server {
	return &Server{
		port:        cfg.Port,
		redirectURI: cfg.RedirectURI,
		authorizer:  authorizer,
		exchanger:   exchanger,
		gatherer:    gatherer,
		logger:      logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorize)
		r.Get("/callback", s.handleCallback)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if s.redirectURI == "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "redirect uri is not configured"})
		return
	}
	http.Redirect(w, r, s.authorizer.AuthorizeURL(s.redirectURI), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing code"})
		return
	}

	record, err := s.exchanger.Exchange(ctx, code, huolala.GrantAuthorizationCode)
	if err != nil {
		s.logger.Ctx(ctx).Error("Authorization code exchange failed", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "code exchange failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "authorized",
		"expires_at": record.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
