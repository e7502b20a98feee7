// Package server hosts the webhook HTTP endpoint and wires the bridge
// handler's responses back to the invoking transport.
package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"linebridge/internal/bridge"
	"linebridge/internal/journal"
	"linebridge/internal/line"
	"linebridge/internal/metrics"
)

const maxBodyBytes = 1 << 20 // 1MB max

// Server serves the LINE webhook endpoint plus health and metrics routes.
type Server struct {
	host          string
	port          int
	webhookPath   string
	channelSecret string

	handler   *bridge.Handler
	journal   *journal.Store // nil when disabled
	collector *metrics.Collector
	metricsEP string // empty when metrics disabled

	logger *slog.Logger
	server *http.Server
}

type Config struct {
	Host          string
	Port          int
	WebhookPath   string
	ChannelSecret string // empty disables signature verification

	Handler         *bridge.Handler
	Journal         *journal.Store
	Collector       *metrics.Collector
	MetricsEndpoint string

	Logger *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = "/webhook/line"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	return &Server{
		host:          cfg.Host,
		port:          cfg.Port,
		webhookPath:   cfg.WebhookPath,
		channelSecret: cfg.ChannelSecret,
		handler:       cfg.Handler,
		journal:       cfg.Journal,
		collector:     cfg.Collector,
		metricsEP:     cfg.MetricsEndpoint,
		logger:        cfg.Logger,
	}
}

// Routes builds the router. Exposed separately from Start for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post(s.webhookPath, s.handleWebhook)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.metricsEP != "" {
		r.Get(s.metricsEP, s.collector.Handler())
	}
	return r
}

// Start runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting", "addr", s.server.Addr, "path", s.webhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("webhook server: %w", err)
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Verify the platform signature when a channel secret is configured.
	if s.channelSecret != "" {
		sig := r.Header.Get("X-Line-Signature")
		if sig == "" {
			http.Error(w, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !line.VerifySignature(s.channelSecret, body, sig) {
			s.logger.Warn("invalid webhook signature")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	start := time.Now()
	resp := s.handler.Handle(r.Context(), body)
	elapsed := time.Since(start)

	s.collector.RecordDelivery(resp.Outcome, elapsed)
	if s.journal != nil {
		entry := journal.Entry{
			UserID:     resp.UserID,
			Outcome:    resp.Outcome,
			Stage:      bridge.Stage(resp.Outcome),
			StatusCode: resp.StatusCode,
			LatencyMS:  elapsed.Milliseconds(),
		}
		if err := s.journal.Record(r.Context(), entry); err != nil {
			s.logger.Warn("journal write failed", "err", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	io.WriteString(w, resp.Body)
}
