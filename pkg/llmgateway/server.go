package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/pkg/llm"
	"github.com/rs/zerolog"
)

// maxRequestBody bounds generation request bodies
const maxRequestBody = 4 << 20

// ServerOptions configures the gateway HTTP server
type ServerOptions struct {
	Host string
	Port int
}

// Server exposes a Gateway over the generation protocol and the admin surface
type Server struct {
	options        ServerOptions
	gateway        *Gateway
	server         *http.Server
	logger         zerolog.Logger
	startTime      time.Time
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ModelsResponse is the body of GET /mcp/llm/list
type ModelsResponse struct {
	LLMs []llm.Info `json:"llms"`
}

// MetricsResponse is the body of GET /metrics
type MetricsResponse struct {
	Metrics MetricsSnapshot `json:"metrics"`
	Cache   CacheStatus     `json:"cache"`
}

// NewServer creates a gateway server
func NewServer(options ServerOptions, gateway *Gateway, logger zerolog.Logger) (*Server, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if options.Port == 0 {
		options.Port = 8003
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	return &Server{
		options:   options,
		gateway:   gateway,
		logger:    logger.With().Str("component", "llmgateway_server").Logger(),
		startTime: time.Now(),
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/mcp/llm/list", s.track(s.handleList))
	mux.HandleFunc("/mcp/llm/generate", s.track(s.handleGenerate))
	mux.HandleFunc("/metrics", s.track(s.handleMetrics))
	mux.HandleFunc("/metrics/reset", s.track(s.handleMetricsReset))
	mux.HandleFunc("/cache/clear", s.track(s.handleCacheClear))
	mux.Handle("/metrics/prometheus", observability.MetricsHandler())
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting model gateway server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start model gateway server: %w", err)
	}
	return nil
}

// Stop waits for in-flight requests, then shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down model gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-ctx.Done():
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown model gateway server: %w", err)
	}
	return nil
}

// track rejects requests during shutdown and counts the rest as in flight
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.shutdownMu.RLock()
		if s.isShuttingDown {
			s.shutdownMu.RUnlock()
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		s.inFlightReqs.Add(1)
		s.shutdownMu.RUnlock()
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status := "healthy"
	code := http.StatusOK
	if err := s.gateway.Health(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]interface{}{
		"status":        status,
		"service":       "llm-gateway",
		"models":        len(s.gateway.Models()),
		"default_model": s.gateway.DefaultModel(),
		"cache_enabled": s.gateway.CacheStats().Enabled,
		"uptime":        time.Since(s.startTime).Seconds(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, ModelsResponse{LLMs: s.gateway.Models()})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req llm.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	resp, err := s.gateway.Generate(r.Context(), req)
	if err != nil {
		code := StatusForError(err)
		s.logger.Warn().Err(err).Int("status", code).Str("model", req.Model).Msg("Generation request failed")
		writeError(w, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, MetricsResponse{
		Metrics: s.gateway.Metrics(),
		Cache:   s.gateway.CacheStats(),
	})
}

func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.gateway.ResetMetrics()
	observability.RecordAdminAudit(r.Context(), "metrics:reset", r.URL.Path, nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Metrics reset"})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	n := s.gateway.ClearCache()
	observability.RecordAdminAudit(r.Context(), "cache:clear", r.URL.Path, map[string]interface{}{"entries": n})
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "message": "Cache cleared", "entries": n})
}

// StatusForError maps gateway errors onto HTTP status codes
func StatusForError(err error) int {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, ErrUnknownModel):
		return http.StatusBadRequest
	case IsProviderError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, ErrorResponse{Detail: detail})
}
