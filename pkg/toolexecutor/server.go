package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const maxCallBody = 1 << 20

// ServerOptions configures the toolbox HTTP server
type ServerOptions struct {
	Host string
	Port int
}

// Server exposes a ToolExecutor over the tool discovery and invocation protocol
type Server struct {
	options        ServerOptions
	executor       *ToolExecutor
	server         *http.Server
	isShuttingDown bool
	shutdownMu     sync.RWMutex
	inFlightReqs   sync.WaitGroup
}

// CallRequest is the body of POST /mcp/tools/call
type CallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Content is one block of a tool result
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallResponse is the body of a successful tool call
type CallResponse struct {
	Content []Content `json:"content"`
}

// ListResponse is the body of POST /mcp/tools/list
type ListResponse struct {
	Tools []Definition `json:"tools"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// NewServer creates a toolbox server
func NewServer(options ServerOptions, executor *ToolExecutor) (*Server, error) {
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if options.Port == 0 {
		options.Port = 8002
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	return &Server{
		options:  options,
		executor: executor,
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/mcp/tools/list", s.track(s.handleList))
	mux.HandleFunc("/mcp/tools/call", s.track(s.handleCall))
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Strs("tools", s.executor.ListTools()).
		Msg("Starting toolbox server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start toolbox server: %w", err)
	}
	return nil
}

// Stop waits for in-flight calls, then shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	log.Info().Msg("Shutting down toolbox server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown toolbox server: %w", err)
	}
	return nil
}

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
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"service":    "toolbox",
		"tools":      s.executor.GetToolCount(),
		"categories": s.executor.Categories(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	defs := s.executor.Definitions()
	log.Debug().Int("count", len(defs)).Msg("Tools listed")
	writeJSON(w, http.StatusOK, ListResponse{Tools: defs})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	var req CallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "tool name is required")
		return
	}

	text, err := s.executor.Execute(r.Context(), req.Name, req.Arguments)
	if err != nil {
		code := StatusForError(err)
		log.Warn().Err(err).Str("tool", req.Name).Int("status", code).Msg("Tool call failed")
		writeError(w, code, err.Error())
		return
	}

	log.Info().Str("tool", req.Name).Str("result", text).Msg("Tool call succeeded")
	writeJSON(w, http.StatusOK, CallResponse{Content: []Content{{Type: "text", Text: text}}})
}

// StatusForError maps executor errors onto HTTP status codes
func StatusForError(err error) int {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrToolNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
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
