package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/internal/tracing"
	"github.com/harun/conduit/pkg/agent"
	"github.com/harun/conduit/pkg/llm"
	"github.com/harun/conduit/pkg/llmgateway"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const (
	maxRequestBody = 1 << 20
	probeTimeout   = 3 * time.Second
)

// TurnRunner runs agent turns. Satisfied by *agent.Runner.
type TurnRunner interface {
	Run(ctx context.Context, req agent.TurnRequest, sink agent.Sink) (*agent.TurnResult, error)
	ActiveTurns() int
	AbortAll() int
}

// ToolProvider is the tool side probed by /health. Satisfied by *toolclient.Client.
type ToolProvider interface {
	Tools() []llm.ToolSpec
	Health(ctx context.Context) error
}

// ModelProvider is the model side probed by /health.
// Satisfied by *llmgateway.Client, and by *llmgateway.Gateway through LocalModels.
type ModelProvider interface {
	Models(ctx context.Context) ([]llm.Info, error)
	Health(ctx context.Context) error
}

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	Runner TurnRunner
	Tools  ToolProvider
	Models ModelProvider
	Logger zerolog.Logger

	TurnsPerMinute  int
	ConcurrentTurns int
	ShutdownTimeout time.Duration
}

// Server is the agent front end: HTTP turns, WebSocket turn streams, health and metrics
type Server struct {
	host            string
	port            int
	shutdownTimeout time.Duration
	server          *http.Server
	upgrader        websocket.Upgrader
	clients         *hub
	runner          TurnRunner
	tools           ToolProvider
	models          ModelProvider
	turnsPerMinute  int
	concurrentTurns int
	logger          zerolog.Logger
	isShuttingDown  bool
	shutdownMu      sync.RWMutex
	inFlightReqs    sync.WaitGroup
}

// NewServer creates a new agent front end
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("agent runner is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tool provider is required")
	}
	if cfg.Models == nil {
		return nil, fmt.Errorf("model provider is required")
	}
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	logger := cfg.Logger.With().Str("component", "agent_server").Logger()
	return &Server{
		host:            cfg.Host,
		port:            cfg.Port,
		shutdownTimeout: cfg.ShutdownTimeout,
		clients:         newHub(logger),
		runner:          cfg.Runner,
		tools:           cfg.Tools,
		models:          cfg.Models,
		turnsPerMinute:  cfg.TurnsPerMinute,
		concurrentTurns: cfg.ConcurrentTurns,
		logger:          logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}, nil
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/process", s.track(s.handleProcess))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", observability.MetricsHandler())
	return mux
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting agent server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start agent server: %w", err)
	}
	return nil
}

// Stop rejects new work, waits for running turns, then closes clients and the listener.
// Turns still running when ctx or the shutdown timeout expires are aborted.
func (s *Server) Stop(ctx context.Context) error {
	s.shutdownMu.Lock()
	s.isShuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down agent server")

	s.clients.broadcast(agent.Event{Type: TypeShutdown, Message: "Server is shutting down"})

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight turns completed")
	case <-ctx.Done():
		n := s.runner.AbortAll()
		s.logger.Warn().Int("aborted", n).Msg("Shutdown timeout reached, aborting turns")
	case <-time.After(s.shutdownTimeout):
		n := s.runner.AbortAll()
		s.logger.Warn().Int("aborted", n).Msg("Shutdown timeout reached, aborting turns")
	}

	s.clients.closeAll()

	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown agent server: %w", err)
	}

	s.logger.Info().Msg("Agent server stopped")
	return nil
}

// track rejects requests during shutdown and counts the rest as in flight
func (s *Server) track(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.beginWork() {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
			return
		}
		defer s.inFlightReqs.Done()

		next(w, r)
	}
}

func (s *Server) beginWork() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	if s.isShuttingDown {
		return false
	}
	s.inFlightReqs.Add(1)
	return true
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}

	requestID := r.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID, _ = gonanoid.New()
	}
	w.Header().Set("X-Request-Id", requestID)
	ctx := tracing.With(r.Context(), tracing.Fields{
		TraceID:   r.Header.Get("X-Trace-Id"),
		RequestID: requestID,
	})
	ctx, span := tracing.StartSpan(ctx, tracing.TracerFrontend, "http.process",
		attribute.String("model", req.Model),
	)
	defer span.End()

	result, err := s.runner.Run(ctx, agent.TurnRequest{Input: req.Input, Model: req.Model}, nil)
	if err != nil {
		tracing.RecordError(span, err)
		tracing.LoggerFromContext(ctx, s.logger).Error().Err(err).Msg("Turn failed")
		writeError(w, StatusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Result:    result.FinalAnswer,
		Steps:     result.Steps,
		Truncated: result.Truncated,
		TurnID:    result.TurnID,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.shutdownMu.RLock()
	if s.isShuttingDown {
		s.shutdownMu.RUnlock()
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	s.shutdownMu.RUnlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	clientID, _ := gonanoid.New()
	client := NewClient(clientID, conn, r.RemoteAddr, NewTurnLimiter(s.turnsPerMinute, s.concurrentTurns))
	s.clients.add(client)

	s.logger.Info().Str("client_id", clientID).Str("ip", r.RemoteAddr).Msg("Client connected")

	if err := client.Write(agent.Event{Type: TypeConnected, Message: "Connected to agent"}); err != nil {
		s.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to send greeting")
		_ = client.Close()
		s.clients.remove(clientID)
		return
	}

	go s.handleClient(client)
}

// handleClient reads frames until the connection closes
func (s *Server) handleClient(client *Client) {
	defer func() {
		_ = client.Close()
		s.clients.remove(client.ID)
		s.logger.Info().Str("client_id", client.ID).Msg("Client disconnected")
	}()

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("WebSocket error")
			}
			return
		}

		client.Touch()
		s.handleMessage(client, message)
	}
}

// handleMessage dispatches one client frame. Turns run in their own goroutine so pings
// are answered while a turn is in progress.
func (s *Server) handleMessage(client *Client, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.sendError(client, "invalid message format")
		return
	}

	switch msg.Type {
	case TypePing:
		_ = client.Write(agent.Event{Type: TypePong})
	case TypeMessage:
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			s.sendError(client, "content is required")
			return
		}
		if ok, reason := client.Limiter.Begin(); !ok {
			s.sendError(client, reason)
			return
		}
		if !s.beginWork() {
			client.Limiter.End()
			s.sendError(client, "server is shutting down")
			return
		}
		go func() {
			defer s.inFlightReqs.Done()
			defer client.Limiter.End()
			s.runTurn(client, agent.TurnRequest{Input: content, Model: msg.Model})
		}()
	default:
		s.sendError(client, fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// runTurn streams one turn to the client. The turn is bounded by the runner's turn timeout
// and keeps running if the client goes away.
func (s *Server) runTurn(client *Client, req agent.TurnRequest) {
	ctx := tracing.WithClientID(context.Background(), client.ID)
	ctx, span := tracing.StartSpan(ctx, tracing.TracerFrontend, "ws.turn",
		attribute.String("client_id", client.ID),
	)
	defer span.End()

	result, err := s.runner.Run(ctx, req, client)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Warn().Err(err).Msg("WebSocket turn failed")
		return
	}
	logger.Debug().Str("turn_id", result.TurnID).Int("steps", len(result.Steps)).Msg("WebSocket turn completed")
}

func (s *Server) sendError(client *Client, message string) {
	if err := client.Write(agent.Event{Type: agent.EventError, Message: message}); err != nil {
		s.logger.Debug().Err(err).Str("client_id", client.ID).Msg("Failed to send error")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:      "healthy",
		Tools:       []string{},
		Models:      []string{},
		Gateway:     "healthy",
		Clients:     s.clients.len(),
		ActiveTurns: s.runner.ActiveTurns(),
	}

	if err := s.tools.Health(ctx); err != nil {
		resp.Status = "degraded"
	} else {
		resp.ToolsConnected = true
	}
	for _, spec := range s.tools.Tools() {
		resp.Tools = append(resp.Tools, spec.Name)
	}

	if err := s.models.Health(ctx); err != nil {
		resp.Status = "degraded"
		resp.Gateway = fmt.Sprintf("unhealthy: %v", err)
	} else if infos, err := s.models.Models(ctx); err == nil {
		for _, info := range infos {
			resp.Models = append(resp.Models, info.Name)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Clients returns information about connected WebSocket clients
func (s *Server) Clients() []ClientInfo {
	return s.clients.infos(time.Now())
}

// StatusForError maps turn errors onto HTTP status codes
func StatusForError(err error) int {
	var ve *llmgateway.ValidationError
	switch {
	case errors.Is(err, agent.ErrEmptyInput), errors.Is(err, llmgateway.ErrUnknownModel), errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case llmgateway.IsProviderError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// LocalModels adapts an in-process gateway to ModelProvider
func LocalModels(g *llmgateway.Gateway) ModelProvider {
	return localModels{g}
}

type localModels struct {
	gateway *llmgateway.Gateway
}

func (l localModels) Models(ctx context.Context) ([]llm.Info, error) {
	return l.gateway.Models(), nil
}

func (l localModels) Health(ctx context.Context) error {
	return l.gateway.Health(ctx)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, ErrorResponse{Detail: detail})
}
