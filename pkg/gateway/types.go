package gateway

import (
	"time"

	"github.com/harun/conduit/pkg/agent"
)

// Message types exchanged on /ws besides the turn events
const (
	TypeConnected = "connected"
	TypeMessage   = "message"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeShutdown  = "shutdown"
)

// ClientMessage is a frame sent by a WebSocket client
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Model   string `json:"model,omitempty"`
}

// EventMessage is a frame sent to a WebSocket client. Seq increases per connection.
type EventMessage struct {
	agent.Event
	ClientID  string `json:"client_id,omitempty"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// ProcessRequest is the body of POST /process
type ProcessRequest struct {
	Input string `json:"input"`
	Model string `json:"model,omitempty"`
}

// ProcessResponse is the reply of POST /process
type ProcessResponse struct {
	Result    string             `json:"result"`
	Steps     []agent.StepRecord `json:"steps"`
	Truncated bool               `json:"truncated"`
	TurnID    string             `json:"turn_id"`
}

// HealthResponse is the reply of GET /health
type HealthResponse struct {
	Status         string   `json:"status"`
	ToolsConnected bool     `json:"tools_connected"`
	Tools          []string `json:"tools"`
	Models         []string `json:"models"`
	Gateway        string   `json:"gateway"`
	Clients        int      `json:"clients"`
	ActiveTurns    int      `json:"active_turns"`
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ClientInfo describes a connected client
type ClientInfo struct {
	ID           string    `json:"id"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
	IPAddress    string    `json:"ipAddress"`
	Idle         bool      `json:"idle"`
}
