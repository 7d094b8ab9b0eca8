package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/harun/conduit/internal/observability"
	"github.com/harun/conduit/pkg/agent"
	"github.com/rs/zerolog"
)

// idleAfter marks a client idle in ClientInfo
const idleAfter = 5 * time.Minute

// hub tracks connected WebSocket clients. Membership changes are mirrored into
// the ws_clients_active gauge.
type hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

func newHub(logger zerolog.Logger) *hub {
	return &hub{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

func (h *hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	observability.SetWSClients(n)
}

func (h *hub) remove(id string) {
	h.mu.Lock()
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()
	observability.SetWSClients(n)
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// snapshot returns the clients ordered by connection time
func (h *hub) snapshot() []*Client {
	h.mu.RLock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

func (h *hub) infos(now time.Time) []ClientInfo {
	clients := h.snapshot()
	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		seen := c.LastSeen()
		infos = append(infos, ClientInfo{
			ID:           c.ID,
			ConnectedAt:  c.ConnectedAt,
			LastActivity: seen,
			IPAddress:    c.IPAddress,
			Idle:         now.Sub(seen) > idleAfter,
		})
	}
	return infos
}

// broadcast writes event to every open client and returns how many received it.
// Each client stamps its own seq.
func (h *hub) broadcast(event agent.Event) int {
	delivered := 0
	for _, c := range h.snapshot() {
		if err := c.Write(event); err != nil {
			h.logger.Debug().Err(err).Str("client_id", c.ID).Str("event", event.Type).Msg("Broadcast skipped client")
			continue
		}
		delivered++
	}
	return delivered
}

// closeAll closes every connection; the read loops then remove their clients
func (h *hub) closeAll() {
	for _, c := range h.snapshot() {
		_ = c.Close()
	}
}
