// Package notify implements the pub/sub side of the engine: a hub of
// connected subscribers that each receive the full state snapshot after
// every mutation. Delivery is per-connection best effort; a connection
// whose send fails is pruned rather than retried.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/state"
)

// Envelope message types.
const (
	TypeConnected   = "connected"
	TypeStateUpdate = "stateUpdate"
)

// Conn is one subscriber connection. Send must be safe for concurrent use;
// a returned error marks the connection dead.
type Conn interface {
	ID() string
	Send(data []byte) error
}

// Envelope is the wire form of every hub message. State is always a
// complete snapshot, never a delta.
type Envelope struct {
	Type      string          `json:"type"`
	State     *state.Snapshot `json:"state"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// Hub tracks live subscriber connections and broadcasts snapshots to them.
// Subscriber identity bookkeeping in the store is the engine's job: the hub
// reports joins and leaves through the registered callbacks, which run
// outside the hub lock so they may mutate the store.
type Hub struct {
	snapshot func() *state.Snapshot
	logger   *logging.Logger

	mu    sync.Mutex
	conns map[string]Conn

	onJoin  func(id string)
	onLeave func(id string)
}

// NewHub creates a Hub that reads current state through snapshot.
func NewHub(snapshot func() *state.Snapshot, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Hub{
		snapshot: snapshot,
		logger:   logger,
		conns:    make(map[string]Conn),
	}
}

// SetCallbacks registers the join/leave hooks. Must be called before the
// first Connect.
func (h *Hub) SetCallbacks(onJoin, onLeave func(id string)) {
	h.onJoin = onJoin
	h.onLeave = onLeave
}

// Connect registers a connection and sends it the connected envelope with
// the current state.
func (h *Hub) Connect(conn Conn) error {
	data, err := json.Marshal(Envelope{
		Type:  TypeConnected,
		State: h.snapshot(),
	})
	if err != nil {
		return err
	}
	if err := conn.Send(data); err != nil {
		return err
	}

	h.mu.Lock()
	h.conns[conn.ID()] = conn
	h.mu.Unlock()

	h.logger.Info("subscriber connected", "conn_id", conn.ID())
	if h.onJoin != nil {
		h.onJoin(conn.ID())
	}
	return nil
}

// Disconnect removes a connection. Unknown ids are ignored, so transports
// may call this unconditionally on close.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	_, known := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()

	if !known {
		return
	}
	h.logger.Info("subscriber disconnected", "conn_id", id)
	if h.onLeave != nil {
		h.onLeave(id)
	}
}

// HandleMessage processes one inbound message. Only subscribe is
// understood: it answers with a fresh stateUpdate. Malformed or unknown
// messages are dropped silently, matching a tolerant reader.
func (h *Hub) HandleMessage(conn Conn, message []byte) {
	var req struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &req); err != nil {
		h.logger.Debug("dropping malformed subscriber message", "conn_id", conn.ID(), "error", err)
		return
	}
	if req.Type != "subscribe" {
		return
	}

	data, err := json.Marshal(Envelope{
		Type:      TypeStateUpdate,
		State:     h.snapshot(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("marshal state update", "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		h.Disconnect(conn.ID())
	}
}

// Broadcast sends the snapshot to every connection, marshaling once.
// Connections whose send fails are pruned and reported as leaves.
//
// Broadcast is called from the store's notify hook with the store lock
// held, so the leave callbacks (which mutate the store) run on a separate
// goroutine.
func (h *Hub) Broadcast(snap *state.Snapshot) {
	data, err := json.Marshal(Envelope{
		Type:      TypeStateUpdate,
		State:     snap,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var dead []string
	for _, c := range conns {
		if err := c.Send(data); err != nil {
			h.logger.Warn("broadcast send failed, pruning subscriber",
				"conn_id", c.ID(), "error", err)
			dead = append(dead, c.ID())
		}
	}
	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	for _, id := range dead {
		delete(h.conns, id)
	}
	h.mu.Unlock()

	if h.onLeave != nil {
		go func() {
			for _, id := range dead {
				h.onLeave(id)
			}
		}()
	}
}

// Size returns the number of live connections.
func (h *Hub) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}
