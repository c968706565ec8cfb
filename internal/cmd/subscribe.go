package cmd

import (
	"fmt"
	"net/http"

	"github.com/orchid-dev/orchid/internal/orchestrator"
	"github.com/orchid-dev/orchid/internal/task"
)

// sseConn adapts one server-sent-events response stream to the hub's
// connection interface. Writes are serialized by the per-connection
// channel; the HTTP handler goroutine is the only writer to the wire.
type sseConn struct {
	id  string
	out chan []byte
}

func (c *sseConn) ID() string { return c.id }

func (c *sseConn) Send(data []byte) error {
	select {
	case c.out <- data:
		return nil
	default:
		// A reader that cannot keep up with full-snapshot pushes is
		// dropped rather than buffered without bound.
		return fmt.Errorf("subscriber %s not draining", c.id)
	}
}

// serveSubscription registers the client with the hub and streams every
// broadcast as one SSE event until the client goes away.
func serveSubscription(engine *orchestrator.Engine, w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	conn := &sseConn{
		id:  task.NewID(),
		out: make(chan []byte, 16),
	}
	if err := engine.Hub().Connect(conn); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer engine.Hub().Disconnect(conn.id)

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-conn.out:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
