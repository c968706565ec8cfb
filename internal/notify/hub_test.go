package notify

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/state"
)

type testConn struct {
	id string

	mu      sync.Mutex
	sent    [][]byte
	sendErr error
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *testConn) messages(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.sent))
	for i, raw := range c.sent {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			t.Fatalf("message %d is not a valid envelope: %v", i, err)
		}
	}
	return out
}

func newTestHub() *Hub {
	snap := state.NewSnapshot()
	return NewHub(func() *state.Snapshot { return snap.Clone() }, nil)
}

func TestConnectSendsConnectedEnvelope(t *testing.T) {
	h := newTestHub()
	conn := &testConn{id: "c1"}

	if err := h.Connect(conn); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	msgs := conn.messages(t)
	if len(msgs) != 1 || msgs[0].Type != TypeConnected {
		t.Fatalf("messages = %+v, want single connected envelope", msgs)
	}
	if msgs[0].State == nil {
		t.Fatal("connected envelope must carry the full state")
	}
	if h.Size() != 1 {
		t.Fatalf("Size = %d, want 1", h.Size())
	}
}

func TestConnectReportsJoin(t *testing.T) {
	h := newTestHub()
	var joined []string
	h.SetCallbacks(func(id string) { joined = append(joined, id) }, nil)

	if err := h.Connect(&testConn{id: "c1"}); err != nil {
		t.Fatal(err)
	}
	if len(joined) != 1 || joined[0] != "c1" {
		t.Fatalf("joined = %v, want [c1]", joined)
	}
}

func TestConnectFailedSendNotRegistered(t *testing.T) {
	h := newTestHub()
	conn := &testConn{id: "c1", sendErr: errors.New("broken pipe")}

	if err := h.Connect(conn); err == nil {
		t.Fatal("expected error when the hello send fails")
	}
	if h.Size() != 0 {
		t.Fatalf("Size = %d, want 0 after failed connect", h.Size())
	}
}

func TestSubscribeMessageAnswersStateUpdate(t *testing.T) {
	h := newTestHub()
	conn := &testConn{id: "c1"}
	if err := h.Connect(conn); err != nil {
		t.Fatal(err)
	}

	h.HandleMessage(conn, []byte(`{"type":"subscribe"}`))

	msgs := conn.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want connected plus stateUpdate", len(msgs))
	}
	if msgs[1].Type != TypeStateUpdate || msgs[1].Timestamp == 0 {
		t.Fatalf("reply = %+v, want timestamped stateUpdate", msgs[1])
	}
}

func TestUnknownAndMalformedMessagesIgnored(t *testing.T) {
	h := newTestHub()
	conn := &testConn{id: "c1"}
	if err := h.Connect(conn); err != nil {
		t.Fatal(err)
	}

	h.HandleMessage(conn, []byte(`{"type":"dance"}`))
	h.HandleMessage(conn, []byte(`not json`))

	if got := len(conn.messages(t)); got != 1 {
		t.Fatalf("messages = %d, want only the connected envelope", got)
	}
	if h.Size() != 1 {
		t.Fatal("tolerated messages must not disconnect the subscriber")
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	h := newTestHub()
	a := &testConn{id: "a"}
	b := &testConn{id: "b"}
	for _, c := range []*testConn{a, b} {
		if err := h.Connect(c); err != nil {
			t.Fatal(err)
		}
	}

	h.Broadcast(state.NewSnapshot())

	for _, c := range []*testConn{a, b} {
		msgs := c.messages(t)
		if len(msgs) != 2 || msgs[1].Type != TypeStateUpdate {
			t.Fatalf("conn %s messages = %+v, want broadcast received", c.id, msgs)
		}
	}
}

func TestBroadcastPrunesFailedConnections(t *testing.T) {
	h := newTestHub()
	leaves := make(chan string, 1)
	h.SetCallbacks(nil, func(id string) { leaves <- id })

	good := &testConn{id: "good"}
	bad := &testConn{id: "bad"}
	for _, c := range []*testConn{good, bad} {
		if err := h.Connect(c); err != nil {
			t.Fatal(err)
		}
	}
	bad.mu.Lock()
	bad.sendErr = errors.New("connection reset")
	bad.mu.Unlock()

	h.Broadcast(state.NewSnapshot())

	select {
	case id := <-leaves:
		if id != "bad" {
			t.Fatalf("pruned %q, want bad", id)
		}
	case <-time.After(time.Second):
		t.Fatal("leave callback never fired")
	}
	if h.Size() != 1 {
		t.Fatalf("Size = %d, want the good connection to survive", h.Size())
	}
}

func TestDisconnectUnknownIDIsNoOp(t *testing.T) {
	h := newTestHub()
	called := false
	h.SetCallbacks(nil, func(string) { called = true })

	h.Disconnect("ghost")
	if called {
		t.Fatal("leave callback must not fire for unknown connections")
	}
}
