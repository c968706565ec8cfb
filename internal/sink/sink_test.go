package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/task"
)

type recordingSink struct {
	name     string
	err      error
	messages []Message
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, msg Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, msg)
	return nil
}

func TestDeliveryEmitSwallowsFailure(t *testing.T) {
	failing := &recordingSink{name: "broken", err: errors.ErrSinkDelivery}
	drops := 0
	d := NewDelivery(failing, nil, func() { drops++ })

	d.Emit(context.Background(), Message{TaskID: "t1", Type: task.TypeTesting})

	if drops != 1 {
		t.Fatalf("drops = %d, want 1", drops)
	}
}

func TestDeliveryEmitStampsTimestamp(t *testing.T) {
	s := &recordingSink{name: "ok"}
	d := NewDelivery(s, nil, nil)

	d.Emit(context.Background(), Message{TaskID: "t1"})

	if len(s.messages) != 1 || s.messages[0].Timestamp.IsZero() {
		t.Fatalf("messages = %+v, want one timestamped message", s.messages)
	}
}

func TestRouterMatchesByType(t *testing.T) {
	all := &recordingSink{name: "all"}
	testing0 := &recordingSink{name: "testing-only"}

	r := NewRouter()
	if err := r.Route("*", all); err != nil {
		t.Fatal(err)
	}
	if err := r.Route("testing", testing0); err != nil {
		t.Fatal(err)
	}

	if err := r.Deliver(context.Background(), Message{TaskID: "t1", Type: task.TypeTesting}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	if err := r.Deliver(context.Background(), Message{TaskID: "t2", Type: task.TypeErrorRecreation}); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if len(all.messages) != 2 {
		t.Fatalf("all got %d messages, want 2", len(all.messages))
	}
	if len(testing0.messages) != 1 || testing0.messages[0].TaskID != "t1" {
		t.Fatalf("testing-only got %+v, want only t1", testing0.messages)
	}
}

func TestRouterJoinsSinkErrors(t *testing.T) {
	good := &recordingSink{name: "good"}
	bad := &recordingSink{name: "bad", err: errors.ErrSinkDelivery}

	r := NewRouter()
	if err := r.Route("*", bad); err != nil {
		t.Fatal(err)
	}
	if err := r.Route("*", good); err != nil {
		t.Fatal(err)
	}

	err := r.Deliver(context.Background(), Message{TaskID: "t1", Type: task.TypeTesting})
	if !errors.Is(err, errors.ErrSinkDelivery) {
		t.Fatalf("got %v, want ErrSinkDelivery", err)
	}
	if len(good.messages) != 1 {
		t.Fatal("a failing sink must not block the others")
	}
}

func TestRouterRejectsBadPattern(t *testing.T) {
	r := NewRouter()
	if err := r.Route("[", &recordingSink{name: "x"}); err == nil {
		t.Fatal("expected error compiling malformed pattern")
	}
}

func TestFileSinkAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "out.jsonl")
	s := NewFileSink(path)
	defer func() { _ = s.Close() }()

	for _, id := range []string{"t1", "t2"} {
		err := s.Deliver(context.Background(), Message{
			TaskID: id,
			Type:   task.TypeTesting,
			Result: json.RawMessage(`{"ok":true}`),
		})
		if err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		ids = append(ids, msg.TaskID)
	}
	if len(ids) != 2 || ids[0] != "t1" || ids[1] != "t2" {
		t.Fatalf("ids = %v, want [t1 t2] in order", ids)
	}
}
