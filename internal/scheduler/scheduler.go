// Package scheduler provides a durable named-callback scheduler. A callback
// can be scheduled to fire once after a delay or repeatedly on a fixed
// cadence. Entries are persisted before they are armed and removed only
// after the callback returns, so a callback fires at least once even if the
// process restarts between scheduling and firing. Callbacks must tolerate
// redelivery.
package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
)

// Callback handles one scheduled firing. The payload is whatever was passed
// at scheduling time. For repeating schedules, returning ErrStopRepeat
// cancels the cadence; any other error is logged and the cadence continues.
type Callback func(ctx context.Context, payload json.RawMessage) error

// ErrStopRepeat is returned by a repeating callback to cease
// re-registration of its schedule.
var ErrStopRepeat = errors.New("stop repeating schedule")

// Sentinel errors returned by scheduling operations.
var (
	ErrCallbackNotRegistered = errors.New("callback not registered")
	ErrDuplicateCallback     = errors.New("callback already registered")
	ErrClosed                = errors.New("scheduler closed")
)

// Entry is one persisted schedule.
type Entry struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FireAt    time.Time       `json:"fireAt"`
	Every     time.Duration   `json:"every,omitempty"` // 0 means one-shot
	CreatedAt time.Time       `json:"createdAt"`
}

// Scheduler arms timers for persisted entries and dispatches them to named
// callbacks. All methods are safe for concurrent use.
type Scheduler struct {
	mu        sync.Mutex
	dir       string
	logger    *logging.Logger
	callbacks map[string]Callback
	entries   map[string]*Entry
	timers    map[string]*time.Timer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
}

// New creates a Scheduler persisting its entries under dir. Pass an empty
// dir for a purely in-memory scheduler (tests).
func New(dir string, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		dir:       dir,
		logger:    logger,
		callbacks: make(map[string]Callback),
		entries:   make(map[string]*Entry),
		timers:    make(map[string]*time.Timer),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register binds a callback name to a function. All names must be
// registered at startup, before Recover; scheduling against an unknown
// name fails fast.
func (s *Scheduler) Register(name string, cb Callback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.callbacks[name]; ok {
		return errors.Wrapf(ErrDuplicateCallback, "register %q", name)
	}
	s.callbacks[name] = cb
	return nil
}

// ScheduleOnce schedules the named callback to fire once after delay.
// The entry is persisted before the timer is armed.
func (s *Scheduler) ScheduleOnce(delay time.Duration, name string, payload json.RawMessage) (string, error) {
	return s.schedule(delay, 0, name, payload)
}

// ScheduleEvery schedules the named callback to fire repeatedly on a fixed
// cadence, first firing after one interval. The cadence stops when the
// callback returns ErrStopRepeat.
func (s *Scheduler) ScheduleEvery(every time.Duration, name string, payload json.RawMessage) (string, error) {
	return s.schedule(every, every, name, payload)
}

func (s *Scheduler) schedule(delay, every time.Duration, name string, payload json.RawMessage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}
	if _, ok := s.callbacks[name]; !ok {
		return "", errors.Wrapf(ErrCallbackNotRegistered, "schedule %q", name)
	}

	now := time.Now()
	entry := &Entry{
		ID:        uuid.NewString(),
		Name:      name,
		Payload:   append(json.RawMessage(nil), payload...),
		FireAt:    now.Add(delay),
		Every:     every,
		CreatedAt: now,
	}
	s.entries[entry.ID] = entry

	if err := s.persistLocked(); err != nil {
		delete(s.entries, entry.ID)
		return "", err
	}

	s.armLocked(entry, delay)
	return entry.ID, nil
}

// Recover re-arms every persisted entry. Entries whose fire time has
// already passed fire immediately. Call once at startup, after all
// callbacks are registered.
func (s *Scheduler) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dir == "" {
		return nil
	}

	entries, err := loadEntries(s.dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if _, ok := s.entries[entry.ID]; ok {
			continue
		}
		if _, ok := s.callbacks[entry.Name]; !ok {
			s.logger.Warn("dropping persisted schedule with unregistered callback",
				"callback", entry.Name, "schedule_id", entry.ID)
			continue
		}
		s.entries[entry.ID] = entry
		delay := time.Until(entry.FireAt)
		if delay < 0 {
			delay = 0
		}
		s.armLocked(entry, delay)
	}

	return s.persistLocked()
}

// armLocked starts the timer for an entry; the caller holds s.mu.
func (s *Scheduler) armLocked(entry *Entry, delay time.Duration) {
	id := entry.ID
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
}

// fire runs one delivery of the entry's callback and then either removes
// the entry (one-shot, or repeat cancelled) or re-arms it.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	entry, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	cb := s.callbacks[entry.Name]
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	err := cb(s.ctx, entry.Payload)
	if err != nil && !errors.Is(err, ErrStopRepeat) {
		s.logger.Error("scheduled callback failed",
			"callback", entry.Name, "schedule_id", id, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	repeat := entry.Every > 0 && !errors.Is(err, ErrStopRepeat)
	if repeat {
		entry.FireAt = time.Now().Add(entry.Every)
		s.armLocked(entry, entry.Every)
	} else {
		delete(s.entries, id)
		delete(s.timers, id)
	}

	// Removal (the delivery ack) is persisted only after the callback has
	// returned, which is what makes delivery at-least-once across restarts.
	if perr := s.persistLocked(); perr != nil {
		s.logger.Error("failed to persist schedule state", "error", perr)
	}
}

// Pending returns the number of armed entries.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops all timers and waits for in-flight callbacks to return.
// Persisted entries survive for the next Recover.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}
