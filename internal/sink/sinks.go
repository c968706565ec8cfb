package sink

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
)

// LogSink writes each message to the engine log. Useful as the default
// route when no downstream consumer is configured.
type LogSink struct {
	logger *logging.Logger
}

func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, msg Message) error {
	log := s.logger.WithTask(msg.TaskID)
	if msg.Error != "" {
		log.Info("task result", "type", msg.Type, "outcome", "failed", "error", msg.Error)
		return nil
	}
	log.Info("task result", "type", msg.Type, "outcome", "completed")
	return nil
}

// FileSink appends messages as JSON lines to a file, one message per line.
// Writes are serialized; the file is created on first delivery.
type FileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Name() string { return "file:" + s.path }

func (s *FileSink) Deliver(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal result message")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return errors.Wrap(errors.ErrSinkDelivery, err.Error())
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(errors.ErrSinkDelivery, err.Error())
		}
		s.f = f
	}
	if _, err := s.f.Write(append(data, '\n')); err != nil {
		return errors.Wrap(errors.ErrSinkDelivery, err.Error())
	}
	return nil
}

// Close closes the underlying file, if one was opened.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
