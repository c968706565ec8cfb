// Package spool submits task definitions dropped as JSON files into a
// watched directory. Each file holds one definition; accepted files are
// renamed with a .done suffix and rejected ones with .rejected, so a
// restart never resubmits a file it already consumed.
package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/orchid-dev/orchid/internal/errors"
	"github.com/orchid-dev/orchid/internal/logging"
	"github.com/orchid-dev/orchid/internal/task"
)

// Submitter accepts a task definition and returns the assigned task id.
type Submitter interface {
	Submit(ctx context.Context, def *task.Definition) (string, error)
}

// Watcher watches one spool directory.
type Watcher struct {
	dir       string
	submitter Submitter
	logger    *logging.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Watcher for dir, creating the directory if needed.
func New(dir string, submitter Submitter, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create spool directory")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create spool watcher")
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, "watch spool directory")
	}

	return &Watcher{
		dir:       dir,
		submitter: submitter,
		logger:    logger,
		watcher:   fsw,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start consumes files already present in the directory, then begins
// watching for new ones.
func (w *Watcher) Start() {
	w.scanExisting()
	w.wg.Add(1)
	go w.watchLoop()
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
	w.wg.Wait()
}

func (w *Watcher) scanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("scan spool directory", "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.consume(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// Debounce: writers may produce several events while a file lands.
	debounce := time.NewTimer(0)
	<-debounce.C

	pending := make(map[string]struct{})

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[event.Name] = struct{}{}
			debounce.Reset(100 * time.Millisecond)

		case <-debounce.C:
			for path := range pending {
				delete(pending, path)
				w.consume(path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("spool watch error", "error", err)
		}
	}
}

// consume reads one spool file, submits it, and renames it out of the way.
func (w *Watcher) consume(path string) {
	if !strings.HasSuffix(path, ".json") {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Error("read spool file", "file", path, "error", err)
		}
		return
	}

	var def task.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		w.logger.Warn("rejecting malformed spool file", "file", path, "error", err)
		w.markFile(path, ".rejected")
		return
	}

	taskID, err := w.submitter.Submit(context.Background(), &def)
	if err != nil {
		w.logger.Warn("rejecting spool file", "file", path, "error", err)
		w.markFile(path, ".rejected")
		return
	}

	w.logger.WithTask(taskID).Info("spool file submitted", "file", path)
	w.markFile(path, ".done")
}

func (w *Watcher) markFile(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		w.logger.Error("rename spool file", "file", path, "error", err)
	}
}
