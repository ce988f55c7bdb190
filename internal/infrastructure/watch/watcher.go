// Package watch triggers contract refreshes when corpus or manifest files change on disk.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 250 * time.Millisecond

var watchedExtensions = map[string]struct{}{".json": {}, ".yaml": {}, ".yml": {}}

// Watcher calls its handler once per contract after a burst of file events settles.
type Watcher struct {
	dirs     []string
	handler  func(context.Context, string) error
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dirs []string, handler func(context.Context, string) error, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dirs:     dirs,
		handler:  handler,
		debounce: debounce,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.logger.Info("watch_started", "dirs", w.dirs)

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if id, ok := ContractForEvent(ev); ok {
				w.schedule(ctx, id)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch_error", "error", err)
		}
	}
}

func (w *Watcher) schedule(ctx context.Context, contractID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[contractID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[contractID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, contractID)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.handler(ctx, contractID); err != nil {
			w.logger.Error("watch_refresh_failed", "contract_id", contractID, "error", err)
		}
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
}

// ContractForEvent maps a file event to the contract it belongs to.
func ContractForEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return "", false
	}
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := filepath.Ext(base)
	if _, ok := watchedExtensions[ext]; !ok {
		return "", false
	}
	id := strings.TrimSuffix(base, ext)
	if id == "" {
		return "", false
	}
	return id, true
}
