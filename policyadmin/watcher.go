package policyadmin

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/liamcoop/loanpolicy/policy"
)

// LoadFile reads a YAML policy file and syncs its policies into the store.
func (m *Manager) LoadFile(ctx context.Context, path string) (SyncResult, error) {
	set, err := policy.LoadPolicyFile(path)
	if err != nil {
		return SyncResult{}, err
	}
	return m.Sync(ctx, set.Policies)
}

// FileWatcher reloads a policy file into a Manager whenever it changes.
// Rapid successive events are debounced into one reload.
type FileWatcher struct {
	path     string
	manager  *Manager
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher creates a watcher for path. A zero debounce defaults to 200ms.
func NewFileWatcher(path string, manager *Manager, debounce time.Duration, logger *slog.Logger) *FileWatcher {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		manager:  manager,
		debounce: debounce,
		logger:   logger,
	}
}

// Watch blocks until ctx is cancelled, reloading the file on every write,
// create or rename. The parent directory is watched so editors that replace
// the file atomically are handled.
func (fw *FileWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(fw.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", fw.path, err)
	}
	fw.logger.Info("policy file watcher started", "path", fw.path, "debounce_ms", fw.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			fw.stopTimer()
			fw.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if filepath.Clean(event.Name) != fw.path || event.Op&fsnotify.Chmod == fsnotify.Chmod {
				continue
			}
			fw.trigger(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Continue watching despite errors
			fw.logger.Error("policy file watcher error", "error", err)
		}
	}
}

func (fw *FileWatcher) trigger(ctx context.Context) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		res, err := fw.manager.LoadFile(ctx, fw.path)
		if err != nil {
			fw.logger.Error("policy reload failed", "path", fw.path, "error", err)
			return
		}
		fw.logger.Info("policy file reloaded", "path", fw.path,
			"created", res.Created, "updated", res.Updated, "deleted", res.Deleted)
	})
}

func (fw *FileWatcher) stopTimer() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
}
