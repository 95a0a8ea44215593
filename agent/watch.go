package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

// Watcher reloads a Registry whenever the agents directory changes.
type Watcher struct {
	Dir      string
	Registry *Registry
	Debounce time.Duration
	Logger   *slog.Logger

	// OnReload, when set, is called after every successful reload.
	OnReload func(agents []Descriptor)
}

// Watch runs a Watcher with default settings until ctx ends.
func Watch(ctx context.Context, dir string, registry *Registry, logger *slog.Logger) error {
	w := &Watcher{Dir: dir, Registry: registry, Logger: logger}
	return w.Run(ctx)
}

// Run watches Dir and its agent sub-directories until ctx ends. Bursts of
// file events are coalesced into one reload per Debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("agent: watch %s: %w", w.Dir, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("agent: watch %s: %w", w.Dir, err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.Dir); err != nil {
		return fmt.Errorf("agent: watch %s: %w", w.Dir, err)
	}
	w.addSubdirs(fsw, logger)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = fsw.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("agents watcher error", "dir", w.Dir, "error", err)
		case <-fire:
			fire = nil
			w.reload(logger)
		}
	}
}

func (w *Watcher) addSubdirs(fsw *fsnotify.Watcher, logger *slog.Logger) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := fsw.Add(w.Dir + string(os.PathSeparator) + e.Name()); err != nil {
			logger.Warn("watch agent dir", "agent", e.Name(), "error", err)
		}
	}
}

func (w *Watcher) reload(logger *slog.Logger) {
	agents, err := LoadDir(w.Dir)
	if err != nil {
		logger.Warn("agents reloaded with errors", "dir", w.Dir, "error", err)
	}
	w.Registry.Replace(agents)
	logger.Info("agents reloaded", "dir", w.Dir, "count", len(agents))
	if w.OnReload != nil {
		w.OnReload(agents)
	}
}
