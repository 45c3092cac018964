package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/haasonsaas/nexus/internal/observability"
)

// Hot-reloadable values: stall thresholds and subscription buffer size only
// (spec §12 supplemented feature — the rest of Config is startup-only, per
// spec §5's "Global configuration... is read-only after startup;
// reconfiguration requires a quiesce").
type Tunables struct {
	StallWarnSeconds   int
	StallSevereSeconds int
	SubscriptionBuffer int
}

func (c Config) tunables() Tunables {
	return Tunables{
		StallWarnSeconds:   c.Mission.StallWarnSeconds,
		StallSevereSeconds: c.Mission.StallSevereSeconds,
		SubscriptionBuffer: c.Mission.SubscriptionBuffer,
	}
}

// Watcher watches a config file for changes and re-parses just the
// hot-reloadable Tunables, handing each new value to onChange.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *observability.Logger

	mu      sync.Mutex
	current Tunables
}

// WatchTunables starts watching path for writes, loading the full Config on
// each change but only surfacing the Tunables subset to onChange. Returns
// nil if path is empty (hot-reload is opt-in). Close stops the watcher.
func WatchTunables(ctx context.Context, path string, initial Config, logger *observability.Logger, onChange func(Tunables)) (*Watcher, error) {
	if path == "" {
		return nil, nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{path: path, watcher: fsw, logger: logger, current: initial.tunables()}
	go w.run(ctx, onChange)
	return w, nil
}

func (w *Watcher) run(ctx context.Context, onChange func(Tunables)) {
	defer w.watcher.Close()
	// Debounce: fsnotify commonly fires multiple events per save.
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(200*time.Millisecond, func() {
				w.reload(ctx, onChange)
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error(ctx, "config watch error", "path", w.path, "error", err)
			}
		}
	}
}

func (w *Watcher) reload(ctx context.Context, onChange func(Tunables)) {
	cfg, err := Load(w.path)
	if err != nil {
		if w.logger != nil {
			w.logger.Error(ctx, "config hot-reload failed, keeping previous values", "path", w.path, "error", err)
		}
		return
	}
	next := cfg.tunables()

	w.mu.Lock()
	changed := next != w.current
	w.current = next
	w.mu.Unlock()

	if changed {
		if w.logger != nil {
			w.logger.Info(ctx, "config hot-reloaded", "path", w.path, "stall_warn_seconds", next.StallWarnSeconds, "stall_severe_seconds", next.StallSevereSeconds, "subscription_buffer", next.SubscriptionBuffer)
		}
		if onChange != nil {
			onChange(next)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w == nil || w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
