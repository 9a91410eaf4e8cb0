package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/goclaw/memkeeper/pkg/logger"
)

const defaultDebounce = 300 * time.Millisecond

// Watcher reloads a configuration file when it changes on disk and hands
// the result to the registered callbacks.
//
// The parent directory is watched rather than the file itself, so an editor
// that saves by writing a temporary file and renaming it over the original
// is still noticed. Bursts of events are collapsed: a reload happens once the
// file has been quiet for the debounce interval. Callbacks run one after the
// other on the goroutine that called Watch.
type Watcher struct {
	fs        *fsnotify.Watcher
	loader    *Loader
	path      string
	overrides map[string]interface{}
	debounce  time.Duration
	log       logger.Logger

	mu        sync.Mutex
	callbacks []func(*Config)
	running   bool

	stop     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must stay quiet before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used for reload failures.
func WithLogger(log logger.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = log
	}
}

// WithOverrides re-applies command line overrides on every reload so a flag
// keeps winning over the file.
func WithOverrides(overrides map[string]interface{}) WatcherOption {
	return func(w *Watcher) {
		w.overrides = overrides
	}
}

// NewWatcher returns a watcher for configPath. Nothing is watched until Watch.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, errors.New("config path is required for watching")
	}
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:       fsw,
		loader:   loader,
		path:     abs,
		debounce: defaultDebounce,
		log:      logger.Global(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.With("component", "config-watcher", "path", abs)
	return w, nil
}

// Watch blocks, reloading the file after each change, until ctx is done or
// Stop is called. A missing directory is an error; a missing file is not,
// it is picked up once created.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		select {
		case <-w.stop:
			return nil
		default:
		}
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-w.stop:
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload(ctx)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.log.WarnContext(ctx, "config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := w.loader.Load(w.path, w.overrides)
	if err != nil {
		w.log.ErrorContext(ctx, "config reload failed, keeping previous values", "error", err)
		return
	}
	for _, warning := range cfg.Warnings {
		w.log.WarnContext(ctx, "invalid config value replaced by default", "error", warning)
	}

	w.mu.Lock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	for _, cb := range callbacks {
		w.notify(ctx, cb, cfg)
	}
}

func (w *Watcher) notify(ctx context.Context, cb func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.ErrorContext(ctx, "config callback panic", "panic", r)
		}
	}()
	cb(cfg)
}

// OnChange registers fn to receive every successfully reloaded Config.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Stop ends Watch and releases the fsnotify handle. Safe to call twice.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		err = w.fs.Close()
	})
	return err
}

// IsRunning reports whether Watch is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// ConfigPath returns the absolute path being watched.
func (w *Watcher) ConfigPath() string {
	return w.path
}

// HotReloadableConfig holds the settings a running server picks up without
// a restart.
type HotReloadableConfig struct {
	LogLevel            string
	DedupThreshold      float64
	SearchLimit         int
	MaxLocalPerCategory int
}

// ExtractHotReloadable extracts the hot-reloadable subset of cfg.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:            cfg.Log.Level,
		DedupThreshold:      cfg.Memory.DedupThreshold,
		SearchLimit:         cfg.Memory.SearchLimit,
		MaxLocalPerCategory: cfg.Memory.MaxLocalPerCategory,
	}
}

// Changed reports whether h differs from other.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
