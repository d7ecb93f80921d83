package config

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Watcher monitors a file for changes, decodes it with a caller-supplied
// loader and calls a callback when the decoded value changes. It uses
// polling (not fsnotify) to keep dependencies minimal.
//
// The CLI uses it to hot-reload the pattern table while the MCP server runs;
// [NewConfigWatcher] watches the configuration file itself.
type Watcher[T any] struct {
	path     string
	interval time.Duration
	log      *slog.Logger
	load     func(data []byte) (T, error)
	onChange func(old, new T)

	mu       sync.Mutex
	current  T
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [32]byte
}

type watcherSettings struct {
	interval time.Duration
	log      *slog.Logger
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*watcherSettings)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(s *watcherSettings) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWatcherLogger sets the logger used for reload and failure messages.
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(s *watcherSettings) {
		if l != nil {
			s.log = l
		}
	}
}

// NewWatcher creates a file watcher. It loads the file immediately and
// starts polling in a background goroutine. onChange may be nil.
func NewWatcher[T any](path string, load func([]byte) (T, error), onChange func(old, new T), opts ...WatcherOption) (*Watcher[T], error) {
	s := watcherSettings{interval: 5 * time.Second, log: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	w := &Watcher[T]{
		path:     path,
		interval: s.interval,
		log:      s.log,
		load:     load,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	v, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = v
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// NewConfigWatcher watches a YAML configuration file. Invalid revisions are
// logged and ignored; the last valid [Config] stays current.
func NewConfigWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher[*Config], error) {
	return NewWatcher(path, DecodeConfig, onChange, opts...)
}

// Current returns the most recently loaded valid value.
func (w *Watcher[T]) Current() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop stops the file watcher. It is safe to call more than once.
func (w *Watcher[T]) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher[T]) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file when its mtime moved and its content hash changed.
func (w *Watcher[T]) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	v, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		w.log.Warn("watcher: failed to load file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		// Touched, content identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = v
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	w.log.Info("watcher: file reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, v)
	}
}

func (w *Watcher[T]) loadAndHash() (T, [32]byte, time.Time, error) {
	var zero T
	data, err := os.ReadFile(w.path)
	if err != nil {
		return zero, [32]byte{}, time.Time{}, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return zero, [32]byte{}, time.Time{}, err
	}
	v, err := w.load(data)
	if err != nil {
		return zero, [32]byte{}, time.Time{}, err
	}
	return v, blake3.Sum256(data), info.ModTime(), nil
}
