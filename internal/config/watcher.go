package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/happysentences/internal/resilience"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// ReloadFunc receives a newly loaded config together with what changed
// compared to the previous one. It is only called when the diff is not empty.
type ReloadFunc func(next *Config, d ConfigDiff)

// Watcher polls a config file and reports tracked changes. A file that fails
// to parse or validate is logged and ignored; the last good config stays
// current. A file that disappears is reported once and picked up again when
// it comes back.
type Watcher struct {
	path      string
	interval  time.Duration
	onReload  ReloadFunc
	lookupEnv func(string) (string, bool)
	clock     resilience.Clock

	mu      sync.Mutex
	current *Config
	stamp   fileStamp
	sum     [sha256.Size]byte
	missing bool

	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// fileStamp is the cheap change check done before hashing.
type fileStamp struct {
	mtime time.Time
	size  int64
}

func stampOf(info fs.FileInfo) fileStamp {
	return fileStamp{mtime: info.ModTime(), size: info.Size()}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithEnv applies environment overrides from lookup to every loaded config.
// [NewWatcher] uses [os.LookupEnv] unless this option is given.
func WithEnv(lookup func(string) (string, bool)) WatcherOption {
	return func(w *Watcher) { w.lookupEnv = lookup }
}

// WithInterval sets the polling interval. Default: [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchClock sets the clock that drives polling.
func WithWatchClock(c resilience.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// NewWatcher loads path and starts polling it. The initial load must succeed.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:      path,
		interval:  DefaultWatchInterval,
		onReload:  onReload,
		lookupEnv: os.LookupEnv,
		clock:     resilience.SystemClock{},
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, stamp, sum, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.stamp, w.sum = cfg, stamp, sum

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for the poll goroutine to exit. It is safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case <-w.clock.After(w.interval):
			w.check()
		}
	}
}

// check reloads the file when its stamp moved and its content hash changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.mu.Lock()
		first := !w.missing
		w.missing = true
		w.mu.Unlock()
		if first {
			slog.Warn("config file unavailable, keeping the current config", "path", w.path, "err", err)
		}
		return
	}

	w.mu.Lock()
	if w.missing {
		w.missing = false
		slog.Info("config file is back", "path", w.path)
	}
	unchanged := stampOf(info) == w.stamp
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, stamp, sum, err := w.load()
	if err != nil {
		slog.Warn("config reload rejected, keeping the current config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.stamp = stamp
	if sum == w.sum {
		w.mu.Unlock()
		return
	}
	prev := w.current
	w.current, w.sum = cfg, sum
	w.mu.Unlock()

	d := Diff(prev, cfg)
	slog.Info("config reloaded", "path", w.path, "log_level_changed", d.LogLevelChanged, "restart_required", d.RestartRequired)
	if d.Changed() && w.onReload != nil {
		w.onReload(cfg, d)
	}
}

func (w *Watcher) load() (*Config, fileStamp, [sha256.Size]byte, error) {
	var sum [sha256.Size]byte
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fileStamp{}, sum, errors.New("config file is empty")
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fileStamp{}, sum, err
	}
	if w.lookupEnv != nil {
		ApplyEnv(cfg, w.lookupEnv)
	}
	return cfg, stampOf(info), sha256.Sum256(data), nil
}
