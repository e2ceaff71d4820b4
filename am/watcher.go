package am

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/rpawatch/errors"
)

// ConfigWatcher watches a config file and invokes callbacks after it changes
type ConfigWatcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	callbacks      []ReloadCallback
	mu             sync.RWMutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	load           func() (*Config, error)
	logger         *zap.SugaredLogger
	done           chan struct{}
	wg             sync.WaitGroup

	ownWriteMu    sync.Mutex
	ownWriteUntil time.Time
}

// ReloadCallback receives the freshly loaded config
type ReloadCallback func(*Config) error

var (
	globalWatcher   *ConfigWatcher
	globalWatcherMu sync.Mutex
)

// NewConfigWatcher watches configPath. The directory is watched so editors
// that replace the file on save are seen too.
func NewConfigWatcher(configPath string, log *zap.SugaredLogger) (*ConfigWatcher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := w.Add(filepath.Dir(configPath)); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &ConfigWatcher{
		configPath:     filepath.Clean(configPath),
		watcher:        w,
		debouncePeriod: 500 * time.Millisecond,
		load:           reloadCascade,
		logger:         log,
		done:           make(chan struct{}),
	}, nil
}

// reloadCascade drops the cached config and loads all sources again
func reloadCascade() (*Config, error) {
	Reset()
	return Load()
}

// OnReload registers a callback
func (cw *ConfigWatcher) OnReload(callback ReloadCallback) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

// MarkOwnWrite ignores change events for the next two debounce periods.
// A single write can surface as several events.
func (cw *ConfigWatcher) MarkOwnWrite() {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	cw.ownWriteUntil = time.Now().Add(2 * cw.debouncePeriod)
}

func (cw *ConfigWatcher) checkOwnWrite() bool {
	cw.ownWriteMu.Lock()
	defer cw.ownWriteMu.Unlock()
	return time.Now().Before(cw.ownWriteUntil)
}

// Start begins watching for changes
func (cw *ConfigWatcher) Start() {
	cw.wg.Add(1)
	go cw.watchLoop()
	cw.logger.Infow("Config watcher started", "path", cw.configPath)
}

func (cw *ConfigWatcher) watchLoop() {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath || isBackupFile(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if cw.checkOwnWrite() {
				cw.logger.Debugw("Config watcher ignoring own write", "file", event.Name)
				continue
			}
			cw.logger.Infow("Config watcher detected change",
				"file", event.Name,
				"op", event.Op.String())
			cw.scheduleReload()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload debounces bursts of events into one reload
func (cw *ConfigWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, func() {
		if err := cw.reload(); err != nil {
			cw.logger.Errorw("Config reload failed", "error", err)
		}
	})
}

// reload loads the config, validates it and runs every callback. An invalid
// config is rejected and callbacks are not run.
func (cw *ConfigWatcher) reload() error {
	cfg, err := cw.load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "reloaded config is invalid")
	}

	cw.logger.Infow("Config reloaded", "path", cw.configPath)

	cw.mu.RLock()
	callbacks := make([]ReloadCallback, len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			cw.logger.Warnw("Config reload callback error", "error", err)
		}
	}
	return nil
}

// Stop stops watching
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.mu.Unlock()

	close(cw.done)
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}

// isBackupFile matches the rotating .backN copies written by SetValue
func isBackupFile(path string) bool {
	ext := filepath.Ext(path)
	return strings.HasPrefix(ext, ".back")
}

// SetGlobalWatcher sets the watcher SetValue notifies of its own writes
func SetGlobalWatcher(watcher *ConfigWatcher) {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	globalWatcher = watcher
}

// GetGlobalWatcher returns the global watcher instance
func GetGlobalWatcher() *ConfigWatcher {
	globalWatcherMu.Lock()
	defer globalWatcherMu.Unlock()
	return globalWatcher
}
