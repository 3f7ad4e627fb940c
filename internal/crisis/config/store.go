package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
	"github.com/lifeline-care/crisis/internal/shared/logging"
)

// Store holds the current resolved config. Readers get an immutable snapshot;
// reloads swap in a newly built value.
type Store struct {
	current atomic.Pointer[ResolvedConfig]

	overrideFile string
	remote       *RemoteLoader
	logger       *zap.Logger
	debounce     time.Duration

	mu         sync.Mutex // serializes rebuilds
	lastFile   *PartialConfig
	lastRemote *PartialConfig
	listeners  []func(*ResolvedConfig)
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithOverrideFile layers a YAML override file between the defaults and the remote payload.
func WithOverrideFile(path string) StoreOption {
	return func(s *Store) { s.overrideFile = path }
}

// WithRemote sets the remote override loader.
func WithRemote(l *RemoteLoader) StoreOption {
	return func(s *Store) { s.remote = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithDebounce sets how long the watcher waits for file events to settle.
func WithDebounce(d time.Duration) StoreOption {
	return func(s *Store) { s.debounce = d }
}

// NewStore creates a store holding the defaults. Call Reload to apply overrides.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{debounce: 250 * time.Millisecond}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With(zap.String("component", "crisis_config"))
	s.current.Store(Defaults())
	return s
}

// Current returns the active config.
func (s *Store) Current() *ResolvedConfig {
	return s.current.Load()
}

// OnChange registers fn to be called with every newly installed config.
func (s *Store) OnChange(fn func(*ResolvedConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload rebuilds the config from defaults, the override file and a fresh
// remote fetch. An invalid layer is skipped and reported as a *ConfigError;
// the installed config is always valid.
func (s *Store) Reload(ctx context.Context) error {
	remote := s.remote.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRemote = remote
	return s.rebuildLocked()
}

// reloadFile rebuilds after an override file change, reusing the last remote payload.
func (s *Store) reloadFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked()
}

func (s *Store) rebuildLocked() error {
	var errs []error
	cfg := Defaults()

	if s.overrideFile != "" {
		partial, err := LoadFile(s.overrideFile)
		if err != nil {
			errs = append(errs, &apperrors.ConfigError{Source: "file", Err: err})
			partial = s.lastFile
		}
		if partial != nil {
			next, err := Overlay(cfg, partial, "file")
			switch {
			case err == nil:
				s.lastFile = partial
			case s.lastFile != nil && partial != s.lastFile:
				// keep the last file contents that validated
				errs = append(errs, err)
				next, _ = Overlay(cfg, s.lastFile, "file")
			default:
				errs = append(errs, err)
			}
			cfg = next
		}
	}

	if s.lastRemote != nil {
		var err error
		if cfg, err = Overlay(cfg, s.lastRemote, "remote"); err != nil {
			errs = append(errs, err)
		}
	}

	for _, err := range errs {
		s.logger.Warn("crisis config layer rejected", zap.Error(err))
	}

	s.current.Store(cfg)
	for _, fn := range s.listeners {
		fn(cfg)
	}
	s.logger.Info("crisis config installed",
		zap.Int("countries", len(cfg.Resources)),
		zap.Int("combinations", len(cfg.Combinations)),
	)
	return errors.Join(errs...)
}

// Watch reloads the override file whenever it changes, until ctx is done.
// The directory is watched so editors that save by rename are picked up.
func (s *Store) Watch(ctx context.Context) error {
	if s.overrideFile == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	dir := filepath.Dir(s.overrideFile)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go s.watchLoop(ctx, w)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher) {
	defer w.Close()

	target := filepath.Clean(s.overrideFile)
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.debounce)
			} else {
				timer.Reset(s.debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Error("override file watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			if err := s.reloadFile(); err != nil {
				s.logger.Warn("override file reload kept previous layers", zap.Error(err))
			}
		}
	}
}
