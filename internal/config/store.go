package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store owns the current Settings snapshot and pushes fresh snapshots
// to subscribers when the file changes on disk. A failed re-parse keeps
// the previous snapshot; the pipeline never sees a half-applied file.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
	subs    []func(Settings)
}

// NewStore loads the file once and returns a store holding the result.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: filepath.Clean(path), current: cfg}, nil
}

// NewStaticStore wraps fixed settings with no backing file. Watch
// blocks until cancelled and Reload is a no-op.
func NewStaticStore(cfg Settings) *Store {
	return &Store{current: cfg}
}

// Get returns the current snapshot.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// OnChange registers fn to be called with every snapshot applied after
// registration. Callbacks run on the watcher goroutine and must not
// block for long.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Reload re-parses the file, swaps the snapshot, and notifies
// subscribers. On parse failure the old snapshot stays in place.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	subs := make([]func(Settings), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}
	return nil
}

// Watch blocks, re-parsing the file whenever it is written or replaced,
// until ctx is cancelled. The containing directory is watched rather
// than the file itself so that editors and tools that rename a fresh
// file over the old one still trigger a reload.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create settings watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				log.Printf("config: reload of %s failed, keeping previous settings: %v", s.path, err)
				continue
			}
			log.Printf("config: reloaded %s", s.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("config: watcher error: %v", err)
		}
	}
}
