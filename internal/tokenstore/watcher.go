package tokenstore

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"authflow/pkg/logging"
)

// Event describes a change to a persisted state file.
type Event struct {
	// Provider is the provider whose state changed, "" when the name
	// could not be resolved.
	Provider string

	// Removed is true when the state file was deleted.
	Removed bool
}

// Watch reports changes to the store's directory until the context is
// cancelled. The returned channel is closed on cancellation or watcher
// failure. Requires file mode.
func (s *Store) Watch(ctx context.Context) (<-chan Event, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.storageDir); err != nil {
		watcher.Close()
		return nil, err
	}

	// Key-to-provider index so removals can still be attributed after the
	// file and cache entry are gone.
	names := make(map[string]string)
	for _, stored := range s.List() {
		names[s.stateKey(stored.Provider)] = stored.Provider
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(ev.Name) != ".json" {
					continue
				}
				out := s.resolveEvent(ev, names)
				select {
				case events <- out:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("TokenStore", "State watcher error: %v", err)
			}
		}
	}()

	return events, nil
}

// resolveEvent maps a filesystem event back to a provider name. Writes are
// resolved by re-reading the file; removals fall back to the names index.
func (s *Store) resolveEvent(ev fsnotify.Event, names map[string]string) Event {
	key := strings.TrimSuffix(filepath.Base(ev.Name), ".json")

	if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
		s.mu.Lock()
		delete(s.cache, key)
		s.mu.Unlock()
		return Event{Provider: names[key], Removed: true}
	}

	stored, err := s.readStateFile(key)
	if err != nil {
		return Event{}
	}

	s.mu.Lock()
	s.cache[key] = stored
	s.mu.Unlock()

	names[key] = stored.Provider
	return Event{Provider: stored.Provider}
}
