package clip

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// EventOp is the kind of catalog change.
type EventOp string

const (
	Added   EventOp = "added"
	Removed EventOp = "removed"
)

// Event reports a clip entering or leaving the catalog.
type Event struct {
	Op   EventOp
	ID   ID
	Path string
}

// Watcher reports catalog membership changes, including out-of-band
// deletions the store itself never sees.
type Watcher struct {
	store     *Store
	fsWatcher *fsnotify.Watcher
	events    chan Event
	last      Catalog
	logger    *slog.Logger
}

// NewWatcher watches the store's audio and metadata directories. Changes are
// reported relative to the catalog as it is when NewWatcher returns.
func NewWatcher(store *Store, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, dir := range []string{store.Root(), store.MetadataDir()} {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	last, err := store.Catalog()
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:     store,
		fsWatcher: fsWatcher,
		events:    make(chan Event, 64),
		last:      last,
		logger:    logger,
	}, nil
}

// Events returns the channel of catalog changes. It is closed when Run returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run diffs catalog snapshots on every filesystem change until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.fsWatcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			// temp files, the lock and the chain index never change membership
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			next, err := w.store.Catalog()
			if err != nil {
				w.logger.Warn("catalog rescan failed", "error", err)
				continue
			}
			if !w.publish(ctx, w.last, next) {
				return nil
			}
			w.last = next
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog watcher error", "error", err)
		}
	}
}

func (w *Watcher) publish(ctx context.Context, prev, next Catalog) bool {
	for _, id := range next.IDs() {
		if _, ok := prev[id]; !ok {
			if !w.send(ctx, Event{Op: Added, ID: id, Path: next[id]}) {
				return false
			}
		}
	}
	for _, id := range prev.IDs() {
		if _, ok := next[id]; !ok {
			if !w.send(ctx, Event{Op: Removed, ID: id, Path: prev[id]}) {
				return false
			}
		}
	}
	return true
}

func (w *Watcher) send(ctx context.Context, e Event) bool {
	select {
	case w.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
