package chain

import (
	"context"
	"log/slog"

	"github.com/satindergrewal/clipchain/internal/clip"
)

// Sync rebuilds the index from the store's catalog members. Records that
// fail to load are logged and left out. It returns the number of indexed clips.
func Sync(ctx context.Context, x *Index, store *clip.Store, logger *slog.Logger) (int, error) {
	catalog, err := store.Catalog()
	if err != nil {
		return 0, err
	}
	records, bad, err := store.Records()
	if err != nil {
		return 0, err
	}
	for id, loadErr := range bad {
		logger.Warn("skipping unreadable clip metadata", "clip", id, "error", loadErr)
	}
	for id := range records {
		if _, ok := catalog[id]; !ok {
			delete(records, id)
		}
	}
	if err := x.Rebuild(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Follow applies catalog events to the index until events is closed or ctx
// is done.
func Follow(ctx context.Context, x *Index, store *clip.Store, events <-chan clip.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e.Op {
			case clip.Added:
				m, err := store.Metadata(e.ID)
				if err != nil {
					logger.Warn("cannot index clip", "clip", e.ID, "error", err)
					continue
				}
				if err := x.Put(ctx, e.ID, m); err != nil {
					logger.Warn("cannot index clip", "clip", e.ID, "error", err)
					continue
				}
				logger.Debug("clip indexed", "clip", e.ID)
			case clip.Removed:
				if err := x.Delete(ctx, e.ID); err != nil {
					logger.Warn("cannot unindex clip", "clip", e.ID, "error", err)
					continue
				}
				logger.Debug("clip unindexed", "clip", e.ID)
			}
		}
	}
}
