package session

import (
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

// Feed is a live, cancellable stream of one owner's change events. After
// Cancel returns no further events are delivered and Events is closed.
type Feed interface {
	Events() <-chan bookmarks.ChangeEvent
	Cancel()
}

// feedAdapter bridges change events into store mutations. Every mutation
// it issues is idempotent, so redelivered or reordered events around a
// feed reconnect converge to the same store state. It never replays
// missed events; a fresh bulk read is the recovery path when strict
// freshness is required.
type feedAdapter struct {
	store  *Store
	logger *zap.Logger
}

// run consumes the feed until its channel closes. Intended to run on its
// own goroutine for the lifetime of a session.
func (a *feedAdapter) run(feed Feed) {
	for event := range feed.Events() {
		a.apply(event)
	}
	a.logger.Debug("change feed drained")
}

func (a *feedAdapter) apply(event bookmarks.ChangeEvent) {
	switch event.Kind {
	case bookmarks.ChangeKindCreated:
		record, err := bookmarks.BookmarkFromRow(event.Row)
		if err != nil {
			a.logger.Warn("dropping malformed created event",
				zap.String("bookmark_id", event.BookmarkID), zap.Error(err))
			return
		}
		// An optimistic echo may already hold this id; never double-insert.
		a.store.UpsertIfAbsent(record)
	case bookmarks.ChangeKindUpdated:
		existing, ok := a.store.Get(event.BookmarkID)
		if ok {
			merged, err := bookmarks.OverlayRow(existing, event.Row)
			if err != nil {
				a.logger.Warn("dropping malformed updated event",
					zap.String("bookmark_id", event.BookmarkID), zap.Error(err))
				return
			}
			a.store.Upsert(merged)
			return
		}
		// Unknown id: the event may carry the full row, e.g. when an update
		// raced ahead of its create during reconnection.
		record, err := bookmarks.BookmarkFromRow(event.Row)
		if err != nil {
			a.logger.Debug("skipping partial update for unknown bookmark",
				zap.String("bookmark_id", event.BookmarkID))
			return
		}
		a.store.Upsert(record)
	case bookmarks.ChangeKindDeleted:
		a.store.Remove(event.BookmarkID)
	default:
		a.logger.Warn("unknown change event kind", zap.String("kind", string(event.Kind)))
	}
}
