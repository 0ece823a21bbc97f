package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

var (
	errMissingOwner   = errors.New("session: owner id is required")
	errMissingBackend = errors.New("session: backend is required")
	errMissingFeed    = errors.New("session: change feed is required")
)

// Config wires one signed-in owner's session.
type Config struct {
	OwnerID string
	Backend Backend
	Feed    Feed
	Policy  TogglePolicy
	Logger  *zap.Logger
}

// Session owns the record store, the mutation gateway, and the change feed
// subscription for one signed-in owner. It is constructed explicitly and
// torn down explicitly: there is no ambient global state.
type Session struct {
	ownerID bookmarks.OwnerID
	store   *Store
	gateway *Gateway
	feed    Feed
	logger  *zap.Logger

	done     chan struct{}
	adapters sync.WaitGroup
	teardown sync.Once

	mu        sync.Mutex
	lastQuery Query
}

// Open validates the configuration, performs the initial bulk read, and
// starts consuming the change feed. The feed should be subscribed before
// Open so changes committed during the bulk read are not missed; events
// arriving mid-read are applied on top of the bulk result.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	ownerID, err := bookmarks.NewOwnerID(cfg.OwnerID)
	if err != nil {
		return nil, errMissingOwner
	}
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	if cfg.Feed == nil {
		return nil, errMissingFeed
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyOptimistic
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	store := NewStore(ownerID)
	records, err := cfg.Backend.ListForOwner(ctx, ownerID)
	if err != nil {
		cfg.Feed.Cancel()
		return nil, &bookmarks.BackendError{Op: "bulk_read", Err: err}
	}
	store.ReplaceAll(records)

	s := &Session{
		ownerID: ownerID,
		store:   store,
		feed:    cfg.Feed,
		logger:  logger,
		done:    make(chan struct{}),
	}
	s.gateway = &Gateway{
		ownerID: ownerID,
		backend: cfg.Backend,
		store:   store,
		policy:  policy,
		done:    s.done,
		logger:  logger,
	}

	adapter := &feedAdapter{store: store, logger: logger}
	s.adapters.Add(1)
	go func() {
		defer s.adapters.Done()
		adapter.run(cfg.Feed)
	}()

	logger.Info("session opened",
		zap.String("owner_id", ownerID.String()),
		zap.Int("records", store.Len()),
		zap.String("toggle_policy", string(policy)))
	return s, nil
}

// OwnerID returns the owner this session is scoped to.
func (s *Session) OwnerID() bookmarks.OwnerID {
	return s.ownerID
}

// Snapshot exposes the current record collection as an immutable copy.
func (s *Session) Snapshot() []bookmarks.Bookmark {
	return s.store.Snapshot()
}

// ProjectedView derives the display state for the query. The page index
// resets to 1 whenever a filter input changed since the previous call.
func (s *Session) ProjectedView(query Query) View {
	s.mu.Lock()
	normalized := query.Normalize(s.lastQuery)
	s.lastQuery = normalized
	s.mu.Unlock()
	return Project(s.store.Snapshot(), normalized)
}

// Stats summarizes the collection for dashboard counters.
type Stats struct {
	Total     int
	Favorites int
	Pinned    int
}

// Stats counts the current snapshot by flag.
func (s *Session) Stats() Stats {
	stats := Stats{}
	for _, record := range s.store.Snapshot() {
		stats.Total++
		if record.IsFavorite {
			stats.Favorites++
		}
		if record.IsPinned {
			stats.Pinned++
		}
	}
	return stats
}

// Create adds a bookmark through the mutation gateway.
func (s *Session) Create(ctx context.Context, title, url, category string) (bookmarks.Bookmark, error) {
	return s.gateway.Create(ctx, title, url, category)
}

// Delete removes a bookmark through the mutation gateway.
func (s *Session) Delete(ctx context.Context, bookmarkID string) error {
	return s.gateway.Delete(ctx, bookmarkID)
}

// TogglePinned flips the pinned flag through the mutation gateway.
func (s *Session) TogglePinned(ctx context.Context, bookmarkID string, next bool) error {
	return s.gateway.TogglePinned(ctx, bookmarkID, next)
}

// ToggleFavorite flips the favorite flag through the mutation gateway.
func (s *Session) ToggleFavorite(ctx context.Context, bookmarkID string, next bool) error {
	return s.gateway.ToggleFavorite(ctx, bookmarkID, next)
}

// Refresh re-runs the bulk read and replaces the store contents, closing
// any staleness window left by a feed reconnect.
func (s *Session) Refresh(ctx context.Context) error {
	records, err := s.gateway.backend.ListForOwner(ctx, s.ownerID)
	if err != nil {
		return &bookmarks.BackendError{Op: "bulk_read", Err: err}
	}
	if s.closed() {
		return nil
	}
	s.store.ReplaceAll(records)
	return nil
}

// Teardown cancels the change feed, waits for the adapter to drain, and
// discards the store. Mutations still in flight observe the closed session
// and drop their results. Safe to call more than once.
func (s *Session) Teardown() {
	s.teardown.Do(func() {
		close(s.done)
		s.feed.Cancel()
		s.adapters.Wait()
		s.store.ReplaceAll(nil)
		s.logger.Info("session torn down", zap.String("owner_id", s.ownerID.String()))
	})
}

func (s *Session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
