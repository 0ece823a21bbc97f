package session

import (
	"context"
	"strconv"
	"testing"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

func TestOpenPerformsBulkRead(t *testing.T) {
	backend := newFakeBackend()
	backend.seed(
		testBookmark("bm-1", "owner-1", false, false, 100),
		testBookmark("bm-2", "owner-1", true, false, 200),
		testBookmark("bm-3", "owner-2", false, false, 300),
	)
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{
		OwnerID: "owner-1",
		Backend: backend,
		Feed:    feed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Teardown()

	if len(s.Snapshot()) != 2 {
		t.Fatalf("expected 2 owned records after bulk read, got %d", len(s.Snapshot()))
	}
}

func TestOpenCancelsFeedOnBulkReadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.failList = true
	feed := newFakeFeed()

	if _, err := Open(context.Background(), Config{
		OwnerID: "owner-1",
		Backend: backend,
		Feed:    feed,
	}); err == nil {
		t.Fatal("expected bulk read failure to surface")
	}

	select {
	case _, open := <-feed.events:
		if open {
			t.Fatal("expected feed to be cancelled")
		}
	default:
		t.Fatal("expected feed channel to be closed")
	}
}

func TestSessionAppliesFeedEvents(t *testing.T) {
	backend := newFakeBackend()
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{
		OwnerID: "owner-1",
		Backend: backend,
		Feed:    feed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Teardown()

	record := testBookmark("bm-1", "owner-1", false, true, 100)
	feed.push(bookmarks.ChangeEvent{
		Kind:       bookmarks.ChangeKindCreated,
		BookmarkID: "bm-1",
		OwnerID:    "owner-1",
		Row:        record.Row(),
	})

	waitForCondition(t, func() bool {
		return len(s.Snapshot()) == 1
	})

	feed.push(bookmarks.ChangeEvent{
		Kind:       bookmarks.ChangeKindDeleted,
		BookmarkID: "bm-1",
		OwnerID:    "owner-1",
	})

	waitForCondition(t, func() bool {
		return len(s.Snapshot()) == 0
	})
}

func TestSessionStats(t *testing.T) {
	backend := newFakeBackend()
	backend.seed(
		testBookmark("bm-1", "owner-1", true, true, 100),
		testBookmark("bm-2", "owner-1", true, false, 200),
		testBookmark("bm-3", "owner-1", false, false, 300),
	)
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{OwnerID: "owner-1", Backend: backend, Feed: feed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Teardown()

	stats := s.Stats()
	if stats.Total != 3 || stats.Pinned != 2 || stats.Favorites != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestProjectedViewResetsPageWhenFiltersChange(t *testing.T) {
	backend := newFakeBackend()
	for i := 0; i < 12; i++ {
		backend.seed(testBookmark(formatID(i), "owner-1", false, false, int64(1000-i)))
	}
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{OwnerID: "owner-1", Backend: backend, Feed: feed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Teardown()

	s.ProjectedView(Query{PageSize: 5})
	steady := s.ProjectedView(Query{PageSize: 5, Page: 3})
	if steady.Page != 3 {
		t.Fatalf("expected page 3 with unchanged filters, got %d", steady.Page)
	}

	filtered := s.ProjectedView(Query{PageSize: 5, Page: 3, SearchTerm: "Title"})
	if filtered.Page != 1 {
		t.Fatalf("expected a filter change to reset to page 1, got %d", filtered.Page)
	}
}

func TestTeardownDiscardsLateMutationResults(t *testing.T) {
	backend := newFakeBackend()
	record := testBookmark("bm-1", "owner-1", false, false, 100)
	backend.seed(record)
	backend.setFlagGate = make(chan struct{})
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{
		OwnerID: "owner-1",
		Backend: backend,
		Feed:    feed,
		Policy:  PolicyConfirmed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	toggleResult := make(chan error, 1)
	go func() {
		toggleResult <- s.TogglePinned(context.Background(), "bm-1", true)
	}()
	waitForCondition(t, func() bool {
		return backend.callCount() >= 2 // list + set_flag
	})

	s.Teardown()
	close(backend.setFlagGate)

	if err := <-toggleResult; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Snapshot()) != 0 {
		t.Fatal("results resolving after teardown must be discarded")
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{OwnerID: "owner-1", Backend: backend, Feed: feed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Teardown()
	s.Teardown()
}

func TestRefreshReplacesStoreContents(t *testing.T) {
	backend := newFakeBackend()
	backend.seed(testBookmark("bm-1", "owner-1", false, false, 100))
	feed := newFakeFeed()

	s, err := Open(context.Background(), Config{OwnerID: "owner-1", Backend: backend, Feed: feed})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Teardown()

	backend.seed(testBookmark("bm-2", "owner-1", false, false, 200))
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected refresh error: %v", err)
	}
	if len(s.Snapshot()) != 2 {
		t.Fatalf("expected refreshed snapshot with 2 records, got %d", len(s.Snapshot()))
	}
}

func formatID(index int) string {
	return "bm-" + strconv.Itoa(index)
}
