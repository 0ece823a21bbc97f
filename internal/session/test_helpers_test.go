package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

func waitForCondition(t *testing.T, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

var errBackendDown = errors.New("backend unavailable")

// fakeBackend records calls and serves scripted responses for gateway and
// session tests.
type fakeBackend struct {
	mu          sync.Mutex
	records     map[string]bookmarks.Bookmark
	nextID      int
	failCreate  bool
	failSetFlag bool
	failDelete  bool
	failList    bool
	setFlagGate chan struct{}
	calls       []string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[string]bookmarks.Bookmark)}
}

func (b *fakeBackend) seed(records ...bookmarks.Bookmark) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, record := range records {
		b.records[record.BookmarkID] = record
	}
}

func (b *fakeBackend) recordCall(name string) {
	b.mu.Lock()
	b.calls = append(b.calls, name)
	b.mu.Unlock()
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

func (b *fakeBackend) ListForOwner(_ context.Context, ownerID bookmarks.OwnerID) ([]bookmarks.Bookmark, error) {
	b.recordCall("list")
	if b.failList {
		return nil, errBackendDown
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	records := make([]bookmarks.Bookmark, 0, len(b.records))
	for _, record := range b.records {
		if record.OwnerID == ownerID.String() {
			records = append(records, record)
		}
	}
	return records, nil
}

func (b *fakeBackend) Create(_ context.Context, request bookmarks.CreateRequest) (bookmarks.Bookmark, error) {
	b.recordCall("create")
	if b.failCreate {
		return bookmarks.Bookmark{}, errBackendDown
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	record := bookmarks.Bookmark{
		BookmarkID:       "generated-" + string(rune('a'+b.nextID-1)),
		OwnerID:          request.OwnerID.String(),
		Title:            request.Title,
		URL:              request.URL,
		Category:         request.Category,
		CreatedAtSeconds: int64(1000 + b.nextID),
	}
	b.records[record.BookmarkID] = record
	return record, nil
}

func (b *fakeBackend) SetFlag(_ context.Context, ownerID bookmarks.OwnerID, bookmarkID bookmarks.BookmarkID, field bookmarks.ToggleField, next bool) (bookmarks.Bookmark, error) {
	b.recordCall("set_flag")
	if b.setFlagGate != nil {
		<-b.setFlagGate
	}
	if b.failSetFlag {
		return bookmarks.Bookmark{}, errBackendDown
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[bookmarkID.String()]
	if !ok || record.OwnerID != ownerID.String() {
		return bookmarks.Bookmark{}, bookmarks.ErrBookmarkNotFound
	}
	switch field {
	case bookmarks.ToggleFieldPinned:
		record.IsPinned = next
	case bookmarks.ToggleFieldFavorite:
		record.IsFavorite = next
	}
	b.records[record.BookmarkID] = record
	return record, nil
}

func (b *fakeBackend) Delete(_ context.Context, ownerID bookmarks.OwnerID, bookmarkID bookmarks.BookmarkID) error {
	b.recordCall("delete")
	if b.failDelete {
		return errBackendDown
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[bookmarkID.String()]
	if !ok || record.OwnerID != ownerID.String() {
		return bookmarks.ErrBookmarkNotFound
	}
	delete(b.records, bookmarkID.String())
	return nil
}

// fakeFeed is a hand-driven change feed.
type fakeFeed struct {
	events chan bookmarks.ChangeEvent
	once   sync.Once
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{events: make(chan bookmarks.ChangeEvent, 16)}
}

func (f *fakeFeed) Events() <-chan bookmarks.ChangeEvent {
	return f.events
}

func (f *fakeFeed) Cancel() {
	f.once.Do(func() {
		close(f.events)
	})
}

func (f *fakeFeed) push(event bookmarks.ChangeEvent) {
	f.events <- event
}
