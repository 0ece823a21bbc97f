package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type staticIDGenerator struct {
	mu     sync.Mutex
	serial int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.serial++
	return fmt.Sprintf("bookmark-%04d", g.serial), nil
}

type failingIDGenerator struct{}

func (failingIDGenerator) NewID() (string, error) {
	return "", errors.New("generator exhausted")
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (p *capturingPublisher) Publish(event ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) snapshot() []ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChangeEvent(nil), p.events...)
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(&Bookmark{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}
	return db
}

func fixedClock(seconds int64) func() time.Time {
	return func() time.Time {
		return time.Unix(seconds, 0).UTC()
	}
}

func newTestService(t *testing.T, publisher ChangePublisher) *Service {
	t.Helper()
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      fixedClock(1700000000),
		IDProvider: &staticIDGenerator{},
		Publisher:  publisher,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func mustOwner(t *testing.T, value string) OwnerID {
	t.Helper()
	ownerID, err := NewOwnerID(value)
	if err != nil {
		t.Fatalf("owner id: %v", err)
	}
	return ownerID
}

func mustBookmarkID(t *testing.T, value string) BookmarkID {
	t.Helper()
	bookmarkID, err := NewBookmarkID(value)
	if err != nil {
		t.Fatalf("bookmark id: %v", err)
	}
	return bookmarkID
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceConfig{IDProvider: &staticIDGenerator{}}); err == nil {
		t.Fatal("expected missing database to be rejected")
	}
	if _, err := NewService(ServiceConfig{Database: openTestDatabase(t)}); err == nil {
		t.Fatal("expected missing id provider to be rejected")
	}
}

func TestCreateAssignsIdentifierAndTimestamp(t *testing.T) {
	publisher := &capturingPublisher{}
	service := newTestService(t, publisher)
	owner := mustOwner(t, "owner-1")

	record, err := service.Create(context.Background(), CreateRequest{
		OwnerID:  owner,
		Title:    "  Go Blog  ",
		URL:      " https://go.dev/blog ",
		Category: " Dev ",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.BookmarkID != "bookmark-0001" {
		t.Fatalf("expected generated identifier, got %q", record.BookmarkID)
	}
	if record.Title != "Go Blog" || record.URL != "https://go.dev/blog" || record.Category != "Dev" {
		t.Fatalf("expected trimmed fields, got %#v", record)
	}
	if record.CreatedAtSeconds != 1700000000 {
		t.Fatalf("expected clock-derived timestamp, got %d", record.CreatedAtSeconds)
	}

	events := publisher.snapshot()
	if len(events) != 1 || events[0].Kind != ChangeKindCreated {
		t.Fatalf("expected one created event, got %#v", events)
	}
	if events[0].Row == nil {
		t.Fatal("expected created event to carry the full row")
	}
	restored, err := BookmarkFromRow(events[0].Row)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored != record {
		t.Fatalf("expected event row to mirror the stored record: %#v", restored)
	}
}

func TestCreateRejectsInvalidRequestWithoutInsert(t *testing.T) {
	publisher := &capturingPublisher{}
	service := newTestService(t, publisher)
	owner := mustOwner(t, "owner-1")

	_, err := service.Create(context.Background(), CreateRequest{OwnerID: owner, URL: "https://go.dev"})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(publisher.snapshot()) != 0 {
		t.Fatal("expected no events for a rejected request")
	}
	records, err := service.ListForOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatal("expected nothing stored for a rejected request")
	}
}

func TestCreateSurfacesIDGenerationFailure(t *testing.T) {
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		IDProvider: failingIDGenerator{},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if _, err := service.Create(context.Background(), CreateRequest{
		OwnerID: mustOwner(t, "owner-1"),
		Title:   "Go",
		URL:     "https://go.dev",
	}); err == nil {
		t.Fatal("expected id generation failure to surface")
	}
}

func TestListForOwnerScopesByOwner(t *testing.T) {
	service := newTestService(t, nil)
	first := mustOwner(t, "owner-1")
	second := mustOwner(t, "owner-2")

	for index := 0; index < 3; index++ {
		if _, err := service.Create(context.Background(), CreateRequest{
			OwnerID: first,
			Title:   fmt.Sprintf("Link %d", index),
			URL:     fmt.Sprintf("https://example.com/%d", index),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := service.Create(context.Background(), CreateRequest{
		OwnerID: second,
		Title:   "Other",
		URL:     "https://example.org",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := service.ListForOwner(context.Background(), first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records for owner-1, got %d", len(records))
	}
	for _, record := range records {
		if record.OwnerID != first.String() {
			t.Fatalf("expected owner scoping, got %#v", record)
		}
	}
}

func TestSetFlagUpdatesAndPublishesPartialRow(t *testing.T) {
	publisher := &capturingPublisher{}
	service := newTestService(t, publisher)
	owner := mustOwner(t, "owner-1")

	record, err := service.Create(context.Background(), CreateRequest{
		OwnerID: owner,
		Title:   "Go",
		URL:     "https://go.dev",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := service.SetFlag(context.Background(), owner, mustBookmarkID(t, record.BookmarkID), ToggleFieldPinned, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stored.IsPinned {
		t.Fatal("expected pinned flag to persist")
	}
	if stored.Title != record.Title || stored.CreatedAtSeconds != record.CreatedAtSeconds {
		t.Fatalf("expected immutable fields untouched, got %#v", stored)
	}

	events := publisher.snapshot()
	last := events[len(events)-1]
	if last.Kind != ChangeKindUpdated {
		t.Fatalf("expected updated event, got %#v", last)
	}
	if len(last.Row) != 1 {
		t.Fatalf("expected partial row with the changed key only, got %#v", last.Row)
	}
	if flag, ok := last.Row[string(ToggleFieldPinned)].(bool); !ok || !flag {
		t.Fatalf("expected is_pinned=true in the partial row, got %#v", last.Row)
	}
}

func TestSetFlagRejectsUnknownField(t *testing.T) {
	service := newTestService(t, nil)
	_, err := service.SetFlag(context.Background(), mustOwner(t, "owner-1"), mustBookmarkID(t, "bm-1"), ToggleField("title"), true)
	if !errors.Is(err, ErrUnknownToggleField) {
		t.Fatalf("expected %v, got %v", ErrUnknownToggleField, err)
	}
}

func TestSetFlagHidesForeignBookmarks(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustOwner(t, "owner-1")
	intruder := mustOwner(t, "owner-2")

	record, err := service.Create(context.Background(), CreateRequest{
		OwnerID: owner,
		Title:   "Go",
		URL:     "https://go.dev",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = service.SetFlag(context.Background(), intruder, mustBookmarkID(t, record.BookmarkID), ToggleFieldPinned, true)
	if !errors.Is(err, ErrBookmarkNotFound) {
		t.Fatalf("expected %v, got %v", ErrBookmarkNotFound, err)
	}

	records, err := service.ListForOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].IsPinned {
		t.Fatalf("expected the record untouched, got %#v", records)
	}
}

func TestDeleteRemovesAndPublishes(t *testing.T) {
	publisher := &capturingPublisher{}
	service := newTestService(t, publisher)
	owner := mustOwner(t, "owner-1")

	record, err := service.Create(context.Background(), CreateRequest{
		OwnerID: owner,
		Title:   "Go",
		URL:     "https://go.dev",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Delete(context.Background(), owner, mustBookmarkID(t, record.BookmarkID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := service.ListForOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty collection, got %#v", records)
	}

	events := publisher.snapshot()
	last := events[len(events)-1]
	if last.Kind != ChangeKindDeleted || last.BookmarkID != record.BookmarkID {
		t.Fatalf("expected deleted event for %s, got %#v", record.BookmarkID, last)
	}
	if last.Row != nil {
		t.Fatalf("expected deleted event without a row, got %#v", last.Row)
	}
}

func TestDeleteMissingBookmark(t *testing.T) {
	service := newTestService(t, nil)
	err := service.Delete(context.Background(), mustOwner(t, "owner-1"), mustBookmarkID(t, "missing"))
	if !errors.Is(err, ErrBookmarkNotFound) {
		t.Fatalf("expected %v, got %v", ErrBookmarkNotFound, err)
	}
}

func TestStatsForOwnerCountsByFlag(t *testing.T) {
	service := newTestService(t, nil)
	owner := mustOwner(t, "owner-1")
	other := mustOwner(t, "owner-2")

	seed := []struct {
		pinned   bool
		favorite bool
	}{
		{pinned: true, favorite: true},
		{pinned: true, favorite: false},
		{pinned: false, favorite: false},
	}
	for index, flags := range seed {
		record, err := service.Create(context.Background(), CreateRequest{
			OwnerID: owner,
			Title:   fmt.Sprintf("Link %d", index),
			URL:     fmt.Sprintf("https://example.com/%d", index),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if flags.pinned {
			if _, err := service.SetFlag(context.Background(), owner, mustBookmarkID(t, record.BookmarkID), ToggleFieldPinned, true); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if flags.favorite {
			if _, err := service.SetFlag(context.Background(), owner, mustBookmarkID(t, record.BookmarkID), ToggleFieldFavorite, true); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	}
	if _, err := service.Create(context.Background(), CreateRequest{
		OwnerID: other,
		Title:   "Other",
		URL:     "https://example.org",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats, err := service.StatsForOwner(context.Background(), owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Total != 3 || stats.Pinned != 2 || stats.Favorites != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}
