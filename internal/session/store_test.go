package session

import (
	"testing"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

func testBookmark(id, ownerID string, pinned, favorite bool, createdAt int64) bookmarks.Bookmark {
	return bookmarks.Bookmark{
		BookmarkID:       id,
		OwnerID:          ownerID,
		Title:            "Title " + id,
		URL:              "https://example.com/" + id,
		IsPinned:         pinned,
		IsFavorite:       favorite,
		CreatedAtSeconds: createdAt,
	}
}

func mustOwnerID(t *testing.T, value string) bookmarks.OwnerID {
	t.Helper()
	ownerID, err := bookmarks.NewOwnerID(value)
	if err != nil {
		t.Fatalf("unexpected owner id error: %v", err)
	}
	return ownerID
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))
	record := testBookmark("bm-1", "owner-1", false, false, 100)

	store.Upsert(record)
	store.Upsert(record)

	if store.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", store.Len())
	}
	stored, ok := store.Get("bm-1")
	if !ok {
		t.Fatal("expected record to be present")
	}
	if stored != record {
		t.Fatalf("stored record diverged: %#v", stored)
	}
}

func TestStoreUpsertReplacesWholesale(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))
	store.Upsert(testBookmark("bm-1", "owner-1", false, false, 100))

	updated := testBookmark("bm-1", "owner-1", true, true, 100)
	store.Upsert(updated)

	stored, _ := store.Get("bm-1")
	if !stored.IsPinned || !stored.IsFavorite {
		t.Fatalf("expected replaced flags, got %#v", stored)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one record after replacement, got %d", store.Len())
	}
}

func TestStoreRemoveAbsentIsNoOp(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))
	store.Upsert(testBookmark("bm-1", "owner-1", false, false, 100))

	store.Remove("bm-missing")

	if store.Len() != 1 {
		t.Fatalf("expected store unchanged, got %d records", store.Len())
	}
}

func TestStoreReplaceAllRejectsForeignOwners(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))

	store.ReplaceAll([]bookmarks.Bookmark{
		testBookmark("bm-1", "owner-1", false, false, 100),
		testBookmark("bm-2", "owner-2", false, false, 200),
		testBookmark("bm-3", "owner-1", true, false, 300),
	})

	if store.Len() != 2 {
		t.Fatalf("expected foreign record to be dropped, got %d records", store.Len())
	}
	if _, ok := store.Get("bm-2"); ok {
		t.Fatal("foreign record must never enter the store")
	}
}

func TestStoreUpsertRejectsForeignOwner(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))

	store.Upsert(testBookmark("bm-1", "owner-2", false, false, 100))

	if store.Len() != 0 {
		t.Fatal("expected foreign upsert to be refused")
	}
}

func TestStoreUpsertIfAbsentGuardsDuplicates(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))
	echo := testBookmark("bm-1", "owner-1", false, false, 100)
	store.Upsert(echo)

	feedCopy := testBookmark("bm-1", "owner-1", true, false, 100)
	inserted := store.UpsertIfAbsent(feedCopy)

	if inserted {
		t.Fatal("expected insert to be skipped for existing id")
	}
	stored, _ := store.Get("bm-1")
	if stored.IsPinned {
		t.Fatal("existing record must not be overwritten by the guarded insert")
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly one record, got %d", store.Len())
	}
}

func TestStoreSnapshotIsDetached(t *testing.T) {
	store := NewStore(mustOwnerID(t, "owner-1"))
	store.Upsert(testBookmark("bm-1", "owner-1", false, false, 100))

	snapshot := store.Snapshot()
	store.Remove("bm-1")

	if len(snapshot) != 1 {
		t.Fatalf("snapshot must not observe later mutations, got %d records", len(snapshot))
	}
	if store.Len() != 0 {
		t.Fatalf("expected store to be empty, got %d", store.Len())
	}
}
