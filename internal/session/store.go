package session

import (
	"sync"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

// Store holds the current, de-duplicated set of one owner's bookmarks in
// memory. It is the only mutable state the session core owns. Three event
// sources funnel mutations through it (the initial bulk read, the change
// feed, and the mutation gateway); Upsert and Remove are idempotent so
// redundant deliveries converge instead of double-applying.
//
// Records belonging to any other owner are silently refused on every
// insert path, on top of the backend's own row scoping.
type Store struct {
	mu      sync.RWMutex
	ownerID string
	records map[string]bookmarks.Bookmark
}

// NewStore constructs an empty store scoped to the owner.
func NewStore(ownerID bookmarks.OwnerID) *Store {
	return &Store{
		ownerID: ownerID.String(),
		records: make(map[string]bookmarks.Bookmark),
	}
}

// ReplaceAll swaps the entire collection for the bulk-read result. Foreign
// rows in the input are dropped.
func (s *Store) ReplaceAll(records []bookmarks.Bookmark) {
	next := make(map[string]bookmarks.Bookmark, len(records))
	for _, record := range records {
		if record.OwnerID != s.ownerID || record.BookmarkID == "" {
			continue
		}
		next[record.BookmarkID] = record
	}
	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
}

// Upsert inserts the record or replaces the stored copy wholesale.
// Afterward exactly one record with that id exists.
func (s *Store) Upsert(record bookmarks.Bookmark) {
	if record.OwnerID != s.ownerID || record.BookmarkID == "" {
		return
	}
	s.mu.Lock()
	s.records[record.BookmarkID] = record
	s.mu.Unlock()
}

// UpsertIfAbsent inserts the record only when its id is not yet present,
// reporting whether an insert happened. It guards the created-event path
// against double insertion when an optimistic echo arrived first.
func (s *Store) UpsertIfAbsent(record bookmarks.Bookmark) bool {
	if record.OwnerID != s.ownerID || record.BookmarkID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.BookmarkID]; exists {
		return false
	}
	s.records[record.BookmarkID] = record
	return true
}

// Remove deletes the record with the id if present; absent ids are a no-op.
func (s *Store) Remove(bookmarkID string) {
	s.mu.Lock()
	delete(s.records, bookmarkID)
	s.mu.Unlock()
}

// Get returns the stored copy of the record, if any.
func (s *Store) Get(bookmarkID string) (bookmarks.Bookmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[bookmarkID]
	return record, ok
}

// Snapshot returns a copy of the full collection, safe to read and project
// without racing later mutations. Order is unspecified.
func (s *Store) Snapshot() []bookmarks.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make([]bookmarks.Bookmark, 0, len(s.records))
	for _, record := range s.records {
		snapshot = append(snapshot, record)
	}
	return snapshot
}

// Len reports the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
