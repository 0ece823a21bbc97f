package bookmarks

import "time"

// ChangeKind enumerates the per-record notifications the change feed carries.
type ChangeKind string

const (
	// ChangeKindCreated announces a newly inserted bookmark.
	ChangeKindCreated ChangeKind = "created"
	// ChangeKindUpdated announces changed fields on an existing bookmark.
	ChangeKindUpdated ChangeKind = "updated"
	// ChangeKindDeleted announces a removed bookmark.
	ChangeKindDeleted ChangeKind = "deleted"
)

// ChangeEvent is one entry in an owner's change feed. Created events carry
// the full row; updated events may carry only the changed keys; deleted
// events carry no row at all. The feed may redeliver or reorder events
// around reconnects, so consumers must apply them idempotently.
type ChangeEvent struct {
	Kind       ChangeKind
	BookmarkID string
	OwnerID    string
	Row        Row
	OccurredAt time.Time
}
