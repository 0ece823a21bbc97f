package bookmarks

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidBookmarkID indicates that a bookmark identifier is empty or exceeds storage bounds.
	ErrInvalidBookmarkID = errors.New("bookmarks: invalid bookmark id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("bookmarks: invalid owner id")
)

// BookmarkID represents a validated bookmark identifier.
type BookmarkID string

// NewBookmarkID validates raw input and returns a BookmarkID.
func NewBookmarkID(rawInput string) (BookmarkID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidBookmarkID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidBookmarkID, maxIdentifierLength)
	}
	return BookmarkID(trimmed), nil
}

// String returns the underlying string identifier.
func (id BookmarkID) String() string {
	return string(id)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// Bookmark models one saved link. The backend assigns BookmarkID and
// CreatedAtSeconds at insertion; OwnerID scopes every read and write.
// Category is free text, empty meaning uncategorized. Title, URL, Category
// and CreatedAtSeconds are immutable after creation; only the two boolean
// flags change over a bookmark's lifetime.
type Bookmark struct {
	BookmarkID       string `gorm:"column:bookmark_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_bookmarks_owner_created,priority:1"`
	Title            string `gorm:"column:title;size:512;not null"`
	URL              string `gorm:"column:url;size:2048;not null"`
	Category         string `gorm:"column:category;size:190;not null;default:''"`
	IsFavorite       bool   `gorm:"column:is_favorite;not null;default:false"`
	IsPinned         bool   `gorm:"column:is_pinned;not null;default:false"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null;index:idx_bookmarks_owner_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Bookmark) TableName() string {
	return "bookmarks"
}

// CreateRequest describes the caller-supplied portion of a new bookmark.
type CreateRequest struct {
	OwnerID  OwnerID
	Title    string
	URL      string
	Category string
}

// Validate enforces the non-empty field requirements before any storage call.
func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.URL) == "" {
		return &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	return nil
}

// ToggleField enumerates the boolean flags reachable through toggle updates.
type ToggleField string

const (
	// ToggleFieldPinned addresses the is_pinned flag.
	ToggleFieldPinned ToggleField = "is_pinned"
	// ToggleFieldFavorite addresses the is_favorite flag.
	ToggleFieldFavorite ToggleField = "is_favorite"
)

// ErrUnknownToggleField indicates an update addressed a field outside the toggle set.
var ErrUnknownToggleField = errors.New("bookmarks: unknown toggle field")
