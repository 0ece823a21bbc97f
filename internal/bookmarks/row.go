package bookmarks

import (
	"errors"
	"fmt"
	"strings"
)

// Row is the loosely-typed shape a bookmark crosses the backend boundary
// in. The fixed Bookmark struct is the only shape allowed past the edge;
// rows are coerced on arrival and malformed ones are rejected with a
// BackendError instead of leaking open-ended maps inward.
type Row map[string]any

const (
	rowKeyBookmarkID = "bookmark_id"
	rowKeyOwnerID    = "owner_id"
	rowKeyTitle      = "title"
	rowKeyURL        = "url"
	rowKeyCategory   = "category"
	rowKeyIsFavorite = "is_favorite"
	rowKeyIsPinned   = "is_pinned"
	rowKeyCreatedAt  = "created_at_s"
)

var errMalformedRow = errors.New("malformed bookmark row")

// Row flattens the bookmark into its boundary representation.
func (b Bookmark) Row() Row {
	return Row{
		rowKeyBookmarkID: b.BookmarkID,
		rowKeyOwnerID:    b.OwnerID,
		rowKeyTitle:      b.Title,
		rowKeyURL:        b.URL,
		rowKeyCategory:   b.Category,
		rowKeyIsFavorite: b.IsFavorite,
		rowKeyIsPinned:   b.IsPinned,
		rowKeyCreatedAt:  b.CreatedAtSeconds,
	}
}

// BookmarkFromRow coerces a full backend row into a Bookmark. Every
// required key must be present and well typed.
func BookmarkFromRow(row Row) (Bookmark, error) {
	bookmark := Bookmark{}
	if err := applyRow(&bookmark, row, true); err != nil {
		return Bookmark{}, err
	}
	return bookmark, nil
}

// OverlayRow applies the keys present in a partial row on top of an
// existing bookmark, returning the merged copy. Keys absent from the row
// keep their existing values.
func OverlayRow(existing Bookmark, row Row) (Bookmark, error) {
	merged := existing
	if err := applyRow(&merged, row, false); err != nil {
		return Bookmark{}, err
	}
	return merged, nil
}

func applyRow(target *Bookmark, row Row, requireAll bool) error {
	if row == nil {
		return newBackendError("coerce_row", fmt.Errorf("%w: nil row", errMalformedRow))
	}

	stringFields := []struct {
		key      string
		dest     *string
		required bool
	}{
		{rowKeyBookmarkID, &target.BookmarkID, true},
		{rowKeyOwnerID, &target.OwnerID, true},
		{rowKeyTitle, &target.Title, true},
		{rowKeyURL, &target.URL, true},
		{rowKeyCategory, &target.Category, false},
	}
	for _, field := range stringFields {
		value, present := row[field.key]
		if !present {
			if requireAll && field.required {
				return newBackendError("coerce_row", fmt.Errorf("%w: missing %s", errMalformedRow, field.key))
			}
			continue
		}
		text, ok := value.(string)
		if !ok {
			return newBackendError("coerce_row", fmt.Errorf("%w: %s is not a string", errMalformedRow, field.key))
		}
		if field.required && strings.TrimSpace(text) == "" {
			return newBackendError("coerce_row", fmt.Errorf("%w: empty %s", errMalformedRow, field.key))
		}
		*field.dest = text
	}

	boolFields := []struct {
		key  string
		dest *bool
	}{
		{rowKeyIsFavorite, &target.IsFavorite},
		{rowKeyIsPinned, &target.IsPinned},
	}
	for _, field := range boolFields {
		value, present := row[field.key]
		if !present {
			continue
		}
		flag, ok := value.(bool)
		if !ok {
			return newBackendError("coerce_row", fmt.Errorf("%w: %s is not a boolean", errMalformedRow, field.key))
		}
		*field.dest = flag
	}

	if value, present := row[rowKeyCreatedAt]; present {
		seconds, err := coerceSeconds(value)
		if err != nil {
			return newBackendError("coerce_row", fmt.Errorf("%w: %s %v", errMalformedRow, rowKeyCreatedAt, err))
		}
		target.CreatedAtSeconds = seconds
	} else if requireAll {
		return newBackendError("coerce_row", fmt.Errorf("%w: missing %s", errMalformedRow, rowKeyCreatedAt))
	}

	return nil
}

// coerceSeconds accepts the integer encodings a JSON decoder may hand back.
func coerceSeconds(value any) (int64, error) {
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case int:
		return int64(typed), nil
	case float64:
		return int64(typed), nil
	default:
		return 0, fmt.Errorf("has unsupported type %T", value)
	}
}
