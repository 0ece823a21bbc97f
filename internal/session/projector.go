package session

import (
	"sort"
	"strings"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

// CategoryAll is the sentinel category value matching every record.
const CategoryAll = "all"

// DefaultPageSize applies when a query does not request one.
const DefaultPageSize = 10

// StatusFilter narrows a projection to pinned or favorite records.
type StatusFilter string

const (
	// StatusAll matches every record.
	StatusAll StatusFilter = "all"
	// StatusPinned matches pinned records only.
	StatusPinned StatusFilter = "pinned"
	// StatusFavorite matches favorite records only.
	StatusFavorite StatusFilter = "favorite"
)

// Query is the UI filter and pagination state a view is derived from.
type Query struct {
	SearchTerm string
	Category   string
	Status     StatusFilter
	Page       int
	PageSize   int
}

// Normalize fills defaults and resets the page to 1 whenever any filter
// input differs from the previous query. Pagination is the only input that
// survives a filter change unmodified.
func (q Query) Normalize(previous Query) Query {
	normalized := q
	if normalized.Status == "" {
		normalized.Status = StatusAll
	}
	if normalized.Category == "" {
		normalized.Category = CategoryAll
	}
	if normalized.PageSize <= 0 {
		normalized.PageSize = DefaultPageSize
	}
	if normalized.Page <= 0 {
		normalized.Page = 1
	}
	if normalized.SearchTerm != previous.SearchTerm ||
		normalized.Category != previous.Category ||
		normalized.Status != previous.Status ||
		normalized.PageSize != previous.PageSize {
		normalized.Page = 1
	}
	return normalized
}

// View is the fully derived display state for one query: the visible page
// split into its pinned and unpinned groups, the category choices, and the
// pagination facts the presentation needs.
type View struct {
	Pinned      []bookmarks.Bookmark
	Others      []bookmarks.Bookmark
	Categories  []string
	ResultCount int
	TotalPages  int
	Page        int
	PageSize    int
}

// Visible returns the whole visible slice in display order.
func (v View) Visible() []bookmarks.Bookmark {
	combined := make([]bookmarks.Bookmark, 0, len(v.Pinned)+len(v.Others))
	combined = append(combined, v.Pinned...)
	combined = append(combined, v.Others...)
	return combined
}

// Project derives the view for the query from a snapshot. It is pure: the
// snapshot is not mutated, no state is kept between calls, and the same
// inputs always produce the same view.
func Project(snapshot []bookmarks.Bookmark, query Query) View {
	normalized := query.Normalize(query)

	matched := make([]bookmarks.Bookmark, 0, len(snapshot))
	term := strings.ToLower(strings.TrimSpace(normalized.SearchTerm))
	for _, record := range snapshot {
		if matchesQuery(record, term, normalized) {
			matched = append(matched, record)
		}
	}

	sortForDisplay(matched)

	pageSize := normalized.PageSize
	totalPages := (len(matched) + pageSize - 1) / pageSize
	if totalPages < 1 {
		totalPages = 1
	}
	page := normalized.Page
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	visible := matched[start:end]

	view := View{
		Categories:  enumerateCategories(snapshot),
		ResultCount: len(matched),
		TotalPages:  totalPages,
		Page:        page,
		PageSize:    pageSize,
	}
	for _, record := range visible {
		if record.IsPinned {
			view.Pinned = append(view.Pinned, record)
		} else {
			view.Others = append(view.Others, record)
		}
	}
	return view
}

func matchesQuery(record bookmarks.Bookmark, term string, query Query) bool {
	if term != "" {
		haystacks := []string{record.Title, record.URL, record.Category}
		found := false
		for _, haystack := range haystacks {
			if strings.Contains(strings.ToLower(haystack), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if query.Category != CategoryAll && record.Category != query.Category {
		return false
	}

	switch query.Status {
	case StatusPinned:
		return record.IsPinned
	case StatusFavorite:
		return record.IsFavorite
	default:
		return true
	}
}

// sortForDisplay orders records pinned first, then newest first. The id
// breaks exact timestamp ties so projections stay deterministic.
func sortForDisplay(records []bookmarks.Bookmark) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].IsPinned != records[j].IsPinned {
			return records[i].IsPinned
		}
		if records[i].CreatedAtSeconds != records[j].CreatedAtSeconds {
			return records[i].CreatedAtSeconds > records[j].CreatedAtSeconds
		}
		return records[i].BookmarkID < records[j].BookmarkID
	})
}

func enumerateCategories(snapshot []bookmarks.Bookmark) []string {
	seen := make(map[string]struct{})
	for _, record := range snapshot {
		if record.Category == "" {
			continue
		}
		seen[record.Category] = struct{}{}
	}
	distinct := make([]string, 0, len(seen))
	for category := range seen {
		distinct = append(distinct, category)
	}
	sort.Strings(distinct)
	return append([]string{CategoryAll}, distinct...)
}
