package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
)

// TogglePolicy selects how toggle mutations reach the store.
type TogglePolicy string

const (
	// PolicyOptimistic applies the intended flag value immediately and
	// rolls it back if the backend rejects the update.
	PolicyOptimistic TogglePolicy = "optimistic"
	// PolicyConfirmed applies only the backend's authoritative row.
	PolicyConfirmed TogglePolicy = "confirmed"
)

// ErrUnknownTogglePolicy indicates an unrecognized policy name.
var ErrUnknownTogglePolicy = errors.New("session: unknown toggle policy")

// ParseTogglePolicy reads a policy from its configuration spelling.
func ParseTogglePolicy(value string) (TogglePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(PolicyOptimistic), "":
		return PolicyOptimistic, nil
	case string(PolicyConfirmed):
		return PolicyConfirmed, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTogglePolicy, value)
	}
}

// Backend is the storage contract the gateway mutates through. The
// in-process bookmarks.Service satisfies it directly; tests substitute
// fakes. Every call is scoped by owner, and Update/Delete are additionally
// scoped by id so a foreign row is never touched.
type Backend interface {
	ListForOwner(ctx context.Context, ownerID bookmarks.OwnerID) ([]bookmarks.Bookmark, error)
	Create(ctx context.Context, request bookmarks.CreateRequest) (bookmarks.Bookmark, error)
	SetFlag(ctx context.Context, ownerID bookmarks.OwnerID, bookmarkID bookmarks.BookmarkID, field bookmarks.ToggleField, next bool) (bookmarks.Bookmark, error)
	Delete(ctx context.Context, ownerID bookmarks.OwnerID, bookmarkID bookmarks.BookmarkID) error
}

// Gateway performs create, delete, and toggle mutations against the
// backend and keeps the store consistent with user intent without waiting
// for the change feed. A mutation whose session ended while the request
// was in flight discards its effect instead of applying it.
type Gateway struct {
	ownerID bookmarks.OwnerID
	backend Backend
	store   *Store
	policy  TogglePolicy
	done    <-chan struct{}
	logger  *zap.Logger
}

// Create validates its inputs before any backend call, then inserts the
// returned row (with its assigned id and creation time) into the store.
func (g *Gateway) Create(ctx context.Context, title, url, category string) (bookmarks.Bookmark, error) {
	request := bookmarks.CreateRequest{
		OwnerID:  g.ownerID,
		Title:    title,
		URL:      url,
		Category: category,
	}
	if err := request.Validate(); err != nil {
		return bookmarks.Bookmark{}, err
	}

	record, err := g.backend.Create(ctx, request)
	if err != nil {
		return bookmarks.Bookmark{}, g.wrapBackendError("create", err)
	}
	if g.closed() {
		g.logger.Debug("discarding create result after teardown",
			zap.String("bookmark_id", record.BookmarkID))
		return record, nil
	}
	g.store.Upsert(record)
	return record, nil
}

// Delete removes the bookmark from the store only after the backend
// confirms, so a rejected delete never hides a live record.
func (g *Gateway) Delete(ctx context.Context, bookmarkID string) error {
	id, _, err := g.lookup(bookmarkID)
	if err != nil {
		return err
	}

	if err := g.backend.Delete(ctx, g.ownerID, id); err != nil {
		return g.wrapBackendError("delete", err)
	}
	if g.closed() {
		return nil
	}
	g.store.Remove(id.String())
	return nil
}

// TogglePinned sets the pinned flag under the configured policy.
func (g *Gateway) TogglePinned(ctx context.Context, bookmarkID string, next bool) error {
	return g.toggle(ctx, bookmarkID, bookmarks.ToggleFieldPinned, next)
}

// ToggleFavorite sets the favorite flag under the configured policy.
func (g *Gateway) ToggleFavorite(ctx context.Context, bookmarkID string, next bool) error {
	return g.toggle(ctx, bookmarkID, bookmarks.ToggleFieldFavorite, next)
}

func (g *Gateway) toggle(ctx context.Context, bookmarkID string, field bookmarks.ToggleField, next bool) error {
	id, existing, err := g.lookup(bookmarkID)
	if err != nil {
		return err
	}

	if g.policy == PolicyOptimistic {
		g.store.Upsert(withFlag(existing, field, next))
	}

	stored, err := g.backend.SetFlag(ctx, g.ownerID, id, field, next)
	if err != nil {
		if g.policy == PolicyOptimistic && !g.closed() {
			g.store.Upsert(existing)
		}
		return g.wrapBackendError("toggle", err)
	}
	if g.closed() {
		return nil
	}
	g.store.Upsert(stored)
	return nil
}

// lookup resolves the id against the store and refuses to issue requests
// for records the session does not own.
func (g *Gateway) lookup(bookmarkID string) (bookmarks.BookmarkID, bookmarks.Bookmark, error) {
	id, err := bookmarks.NewBookmarkID(bookmarkID)
	if err != nil {
		return "", bookmarks.Bookmark{}, &bookmarks.ValidationError{Field: "bookmark_id", Reason: "must not be empty"}
	}
	existing, ok := g.store.Get(id.String())
	if !ok {
		return "", bookmarks.Bookmark{}, &bookmarks.BackendError{Op: "lookup", Err: bookmarks.ErrBookmarkNotFound}
	}
	if existing.OwnerID != g.ownerID.String() {
		return "", bookmarks.Bookmark{}, &bookmarks.BackendError{Op: "lookup", Err: bookmarks.ErrInvalidOwnerID}
	}
	return id, existing, nil
}

func (g *Gateway) wrapBackendError(op string, err error) error {
	var validation *bookmarks.ValidationError
	if errors.As(err, &validation) {
		return validation
	}
	var backend *bookmarks.BackendError
	if errors.As(err, &backend) {
		return backend
	}
	return &bookmarks.BackendError{Op: op, Err: err}
}

func (g *Gateway) closed() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

func withFlag(record bookmarks.Bookmark, field bookmarks.ToggleField, next bool) bookmarks.Bookmark {
	updated := record
	switch field {
	case bookmarks.ToggleFieldPinned:
		updated.IsPinned = next
	case bookmarks.ToggleFieldFavorite:
		updated.IsFavorite = next
	}
	return updated
}
