package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	// ErrBookmarkNotFound indicates the bookmark does not exist for the owner.
	// Cross-owner reads and writes surface this same way: the scoped query
	// simply matches nothing.
	ErrBookmarkNotFound = errors.New("bookmarks: bookmark not found")
	noOpLogger          = zap.NewNop()
)

// ServiceError carries a dotted operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew = "bookmarks.service.new"
	opList       = "bookmarks.list"
	opCreate     = "bookmarks.create"
	opSetFlag    = "bookmarks.set_flag"
	opDelete     = "bookmarks.delete"
	opStats      = "bookmarks.stats"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ChangePublisher receives one event per committed mutation, keyed by owner.
type ChangePublisher interface {
	Publish(event ChangeEvent)
}

// ServiceConfig describes the dependencies of the bookmark service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Publisher  ChangePublisher
	Logger     *zap.Logger
}

// Service persists bookmarks and announces committed changes to the
// publisher. It plays the storage-backend role for the session core.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	publisher  ChangePublisher
	logger     *zap.Logger
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		publisher:  cfg.Publisher,
		logger:     logger,
	}, nil
}

// ListForOwner returns every bookmark belonging to the owner. No ordering
// is guaranteed; consumers sort for display.
func (s *Service) ListForOwner(ctx context.Context, ownerID OwnerID) ([]Bookmark, error) {
	var records []Bookmark
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID.String()).
		Find(&records).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("owner_id", ownerID.String()))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return records, nil
}

// Create inserts a new bookmark with a freshly assigned identifier and
// creation timestamp, then publishes a created event.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Bookmark, error) {
	if err := request.Validate(); err != nil {
		return Bookmark{}, err
	}

	bookmarkID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreate, "id_generation_failed", err, zap.String("owner_id", request.OwnerID.String()))
		return Bookmark{}, newServiceError(opCreate, "id_generation_failed", err)
	}

	record := Bookmark{
		BookmarkID:       bookmarkID,
		OwnerID:          request.OwnerID.String(),
		Title:            strings.TrimSpace(request.Title),
		URL:              strings.TrimSpace(request.URL),
		Category:         strings.TrimSpace(request.Category),
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opCreate, "insert_failed", err,
			zap.String("owner_id", request.OwnerID.String()),
			zap.String("bookmark_id", bookmarkID))
		return Bookmark{}, newServiceError(opCreate, "insert_failed", err)
	}

	s.publish(ChangeEvent{
		Kind:       ChangeKindCreated,
		BookmarkID: record.BookmarkID,
		OwnerID:    record.OwnerID,
		Row:        record.Row(),
		OccurredAt: s.clock().UTC(),
	})
	return record, nil
}

// SetFlag updates a single boolean flag on an owner's bookmark and returns
// the stored row. A bookmark belonging to another owner is never touched.
func (s *Service) SetFlag(ctx context.Context, ownerID OwnerID, bookmarkID BookmarkID, field ToggleField, next bool) (Bookmark, error) {
	if field != ToggleFieldPinned && field != ToggleFieldFavorite {
		return Bookmark{}, newServiceError(opSetFlag, "unknown_field", ErrUnknownToggleField)
	}

	result := s.db.WithContext(ctx).
		Model(&Bookmark{}).
		Where("bookmark_id = ? AND owner_id = ?", bookmarkID.String(), ownerID.String()).
		Update(string(field), next)
	if result.Error != nil {
		s.logError(opSetFlag, "update_failed", result.Error,
			zap.String("owner_id", ownerID.String()),
			zap.String("bookmark_id", bookmarkID.String()))
		return Bookmark{}, newServiceError(opSetFlag, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Bookmark{}, newServiceError(opSetFlag, "not_found", ErrBookmarkNotFound)
	}

	var stored Bookmark
	if err := s.db.WithContext(ctx).
		Where("bookmark_id = ? AND owner_id = ?", bookmarkID.String(), ownerID.String()).
		Take(&stored).Error; err != nil {
		s.logError(opSetFlag, "reload_failed", err,
			zap.String("owner_id", ownerID.String()),
			zap.String("bookmark_id", bookmarkID.String()))
		return Bookmark{}, newServiceError(opSetFlag, "reload_failed", err)
	}

	s.publish(ChangeEvent{
		Kind:       ChangeKindUpdated,
		BookmarkID: stored.BookmarkID,
		OwnerID:    stored.OwnerID,
		Row:        Row{string(field): next},
		OccurredAt: s.clock().UTC(),
	})
	return stored, nil
}

// Delete removes an owner's bookmark and publishes a deleted event. It is
// an error to delete a bookmark the owner does not hold.
func (s *Service) Delete(ctx context.Context, ownerID OwnerID, bookmarkID BookmarkID) error {
	result := s.db.WithContext(ctx).
		Where("bookmark_id = ? AND owner_id = ?", bookmarkID.String(), ownerID.String()).
		Delete(&Bookmark{})
	if result.Error != nil {
		s.logError(opDelete, "delete_failed", result.Error,
			zap.String("owner_id", ownerID.String()),
			zap.String("bookmark_id", bookmarkID.String()))
		return newServiceError(opDelete, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, "not_found", ErrBookmarkNotFound)
	}

	s.publish(ChangeEvent{
		Kind:       ChangeKindDeleted,
		BookmarkID: bookmarkID.String(),
		OwnerID:    ownerID.String(),
		OccurredAt: s.clock().UTC(),
	})
	return nil
}

// OwnerStats summarizes an owner's collection for the dashboard cards.
type OwnerStats struct {
	Total     int64
	Favorites int64
	Pinned    int64
}

// StatsForOwner counts the owner's bookmarks by flag.
func (s *Service) StatsForOwner(ctx context.Context, ownerID OwnerID) (OwnerStats, error) {
	stats := OwnerStats{}
	base := s.db.WithContext(ctx).Model(&Bookmark{}).Where("owner_id = ?", ownerID.String())

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		s.logError(opStats, "count_failed", err, zap.String("owner_id", ownerID.String()))
		return OwnerStats{}, newServiceError(opStats, "count_failed", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_favorite = ?", true).Count(&stats.Favorites).Error; err != nil {
		s.logError(opStats, "count_failed", err, zap.String("owner_id", ownerID.String()))
		return OwnerStats{}, newServiceError(opStats, "count_failed", err)
	}
	if err := base.Session(&gorm.Session{}).Where("is_pinned = ?", true).Count(&stats.Pinned).Error; err != nil {
		s.logError(opStats, "count_failed", err, zap.String("owner_id", ownerID.String()))
		return OwnerStats{}, newServiceError(opStats, "count_failed", err)
	}
	return stats, nil
}

func (s *Service) publish(event ChangeEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(event)
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("bookmarks service error", attrs...)
}
