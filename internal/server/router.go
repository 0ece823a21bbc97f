package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/lodestar/internal/auth"
	"github.com/MarcoPoloResearchLab/lodestar/internal/bookmarks"
	"github.com/MarcoPoloResearchLab/lodestar/internal/realtime"
	"github.com/MarcoPoloResearchLab/lodestar/internal/session"
	"github.com/MarcoPoloResearchLab/lodestar/internal/users"
)

const ownerIDContextKey = "lodestar_owner_id"

var (
	errMissingGoogleVerifier   = errors.New("google verifier dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingBookmarksService = errors.New("bookmarks service dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingDispatcher       = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

// BackendTokenManager issues and validates backend session tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, principal auth.Principal) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies wires the HTTP surface.
type Dependencies struct {
	GoogleVerifier GoogleVerifier
	TokenManager   BackendTokenManager
	Bookmarks      *bookmarks.Service
	Users          *users.Service
	Dispatcher     *realtime.Dispatcher
	Logger         *zap.Logger
	PageSize       int
}

// NewHTTPHandler builds the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Bookmarks == nil {
		return nil, errMissingBookmarksService
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pageSize := deps.PageSize
	if pageSize <= 0 {
		pageSize = session.DefaultPageSize
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier:   deps.GoogleVerifier,
		tokens:     deps.TokenManager,
		bookmarks:  deps.Bookmarks,
		users:      deps.Users,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		pageSize:   pageSize,
	}

	router.POST("/auth/google", handler.handleGoogleAuth)
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/bookmarks", handler.handleListBookmarks)
	protected.POST("/bookmarks", handler.handleCreateBookmark)
	protected.PATCH("/bookmarks/:id", handler.handleToggleBookmark)
	protected.DELETE("/bookmarks/:id", handler.handleDeleteBookmark)
	protected.GET("/bookmarks/stats", handler.handleStats)
	protected.GET("/bookmarks/events", handler.handleEventStream)
	protected.GET("/bookmarks/ws", handler.handleEventSocket)

	return router, nil
}

type httpHandler struct {
	verifier   GoogleVerifier
	tokens     BackendTokenManager
	bookmarks  *bookmarks.Service
	users      *users.Service
	dispatcher *realtime.Dispatcher
	logger     *zap.Logger
	pageSize   int
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type googleAuthPayload struct {
	IDToken string `json:"id_token"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request googleAuthPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	userID, err := h.users.ResolveGoogle(claims)
	if err != nil {
		h.logger.Error("failed to resolve google identity", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}

	h.issueToken(c, auth.Principal{
		Subject:     userID,
		Provider:    users.ProviderGoogle,
		Email:       claims.Email,
		DisplayName: claims.DisplayName,
	})
}

type registerPayload struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.users.RegisterPassword(request.Email, request.Password, request.DisplayName)
	switch {
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email_taken"})
		return
	case errors.Is(err, auth.ErrPasswordTooShort):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password_too_short"})
		return
	case errors.Is(err, users.ErrInvalidIdentity):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	case err != nil:
		h.logger.Error("registration failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		return
	}

	h.issueToken(c, auth.Principal{
		Subject:     identity.UserID,
		Provider:    users.ProviderPassword,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.users.AuthenticatePassword(request.Email, request.Password)
	if errors.Is(err, users.ErrInvalidCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	if err != nil {
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.issueToken(c, auth.Principal{
		Subject:     identity.UserID,
		Provider:    users.ProviderPassword,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
	})
}

func (h *httpHandler) issueToken(c *gin.Context, principal auth.Principal) {
	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), principal)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type bookmarkPayload struct {
	BookmarkID       string `json:"bookmark_id"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	Category         string `json:"category,omitempty"`
	IsFavorite       bool   `json:"is_favorite"`
	IsPinned         bool   `json:"is_pinned"`
	CreatedAtSeconds int64  `json:"created_at_s"`
}

func toBookmarkPayload(record bookmarks.Bookmark) bookmarkPayload {
	return bookmarkPayload{
		BookmarkID:       record.BookmarkID,
		Title:            record.Title,
		URL:              record.URL,
		Category:         record.Category,
		IsFavorite:       record.IsFavorite,
		IsPinned:         record.IsPinned,
		CreatedAtSeconds: record.CreatedAtSeconds,
	}
}

func toBookmarkPayloads(records []bookmarks.Bookmark) []bookmarkPayload {
	payloads := make([]bookmarkPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, toBookmarkPayload(record))
	}
	return payloads
}

type listResponsePayload struct {
	Pinned      []bookmarkPayload `json:"pinned"`
	Others      []bookmarkPayload `json:"others"`
	Categories  []string          `json:"categories"`
	ResultCount int               `json:"result_count"`
	TotalPages  int               `json:"total_pages"`
	Page        int               `json:"page"`
	PageSize    int               `json:"page_size"`
}

func (h *httpHandler) handleListBookmarks(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}

	records, err := h.bookmarks.ListForOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list bookmarks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	query := session.Query{
		SearchTerm: c.Query("search"),
		Category:   c.Query("category"),
		Status:     session.StatusFilter(c.DefaultQuery("status", string(session.StatusAll))),
		Page:       atoiOrDefault(c.Query("page"), 1),
		PageSize:   atoiOrDefault(c.Query("page_size"), h.pageSize),
	}
	switch query.Status {
	case session.StatusAll, session.StatusPinned, session.StatusFavorite:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	view := session.Project(records, query)
	c.JSON(http.StatusOK, listResponsePayload{
		Pinned:      toBookmarkPayloads(view.Pinned),
		Others:      toBookmarkPayloads(view.Others),
		Categories:  view.Categories,
		ResultCount: view.ResultCount,
		TotalPages:  view.TotalPages,
		Page:        view.Page,
		PageSize:    view.PageSize,
	})
}

type createBookmarkPayload struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Category string `json:"category"`
}

func (h *httpHandler) handleCreateBookmark(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}

	var request createBookmarkPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := h.bookmarks.Create(c.Request.Context(), bookmarks.CreateRequest{
		OwnerID:  ownerID,
		Title:    request.Title,
		URL:      request.URL,
		Category: request.Category,
	})
	var validation *bookmarks.ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + validation.Field})
		return
	}
	if err != nil {
		h.logger.Error("failed to create bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	c.JSON(http.StatusCreated, toBookmarkPayload(record))
}

type togglePayload struct {
	Field string `json:"field"`
	Value *bool  `json:"value"`
}

func (h *httpHandler) handleToggleBookmark(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}
	bookmarkID, err := bookmarks.NewBookmarkID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bookmark_id"})
		return
	}

	var request togglePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	var field bookmarks.ToggleField
	switch strings.ToLower(strings.TrimSpace(request.Field)) {
	case "pinned":
		field = bookmarks.ToggleFieldPinned
	case "favorite":
		field = bookmarks.ToggleFieldFavorite
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_field"})
		return
	}

	stored, err := h.bookmarks.SetFlag(c.Request.Context(), ownerID, bookmarkID, field, *request.Value)
	if errors.Is(err, bookmarks.ErrBookmarkNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to toggle bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	c.JSON(http.StatusOK, toBookmarkPayload(stored))
}

func (h *httpHandler) handleDeleteBookmark(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}
	bookmarkID, err := bookmarks.NewBookmarkID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bookmark_id"})
		return
	}

	err = h.bookmarks.Delete(c.Request.Context(), ownerID, bookmarkID)
	if errors.Is(err, bookmarks.ErrBookmarkNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to delete bookmark", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleStats(c *gin.Context) {
	ownerID, ok := h.ownerFromContext(c)
	if !ok {
		return
	}

	stats, err := h.bookmarks.StatsForOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to compute stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     stats.Total,
		"favorites": stats.Favorites,
		"pinned":    stats.Pinned,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) ownerFromContext(c *gin.Context) (bookmarks.OwnerID, bool) {
	ownerID, err := bookmarks.NewOwnerID(c.GetString(ownerIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return ownerID, true
}

func atoiOrDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
