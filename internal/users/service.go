package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/lodestar/internal/auth"
)

var (
	// ErrInvalidIdentity indicates the claims did not contain a usable identifier.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrEmailTaken indicates an account already exists for the email.
	ErrEmailTaken = errors.New("users: email already registered")
	// ErrInvalidCredentials indicates the email or password did not match.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
)

// IDProvider issues canonical user identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies required for identity resolution.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
}

// Service manages canonical user identifiers, provider identities, and
// password credentials.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	ids   IDProvider
	cache sync.Map
}

// NewService constructs the identity service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("users: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
		ids: cfg.IDProvider,
	}, nil
}

// ResolveGoogle returns the canonical user id for verified Google claims,
// creating the identity mapping on first sight and refreshing profile
// fields on subsequent logins.
func (s *Service) ResolveGoogle(claims auth.GoogleClaims) (string, error) {
	subject := normalize(claims.Subject)
	if subject == "" {
		return "", ErrInvalidIdentity
	}

	cacheKey := ProviderGoogle + ":" + subject
	if cached, ok := s.cache.Load(cacheKey); ok {
		if userID, ok := cached.(string); ok {
			return userID, nil
		}
	}

	var identity Identity
	err := s.db.
		Where("provider = ? AND subject = ?", ProviderGoogle, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		userID, idErr := s.ids.NewID()
		if idErr != nil {
			return "", idErr
		}
		identity = Identity{
			Provider:    ProviderGoogle,
			Subject:     subject,
			UserID:      userID,
			Email:       normalizeEmail(claims.Email),
			DisplayName: normalize(claims.DisplayName),
			AvatarURL:   normalize(claims.AvatarURL),
			LastSeenAt:  s.now(),
		}
		if createErr := s.db.Create(&identity).Error; createErr != nil {
			return "", createErr
		}
	} else if err != nil {
		return "", err
	} else {
		updates := map[string]interface{}{"last_seen_at": s.now()}
		if email := normalizeEmail(claims.Email); email != "" && email != identity.Email {
			updates["user_email"] = email
		}
		if display := normalize(claims.DisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
		}
		if avatar := normalize(claims.AvatarURL); avatar != "" && avatar != identity.AvatarURL {
			updates["user_avatar_url"] = avatar
		}
		_ = s.db.Model(&Identity{}).
			Where("provider = ? AND subject = ?", ProviderGoogle, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(cacheKey, identity.UserID)
	return identity.UserID, nil
}

// RegisterPassword creates an email/password identity and returns it.
func (s *Service) RegisterPassword(email, password, displayName string) (Identity, error) {
	subject := normalizeEmail(email)
	if subject == "" {
		return Identity{}, ErrInvalidIdentity
	}

	var existing Identity
	err := s.db.
		Where("provider = ? AND subject = ?", ProviderPassword, subject).
		First(&existing).
		Error
	if err == nil {
		return Identity{}, ErrEmailTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Identity{}, err
	}
	userID, err := s.ids.NewID()
	if err != nil {
		return Identity{}, err
	}

	identity := Identity{
		Provider:     ProviderPassword,
		Subject:      subject,
		UserID:       userID,
		Email:        subject,
		DisplayName:  normalize(displayName),
		PasswordHash: hash,
		LastSeenAt:   s.now(),
	}
	if err := s.db.Create(&identity).Error; err != nil {
		return Identity{}, err
	}

	s.cache.Store(ProviderPassword+":"+subject, identity.UserID)
	return identity, nil
}

// AuthenticatePassword verifies an email/password pair and returns the
// matching identity. Lookup and mismatch failures are indistinguishable to
// the caller.
func (s *Service) AuthenticatePassword(email, password string) (Identity, error) {
	subject := normalizeEmail(email)
	if subject == "" {
		return Identity{}, ErrInvalidCredentials
	}

	var identity Identity
	err := s.db.
		Where("provider = ? AND subject = ?", ProviderPassword, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}

	if err := auth.VerifyPassword(identity.PasswordHash, password); err != nil {
		return Identity{}, ErrInvalidCredentials
	}

	_ = s.db.Model(&Identity{}).
		Where("provider = ? AND subject = ?", ProviderPassword, subject).
		Update("last_seen_at", s.now()).
		Error

	return identity, nil
}
