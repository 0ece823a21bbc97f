package users

import (
	"strings"
	"time"
)

// Provider names for identity records.
const (
	ProviderGoogle   = "google"
	ProviderPassword = "password"
)

// Identity maps a provider-specific login to a canonical Lodestar user id.
// Password-provider rows additionally carry the bcrypt credential hash.
type Identity struct {
	Provider     string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject      string    `gorm:"column:subject;primaryKey;size:190;not null"`
	UserID       string    `gorm:"column:user_id;size:190;not null;index"`
	Email        string    `gorm:"column:user_email;size:320"`
	DisplayName  string    `gorm:"column:user_display_name;size:320"`
	AvatarURL    string    `gorm:"column:user_avatar_url;size:512"`
	PasswordHash string    `gorm:"column:password_hash;size:190"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
