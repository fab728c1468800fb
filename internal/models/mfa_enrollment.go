package models

import (
	"time"

	"gorm.io/datatypes"
)

// MFAEnrollment holds one TOTP enrollment per user. The secret is encrypted
// at rest and recovery codes are stored as bcrypt hashes; consumed codes are
// removed from the set and never re-added. Enabled stays false until the
// user proves possession of the authenticator with a valid code.
type MFAEnrollment struct {
	BaseModel

	UserID        string         `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret        string         `gorm:"not null" json:"-"`
	Enabled       bool           `gorm:"default:false" json:"enabled"`
	RecoveryCodes datatypes.JSON `json:"-"`
	EnabledAt     *time.Time     `json:"enabled_at"`
	LastUsedAt    *time.Time     `json:"last_used_at"`
}
