package models

import (
	"time"
)

// CacheEntry backs the database cache store: guard failure counters, ban
// markers and rate-limit windows when no Redis is configured.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
