package models

import "time"

// SystemSetting persists installation-wide values that must survive restarts,
// notably the generated token signing key and MFA encryption material.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
