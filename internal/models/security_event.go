package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SecurityEvent is one append-only audit record. Rows are never updated;
// the only delete path is the retention job. Detail carries the precise
// server-side reason — it must never be echoed back to clients.
type SecurityEvent struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	Kind      string         `gorm:"not null;index" json:"kind"`
	ActorID   *string        `gorm:"type:uuid;index" json:"actor_id"`
	Actor     *User          `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Email     string         `gorm:"index" json:"email"`
	IPAddress string         `gorm:"index" json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Detail    string         `json:"detail"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (e *SecurityEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
