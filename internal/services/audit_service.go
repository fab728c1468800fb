package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
)

// Event kinds recorded in the security audit log. The log is the only place
// that distinguishes failure causes the API deliberately blurs, so kinds are
// precise: an unknown email, a wrong password and a banned source each leave
// a different trail.
const (
	EventIdentityRegistered   = "identity.registered"
	EventPasswordChanged      = "identity.password_changed"
	EventLoginSuccess         = "login.success"
	EventLoginFailure         = "login.failure"
	EventLoginBanned          = "login.banned"
	EventLoginChallenge       = "login.challenge"
	EventTokenRefreshed       = "token.refreshed"
	EventTokenRefreshRejected = "token.refresh_rejected"
	EventLogout               = "logout"
	EventLogoutAll            = "logout.all"
	EventMFASetup             = "mfa.setup"
	EventMFAEnabled           = "mfa.enabled"
	EventMFADisabled          = "mfa.disabled"
	EventRecoveryCodeUsed     = "mfa.recovery_code_used"
	EventGuardBan             = "guard.ban"
)

// AuditEntry captures a single security event to persist.
type AuditEntry struct {
	Kind      string
	ActorID   *string
	Email     string
	IPAddress string
	UserAgent string
	Detail    string
	Metadata  map[string]any
}

// AuditFilters encapsulates optional filters when querying the audit log.
type AuditFilters struct {
	Kind      string
	ActorID   string
	Email     string
	IPAddress string
	Since     *time.Time
	Until     *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves security events. The log is append
// only: rows are never updated, and the single delete path is the retention
// cleanup.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// Record stores a security event, marshalling metadata into JSON form.
func (s *AuditService) Record(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Kind) == "" {
		return errors.New("audit service: kind is required")
	}

	var payload datatypes.JSON
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	event := models.SecurityEvent{
		Kind:      strings.TrimSpace(entry.Kind),
		Email:     strings.TrimSpace(entry.Email),
		IPAddress: strings.TrimSpace(entry.IPAddress),
		UserAgent: strings.TrimSpace(entry.UserAgent),
		Detail:    strings.TrimSpace(entry.Detail),
		Metadata:  payload,
	}

	if entry.ActorID != nil && strings.TrimSpace(*entry.ActorID) != "" {
		id := strings.TrimSpace(*entry.ActorID)
		event.ActorID = &id
	}

	return s.db.WithContext(ctx).Create(&event).Error
}

// List returns paginated security events ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.SecurityEvent, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.SecurityEvent
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.SecurityEvent{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count events: %w", err)
	}

	if err := query.
		Preload("Actor").
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list events: %w", err)
	}

	return results, total, nil
}

// Export returns security events that match the provided filters without pagination.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.SecurityEvent, error) {
	ctx = ensureContext(ctx)

	var events []models.SecurityEvent
	query := s.db.WithContext(ctx).Model(&models.SecurityEvent{})
	query = applyAuditFilters(query, filters)

	if err := query.
		Preload("Actor").
		Order("created_at DESC").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("audit service: export events: %w", err)
	}

	return events, nil
}

// CleanupOlderThan removes security events older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.SecurityEvent{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup events: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.Kind != "" {
		query = query.Where("kind = ?", filters.Kind)
	}
	if filters.ActorID != "" {
		query = query.Where("actor_id = ?", filters.ActorID)
	}
	if filters.Email != "" {
		query = query.Where("email = ?", filters.Email)
	}
	if filters.IPAddress != "" {
		query = query.Where("ip_address = ?", filters.IPAddress)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}
