package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/metrics"
)

var (
	// ErrRefreshTokenNotFound marks a refresh token with no registry row.
	ErrRefreshTokenNotFound = errors.New("session: refresh token not found")
	// ErrRefreshTokenRevoked marks a refresh token that was explicitly revoked.
	ErrRefreshTokenRevoked = errors.New("session: refresh token revoked")
	// ErrRefreshTokenExpired marks a refresh token past its expiry.
	ErrRefreshTokenExpired = errors.New("session: refresh token expired")
)

// SessionMetadata captures contextual information about the client.
type SessionMetadata struct {
	IPAddress   string
	UserAgent   string
	Fingerprint string
}

// TokenPair carries one access token and one refresh token with their
// expiries. After a refresh the pair repeats the original refresh token:
// refresh tokens are never rotated, they live out their fixed lifetime.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionService manages the server-side refresh token registry. Every
// refresh token issued at login gets a row; refreshing, revoking and expiry
// all run against that row with conditional updates so concurrent calls
// cannot resurrect a dead session.
type SessionService struct {
	db     *gorm.DB
	tokens *TokenService
	now    func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, tokens *TokenService, clock func() time.Time) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session: database handle is required")
	}
	if tokens == nil {
		return nil, errors.New("session: token service is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionService{db: db, tokens: tokens, now: clock}, nil
}

// Create issues a fresh token pair for the user and registers the refresh
// token. Called on successful login.
func (s *SessionService) Create(ctx context.Context, user *models.User, meta SessionMetadata) (*TokenPair, error) {
	if user == nil || user.ID == "" {
		return nil, errors.New("session: user is required")
	}

	accessToken, accessExpiresAt, err := s.tokens.Issue(user, KindAccess)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExpiresAt, err := s.tokens.Issue(user, KindRefresh)
	if err != nil {
		return nil, err
	}

	record := &models.RefreshToken{
		UserID:      user.ID,
		Token:       refreshToken,
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		Fingerprint: meta.Fingerprint,
		ExpiresAt:   refreshExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("session: store refresh token: %w", err)
	}

	metrics.ActiveSessions.Inc()

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token itself is returned unchanged. The registry row is touched with a
// single conditional UPDATE; zero affected rows means the token is missing,
// revoked or expired, and the row is re-read once to tell those apart.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string, meta SessionMetadata) (*TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, KindRefresh)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrRefreshTokenExpired
		}
		return nil, err
	}

	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ? AND revoked_at IS NULL AND expires_at > ?", refreshToken, now).
		Update("last_used_at", now)
	if res.Error != nil {
		return nil, fmt.Errorf("session: touch refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.classifyRefreshFailure(ctx, refreshToken, now)
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRefreshTokenNotFound
		}
		return nil, fmt.Errorf("session: load user: %w", err)
	}

	accessToken, accessExpiresAt, err := s.tokens.Issue(&user, KindAccess)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// classifyRefreshFailure explains why the conditional refresh UPDATE matched
// nothing. Revocation wins over expiry when both hold.
func (s *SessionService) classifyRefreshFailure(ctx context.Context, refreshToken string, now time.Time) error {
	var record models.RefreshToken
	err := s.db.WithContext(ctx).
		Select("revoked_at", "expires_at").
		First(&record, "token = ?", refreshToken).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRefreshTokenNotFound
		}
		return fmt.Errorf("session: inspect refresh token: %w", err)
	}
	if record.RevokedAt != nil {
		return ErrRefreshTokenRevoked
	}
	if !record.ExpiresAt.After(now) {
		return ErrRefreshTokenExpired
	}
	return ErrRefreshTokenNotFound
}

// Revoke marks one refresh token revoked. Revoking an already revoked token
// succeeds so repeated logouts stay quiet; an unknown token is an error.
func (s *SessionService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrRefreshTokenNotFound
	}

	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ? AND revoked_at IS NULL", refreshToken).
		Update("revoked_at", now)
	if res.Error != nil {
		return fmt.Errorf("session: revoke refresh token: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		metrics.ActiveSessions.Dec()
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("token = ?", refreshToken).
		Count(&count).Error; err != nil {
		return fmt.Errorf("session: inspect refresh token: %w", err)
	}
	if count == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// RevokeAll revokes every live session of one user and reports how many were
// affected. Used for logout-everywhere and after password changes.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, errors.New("session: user id is required")
	}

	now := s.now()
	res := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("session: revoke user sessions: %w", res.Error)
	}

	metrics.ActiveSessions.Sub(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// ListActive returns the user's live sessions, newest first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	if userID == "" {
		return nil, errors.New("session: user id is required")
	}

	var records []models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked_at IS NULL AND expires_at > ?", userID, s.now()).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("session: list sessions: %w", err)
	}
	return records, nil
}

// CleanupExpired deletes registry rows that can never refresh again: expired
// rows and revoked rows. It then re-counts live sessions so the gauge heals
// from expiry drift.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).
		Where("expires_at <= ? OR revoked_at IS NOT NULL", now).
		Delete(&models.RefreshToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("session: cleanup expired tokens: %w", res.Error)
	}

	var active int64
	if err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("revoked_at IS NULL AND expires_at > ?", now).
		Count(&active).Error; err == nil {
		metrics.ActiveSessions.Set(float64(active))
	}

	return res.RowsAffected, nil
}
