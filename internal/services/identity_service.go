package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
	apperrors "github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/errors"
)

// ErrUserNotFound indicates the requested user does not exist.
var ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)

// RegisterInput describes the fields accepted when registering an identity.
type RegisterInput struct {
	Email    string
	Password string
}

// IdentityService manages the user accounts the auth flows operate on.
type IdentityService struct {
	db           *gorm.DB
	auditService *AuditService
	passwordCost int
}

// IdentityOption customises the IdentityService.
type IdentityOption func(*IdentityService)

// WithPasswordCost sets the bcrypt cost applied to new password hashes.
// Zero keeps the library default.
func WithPasswordCost(cost int) IdentityOption {
	return func(s *IdentityService) {
		if cost > 0 {
			s.passwordCost = cost
		}
	}
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(db *gorm.DB, auditService *AuditService, opts ...IdentityOption) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}
	svc := &IdentityService{
		db:           db,
		auditService: auditService,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register provisions a new identity with a hashed password. The very first
// account becomes the workshop admin; everyone after that starts as a
// technician and is promoted out of band.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	hashed, err := crypto.HashPasswordWithCost(input.Password, s.passwordCost)
	if err != nil {
		return nil, fmt.Errorf("identity service: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: hashed,
		Role:     models.RoleTechnician,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Count(&count).Error; err != nil {
			return fmt.Errorf("identity service: count users: %w", err)
		}
		if count == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(user).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrEmailTaken
		}
		return nil, fmt.Errorf("identity service: create user: %w", err)
	}

	recordEvent(s.auditService, ctx, AuditEntry{
		Kind:    EventIdentityRegistered,
		ActorID: &user.ID,
		Email:   user.Email,
		Metadata: map[string]any{
			"role": user.Role,
		},
	})

	return user, nil
}

// GetByID loads an identity by identifier.
func (s *IdentityService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: get user: %w", err)
	}
	return &user, nil
}

// GetByEmail loads an identity by its normalised email address.
func (s *IdentityService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: get user by email: %w", err)
	}
	return &user, nil
}

// Count returns the number of registered identities.
func (s *IdentityService) Count(ctx context.Context) (int64, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("identity service: count users: %w", err)
	}
	return count, nil
}

// ChangePassword verifies the current password and replaces it with a new
// hash. The caller revokes outstanding sessions afterwards.
func (s *IdentityService) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(newPassword) == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if !crypto.VerifyPassword(user.Password, currentPassword) {
		return apperrors.ErrInvalidCredentials
	}

	hashed, err := crypto.HashPasswordWithCost(newPassword, s.passwordCost)
	if err != nil {
		return fmt.Errorf("identity service: hash new password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("identity service: change password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}

	recordEvent(s.auditService, ctx, AuditEntry{
		Kind:    EventPasswordChanged,
		ActorID: &user.ID,
		Email:   user.Email,
	})

	return nil
}

// RecordLogin stamps the identity with its most recent successful login.
func (s *IdentityService) RecordLogin(ctx context.Context, id, ipAddress string, at time.Time) error {
	ctx = ensureContext(ctx)

	updates := map[string]any{
		"last_login_at": &at,
		"last_login_ip": strings.TrimSpace(ipAddress),
	}
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("identity service: record login: %w", err)
	}
	return nil
}
