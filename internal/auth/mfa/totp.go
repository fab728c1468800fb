package mfa

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/metrics"
)

const (
	defaultIssuer            = "GarageHub"
	defaultRecoveryCodeCount = 10
	defaultQRCodeSize        = 256

	// Codes are accepted from two steps either side of the current one, so
	// a code stays usable for at least a minute of clock drift.
	totpPeriod = 30
	totpSkew   = 2
)

var (
	// ErrNotEnrolled is returned when no usable enrollment exists for the user.
	ErrNotEnrolled = errors.New("totp: not enrolled")
	// ErrAlreadyEnabled is returned when setup is attempted over an enabled
	// enrollment. The existing enrollment must be disabled first.
	ErrAlreadyEnabled = errors.New("totp: already enabled")
	// ErrInvalidCode is returned when neither the TOTP code nor a recovery
	// code matches.
	ErrInvalidCode = errors.New("totp: invalid code")
)

// Option allows customising the TOTP service.
type Option func(*TOTPService)

// WithIssuer overrides the default issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithRecoveryCodeCount overrides the number of recovery codes generated per enrollment.
func WithRecoveryCodeCount(count int) Option {
	return func(s *TOTPService) {
		if count > 0 {
			s.recoveryCodes = count
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TOTPService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// TOTPService manages second-factor enrollments: TOTP secrets, recovery
// codes and QR provisioning. Secrets are encrypted at rest; recovery codes
// are stored as bcrypt hashes and burn on use.
type TOTPService struct {
	db            *gorm.DB
	encryptionKey []byte

	issuer        string
	recoveryCodes int
	qrCodeSize    int
	now           func() time.Time
}

// NewTOTPService constructs a TOTP service backed by the provided database.
func NewTOTPService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("totp: db is required")
	}
	if len(encryptionKey) == 0 {
		return nil, errors.New("totp: encryption key is required")
	}

	service := &TOTPService{
		db:            db,
		encryptionKey: encryptionKey,
		issuer:        defaultIssuer,
		recoveryCodes: defaultRecoveryCodeCount,
		qrCodeSize:    defaultQRCodeSize,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Enrollment is the provisioning payload returned by Setup. The plaintext
// secret and recovery codes appear here exactly once; afterwards only the
// encrypted secret and the code hashes exist.
type Enrollment struct {
	Secret        string   `json:"secret"`
	URI           string   `json:"uri"`
	QRCode        []byte   `json:"qr_code"`
	RecoveryCodes []string `json:"recovery_codes"`
}

// VerifyResult reports how a second-factor check succeeded.
type VerifyResult struct {
	UsedRecoveryCode       bool
	RemainingRecoveryCodes int
}

// Setup provisions a new secret and recovery codes for the user. A disabled
// enrollment is replaced wholesale; an enabled one is never touched, it must
// be disabled first so a stolen session cannot swap the second factor.
func (s *TOTPService) Setup(ctx context.Context, userID, email string) (*Enrollment, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return nil, errors.New("totp: user id and email are required")
	}

	var existing models.MFAEnrollment
	lookupErr := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&existing).Error
	if lookupErr != nil && !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("totp: load enrollment: %w", lookupErr)
	}
	if lookupErr == nil && existing.Enabled {
		return nil, ErrAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate key: %w", err)
	}

	codes := make([]string, s.recoveryCodes)
	hashes := make([]string, s.recoveryCodes)
	for i := range codes {
		code, err := generateRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("totp: generate recovery code: %w", err)
		}
		hash, err := crypto.HashPassword(code)
		if err != nil {
			return nil, fmt.Errorf("totp: hash recovery code: %w", err)
		}
		codes[i] = code
		hashes[i] = hash
	}

	codesJSON, err := json.Marshal(hashes)
	if err != nil {
		return nil, fmt.Errorf("totp: marshal recovery codes: %w", err)
	}

	encryptedSecret, err := crypto.Encrypt([]byte(key.Secret()), s.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("totp: encrypt secret: %w", err)
	}

	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		enrollment := models.MFAEnrollment{
			UserID:        userID,
			Secret:        encryptedSecret,
			RecoveryCodes: datatypes.JSON(codesJSON),
		}
		if err := s.db.WithContext(ctx).Create(&enrollment).Error; err != nil {
			return nil, fmt.Errorf("totp: create enrollment: %w", err)
		}
	} else {
		updates := map[string]any{
			"secret":         encryptedSecret,
			"recovery_codes": datatypes.JSON(codesJSON),
			"enabled":        false,
			"enabled_at":     nil,
			"last_used_at":   nil,
		}
		if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("totp: update enrollment: %w", err)
		}
	}

	png, err := qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("totp: encode qr code: %w", err)
	}

	return &Enrollment{
		Secret:        key.Secret(),
		URI:           key.String(),
		QRCode:        png,
		RecoveryCodes: codes,
	}, nil
}

// VerifyAndEnable proves the user can produce codes for the provisioned
// secret and switches the enrollment on.
func (s *TOTPService) VerifyAndEnable(ctx context.Context, userID, code string) error {
	enrollment, err := s.loadEnrollment(ctx, userID)
	if err != nil {
		return err
	}
	if enrollment.Enabled {
		return ErrAlreadyEnabled
	}

	ok, err := s.validateTOTP(enrollment, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCode
	}

	now := s.now()
	updates := map[string]any{
		"enabled":      true,
		"enabled_at":   &now,
		"last_used_at": &now,
	}
	if err := s.db.WithContext(ctx).Model(enrollment).Updates(updates).Error; err != nil {
		return fmt.Errorf("totp: enable enrollment: %w", err)
	}
	return nil
}

// Verify checks a submitted code against an enabled enrollment. The TOTP
// code is tried first; on a miss each unused recovery code is tried and, if
// one matches, it is consumed.
func (s *TOTPService) Verify(ctx context.Context, userID, code string) (*VerifyResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrInvalidCode
	}

	enrollment, err := s.loadEnrollment(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !enrollment.Enabled {
		return nil, ErrNotEnrolled
	}

	var hashes []string
	if err := json.Unmarshal(enrollment.RecoveryCodes, &hashes); err != nil {
		return nil, fmt.Errorf("totp: unmarshal recovery codes: %w", err)
	}

	ok, err := s.validateTOTP(enrollment, code)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := s.touch(ctx, enrollment); err != nil {
			return nil, err
		}
		metrics.SecondFactorChecks.WithLabelValues("totp", "ok").Inc()
		return &VerifyResult{RemainingRecoveryCodes: len(hashes)}, nil
	}

	for i, stored := range hashes {
		if crypto.VerifyPassword(stored, code) {
			hashes = append(hashes[:i], hashes[i+1:]...)
			encoded, err := json.Marshal(hashes)
			if err != nil {
				return nil, fmt.Errorf("totp: marshal recovery codes: %w", err)
			}
			now := s.now()
			updates := map[string]any{
				"recovery_codes": datatypes.JSON(encoded),
				"last_used_at":   &now,
			}
			if err := s.db.WithContext(ctx).Model(enrollment).Updates(updates).Error; err != nil {
				return nil, fmt.Errorf("totp: consume recovery code: %w", err)
			}
			metrics.SecondFactorChecks.WithLabelValues("recovery", "ok").Inc()
			return &VerifyResult{
				UsedRecoveryCode:       true,
				RemainingRecoveryCodes: len(hashes),
			}, nil
		}
	}

	metrics.SecondFactorChecks.WithLabelValues("totp", "fail").Inc()
	return nil, ErrInvalidCode
}

// Disable removes the enrollment entirely; a later setup starts from scratch.
func (s *TOTPService) Disable(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("totp: user id is required")
	}

	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.MFAEnrollment{})
	if res.Error != nil {
		return fmt.Errorf("totp: delete enrollment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotEnrolled
	}
	return nil
}

// Enabled reports whether the user has an enabled enrollment.
func (s *TOTPService) Enabled(ctx context.Context, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.MFAEnrollment{}).
		Where("user_id = ? AND enabled = ?", userID, true).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("totp: check enrollment: %w", err)
	}
	return count > 0, nil
}

// RemainingRecoveryCodes returns the number of unused recovery codes.
func (s *TOTPService) RemainingRecoveryCodes(ctx context.Context, userID string) (int, error) {
	enrollment, err := s.loadEnrollment(ctx, userID)
	if err != nil {
		return 0, err
	}

	var hashes []string
	if err := json.Unmarshal(enrollment.RecoveryCodes, &hashes); err != nil {
		return 0, fmt.Errorf("totp: unmarshal recovery codes: %w", err)
	}
	return len(hashes), nil
}

func (s *TOTPService) loadEnrollment(ctx context.Context, userID string) (*models.MFAEnrollment, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("totp: user id is required")
	}

	var enrollment models.MFAEnrollment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("totp: load enrollment: %w", err)
	}

	return &enrollment, nil
}

func (s *TOTPService) validateTOTP(enrollment *models.MFAEnrollment, code string) (bool, error) {
	rawSecret, err := crypto.Decrypt(enrollment.Secret, s.encryptionKey)
	if err != nil {
		return false, fmt.Errorf("totp: decrypt secret: %w", err)
	}

	ok, err := totp.ValidateCustom(strings.TrimSpace(code), string(rawSecret), s.now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("totp: validate code: %w", err)
	}
	return ok, nil
}

func (s *TOTPService) touch(ctx context.Context, enrollment *models.MFAEnrollment) error {
	now := s.now()
	if err := s.db.WithContext(ctx).Model(enrollment).Update("last_used_at", &now).Error; err != nil {
		return fmt.Errorf("totp: update last used: %w", err)
	}
	return nil
}

func generateRecoveryCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := cryptoRand.Read(buf); err != nil {
		return "", err
	}

	return base32.StdEncoding.EncodeToString(buf)[:8], nil
}
