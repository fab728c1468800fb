package mfa

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/database"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
)

func TestSetupStoresEncryptedEnrollment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "alice@example.com")
	service := newTestService(t, db, clock)

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URI, "otpauth://totp/")
	require.Len(t, enrollment.RecoveryCodes, defaultRecoveryCodeCount)

	_, err = png.Decode(bytes.NewReader(enrollment.QRCode))
	require.NoError(t, err)

	var stored models.MFAEnrollment
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.False(t, stored.Enabled)
	require.NotEqual(t, enrollment.Secret, stored.Secret)

	decrypted, err := crypto.Decrypt(stored.Secret, service.encryptionKey)
	require.NoError(t, err)
	require.Equal(t, enrollment.Secret, string(decrypted))

	var hashes []string
	require.NoError(t, json.Unmarshal(stored.RecoveryCodes, &hashes))
	require.Len(t, hashes, defaultRecoveryCodeCount)
	for i := range hashes {
		require.True(t, crypto.VerifyPassword(hashes[i], enrollment.RecoveryCodes[i]))
	}
}

func TestSetupRejectsEnabledEnrollment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "bob@example.com")
	service := newTestService(t, db, clock)
	enrollTestUser(t, service, user, clock)

	_, err := service.Setup(ctx, user.ID, user.Email)
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestSetupReplacesDisabledEnrollment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "carol@example.com")
	service := newTestService(t, db, clock)

	first, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	second, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	var stored models.MFAEnrollment
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	decrypted, err := crypto.Decrypt(stored.Secret, service.encryptionKey)
	require.NoError(t, err)
	require.Equal(t, second.Secret, string(decrypted))
}

func TestVerifyAndEnable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "dave@example.com")
	service := newTestService(t, db, clock)

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	err = service.VerifyAndEnable(ctx, user.ID, "000000")
	require.ErrorIs(t, err, ErrInvalidCode)

	var stored models.MFAEnrollment
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.False(t, stored.Enabled)

	code := generateTestCode(t, enrollment.Secret, clock.Now())
	require.NoError(t, service.VerifyAndEnable(ctx, user.ID, code))

	require.NoError(t, db.Where("user_id = ?", user.ID).First(&stored).Error)
	require.True(t, stored.Enabled)
	require.NotNil(t, stored.EnabledAt)

	err = service.VerifyAndEnable(ctx, user.ID, code)
	require.ErrorIs(t, err, ErrAlreadyEnabled)
}

func TestVerifyAcceptsSkewedCodes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "erin@example.com")
	service := newTestService(t, db, clock)
	enrollment := enrollTestUser(t, service, user, clock)

	// Codes up to two steps away are accepted.
	for _, offset := range []time.Duration{0, 30 * time.Second, -30 * time.Second, -time.Minute} {
		code := generateTestCode(t, enrollment.Secret, clock.Now().Add(offset))
		result, err := service.Verify(ctx, user.ID, code)
		require.NoError(t, err, "offset %s", offset)
		require.False(t, result.UsedRecoveryCode)
	}

	// Three steps out is too stale.
	stale := generateTestCode(t, enrollment.Secret, clock.Now().Add(-2*time.Minute))
	_, err := service.Verify(ctx, user.ID, stale)
	require.ErrorIs(t, err, ErrInvalidCode)
}

func TestVerifyRecoveryCodeFallback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "frank@example.com")
	service := newTestService(t, db, clock)
	enrollment := enrollTestUser(t, service, user, clock)

	result, err := service.Verify(ctx, user.ID, enrollment.RecoveryCodes[0])
	require.NoError(t, err)
	require.True(t, result.UsedRecoveryCode)
	require.Equal(t, defaultRecoveryCodeCount-1, result.RemainingRecoveryCodes)

	// A recovery code burns on use.
	_, err = service.Verify(ctx, user.ID, enrollment.RecoveryCodes[0])
	require.ErrorIs(t, err, ErrInvalidCode)

	result, err = service.Verify(ctx, user.ID, enrollment.RecoveryCodes[1])
	require.NoError(t, err)
	require.True(t, result.UsedRecoveryCode)
	require.Equal(t, defaultRecoveryCodeCount-2, result.RemainingRecoveryCodes)

	remaining, err := service.RemainingRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, defaultRecoveryCodeCount-2, remaining)
}

func TestVerifyRequiresEnabledEnrollment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "grace@example.com")
	service := newTestService(t, db, clock)

	_, err := service.Verify(ctx, user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	code := generateTestCode(t, enrollment.Secret, clock.Now())
	_, err = service.Verify(ctx, user.ID, code)
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestDisableRemovesEnrollment(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "heidi@example.com")
	service := newTestService(t, db, clock)
	enrollTestUser(t, service, user, clock)

	require.NoError(t, service.Disable(ctx, user.ID))

	enabled, err := service.Enabled(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, enabled)

	_, err = service.Verify(ctx, user.ID, "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)

	require.ErrorIs(t, service.Disable(ctx, user.ID), ErrNotEnrolled)
}

func TestEnabledReflectsLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	clock := &testClock{current: time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)}

	user := createTestUser(t, db, "ivan@example.com")
	service := newTestService(t, db, clock)

	enabled, err := service.Enabled(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, enabled)

	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	enabled, err = service.Enabled(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, enabled)

	code := generateTestCode(t, enrollment.Secret, clock.Now())
	require.NoError(t, service.VerifyAndEnable(ctx, user.ID, code))

	enabled, err = service.Enabled(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, enabled)
}

func newTestService(t *testing.T, db *gorm.DB, clock *testClock) *TOTPService {
	t.Helper()

	key := []byte("12345678901234567890123456789012")
	service, err := NewTOTPService(db, key, WithIssuer("GarageHub Test"), WithClock(clock.Now))
	require.NoError(t, err)
	return service
}

func enrollTestUser(t *testing.T, service *TOTPService, user *models.User, clock *testClock) *Enrollment {
	t.Helper()

	ctx := context.Background()
	enrollment, err := service.Setup(ctx, user.ID, user.Email)
	require.NoError(t, err)

	code := generateTestCode(t, enrollment.Secret, clock.Now())
	require.NoError(t, service.VerifyAndEnable(ctx, user.ID, code))
	return enrollment
}

func generateTestCode(t *testing.T, secret string, at time.Time) string {
	t.Helper()

	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.Open(database.Config{Driver: "sqlite"})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hashed, err := crypto.HashPassword("password")
	require.NoError(t, err)

	user := &models.User{
		Email:    email,
		Password: hashed,
		Role:     models.RoleTechnician,
	}

	require.NoError(t, db.Create(user).Error)
	return user
}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}
