package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/models"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/crypto"
)

func TestAuditServiceRecordListAndExport(t *testing.T) {
	db := openAuditServiceTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	hashed, err := crypto.HashPassword("secret123!")
	require.NoError(t, err)

	user := models.User{
		Email:    "auditor@example.com",
		Password: hashed,
		Role:     models.RoleAdmin,
	}
	require.NoError(t, db.Create(&user).Error)

	ctx := context.Background()
	err = svc.Record(ctx, AuditEntry{
		Kind:      EventLoginSuccess,
		ActorID:   &user.ID,
		Email:     user.Email,
		IPAddress: "10.0.0.1",
		UserAgent: "unit-test",
		Metadata:  map[string]any{"second_factor": "totp"},
	})
	require.NoError(t, err)

	err = svc.Record(ctx, AuditEntry{
		Kind:      EventLoginFailure,
		Email:     "intruder@example.com",
		IPAddress: "10.0.0.9",
		Detail:    "unknown email",
	})
	require.NoError(t, err)

	events, total, err := svc.List(ctx, AuditListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, events, 2)

	events, total, err = svc.List(ctx, AuditListOptions{
		Page:     1,
		PageSize: 10,
		Filters:  AuditFilters{Kind: EventLoginSuccess},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, events, 1)
	require.Equal(t, EventLoginSuccess, events[0].Kind)
	require.NotNil(t, events[0].Actor)
	require.Equal(t, user.ID, events[0].Actor.ID)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &metadata))
	require.Equal(t, "totp", metadata["second_factor"])

	exported, err := svc.Export(ctx, AuditFilters{IPAddress: "10.0.0.9"})
	require.NoError(t, err)
	require.Len(t, exported, 1)
	require.Equal(t, EventLoginFailure, exported[0].Kind)
	require.Equal(t, "unknown email", exported[0].Detail)
}

func TestAuditServiceTimeWindowFilters(t *testing.T) {
	db := openAuditServiceTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, kind := range []string{EventLoginFailure, EventLoginFailure, EventGuardBan} {
		event := models.SecurityEvent{
			Kind:      kind,
			Email:     "window@example.com",
			CreatedAt: base.Add(time.Duration(i) * 10 * time.Minute),
		}
		require.NoError(t, db.Create(&event).Error)
	}

	since := base.Add(5 * time.Minute)
	until := base.Add(15 * time.Minute)
	events, total, err := svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Since: &since, Until: &until},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, events, 1)

	events, _, err = svc.List(ctx, AuditListOptions{
		Filters: AuditFilters{Email: "window@example.com", Kind: EventGuardBan},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, EventGuardBan, events[0].Kind)
}

func TestAuditServiceRecordRequiresKind(t *testing.T) {
	db := openAuditServiceTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	err = svc.Record(context.Background(), AuditEntry{Email: "nobody@example.com"})
	require.Error(t, err)
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := openAuditServiceTestDB(t)
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	oldEvent := models.SecurityEvent{
		Kind:      EventLoginFailure,
		CreatedAt: time.Now().AddDate(0, 0, -10),
	}
	require.NoError(t, db.Create(&oldEvent).Error)

	freshEvent := models.SecurityEvent{
		Kind: EventLoginSuccess,
	}
	require.NoError(t, db.Create(&freshEvent).Error)

	ctx := context.Background()
	rows, err := svc.CleanupOlderThan(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, int64(1), rows)

	var remaining int64
	require.NoError(t, db.Model(&models.SecurityEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)

	_, err = svc.CleanupOlderThan(ctx, 0)
	require.Error(t, err)
}

func openAuditServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.SecurityEvent{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
