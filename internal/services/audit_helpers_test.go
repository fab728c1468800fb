package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordEventToleratesAuditFailure(t *testing.T) {
	db := openAuditServiceTestDB(t)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	// The insert fails against the closed database; the helper must absorb
	// it so the calling auth flow is unaffected.
	recordEvent(audit, context.Background(), AuditEntry{
		Kind:  EventLoginFailure,
		Email: "lost@example.com",
	})

	// A nil sink is also tolerated.
	recordEvent(nil, context.Background(), AuditEntry{Kind: EventLoginFailure})
}
