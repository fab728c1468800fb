package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/logger"
)

// recordEvent writes the supplied event while tolerating audit failures.
// Auth flows must not fail because the audit insert did; the failure is
// logged so operators notice the gap in the trail.
func recordEvent(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	if err := audit.Record(ctx, entry); err != nil {
		logger.WithModule("audit").Warn("security event not recorded",
			zap.String("kind", entry.Kind),
			zap.Error(err))
	}
}
