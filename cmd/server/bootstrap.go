package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/api"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/app"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/app/maintenance"
	iauth "github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/guard"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/auth/mfa"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/cache"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/database"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/middleware"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/security"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/services"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/logger"
)

// runtimeStack bundles the long-lived services behind the HTTP server.
type runtimeStack struct {
	DB          *gorm.DB
	Redis       cache.Store
	Tokens      *iauth.TokenService
	Sessions    *iauth.SessionService
	Audit       *services.AuditService
	Identities  *services.IdentityService
	Logins      *services.LoginService
	Guard       guard.Guard
	memoryGuard *guard.MemoryGuard
	Cleaner     *maintenance.Cleaner
	RateStore   middleware.RateStore
	Router      *gin.Engine
}

// bootstrapRuntime initialises the database, cache, services and router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	secrets, generated, err := app.EnsureRuntimeSecrets(ctx, stack.DB, cfg)
	if err != nil {
		return nil, err
	}
	for key := range generated {
		log.Info("generated runtime secret", zap.String("key", key))
	}

	// Shared store for guard counters and rate limits, selected by config.
	// The memory driver keeps both per-process.
	var store cache.Store
	switch cfg.Cache.Driver {
	case "redis":
		client, redisErr := cache.NewRedisClient(cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to database store", zap.Error(redisErr))
			store = cache.NewDatabaseStore(stack.DB)
		} else {
			stack.Redis = client
			store = client
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	case "database":
		store = cache.NewDatabaseStore(stack.DB)
	}

	stack.Tokens, err = iauth.NewTokenService(cfg.Auth.TokenServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionService(stack.DB, stack.Tokens, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	stack.Audit, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	stack.Identities, err = services.NewIdentityService(stack.DB, stack.Audit,
		services.WithPasswordCost(cfg.Auth.PasswordCost))
	if err != nil {
		return nil, fmt.Errorf("initialise identity service: %w", err)
	}

	totpSvc, err := mfa.NewTOTPService(stack.DB, secrets.MFAEncryptionKey, cfg.Auth.TOTPOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise totp service: %w", err)
	}

	if store != nil {
		stack.Guard, err = guard.NewStoreGuard(store, cfg.Auth.GuardConfig())
		if err != nil {
			return nil, fmt.Errorf("initialise guard: %w", err)
		}
	} else {
		stack.memoryGuard = guard.NewMemoryGuard(cfg.Auth.GuardConfig())
		stack.Guard = stack.memoryGuard
	}

	stack.Logins, err = services.NewLoginService(stack.Identities, stack.Sessions, totpSvc, stack.Guard, stack.Audit, nil)
	if err != nil {
		return nil, fmt.Errorf("initialise login service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.DB, stack.Sessions, stack.Audit,
			maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays))
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewRedisRateStore(store)
	case store != nil:
		stack.RateStore = middleware.NewDatabaseRateStore(store)
	default:
		stack.RateStore = middleware.NewMemoryRateStore()
	}

	posture := security.NewPostureService(stack.DB, cfg, stack.Tokens, generated[database.SigningKeySetting])

	stack.Router, err = api.NewRouter(api.Deps{
		DB:         stack.DB,
		Config:     cfg,
		Tokens:     stack.Tokens,
		Sessions:   stack.Sessions,
		Identities: stack.Identities,
		Logins:     stack.Logins,
		Posture:    posture,
		RateStore:  stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.memoryGuard != nil {
		s.memoryGuard.Stop()
	}

	if rc, ok := s.Redis.(*cache.RedisClient); ok && rc != nil {
		if err := rc.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
