package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerline/ledgerline/internal/audit"
	"github.com/ledgerline/ledgerline/internal/auth"
	"github.com/ledgerline/ledgerline/internal/onboarding"
	"github.com/ledgerline/ledgerline/internal/platform/config"
	"github.com/ledgerline/ledgerline/internal/platform/database"
	"github.com/ledgerline/ledgerline/internal/platform/server"
	"github.com/ledgerline/ledgerline/internal/platform/telemetry"
	"github.com/ledgerline/ledgerline/internal/presets"
	"github.com/ledgerline/ledgerline/internal/rbac"
	"github.com/ledgerline/ledgerline/internal/tenant"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)
	slog.Info("ledgerline starting", "port", cfg.Server.Port)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if !cfg.Auth.DevMode && len(cfg.Auth.JWT.SigningKey) < 32 {
		return errors.New("auth.jwt.signingkey must be at least 32 characters")
	}

	if err := database.RunMigrations(adminURL(cfg), "file://"+cfg.Database.MigrationsPath); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("migrations complete")

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns,
		database.WithStatementTimeout(time.Duration(cfg.Database.StatementTimeoutMillis)*time.Millisecond))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	// Role reloads and audit writes span tenants, so they use the owner
	// role when one is configured.
	adminPool := pool
	if cfg.Database.AdminURL != "" {
		adminPool, err = database.Connect(ctx, cfg.Database.AdminURL, 5,
			database.WithApplicationName(database.DefaultApplicationName+"-admin"))
		if err != nil {
			return fmt.Errorf("connecting to database as owner: %w", err)
		}
		defer adminPool.Close()
	}

	metrics := telemetry.NewMetrics()

	engine := rbac.NewEngine(rbac.WithRoleLoader(tenant.NewRoleLoader(adminPool)))
	if err := engine.ReloadRoles(ctx); err != nil {
		return fmt.Errorf("loading custom roles: %w", err)
	}

	auditLogger := audit.NewAsyncLogger(adminPool, audit.NewStore(), audit.LoggerConfig{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
		Logger:        telemetry.Component(logger, "audit"),
	})
	defer auditLogger.Close()

	tokenSvc := auth.NewTokenService(
		cfg.Auth.JWT.SigningKey,
		cfg.Auth.JWT.Issuer,
		cfg.Auth.JWT.ExpiryHours,
		cfg.Auth.JWT.RefreshExpiryHours,
	)
	authHandler := auth.NewHandler(auth.HandlerConfig{
		TokenSvc: tokenSvc,
		Lookup:   auth.NewStore(pool),
		DevMode:  cfg.Auth.DevMode,
	})

	tenantStore := tenant.NewStore(pool)
	roleStore := tenant.NewRoleStore()
	userStore := tenant.NewUserStore()

	progress, closeProgress, err := buildProgressStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeProgress()

	catalog, err := presets.LoadCatalog()
	if err != nil {
		return fmt.Errorf("loading preset catalog: %w", err)
	}
	provisioner := presets.NewProvisioner(pool, catalog,
		presets.WithProgressStore(progress),
		presets.WithMetrics(metrics),
		presets.WithLogger(telemetry.Component(logger, "presets")),
	)
	onboardingSvc := onboarding.NewService(pool, tenantStore, provisioner, progress,
		onboarding.WithAuditLogger(auditLogger),
		onboarding.WithStepMetrics(metrics),
		onboarding.WithBaseDomain(cfg.Server.BaseDomain),
	)

	var devIdentity *auth.Identity
	if cfg.Auth.DevMode {
		slog.Warn("running in dev mode: 'Bearer dev' authenticates as platform admin")
		devIdentity = &auth.Identity{
			UserID:    "dev-user",
			Role:      string(rbac.PlatformAdmin),
			TokenType: auth.TokenTypeAccess,
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, server.Dependencies{
		Pool:          pool,
		Auth:          tokenSvc,
		AuthHandler:   authHandler,
		RBAC:          engine,
		TenantHandler: tenant.NewHandler(tenantStore, auditLogger),
		UserHandler:   tenant.NewUserHandler(pool, userStore, roleStore, engine, auditLogger),
		RoleHandler:   tenant.NewRoleHandler(pool, roleStore, engine, auditLogger),
		AuditHandler:  audit.NewHandler(adminPool),
		OnboardingHandler: onboarding.NewHandler(onboardingSvc,
			onboarding.WithStreamInterval(time.Duration(cfg.Onboarding.StreamIntervalMillis)*time.Millisecond),
			onboarding.WithOriginPatterns(cfg.Server.CORSAllowedOrigins),
		),
		RBACAuditLogger:    &rbacAuditAdapter{l: auditLogger},
		Metrics:            metrics,
		DevMode:            cfg.Auth.DevMode,
		DevIdentity:        devIdentity,
		Logger:             logger,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		reloadLoop(gctx, engine, time.Duration(cfg.Onboarding.RoleReloadIntervalSecs)*time.Second)
		return nil
	})

	slog.Info("server ready", "addr", addr, "dev_mode", cfg.Auth.DevMode)
	return g.Wait()
}

func adminURL(cfg *config.Config) string {
	if cfg.Database.AdminURL != "" {
		return cfg.Database.AdminURL
	}
	return cfg.Database.URL
}

// buildProgressStore uses Redis when configured and process memory otherwise.
func buildProgressStore(ctx context.Context, cfg *config.Config) (presets.ProgressStore, func(), error) {
	ttl := time.Duration(cfg.Onboarding.ProgressTTLSecs) * time.Second
	if cfg.Redis.Addr == "" {
		slog.Warn("redis not configured, provisioning progress kept in memory")
		return presets.NewMemoryProgressStore(ttl), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return presets.NewRedisProgressStore(client, ttl), func() { _ = client.Close() }, nil
}

// RoleReloader refreshes the engine's custom role catalog.
type RoleReloader interface {
	ReloadRoles(ctx context.Context) error
}

// reloadLoop picks up custom roles changed by other replicas.
func reloadLoop(ctx context.Context, r RoleReloader, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ReloadRoles(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("reloading custom roles failed", "error", err)
			}
		}
	}
}

// rbacAuditAdapter bridges audit.Logger to rbac.AuditLogger.
type rbacAuditAdapter struct {
	l audit.Logger
}

func (a *rbacAuditAdapter) Log(ctx context.Context, event rbac.AuditEvent) {
	a.l.Log(ctx, audit.Event{
		TenantID:     event.TenantID,
		UserID:       event.UserID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		Metadata:     event.Metadata,
		Source:       event.Source,
	})
}

func runMigrate(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	source := "file://" + cfg.Database.MigrationsPath
	if err := database.RunMigrations(adminURL(cfg), source); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	version, dirty, err := database.MigrationVersion(adminURL(cfg), source)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
