package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/config"
	"github.com/assistant-platform/auth-service/internal/events/kafka"
	httpHandler "github.com/assistant-platform/auth-service/internal/handler/http"
	"github.com/assistant-platform/auth-service/internal/infrastructure/database"
	"github.com/assistant-platform/auth-service/internal/infrastructure/oauthstate"
	"github.com/assistant-platform/auth-service/internal/infrastructure/ratelimit"
	"github.com/assistant-platform/auth-service/internal/infrastructure/security"
	"github.com/assistant-platform/auth-service/internal/infrastructure/sessionstore"
	"github.com/assistant-platform/auth-service/internal/service"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	pool      *pgxpool.Pool
	redis     *redis.Client
	publisher kafka.Publisher
	audit     *service.AuditService
	server    *http.Server

	maintenanceStop chan struct{}
	maintenanceDone chan struct{}
}

// New wires the service together. Configuration has already been validated;
// anything that fails here is an environment problem and aborts startup.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		cfg:             cfg,
		logger:          logger,
		maintenanceStop: make(chan struct{}),
		maintenanceDone: make(chan struct{}),
	}

	secretManager, err := security.NewSecretManager(cfg.Security.RootSecret)
	if err != nil {
		return nil, err
	}
	encryption, err := security.NewAESGCMEncryptionService(secretManager)
	if err != nil {
		return nil, err
	}

	a.pool, err = database.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.DSN, cfg.Database.MigrationsURL, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Redis selects the shared-state implementations; without it the service
	// falls back to in-process state and must run as a single instance.
	var (
		limiter      ratelimit.Limiter
		sessionStore sessionstore.Store
		stateStore   oauthstate.Store
	)
	limiterCfg := a.limiterConfig()
	if cfg.Redis.Addr != "" {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		limiter = ratelimit.NewRedisLimiter(a.redis, limiterCfg, logger)
		sessionStore = sessionstore.NewRedisStore(a.redis)
		stateStore = oauthstate.NewRedisStore(a.redis)
	} else {
		logger.Warn("No Redis configured; using in-memory stores (single instance only)")
		limiter = ratelimit.NewMemoryLimiter(limiterCfg, logger)
		sessionStore = sessionstore.NewMemoryStore()
		stateStore = oauthstate.NewMemoryStore()
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, "/auth-service", logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to kafka: %w", err)
		}
		a.publisher = producer
	} else {
		logger.Warn("No Kafka brokers configured; events disabled")
		a.publisher = kafka.NopPublisher{}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	accountRepo := database.NewPgxAccountRepository(a.pool)
	credRepo := database.NewPgxOAuthCredentialRepository(a.pool)
	mfaSecretRepo := database.NewPgxMFASecretRepository(a.pool)
	backupCodeRepo := database.NewPgxMFABackupCodeRepository(a.pool)
	apiTokenRepo := database.NewPgxAPITokenRepository(a.pool)
	auditRepo := database.NewPgxAuditLogRepository(a.pool)

	a.audit = service.NewAuditService(auditRepo, logger, m)

	oauthService := service.NewOAuthService(cfg, logger, stateStore, accountRepo, credRepo, encryption, a.audit, m)
	totpService := security.NewTOTPService(cfg.MFA.Issuer)
	mfaService := service.NewMFAService(logger, mfaSecretRepo, backupCodeRepo, accountRepo,
		totpService, encryption, a.audit, a.publisher, m, cfg.MFA.BackupCodeCount)
	sessionService := service.NewSessionService(logger, sessionStore, a.audit, m, cfg.Session.TTL)
	tokenService := service.NewAPITokenService(logger, apiTokenRepo, a.audit)
	authService := service.NewAuthService(logger, oauthService, mfaService, sessionService,
		limiter, a.audit, a.publisher, m, cfg.RateLimit.CrisisOverride)
	if cfg.RateLimit.CrisisOverride {
		logger.Warn("Rate-limit crisis override is active; lockouts on the second-factor step are bypassed")
	}

	router := httpHandler.NewRouter(httpHandler.RouterDeps{
		Config:   cfg,
		Logger:   logger,
		Auth:     authService,
		MFA:      mfaService,
		Sessions: sessionService,
		Tokens:   tokenService,
		Registry: registry,
	})

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go a.maintenanceLoop(tokenService, sessionStore)
	go a.watchKeyRotation(service.NewKeyRotationService(logger, encryption, a.audit))

	return a, nil
}

// watchKeyRotation rotates the token-encryption key on SIGHUP. Rotation is an
// operator action; there is deliberately no HTTP surface for it.
func (a *App) watchKeyRotation(rotator *service.KeyRotationService) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-a.maintenanceStop:
			return
		case <-sigCh:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := rotator.Rotate(ctx); err != nil {
				a.logger.Error("Key rotation failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (a *App) limiterConfig() ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	rl := a.cfg.RateLimit
	if rl.Window > 0 {
		cfg.Window = rl.Window
	}
	if rl.SoftThreshold > 0 {
		cfg.SoftThreshold = rl.SoftThreshold
	}
	if rl.HardThreshold > 0 {
		cfg.HardThreshold = rl.HardThreshold
	}
	if rl.BaseDelay > 0 {
		cfg.BaseDelay = rl.BaseDelay
	}
	if rl.BaseLockout > 0 {
		cfg.BaseLockout = rl.BaseLockout
	}
	if rl.EscalationWindow > 0 {
		cfg.EscalationWindow = rl.EscalationWindow
	}
	return cfg
}

// maintenanceLoop periodically clears expired API tokens and, for the
// in-memory session store, expired sessions.
func (a *App) maintenanceLoop(tokens *service.APITokenService, sessions sessionstore.Store) {
	defer close(a.maintenanceDone)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-a.maintenanceStop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		removed, err := tokens.PurgeExpired(ctx, time.Now().UTC())
		cancel()
		if err != nil {
			a.logger.Error("Failed to purge expired tokens", zap.Error(err))
		} else if removed > 0 {
			a.logger.Info("Purged expired tokens", zap.Int64("count", removed))
		}

		if purger, ok := sessions.(interface{ PurgeExpired() int }); ok {
			if purged := purger.PurgeExpired(); purged > 0 {
				a.logger.Info("Purged expired sessions", zap.Int("count", purged))
			}
		}
	}
}

// Run serves HTTP until the listener fails or Shutdown is called.
func (a *App) Run() error {
	a.logger.Info("HTTP server starting", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server and releases resources in dependency order: the
// listener first, then the audit buffer (so trailing requests still get their
// entries written), then the backends.
func (a *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := a.server.Shutdown(ctx); err != nil {
		firstErr = err
	}

	close(a.maintenanceStop)
	select {
	case <-a.maintenanceDone:
	case <-ctx.Done():
	}

	a.audit.Close()

	if err := a.publisher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.pool.Close()
	return firstErr
}
