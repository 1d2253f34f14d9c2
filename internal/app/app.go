package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/herald/api/internal/config"
	"github.com/herald/api/internal/content"
	"github.com/herald/api/internal/database"
	"github.com/herald/api/internal/email"
	"github.com/herald/api/internal/events"
	"github.com/herald/api/internal/handler"
	"github.com/herald/api/internal/metrics"
	"github.com/herald/api/internal/notification"
	"github.com/herald/api/internal/ratelimit"
	"github.com/herald/api/internal/server"
	"github.com/herald/api/internal/signing"
	"github.com/herald/api/internal/subscription"
)

type App struct {
	Config              *config.Config
	DB                  *database.DB
	Server              *server.Server
	Metrics             *metrics.Metrics
	EmailService        *email.Service
	SubscriptionService *subscription.Service
	Bus                 *events.Bus
	Redis               *redis.Client
	Listener            *events.RedisListener
	RateLimiter         *ratelimit.Limiter
}

// OpenDatabase opens and migrates the configured database.
func OpenDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(cfg.Database.Path, database.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		BusyTimeout:  cfg.Database.BusyTimeout,
		CacheSize:    cfg.Database.CacheSize,
		MmapSize:     cfg.Database.MmapSize,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := OpenDatabase(cfg)
	if err != nil {
		return nil, err
	}

	a, err := build(ctx, cfg, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, db *database.DB) (*App, error) {
	m := metrics.New()

	emailService, err := email.NewService(cfg.Email, m)
	if err != nil {
		return nil, err
	}

	// Token signing key
	if cfg.Secret.SigningKey == "" {
		key, err := loadOrCreateSecret(filepath.Join(filepath.Dir(cfg.Database.Path), ".signing_secret"))
		if err != nil {
			return nil, err
		}
		cfg.Secret.SigningKey = key
	}
	signer := signing.NewSigner(cfg.Secret.SigningKey)

	// Optional Redis: publish events and token replay protection
	var (
		rdb      *redis.Client
		replay   subscription.ReplayGuard
		bus      = events.NewBus()
		listener *events.RedisListener
	)
	if cfg.Redis.URL != "" {
		rdb, err = events.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		listener = events.NewRedisListener(rdb, cfg.Redis.EventsChannel, bus, m)
		if cfg.Subscriptions.ReplayProtection {
			replay = subscription.NewRedisReplayGuard(rdb, cfg.Redis.KeyPrefix+"token:")
		}
	}

	tree := content.NewRepository(db.DB)
	resolver := subscription.NewResolver(tree, subscription.NewRepository(db.DB))

	svc, err := subscription.NewService(ctx, subscription.Dependencies{
		Tree:        tree,
		Resolver:    resolver,
		Codec:       subscription.NewTokenCodec(signer),
		Mailer:      emailService,
		Settings:    subscription.NewSettingsRepository(db.DB),
		ReplayGuard: replay,
		Metrics:     m,
		PublicURL:   cfg.Server.PublicURL,
		Defaults: subscription.Settings{
			Enabled:      cfg.Subscriptions.Enabled,
			From:         cfg.Subscriptions.From,
			SiteName:     cfg.Subscriptions.SiteName,
			MaxDelayDays: cfg.Subscriptions.MaxDelayDays,
		},
	})
	if err != nil {
		closeRedis(rdb)
		return nil, err
	}

	notification.NewDispatcher(tree, svc).Register(bus)

	h := handler.New(handler.Dependencies{
		Content:  tree,
		Resolver: resolver,
		Service:  svc,
		Bus:      bus,
	})

	// Build rate limiter (nil if disabled)
	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		rules := []ratelimit.Rule{
			{Method: "POST", Pattern: server.PatternSubscribe, Limit: cfg.RateLimit.Subscribe.Limit, Window: cfg.RateLimit.Subscribe.Window},
			{Method: "POST", Pattern: server.PatternUnsubscribe, Limit: cfg.RateLimit.Unsubscribe.Limit, Window: cfg.RateLimit.Unsubscribe.Window},
			{Method: "GET", Pattern: server.PatternConfirm, Limit: cfg.RateLimit.Confirm.Limit, Window: cfg.RateLimit.Confirm.Window},
		}
		limiter = ratelimit.NewLimiter(rules)
	}

	if cfg.Admin.Token == "" {
		slog.Warn("admin.token is not set, admin API disabled", "component", "app")
	}

	router := server.NewRouter(h, server.RouterOptions{
		Limiter:        limiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AdminToken:     cfg.Admin.Token,
		Metrics:        m.Handler(),
	})

	// Build TLS options
	tlsOpts := server.TLSOptions{
		Mode:     cfg.Server.TLS.Mode,
		CertFile: cfg.Server.TLS.CertFile,
		KeyFile:  cfg.Server.TLS.KeyFile,
		Domain:   cfg.Server.TLS.Auto.Domain,
		Email:    cfg.Server.TLS.Auto.Email,
		CacheDir: cfg.Server.TLS.Auto.CacheDir,
	}
	if tlsOpts.Mode == "auto" {
		if err := os.MkdirAll(tlsOpts.CacheDir, 0700); err != nil {
			closeRedis(rdb)
			return nil, fmt.Errorf("creating TLS cache directory: %w", err)
		}
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, router, tlsOpts)

	return &App{
		Config:              cfg,
		DB:                  db,
		Server:              srv,
		Metrics:             m,
		EmailService:        emailService,
		SubscriptionService: svc,
		Bus:                 bus,
		Redis:               rdb,
		Listener:            listener,
		RateLimiter:         limiter,
	}, nil
}

// loadOrCreateSecret reads the key stored at path, generating and saving a
// random one on first start.
func loadOrCreateSecret(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		return strings.TrimSpace(string(data)), nil
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	secret := hex.EncodeToString(b)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return "", fmt.Errorf("writing signing secret: %w", err)
	}
	slog.Info("generated signing secret", "component", "app", "path", path)
	return secret, nil
}

func (a *App) Start(ctx context.Context) error {
	if a.Listener != nil {
		go func() {
			if err := a.Listener.Run(ctx); err != nil {
				slog.Error("publish event listener stopped", "component", "app", "error", err)
			}
		}()
	}

	// Start rate limiter cleanup
	if a.RateLimiter != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.RateLimiter.Cleanup()
				}
			}
		}()
	}

	slog.Info("starting herald",
		"addr", a.Server.Addr(),
		"database", a.Config.Database.Path,
		"tls", a.Server.TLSMode(),
		"email", a.EmailService.IsEnabled(),
		"subscriptions", a.SubscriptionService.Settings().Enabled,
		"redis", a.Redis != nil,
	)

	return a.Server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.Server.Shutdown(ctx); err != nil {
		return err
	}
	closeRedis(a.Redis)
	return a.DB.Close()
}

func closeRedis(rdb *redis.Client) {
	if rdb != nil {
		_ = rdb.Close()
	}
}
