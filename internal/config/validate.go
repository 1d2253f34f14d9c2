package config

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"time"
)

// minAdminTokenLength keeps the admin bearer token out of guessing range.
const minAdminTokenLength = 16

func Validate(cfg *Config) error {
	var errs []error

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535"))
	}
	if cfg.Server.PublicURL == "" {
		errs = append(errs, fmt.Errorf("server.public_url is required"))
	} else if u, err := url.Parse(cfg.Server.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server.public_url %q is not a valid URL with scheme", cfg.Server.PublicURL))
	}

	// Allowed origins validation
	for i, origin := range cfg.Server.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] %q is not a valid URL with scheme", i, origin))
		}
	}

	// TLS validation
	switch cfg.Server.TLS.Mode {
	case "", "off":
		// no additional validation needed
	case "auto":
		if cfg.Server.TLS.Auto.Domain == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.domain is required when tls mode is auto"))
		}
		if cfg.Server.TLS.Auto.CacheDir == "" {
			errs = append(errs, fmt.Errorf("server.tls.auto.cache_dir is required when tls mode is auto"))
		}
	case "manual":
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.cert_file is required when tls mode is manual"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, fmt.Errorf("server.tls.key_file is required when tls mode is manual"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.tls.mode must be off, auto, or manual"))
	}

	// Database validation
	if cfg.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if cfg.Database.MaxOpenConns < 0 {
		errs = append(errs, fmt.Errorf("database.max_open_conns must not be negative"))
	}

	// Log validation
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level must be debug, info, warn, or error"))
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json"))
	}

	// Email validation (only if enabled)
	if cfg.Email.Enabled {
		if cfg.Email.Host == "" {
			errs = append(errs, fmt.Errorf("email.host is required when email is enabled"))
		}
		if cfg.Email.Port < 1 || cfg.Email.Port > 65535 {
			errs = append(errs, fmt.Errorf("email.port must be between 1 and 65535"))
		}
		if cfg.Email.RatePerSecond < 0 {
			errs = append(errs, fmt.Errorf("email.rate_per_second must not be negative"))
		}
		if cfg.Email.RatePerSecond > 0 && cfg.Email.Burst < 1 {
			errs = append(errs, fmt.Errorf("email.burst must be at least 1 when rate_per_second is set"))
		}
	}

	// Subscription defaults validation
	if _, err := mail.ParseAddress(cfg.Subscriptions.From); err != nil {
		errs = append(errs, fmt.Errorf("subscriptions.from is not a valid address: %w", err))
	}
	if cfg.Subscriptions.SiteName == "" {
		errs = append(errs, fmt.Errorf("subscriptions.site_name is required"))
	}
	if cfg.Subscriptions.MaxDelayDays < 1 {
		errs = append(errs, fmt.Errorf("subscriptions.max_delay_days must be at least 1"))
	}
	if cfg.Subscriptions.ReplayProtection && cfg.Redis.URL == "" {
		errs = append(errs, fmt.Errorf("subscriptions.replay_protection requires redis.url"))
	}

	// Admin validation (admin API is disabled without a token)
	if cfg.Admin.Token != "" && len(cfg.Admin.Token) < minAdminTokenLength {
		errs = append(errs, fmt.Errorf("admin.token must be at least %d characters", minAdminTokenLength))
	}

	// Redis validation (only if configured)
	if cfg.Redis.URL != "" {
		u, err := url.Parse(cfg.Redis.URL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss" && u.Scheme != "unix") {
			errs = append(errs, fmt.Errorf("redis.url must be a redis://, rediss:// or unix:// URL"))
		}
		if cfg.Redis.EventsChannel == "" {
			errs = append(errs, fmt.Errorf("redis.events_channel is required when redis is configured"))
		}
	}

	// Rate limit validation (only when enabled)
	if cfg.RateLimit.Enabled {
		for _, ep := range []struct {
			name string
			cfg  RateLimitEndpoint
		}{
			{"rate_limit.subscribe", cfg.RateLimit.Subscribe},
			{"rate_limit.unsubscribe", cfg.RateLimit.Unsubscribe},
			{"rate_limit.confirm", cfg.RateLimit.Confirm},
		} {
			if ep.cfg.Limit < 1 {
				errs = append(errs, fmt.Errorf("%s.limit must be at least 1", ep.name))
			}
			if ep.cfg.Window < time.Second {
				errs = append(errs, fmt.Errorf("%s.window must be at least 1s", ep.name))
			}
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
