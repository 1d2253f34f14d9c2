package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "HERALD_"

func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	defaults := Defaults()
	if err := k.Load(defaultsProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// 2. Load from config file if it exists
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
		}
	} else {
		// Try default config paths
		for _, path := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
					return nil, fmt.Errorf("loading config file: %w", err)
				}
				break
			}
		}
	}

	// 3. Load from environment variables (HERALD_ prefix)
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper(k.Keys())), nil); err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	// 4. Load from CLI flags
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	// 5. Unmarshal into struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
	}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// 6. Validate
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// envKeyMapper maps HERALD_RATE_LIMIT_SUBSCRIBE_LIMIT onto the known key
// rate_limit.subscribe.limit. Keys use underscores themselves, so splitting
// on every underscore would be ambiguous. Unknown names fall back to that
// naive split.
func envKeyMapper(known []string) func(string) string {
	byEnv := make(map[string]string, len(known))
	for _, key := range known {
		byEnv[strings.ToUpper(strings.ReplaceAll(key, ".", "_"))] = key
	}
	return func(s string) string {
		name := strings.TrimPrefix(s, envPrefix)
		if key, ok := byEnv[name]; ok {
			return key
		}
		return strings.ReplaceAll(strings.ToLower(name), "_", ".")
	}
}

type defaultsProviderStruct struct {
	defaults *Config
}

func defaultsProvider(defaults *Config) *defaultsProviderStruct {
	return &defaultsProviderStruct{defaults: defaults}
}

func (d *defaultsProviderStruct) ReadBytes() ([]byte, error) {
	return nil, nil
}

func (d *defaultsProviderStruct) Read() (map[string]interface{}, error) {
	c := d.defaults
	endpoint := func(e RateLimitEndpoint) map[string]interface{} {
		return map[string]interface{}{
			"limit":  e.Limit,
			"window": e.Window.String(),
		}
	}
	return map[string]interface{}{
		"server": map[string]interface{}{
			"host":            c.Server.Host,
			"port":            c.Server.Port,
			"public_url":      c.Server.PublicURL,
			"allowed_origins": c.Server.AllowedOrigins,
			"tls": map[string]interface{}{
				"mode":      c.Server.TLS.Mode,
				"cert_file": c.Server.TLS.CertFile,
				"key_file":  c.Server.TLS.KeyFile,
				"auto": map[string]interface{}{
					"domain":    c.Server.TLS.Auto.Domain,
					"email":     c.Server.TLS.Auto.Email,
					"cache_dir": c.Server.TLS.Auto.CacheDir,
				},
			},
		},
		"database": map[string]interface{}{
			"path":           c.Database.Path,
			"max_open_conns": c.Database.MaxOpenConns,
			"busy_timeout":   c.Database.BusyTimeout.String(),
			"cache_size":     c.Database.CacheSize,
			"mmap_size":      c.Database.MmapSize,
		},
		"log": map[string]interface{}{
			"level":  c.Log.Level,
			"format": c.Log.Format,
		},
		"email": map[string]interface{}{
			"enabled":         c.Email.Enabled,
			"host":            c.Email.Host,
			"port":            c.Email.Port,
			"username":        c.Email.Username,
			"password":        c.Email.Password,
			"from":            c.Email.From,
			"rate_per_second": c.Email.RatePerSecond,
			"burst":           c.Email.Burst,
		},
		"subscriptions": map[string]interface{}{
			"enabled":           c.Subscriptions.Enabled,
			"from":              c.Subscriptions.From,
			"site_name":         c.Subscriptions.SiteName,
			"max_delay_days":    c.Subscriptions.MaxDelayDays,
			"replay_protection": c.Subscriptions.ReplayProtection,
		},
		"secret": map[string]interface{}{
			"signing_key": c.Secret.SigningKey,
		},
		"admin": map[string]interface{}{
			"token": c.Admin.Token,
		},
		"redis": map[string]interface{}{
			"url":            c.Redis.URL,
			"events_channel": c.Redis.EventsChannel,
			"key_prefix":     c.Redis.KeyPrefix,
		},
		"rate_limit": map[string]interface{}{
			"enabled":     c.RateLimit.Enabled,
			"subscribe":   endpoint(c.RateLimit.Subscribe),
			"unsubscribe": endpoint(c.RateLimit.Unsubscribe),
			"confirm":     endpoint(c.RateLimit.Confirm),
		},
	}, nil
}

func SetupFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("herald", pflag.ContinueOnError)
	flags.String("config", "", "Path to config file")
	flags.String("server.host", "", "Server host")
	flags.Int("server.port", 0, "Server port")
	flags.String("server.public_url", "", "Public URL used in confirmation links")
	flags.StringSlice("server.allowed_origins", nil, "Allowed CORS origins")
	flags.String("server.tls.mode", "", "TLS mode: off, auto, or manual")
	flags.String("server.tls.cert_file", "", "TLS certificate file (manual mode)")
	flags.String("server.tls.key_file", "", "TLS key file (manual mode)")
	flags.String("server.tls.auto.domain", "", "Domain for automatic TLS (auto mode)")
	flags.String("server.tls.auto.email", "", "Contact email for Let's Encrypt (auto mode)")
	flags.String("server.tls.auto.cache_dir", "", "Certificate cache directory (auto mode)")
	flags.String("database.path", "", "Database path")
	flags.String("log.level", "", "Log level: debug, info, warn, or error")
	flags.String("log.format", "", "Log format: text or json")
	flags.Bool("email.enabled", false, "Enable email sending")
	flags.Bool("subscriptions.enabled", false, "Enable subscriptions on first start")
	flags.String("redis.url", "", "Redis URL for publish events and replay protection")
	flags.String("admin.token", "", "Bearer token for the admin API")
	return flags
}
