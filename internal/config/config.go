package config

import "time"

type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Email         EmailConfig         `koanf:"email"`
	Subscriptions SubscriptionsConfig `koanf:"subscriptions"`
	Secret        SecretConfig        `koanf:"secret"`
	Admin         AdminConfig         `koanf:"admin"`
	Redis         RedisConfig         `koanf:"redis"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
}

type ServerConfig struct {
	Host           string    `koanf:"host"`
	Port           int       `koanf:"port"`
	PublicURL      string    `koanf:"public_url"`
	AllowedOrigins []string  `koanf:"allowed_origins"`
	TLS            TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	Mode     string        `koanf:"mode"`
	CertFile string        `koanf:"cert_file"`
	KeyFile  string        `koanf:"key_file"`
	Auto     AutoTLSConfig `koanf:"auto"`
}

type AutoTLSConfig struct {
	Domain   string `koanf:"domain"`
	Email    string `koanf:"email"`
	CacheDir string `koanf:"cache_dir"`
}

type DatabaseConfig struct {
	Path         string        `koanf:"path"`
	MaxOpenConns int           `koanf:"max_open_conns"`
	BusyTimeout  time.Duration `koanf:"busy_timeout"`
	CacheSize    int           `koanf:"cache_size"`
	MmapSize     int64         `koanf:"mmap_size"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type EmailConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	From     string `koanf:"from"`

	// RatePerSecond caps outbound messages; zero means unlimited.
	RatePerSecond float64 `koanf:"rate_per_second"`
	Burst         int     `koanf:"burst"`
}

// SubscriptionsConfig seeds the service settings on first start. After that
// the stored settings win and are changed through the admin API.
type SubscriptionsConfig struct {
	Enabled          bool   `koanf:"enabled"`
	From             string `koanf:"from"`
	SiteName         string `koanf:"site_name"`
	MaxDelayDays     int    `koanf:"max_delay_days"`
	ReplayProtection bool   `koanf:"replay_protection"`
}

type SecretConfig struct {
	SigningKey string `koanf:"signing_key"`
}

type AdminConfig struct {
	Token string `koanf:"token"`
}

type RedisConfig struct {
	URL           string `koanf:"url"`
	EventsChannel string `koanf:"events_channel"`
	KeyPrefix     string `koanf:"key_prefix"`
}

type RateLimitConfig struct {
	Enabled     bool              `koanf:"enabled"`
	Subscribe   RateLimitEndpoint `koanf:"subscribe"`
	Unsubscribe RateLimitEndpoint `koanf:"unsubscribe"`
	Confirm     RateLimitEndpoint `koanf:"confirm"`
}

type RateLimitEndpoint struct {
	Limit  int           `koanf:"limit"`
	Window time.Duration `koanf:"window"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			PublicURL: "http://localhost:8080",
			TLS: TLSConfig{
				Mode: "off",
				Auto: AutoTLSConfig{
					CacheDir: "./data/certs",
				},
			},
		},
		Database: DatabaseConfig{
			Path:         "./data/herald.db",
			MaxOpenConns: 4,
			BusyTimeout:  5 * time.Second,
			CacheSize:    -2000, // 2MB
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Email: EmailConfig{
			Enabled:       false,
			Port:          587,
			RatePerSecond: 10,
			Burst:         20,
		},
		Subscriptions: SubscriptionsConfig{
			Enabled:      false,
			From:         "Subscription Service <subscription-service@example.com>",
			SiteName:     "Herald",
			MaxDelayDays: 3,
		},
		Redis: RedisConfig{
			EventsChannel: "herald:content.published",
			KeyPrefix:     "herald:",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Subscribe:   RateLimitEndpoint{Limit: 5, Window: 15 * time.Minute},
			Unsubscribe: RateLimitEndpoint{Limit: 5, Window: 15 * time.Minute},
			Confirm:     RateLimitEndpoint{Limit: 20, Window: 15 * time.Minute},
		},
	}
}
