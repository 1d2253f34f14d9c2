package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// Settings is the global policy of the subscription service.
type Settings struct {
	Enabled      bool   `json:"enabled"`
	From         string `json:"from"`
	SiteName     string `json:"site_name"`
	MaxDelayDays int    `json:"max_delay_days"`
}

// DefaultSettings is what a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      false,
		From:         "Subscription Service <subscription-service@example.com>",
		SiteName:     "Herald",
		MaxDelayDays: 3,
	}
}

func (s Settings) Validate() error {
	if _, err := mail.ParseAddress(s.From); err != nil {
		return fmt.Errorf("%w: from address: %v", ErrInvalidSettings, err)
	}
	if strings.TrimSpace(s.SiteName) == "" {
		return fmt.Errorf("%w: site name is required", ErrInvalidSettings)
	}
	if s.MaxDelayDays < 1 {
		return fmt.Errorf("%w: max delay must be at least one day", ErrInvalidSettings)
	}
	return nil
}

// MaxDelay is how long a confirmation token stays valid.
func (s Settings) MaxDelay() time.Duration {
	return time.Duration(s.MaxDelayDays) * 24 * time.Hour
}

// SettingsUpdate carries a partial change; nil fields are left alone.
type SettingsUpdate struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	From         *string `json:"from,omitempty"`
	SiteName     *string `json:"site_name,omitempty"`
	MaxDelayDays *int    `json:"max_delay_days,omitempty"`
}

func (u SettingsUpdate) apply(s Settings) Settings {
	if u.Enabled != nil {
		s.Enabled = *u.Enabled
	}
	if u.From != nil {
		s.From = *u.From
	}
	if u.SiteName != nil {
		s.SiteName = *u.SiteName
	}
	if u.MaxDelayDays != nil {
		s.MaxDelayDays = *u.MaxDelayDays
	}
	return s
}

type SettingsStore interface {
	// Load returns the stored settings and false when nothing was saved yet.
	Load(ctx context.Context) (Settings, bool, error)
	Save(ctx context.Context, settings Settings) error
}

type SettingsRepository struct {
	db *sql.DB
}

var _ SettingsStore = (*SettingsRepository)(nil)

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Load(ctx context.Context) (Settings, bool, error) {
	var s Settings
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, sender, site_name, max_delay_days FROM subscription_settings WHERE id = 1
	`).Scan(&s.Enabled, &s.From, &s.SiteName, &s.MaxDelayDays)
	if err == sql.ErrNoRows {
		return Settings{}, false, nil
	}
	if err != nil {
		return Settings{}, false, err
	}
	return s, true, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subscription_settings (id, enabled, sender, site_name, max_delay_days, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			sender = excluded.sender,
			site_name = excluded.site_name,
			max_delay_days = excluded.max_delay_days,
			updated_at = excluded.updated_at
	`, s.Enabled, s.From, s.SiteName, s.MaxDelayDays, time.Now().UTC().Format(time.RFC3339))
	return err
}
