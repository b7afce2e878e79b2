// Package config loads runtime configuration from the environment.
package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

// Config is the full set of environment-driven settings. Everything
// tunable at runtime (welcome message, filters, keyword lists) lives in
// the database instead and is managed through the admin menu.
type Config struct {
	// BotToken is the Telegram Bot API token.
	BotToken string `env:"BOT_TOKEN,required"`

	// AdminGroupID is the forum-enabled supergroup that hosts the
	// per-user topics. Negative for supergroups.
	AdminGroupID int64 `env:"ADMIN_GROUP_ID,required"`

	// AdminIDs are the primary admin user IDs. They bypass verification
	// and own the configuration menu.
	AdminIDs []int64 `env:"ADMIN_IDS,required"`

	// WebhookSecret must match the secret_token registered with
	// setWebhook; deliveries without it are rejected.
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`

	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`
	DBPath     string `env:"DB_PATH,default=topicbridge.db"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"` // json or console

	// APIBaseURL overrides the Bot API endpoint, mainly for local API
	// servers.
	APIBaseURL string `env:"API_BASE_URL,default=https://api.telegram.org"`
}

// Load reads and validates configuration from the environment.
func Load(ctx context.Context) (Config, error) {
	cfg := Config{}
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing env vars: %w", err)
	}
	if len(cfg.AdminIDs) == 0 {
		return Config{}, fmt.Errorf("ADMIN_IDS must list at least one user id")
	}
	return cfg, nil
}
