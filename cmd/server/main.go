package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"topicbridge/internal/config"
	"topicbridge/internal/database/boltstore"
	"topicbridge/internal/handlers"
	"topicbridge/internal/relay"
	"topicbridge/internal/routing"
	"topicbridge/internal/settings"
	"topicbridge/internal/telegram"
)

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Configure zerolog
	switch cfg.LogLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// JSON logs in production, pretty console logs in development
	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	log.Info().Msg("Starting Topic Bridge")

	store, err := boltstore.Open(boltstore.Options{
		Path: cfg.DBPath,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()

	log.Info().Str("path", cfg.DBPath).Msg("Database opened")

	settingsSvc := settings.NewService(store.ConfigStore(), log.Logger)

	gateway := telegram.NewClient(nil, cfg.APIBaseURL, cfg.BotToken, log.Logger)

	relaySvc := relay.NewService(
		relay.Config{
			AdminGroupID:    cfg.AdminGroupID,
			PrimaryAdminIDs: cfg.AdminIDs,
		},
		gateway,
		store.UserStore(),
		store.MessageStore(),
		settingsSvc,
		log.Logger,
	)

	h := handlers.New(relaySvc, cfg.WebhookSecret, log.Logger)

	handler := routing.SetupRouter(routing.Config{
		Handlers: h,
		Logger:   log.Logger,
	})

	log.Info().
		Str("address", cfg.ListenAddr).
		Int64("admin_group", cfg.AdminGroupID).
		Int("primary_admins", len(cfg.AdminIDs)).
		Msg("Starting HTTP server")

	if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
