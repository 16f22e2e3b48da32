package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Ayomide650/DMS-Assistant/common/environment"
	"github.com/Ayomide650/DMS-Assistant/common/redact"
	"github.com/Ayomide650/DMS-Assistant/common/version"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/app"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/llm"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/matrix"
	"github.com/Ayomide650/DMS-Assistant/internal/assistant/mode"
)

func main() {
	// A missing .env file is fine; the environment may be set by the host.
	// Loaded before setupLogging so LOG_LEVEL from the file takes effect.
	dotenvErr := godotenv.Load()

	setupLogging()
	if dotenvErr == nil {
		slog.Info("loaded configuration from .env file")
	}

	fmt.Printf("DMS Assistant\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	config, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded", "config", redact.Map(map[string]any{
		"homeserver":   config.Matrix.Homeserver,
		"user_id":      config.Matrix.UserID,
		"access_token": config.Matrix.AccessToken,
		"llm_api_key":  config.LLM.APIKey,
		"llm_model":    config.LLM.Model,
		"database":     config.DatabasePath,
		"channels":     len(config.Defaults.AllowedChannels),
		"admins":       len(config.Defaults.AdminIDs),
	}))

	assistant, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize assistant: %v\n", err)
		os.Exit(1)
	}
	defer assistant.Stop()

	if err := assistant.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running assistant: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the application configuration from environment variables.
func loadConfig() (*app.Config, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return nil, err
	}
	userID, err := environment.RequiredString("MATRIX_USER_ID")
	if err != nil {
		return nil, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return nil, err
	}

	// TOGETHER_API_KEY is accepted as a fallback for deployments that kept
	// the provider-specific name.
	apiKey := environment.StringOr("LLM_API_KEY", environment.StringOr("TOGETHER_API_KEY", ""))
	if apiKey == "" {
		return nil, fmt.Errorf("required environment variable %q is not set", "LLM_API_KEY")
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./assistant.db"),
		Matrix: matrix.Config{
			Homeserver:  homeserver,
			UserID:      userID,
			AccessToken: accessToken,
		},
		LLM: llm.Config{
			APIKey:  apiKey,
			BaseURL: environment.StringOr("LLM_BASE_URL", ""),
			Model:   environment.StringOr("LLM_MODEL", ""),
			Timeout: environment.DurationOr("LLM_TIMEOUT", 0),
		},
		PersonaPath: environment.StringOr("PERSONA_PATH", ""),
		BotName:     environment.StringOr("BOT_NAME", ""),
		Defaults: mode.Defaults{
			TokenLimit:      environment.IntOr("DAILY_TOKEN_LIMIT", mode.DefaultTokenLimit),
			MemoryLimit:     environment.IntOr("MEMORY_LIMIT", mode.DefaultMemoryLimit),
			Prefix:          environment.StringOr("COMMAND_PREFIX", mode.DefaultPrefix),
			AllowedChannels: environment.StringSliceOr("ALLOWED_CHANNELS", nil),
			AdminIDs:        environment.StringSliceOr("ADMIN_IDS", nil),
			WhitelistIDs:    environment.StringSliceOr("WHITELIST_IDS", nil),
		},
		MemoryEnabled:     environment.BoolOr("MEMORY_ENABLED", true),
		HTTPAddr:          environment.StringOr("HTTP_ADDR", ""),
		KeepAliveURL:      environment.StringOr("KEEPALIVE_URL", ""),
		KeepAliveInterval: environment.DurationOr("KEEPALIVE_INTERVAL", 0),
	}, nil
}

// setupLogging configures the process-wide slog default from LOG_LEVEL.
func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(environment.StringOr("LOG_LEVEL", "info")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}
