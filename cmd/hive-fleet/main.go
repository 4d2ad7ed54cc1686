// ABOUTME: Entry point for the hive-fleet daemon
// ABOUTME: Runs the scheduler and connection pool against the record store

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/2389/hive-fleet/internal/agent"
	"github.com/2389/hive-fleet/internal/config"
	"github.com/2389/hive-fleet/internal/gateway"
	"github.com/2389/hive-fleet/internal/pool"
	"github.com/2389/hive-fleet/internal/scheduler"
	"github.com/2389/hive-fleet/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _     _                  __ _           _
 | |__ (_)_   _____       / _| | ___  ___| |_
 | '_ \| \ \ / / _ \_____| |_| |/ _ \/ _ \ __|
 | | | | |\ V /  __/_____|  _| |  __/  __/ |_
 |_| |_|_| \_/ \___|     |_| |_|\___|\___|\__|
`

// getConfigPath returns the path to the fleet config file.
// Priority: HIVE_CONFIG env var > XDG_CONFIG_HOME/hive/fleet.yaml > ~/.config/hive/fleet.yaml
func getConfigPath() string {
	if envPath := os.Getenv("HIVE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "fleet.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "hive", "fleet.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: hive-fleet <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the fleet daemon")
		fmt.Println("  init     Write a starter config file")
		fmt.Println("  version  Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Memory:   %s\n", cfg.Memory.Backend)
	green.Print("    ▶ ")
	fmt.Printf("Poll:     %s\n", cfg.Fleet.PollInterval)
	fmt.Println()

	logger.Info("starting hive-fleet",
		"config", configPath,
		"database", cfg.Database.Driver,
		"poll_interval", cfg.Fleet.PollInterval,
		"max_bots", cfg.Fleet.MaxBots,
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	factory := &agent.Factory{
		OpenAIKey:    cfg.Providers.OpenAIAPIKey,
		AnthropicKey: cfg.Providers.AnthropicAPIKey,
		Logger:       logger,
	}

	if cfg.Memory.Backend == "redis" {
		redisOpts, err := redis.ParseURL(cfg.Memory.RedisURL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
		factory.Redis = redisClient
	}

	fleet := pool.New(pool.Options{
		Dialer:    &gateway.MatrixDialer{Logger: logger},
		Agents:    factory,
		Identity:  st,
		MaxBots:   cfg.Fleet.MaxBots,
		MaxLength: cfg.Fleet.MaxMessageLength,
		Logger:    logger,
	})

	sched := scheduler.New(st, fleet, cfg.Fleet.PollInterval, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	<-ctx.Done()
	logger.Info("shutting down", "timeout", cfg.Fleet.ShutdownTimeout)

	sched.Stop()
	// The signal context is already cancelled; shut down on a fresh one.
	fleet.ShutdownAll(context.Background(), cfg.Fleet.ShutdownTimeout)

	logger.Info("shutdown complete")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Database.DSN)
	default:
		return store.NewSQLiteStore(cfg.Database.Path)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

const starterConfig = `# hive-fleet configuration
database:
  driver: sqlite
  path: hive.db

fleet:
  poll_interval: 10s
  shutdown_timeout: 30s
  max_bots: 50
  max_message_length: 2000

providers:
  openai_api_key: ${OPENAI_API_KEY}
  anthropic_api_key: ${ANTHROPIC_API_KEY}

memory:
  backend: memory
  # backend: redis
  # redis_url: redis://localhost:6379/0

logging:
  level: info
  format: text
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	color.Green("Created %s", configPath)
	fmt.Println("Edit it, then run: hive-fleet serve")
	return nil
}
