// ABOUTME: Entry point for berthd, the chat-operated container control plane
// ABOUTME: Wires config, store, permission service, runtime, dispatcher, and bridge

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/berth-ops/berth/internal/bridge"
	"github.com/berth-ops/berth/internal/config"
	"github.com/berth-ops/berth/internal/dispatch"
	"github.com/berth-ops/berth/internal/perm"
	"github.com/berth-ops/berth/internal/runtime"
	"github.com/berth-ops/berth/internal/store"
)

const banner = `
 _               _   _         _
| |__   ___ _ __| |_| |__   __| |
| '_ \ / _ \ '__| __| '_ \ / _' |
| |_) |  __/ |  | |_| | | | (_| |
|_.__/ \___|_|   \__|_| |_|\__,_|
`

// getConfigPath returns the path to the daemon config file.
// Priority: BERTH_CONFIG env var > XDG_CONFIG_HOME/berth/berthd.yaml > ~/.config/berth/berthd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BERTH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "berthd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "berth", "berthd.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Servers:    %d configured\n", len(cfg.Bootstrap.Servers))
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	permSvc := perm.NewService(st)

	servers := make([]*store.Server, len(cfg.Bootstrap.Servers))
	for i, entry := range cfg.Bootstrap.Servers {
		servers[i] = &store.Server{Name: entry.Name, Container: entry.Container}
	}

	// Seed servers and admins from config. A failure here is fatal: the
	// daemon must not serve commands against partial permission state.
	if err := permSvc.Bootstrap(ctx, servers, cfg.Bootstrap.Admins); err != nil {
		return fmt.Errorf("bootstrapping permission state: %w", err)
	}
	logger.Info("permission state bootstrapped",
		"servers", len(cfg.Bootstrap.Servers),
		"admins", len(cfg.Bootstrap.Admins),
	)

	rt, err := runtime.NewDockerRuntime(cfg.Docker.Host, cfg.Docker.OpTimeout, cfg.Docker.StatusTimeout)
	if err != nil {
		return fmt.Errorf("connecting to container engine: %w", err)
	}
	defer rt.Close()

	dispatcher := dispatch.New(permSvc, st, rt, time.Now())

	br, err := bridge.New(cfg, dispatcher)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	logger.Info("starting berthd")
	return br.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var logLevel slog.Level
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
