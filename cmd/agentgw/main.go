package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/finchley/agentgw/internal/config"
	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/guard"
	"github.com/finchley/agentgw/internal/lock"
	"github.com/finchley/agentgw/internal/log"
	"github.com/finchley/agentgw/internal/state"
	"github.com/finchley/agentgw/internal/storage"
	"github.com/finchley/agentgw/internal/upapi"
	"github.com/finchley/agentgw/internal/webhook"
	"github.com/finchley/agentgw/internal/workflow"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "start":
		os.Exit(runStart(args))
	case "check":
		os.Exit(runCheck(args))
	case "version":
		fmt.Printf("agentgw version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`agentgw - Webhook gateway for marketplace agent jobs

Usage:
  agentgw <command> [flags]

Commands:
  start     Start the gateway service in foreground
  check     Validate configuration and environment, then exit
  version   Show version information
  help      Show this help message

Flags:
  -config   Path to the configuration file (default "config.yaml")

Secrets referenced in the config as ${VAR} are expanded from the
environment; a .env file next to the working directory is loaded first.
`)
}

func loadConfig(args []string, name string) (*config.Config, string, int) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return nil, "", 1
	}

	// Secrets typically live in a .env next to the config. Absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, "", 1
	}
	return cfg, *configPath, 0
}

func runCheck(args []string) int {
	cfg, configPath, code := loadConfig(args, "check")
	if code != 0 {
		return code
	}

	if err := storage.ValidatePath(cfg.State.Path); err != nil {
		fmt.Fprintf(os.Stderr, "State path check failed: %v\n", err)
		return 1
	}
	if _, err := guard.NewAllowlist(cfg.Webhook.Origins()); err != nil {
		fmt.Fprintf(os.Stderr, "Origin allowlist check failed: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration OK: %s\n", configPath)
	fmt.Printf("  service:     %s on %s\n", cfg.Service.Name, cfg.Service.Listen)
	fmt.Printf("  state:       %s\n", cfg.State.Path)
	fmt.Printf("  marketplace: %s\n", cfg.Marketplace.BaseURL)
	if cfg.Guards.RedisAddr != "" {
		fmt.Printf("  guards:      redis (%s)\n", cfg.Guards.RedisAddr)
	} else {
		fmt.Printf("  guards:      in-process memory\n")
	}
	return 0
}

func runStart(args []string) int {
	cfg, configPath, code := loadConfig(args, "start")
	if code != 0 {
		return code
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("agentgw starting", "version", version, "config", configPath)

	pidLockPath := filepath.Join(filepath.Dir(cfg.State.Path), "agentgw.pid")
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	store := state.NewStore(db)
	hub := events.NewHub(256)

	allowlist, err := guard.NewAllowlist(cfg.Webhook.Origins())
	if err != nil {
		logger.Error("invalid origin allowlist", "error", err)
		return 1
	}

	var (
		rateLimiter guard.RateLimiter
		replayGuard guard.ReplayGuard
	)
	if cfg.Guards.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Guards.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.Guards.RedisAddr, "error", err)
			return 1
		}
		defer client.Close()
		rateLimiter = guard.NewRedisRateLimiter(client, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		replayGuard = guard.NewRedisReplayGuard(client, guard.DefaultReplayTTL)
		logger.Info("guards backed by redis", "addr", cfg.Guards.RedisAddr)
	} else {
		rateLimiter = guard.NewMemoryRateLimiter(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
		replayGuard = guard.NewMemoryReplayGuard(cfg.Webhook.DedupeCapacity)
		logger.Info("guards backed by in-process memory")
	}

	apiClient := upapi.New(upapi.Config{
		BaseURL:      cfg.Marketplace.BaseURL,
		AuthURL:      cfg.Marketplace.AuthURL,
		ClientID:     cfg.Marketplace.ClientID,
		ClientSecret: cfg.Marketplace.ClientSecret,
	})

	engine := workflow.NewEngine(apiClient, store, nil, hub, workflow.MonitorConfig{
		Interval: cfg.Monitor.Interval,
		MaxPolls: cfg.Monitor.MaxPolls,
	})
	spawner := workflow.NewSpawner(engine)

	server := webhook.New(
		webhook.Config{
			ServiceName:     cfg.Service.Name,
			Version:         version,
			Listen:          cfg.Service.Listen,
			Secret:          cfg.Webhook.Secret,
			MaxBodySize:     cfg.Webhook.MaxBodySize,
			FreshnessMaxAge: cfg.Webhook.FreshnessMaxAge,
			RateLimitWindow: cfg.RateLimit.Window,
			RateLimitMax:    cfg.RateLimit.MaxRequests,
			Debug:           cfg.Service.Debug,
		},
		webhook.Deps{
			Allowlist: allowlist,
			RateLimit: rateLimiter,
			Replay:    replayGuard,
			Workflows: spawner,
			Recorder:  store,
			Hub:       hub,
		},
		log.WithComponent("webhook"),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()

	logger.Info("agentgw running (press Ctrl+C to stop)")

	exitCode := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		exitCode = 1
	}

	logger.Info("waiting for in-flight workflows")
	spawner.Wait()

	logger.Info("agentgw stopped")
	return exitCode
}
