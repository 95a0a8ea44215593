// Command nexusd is the Nexus daemon. It loads the agents, serves the HTTP
// API and executes submitted tasks until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/GoCodeAlone/nexus/agent"
	"github.com/GoCodeAlone/nexus/config"
	"github.com/GoCodeAlone/nexus/internal/version"
	"github.com/GoCodeAlone/nexus/orchestrator"
	"github.com/GoCodeAlone/nexus/provider"
	"github.com/GoCodeAlone/nexus/provider/mock"
	"github.com/GoCodeAlone/nexus/repo"
	"github.com/GoCodeAlone/nexus/server"
	"github.com/GoCodeAlone/nexus/task"
)

var (
	configPath = flag.String("config", config.DefaultPath(), "path to config file")
	addr       = flag.String("addr", "", "listen address (overrides server.addr)")
	logLevel   = flag.String("log-level", "", "log level: debug, info, warn, error (overrides log_level)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configPath, err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting nexusd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Agents
	agents, err := agent.LoadDir(cfg.AgentsDir)
	if err != nil {
		logger.Warn("some agents failed to load", "dir", cfg.AgentsDir, "error", err)
	}
	registry := agent.NewRegistry(agents...)
	if registry.Len() == 0 {
		logger.Warn("no agents installed; tasks will fail until agents are added", "dir", cfg.AgentsDir, "hint", "run 'nexus init'")
	} else {
		logger.Info("agents loaded", "count", registry.Len(), "dir", cfg.AgentsDir)
	}
	if cfg.WatchAgents {
		go func() {
			if err := agent.Watch(ctx, cfg.AgentsDir, registry, logger); err != nil {
				logger.Error("agents watcher stopped", "error", err)
			}
		}()
	}

	// Model gateway
	gateway := provider.NewGateway(provider.GatewayConfig{
		Settings: func(name string) provider.Settings {
			p := cfg.Provider(name)
			return provider.Settings{APIKey: p.APIKey, BaseURL: p.BaseURL, RequestsPerMinute: p.RequestsPerMinute}
		},
		Logger: logger,
	})
	gateway.Register("mock", mock.New())

	// Orchestrator
	strategy, err := orchestrator.StrategyByName(cfg.Strategy)
	if err != nil {
		log.Fatalf("Invalid strategy: %v", err)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	store := task.NewMemoryStore()
	orch := orchestrator.New(
		store,
		registry,
		repo.NewProvider(logger),
		agent.NewRunner(gateway, cfg.DefaultModel, logger),
		orchestrator.Options{
			Strategy:  strategy,
			Timeout:   time.Duration(cfg.Timeout) * time.Second,
			MaxCost:   cfg.MaxCost,
			MaxAgents: cfg.MaxAgents,
		},
		orchestrator.MustNewMetrics(reg),
		logger,
	)

	// HTTP server
	srv := server.New(*cfg, version.Version, logger)
	srv.SetTaskStore(store)
	srv.SetSubmitter(orch)
	srv.SetAgents(registry)
	srv.SetGatherer(reg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	fmt.Printf("Nexus daemon running on http://%s\n", cfg.Server.Addr)
	fmt.Printf("Version: %s (%s)\n", version.Version, version.Commit)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	fmt.Println("Shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("server stop error", "error", err)
	}

	done := make(chan struct{})
	go func() {
		orch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("tasks still running at shutdown")
	}
	fmt.Println("Shutdown complete")
}

// loadConfig reads path. A missing file at the default location falls back
// to the built-in defaults so the daemon runs before 'nexus init'.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && path == config.DefaultPath() {
		return config.DefaultConfig(), nil
	}
	return nil, err
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
