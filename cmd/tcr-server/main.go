package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/NP-Dat/tcr-arena/internal/persistence"
	"github.com/NP-Dat/tcr-arena/internal/server"
	"github.com/NP-Dat/tcr-arena/internal/store"
	"github.com/NP-Dat/tcr-arena/pkg/logger"
)

func main() {
	basePath := flag.String("basePath", getDefaultBasePath(), "Base path for config and data files")
	configPath := flag.String("config", "", "Server config file (default <basePath>/config/server.yaml)")
	addr := flag.String("addr", "", "Address to listen on, overrides the config file")
	redisAddr := flag.String("redis", "", "Redis address, overrides the config file")
	logLevel := flag.String("logLevel", "info", "Log level (debug, info, warn, error)")
	logDir := flag.String("logDir", "", "Directory for log files (console only when empty)")

	flag.Parse()

	level, ok := logger.ParseLevel(*logLevel)
	if !ok {
		logger.Server.Warn("Unknown log level %q, using INFO", *logLevel)
	}
	logger.SetGlobalLogLevel(level)
	if *logDir != "" {
		if err := logger.InitializeFileLogging(*logDir); err != nil {
			logger.Server.Warn("Failed to initialize file logging: %v", err)
		}
	}

	loader := persistence.NewConfigLoader(*basePath)
	if *configPath == "" {
		*configPath = filepath.Join(*basePath, "config", "server.yaml")
	}
	cfg, err := loader.LoadServerConfig(*configPath)
	if err != nil {
		logger.Server.Fatal("Failed to load server config: %v", err)
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}

	gameConfig, err := loader.LoadGameConfig()
	if err != nil {
		logger.Server.Fatal("Failed to load game configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Dial(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Server.Fatal("Failed to connect to redis: %v", err)
	}
	defer st.Close()

	srv := server.NewServer(cfg,
		st,
		persistence.NewPlayerStore(*basePath, gameConfig.Cards),
		persistence.NewTowerCatalog(gameConfig),
	)
	if err := srv.Run(ctx); err != nil {
		logger.Server.Error("Server stopped with error: %v", err)
		return
	}
	logger.Server.Info("Server stopped")
}

// getDefaultBasePath returns the default base path for config and data files
func getDefaultBasePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		logger.Server.Warn("Failed to get current working directory: %v", err)
		return "."
	}

	if _, err := os.Stat(filepath.Join(cwd, "config", "towers.yaml")); err == nil {
		return cwd
	}

	// If we're in cmd/tcr-server, go up two levels
	if _, err := os.Stat(filepath.Join(cwd, "..", "..", "config", "towers.yaml")); err == nil {
		return filepath.Join(cwd, "..", "..")
	}

	logger.Server.Warn("Could not find config directory, using current directory")
	return cwd
}
