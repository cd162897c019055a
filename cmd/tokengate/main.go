// Package main is the entry point for the token gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hostpanel/tokengate/internal/config"
	"github.com/hostpanel/tokengate/internal/gateway"
	"github.com/hostpanel/tokengate/internal/health"
	"github.com/hostpanel/tokengate/internal/observability"
	"github.com/hostpanel/tokengate/internal/ratelimit"
	"github.com/hostpanel/tokengate/internal/server"
	"github.com/hostpanel/tokengate/internal/token"
	"github.com/hostpanel/tokengate/internal/tokencache"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg := loadConfig(flags)

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting tokengate",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build application", observability.Error(err))
	}

	run(app, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("TOKENGATE_CONFIG_PATH", ""),
		"Path to configuration file")
	logLevel := flag.String("log-level", "",
		"Log level override (debug, info, warn, error)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("tokengate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func getEnvOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// loadConfig loads the configuration file, or defaults when none is given.
func loadConfig(flags cliFlags) *config.Config {
	cfg := config.DefaultConfig()

	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	return cfg
}

// initLogger initializes the logger.
func initLogger(cfg config.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// run starts the server and blocks until a shutdown signal arrives.
func run(app *application, logger observability.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if app.seedWatcher != nil {
		if err := app.seedWatcher.Start(ctx); err != nil {
			logger.Fatal("failed to start seed watcher", observability.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received",
			observability.String("signal", sig.String()),
		)
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(ctx, app, logger)
}

// shutdown drains and tears the application down in dependency order.
func shutdown(ctx context.Context, app *application, logger observability.Logger) {
	app.checker.SetDraining(true)

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("server shutdown failed", observability.Error(err))
	}

	if app.seedWatcher != nil {
		if err := app.seedWatcher.Stop(); err != nil {
			logger.Error("seed watcher shutdown failed", observability.Error(err))
		}
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			logger.Error("cache shutdown failed", observability.Error(err))
		}
	}
	if err := app.counter.Close(); err != nil {
		logger.Error("counter shutdown failed", observability.Error(err))
	}

	logger.Info("tokengate stopped")
}

// application holds the wired components.
type application struct {
	server      *server.Server
	checker     *health.Checker
	cache       tokencache.Cache
	counter     ratelimit.Counter
	seedWatcher *config.Watcher
}

// buildApplication wires store, cache, counter, gateway and HTTP server
// from the configuration.
func buildApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	checker := health.NewChecker()
	store := token.NewMemoryStore()

	cache, err := buildCache(cfg.Cache, checker)
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}

	counter, err := buildCounter(cfg.RateLimit, logger, checker)
	if err != nil {
		return nil, fmt.Errorf("failed to build rate limit counter: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		Window:         cfg.RateLimit.Window.Duration(),
		CacheTimeout:   cfg.Gateway.CacheTimeout.Duration(),
		StoreTimeout:   cfg.Gateway.StoreTimeout.Duration(),
		CounterTimeout: cfg.Gateway.CounterTimeout.Duration(),
	}, store, counter,
		gateway.WithCache(cache),
		gateway.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	manager := token.NewManager(store, cache, token.WithManagerLogger(logger))

	seedWatcher, err := buildSeedWatcher(cfg.Tokens, store, manager, logger)
	if err != nil {
		return nil, err
	}

	adminSecret := ""
	if cfg.Admin.Enabled {
		adminSecret = cfg.Admin.Secret
	}

	engine := server.NewRouter(server.RouterConfig{
		Gateway:     gw,
		Manager:     manager,
		Store:       store,
		Checker:     checker,
		Logger:      logger,
		ClientIP:    server.NewClientIPExtractor(cfg.Server.TrustedProxies),
		AdminSecret: adminSecret,
	})

	srv := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout.Duration(),
		WriteTimeout:    cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:     cfg.Server.IdleTimeout.Duration(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration(),
		MaxHeaderBytes:  1 << 20,
	}, engine, logger)

	return &application{
		server:      srv,
		checker:     checker,
		cache:       cache,
		counter:     counter,
		seedWatcher: seedWatcher,
	}, nil
}

// buildCache constructs the configured token cache backend.
func buildCache(cfg config.CacheConfig, checker *health.Checker) (tokencache.Cache, error) {
	cacheConfig := tokencache.Config{
		PositiveTTL: cfg.PositiveTTL.Duration(),
		NegativeTTL: cfg.NegativeTTL.Duration(),
	}

	if cfg.Backend == config.BackendRedis {
		redisConfig := tokencache.DefaultRedisConfig()
		redisConfig.Address = cfg.Redis.Address
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB

		cache, err := tokencache.NewRedisCache(cacheConfig, redisConfig)
		if err != nil {
			return nil, err
		}
		checker.Register(health.RedisCheck("cache", cache.Client()))
		return cache, nil
	}

	return tokencache.NewMemoryCache(cacheConfig)
}

// buildCounter constructs the configured rate limit counter backend.
func buildCounter(cfg config.RateLimitConfig, logger observability.Logger, checker *health.Checker) (ratelimit.Counter, error) {
	if cfg.Backend == config.BackendRedis {
		redisConfig := ratelimit.DefaultRedisConfig()
		redisConfig.Address = cfg.Redis.Address
		redisConfig.Password = cfg.Redis.Password
		redisConfig.DB = cfg.Redis.DB

		counter, err := ratelimit.NewRedisCounter(redisConfig,
			ratelimit.WithRedisCounterLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		checker.Register(health.RedisCheck("ratelimit", counter.Client()))
		return counter, nil
	}

	return ratelimit.NewMemoryCounter(), nil
}

// buildSeedWatcher loads the token seed file and optionally watches it for
// changes. Secrets of removed or edited records are invalidated so the
// cache never outlives a reload.
func buildSeedWatcher(cfg config.TokensConfig, store *token.MemoryStore, manager *token.Manager, logger observability.Logger) (*config.Watcher, error) {
	if cfg.SeedFile == "" {
		return nil, nil
	}

	reload := func(path string) error {
		records, err := token.LoadSeedFile(path)
		if err != nil {
			return err
		}

		stale := store.Replace(records)
		manager.InvalidateSecrets(context.Background(), stale)

		logger.Info("token seed loaded",
			observability.String("path", path),
			observability.Int("tokens", len(records)),
			observability.Int("stale", len(stale)),
		)
		return nil
	}

	if !cfg.WatchSeed {
		if err := reload(cfg.SeedFile); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return config.NewWatcher(cfg.SeedFile, reload,
		config.WithWatcherLogger(logger),
	)
}
