package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/yourusername/burstfence/api"
	"github.com/yourusername/burstfence/core"
	"github.com/yourusername/burstfence/metrics"
	"github.com/yourusername/burstfence/pkg/burstfence"
	"github.com/yourusername/burstfence/store"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	listenAddress string
	dryRun        bool
	watch         bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rate limiting service",
	Long: `Start the rate limiting service with the specified configuration.

Examples:
  # Start with default config
  burstfence serve

  # Start with custom config
  burstfence serve --config /etc/burstfence/config.yaml

  # Override listen address
  burstfence serve --listen 0.0.0.0:9090

  # Validate config without starting the service
  burstfence serve --dry-run`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.dryRun, "dry-run", false, "validate config without starting the service")
	serveCmd.Flags().BoolVar(&serveFlags.watch, "watch", true, "reload the config file when it changes")
}

// loadConfig reads path. A missing file is only tolerated when the path was
// not given explicitly, in which case the built-in defaults apply.
func loadConfig(path string, explicit bool) (*burstfence.Config, bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return burstfence.NewConfig(), false, nil
	}

	config, err := burstfence.LoadConfigFromFile(path)
	if err != nil {
		return nil, false, err
	}
	return config, true, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(os.Stdout, logLevel, logFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	config, fromFile, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveFlags.listenAddress != "" {
		config.Server.Addr = serveFlags.listenAddress
	}
	if !fromFile {
		logger.Warn("config file not found, using defaults", "path", cfgFile)
	}

	if serveFlags.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := newStatsStore(ctx, config.Stats)
	if err != nil {
		return err
	}
	defer closeStore()

	m := metrics.NewMetrics(st, logger)
	promRegistry := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(promRegistry)
	if err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}

	limiter, err := burstfence.NewRateLimiter(
		burstfence.WithConfig(config),
		burstfence.WithLogger(logger),
		burstfence.WithRegistryOptions(burstfence.WithObserverFactory(func(name string) core.Observer {
			return metrics.Multi(m.ForBucket(name), collector.ForBucket(name))
		})),
	)
	if err != nil {
		return fmt.Errorf("failed to create rate limiter: %w", err)
	}

	stopCleanup := limiter.StartBackgroundCleanup()
	defer stopCleanup()

	if fromFile && serveFlags.watch {
		watcher, err := burstfence.NewWatcher(cfgFile, limiter.Reload, logger)
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("config watcher exited", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              config.Server.Addr,
		Handler:           newServeMux(limiter, m, promRegistry, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("burstfence listening",
			"addr", srv.Addr,
			"policies", len(config.Policies),
			"key_extractor", config.KeyExtractor,
			"stats_backend", config.Stats.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func newStatsStore(ctx context.Context, config burstfence.StatsConfig) (store.Store, func(), error) {
	if config.Backend != "redis" {
		return store.NewMemoryStore(), func() {}, nil
	}

	rs := store.NewRedisStore(store.RedisConfig{
		Addr:     config.RedisAddr,
		Password: os.Getenv("BURSTFENCE_REDIS_PASSWORD"),
		TTL:      config.TTL,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		rs.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", config.RedisAddr, err)
	}

	return rs, func() { rs.Close() }, nil
}

func newServeMux(limiter burstfence.RateLimiter, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	apiRouter := api.NewRouter(api.NewHandler(limiter, logger), api.NewStatsHandler(m))

	mux := http.NewServeMux()
	mux.Handle("/consume", apiRouter)
	mux.Handle("/stats", apiRouter)
	mux.Handle("/metrics", metrics.Handler(gatherer))
	mux.HandleFunc("/dashboard", dashboardHandler)
	mux.HandleFunc("/health", healthHandler)

	// Requests under /demo/ are limited by the configured key extractor
	mux.Handle("/demo/", limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"message": "request allowed", "path": r.URL.Path})
	})))

	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "burstfence",
		"version": Version,
	})
}
