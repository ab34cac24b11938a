package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/clawguard/clawguard/internal/adapter/inbound/admin"
	"github.com/clawguard/clawguard/internal/adapter/inbound/httpgw"
	"github.com/clawguard/clawguard/internal/adapter/outbound/cel"
	"github.com/clawguard/clawguard/internal/adapter/outbound/sqliteaudit"
	"github.com/clawguard/clawguard/internal/adapter/outbound/telegram"
	"github.com/clawguard/clawguard/internal/config"
	"github.com/clawguard/clawguard/internal/domain/grant"
	"github.com/clawguard/clawguard/internal/domain/gwservice"
	"github.com/clawguard/clawguard/internal/domain/notify"
	"github.com/clawguard/clawguard/internal/domain/proxy"
	"github.com/clawguard/clawguard/internal/service"
)

var devMode bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ClawGuard gateway",
	Long: `Start the ClawGuard gateway: the gated reverse proxy that holds agent
credentials, applies policy, waits for out-of-band approval when a rule
requires it, and forwards approved requests to the configured upstream
services.

Examples:
  # Start with config file settings
  clawguard start

  # Start in development mode (permissive defaults, verbose logging)
  clawguard start --dev`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging, relaxed validation)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	// Create signal context for graceful shutdown. stop() restores
	// default signal handling so a second Ctrl+C does a hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}

	logger.Info("clawguard stopped")
	return nil
}

// run wires every component together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	tp, err := newTracerProvider(cfg.DevMode)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracerProvider(shutdownCtx, tp); err != nil {
			logger.Warn("tracer provider shutdown failed", "error", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Audit.DBPath), 0o755); err != nil {
		logger.Warn("failed to create audit database directory", "error", err)
	}
	store, err := sqliteaudit.Open(ctx, cfg.Audit.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	defer store.Close()

	deadline, err := time.ParseDuration(cfg.Approval.Deadline)
	if err != nil {
		return fmt.Errorf("invalid approval.deadline %q: %w", cfg.Approval.Deadline, err)
	}

	// The Telegram adapter needs the Coordinator's Resolve method as its
	// reply handler, and the Coordinator needs a Notifier at
	// construction. Break the cycle with a forward-declared Coordinator
	// captured by the closure; it is assigned before either is started.
	var coordinator *service.Coordinator

	var notifier notify.Notifier
	var tgAdapter *telegram.Adapter
	if cfg.Telegram.BotToken == "" {
		logger.Warn("no telegram.bot_token configured; approval prompts will not be delivered")
		notifier = noopNotifier{}
	} else {
		tgAdapter = telegram.NewAdapter(telegram.Config{
			Token:             cfg.Telegram.BotToken,
			PairingEnabled:    true,
			PairingSecretHash: cfg.Telegram.PairingSecretHash,
		}, store, func(requestID string, decision grant.Decision) bool {
			return coordinator.Resolve(requestID, decision)
		}, logger)
		notifier = tgAdapter
	}

	coordinator = service.NewCoordinator(store, notifier, deadline, logger, prometheus.DefaultRegisterer)
	if err := coordinator.Hydrate(ctx); err != nil {
		return fmt.Errorf("failed to hydrate grants: %w", err)
	}

	if tgAdapter != nil {
		if err := tgAdapter.Start(); err != nil {
			return fmt.Errorf("failed to start telegram notifier: %w", err)
		}
		defer tgAdapter.Stop()
	}

	defs := definitionsFromConfig(cfg.Services)
	overrides, err := store.AllOverrides(ctx)
	if err != nil {
		return fmt.Errorf("failed to load service overrides: %w", err)
	}
	table := gwservice.NewLiveTable(defs)
	skipped := 0
	for _, o := range overrides {
		if err := admin.ValidateAgainstGuard(o.Definition, cfg.SecurityGuard.HostAllowlist); err != nil {
			logger.Warn("skipping persisted override that fails security guard re-validation", "service", o.ServiceName, "error", err)
			skipped++
			continue
		}
		table.Put(o.Definition)
	}
	logger.Info("loaded service table", "configured", len(defs), "overrides", len(overrides), "overrides_skipped", skipped)

	celEvaluator, err := cel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("failed to build policy condition evaluator: %w", err)
	}

	pipeline := proxy.NewPipeline(celEvaluator, coordinator)
	reverseProxy := httpgw.NewReverseProxy(cfg.SecurityGuard.HostAllowlist, logger)
	gatewayHandler := httpgw.NewHandler(table, pipeline, reverseProxy, store, cfg.SecurityGuard.HostAllowlist, logger)
	authMiddleware := httpgw.NewAuthMiddleware(httpgw.AuthConfig{KeyHash: cfg.Agent.KeyHash, Logger: logger})

	adminHandler := admin.NewHandler(table, store, coordinator, store, cfg.SecurityGuard.HostAllowlist, Version, logger)
	accessMiddleware := admin.NewAccessMiddleware(admin.AccessConfig{
		IPAllowlist: cfg.Admin.IPAllowlist,
		PINHash:     cfg.Admin.PINHash,
		Logger:      logger,
	})

	adminMux := http.NewServeMux()
	adminHandler.AdminRoutes(adminMux)
	wrappedAdmin := accessMiddleware(adminMux)

	agentMux := http.NewServeMux()
	adminHandler.AgentRoutes(agentMux)

	mux := http.NewServeMux()
	mux.Handle("/__admin/", wrappedAdmin)
	mux.Handle("/__status", authMiddleware(agentMux))
	mux.Handle("/__audit", authMiddleware(agentMux))
	mux.Handle("/", authMiddleware(gatewayHandler.Routes()))

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	printBanner(Version, cfg.Server.HTTPAddr, cfg.DevMode, len(table.Names()))

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// printBanner prints a formatted startup banner to stderr with version,
// listen address, mode, and the number of services in the live table.
func printBanner(version, httpAddr string, devMode bool, serviceCount int) {
	const (
		reset  = "\033[0m"
		bold   = "\033[1m"
		cyan   = "\033[36m"
		yellow = "\033[33m"
		green  = "\033[32m"
		dim    = "\033[2m"
	)

	adminURL := fmt.Sprintf("http://localhost%s/__status", httpAddr)
	if !strings.HasPrefix(httpAddr, ":") {
		adminURL = fmt.Sprintf("http://%s/__status", httpAddr)
	}

	modeStr := green + "production" + reset
	if devMode {
		modeStr = yellow + "development" + reset
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  %s%sClawGuard %s%s\n", bold, cyan, version, reset)
	fmt.Fprintf(os.Stderr, "  %s──────────────────────────%s\n", dim, reset)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Listen:", httpAddr)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Status:", adminURL)
	fmt.Fprintf(os.Stderr, "  %-10s %s\n", "Mode:", modeStr)
	fmt.Fprintf(os.Stderr, "  %-10s %d\n", "Services:", serviceCount)
	fmt.Fprintf(os.Stderr, "\n")
}

// pidFilePath returns the standard location for the ClawGuard PID file.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".clawguard", "server.pid")
	}
	return filepath.Join(os.TempDir(), "clawguard-server.pid")
}

// writePIDFile writes the current process PID to path, creating parent
// directories as needed.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644)
}
