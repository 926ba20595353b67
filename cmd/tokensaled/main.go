// Command tokensaled serves the token sale engine over HTTP with an
// in-memory ledger and store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/tokensale"
	"github.com/xraph/tokensale/api"
	"github.com/xraph/tokensale/audit_hook"
	"github.com/xraph/tokensale/observability"
	"github.com/xraph/tokensale/store/memory"
	tokenmem "github.com/xraph/tokensale/token/memory"
	"github.com/xraph/tokensale/types"
)

const readHeaderTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("tokensaled exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to tokensaled configuration")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOKENSALE_ENV"))
	logger := setupLogging("tokensaled", env)

	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts, err := engineOptions(cfg.Engine)
	if err != nil {
		return err
	}
	opts = append(opts,
		tokensale.WithLogger(logger),
		tokensale.WithPlugin(observability.NewMetricsExtension(observability.NewPrometheusFactory(reg))),
		tokensale.WithPlugin(audithook.New(auditLogger(logger), audithook.WithLogger(logger))),
	)

	ledger := tokenmem.New()
	engine := tokensale.New(memory.New(), ledger, opts...)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() {
		if err := engine.Stop(); err != nil {
			logger.Warn("stop engine", "error", err)
		}
	}()

	if err := seedBalances(ctx, ledger, engine.NativeAsset(), cfg.Balances); err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Handle(cfg.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	router.Mount("/", api.New(engine,
		api.WithLogger(logger),
		api.WithBasePath(cfg.BasePath),
		api.WithRegisterer(reg),
	).Handler())

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("tokensaled listening", "addr", cfg.ListenAddress, "metrics", cfg.MetricsPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace.Duration)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func engineOptions(cfg EngineConfig) ([]tokensale.Option, error) {
	threshold, err := types.ParseAmount(cfg.Threshold)
	if err != nil {
		return nil, fmt.Errorf("engine threshold: %w", err)
	}
	opts := []tokensale.Option{
		tokensale.WithDefaults(tokensale.Defaults{
			Threshold:   threshold,
			Cooldown:    cfg.Cooldown.Duration,
			Curve:       cfg.Curve,
			AdminFeeBps: cfg.AdminFeeBps,
		}),
	}
	if cfg.NativeAsset != "" {
		opts = append(opts, tokensale.WithNativeAsset(common.HexToAddress(cfg.NativeAsset)))
	}
	if cfg.RegistryAddress != "" {
		opts = append(opts, tokensale.WithRegistryAddress(common.HexToAddress(cfg.RegistryAddress)))
	}
	if cfg.HookTimeout.Duration > 0 {
		opts = append(opts, tokensale.WithHookTimeout(cfg.HookTimeout.Duration))
	}
	return opts, nil
}

// seedBalances mints the configured opening balances. An empty asset means
// the engine's native asset.
func seedBalances(ctx context.Context, ledger *tokenmem.Ledger, native common.Address, entries []BalanceEntry) error {
	for i, b := range entries {
		asset := native
		if b.Asset != "" {
			asset = common.HexToAddress(b.Asset)
		}
		amount, err := types.ParseAmount(b.Amount)
		if err != nil {
			return fmt.Errorf("balances[%d]: %w", i, err)
		}
		if err := ledger.Mint(ctx, asset, common.HexToAddress(b.Address), amount); err != nil {
			return fmt.Errorf("balances[%d]: mint: %w", i, err)
		}
	}
	return nil
}

func auditLogger(logger *slog.Logger) audithook.Recorder {
	return audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		logger.Info("audit",
			"action", ev.Action,
			"resource", ev.Resource,
			"resource_id", ev.ResourceID,
			"outcome", ev.Outcome,
			"audit_severity", ev.Severity,
			"reason", ev.Reason,
		)
		return nil
	})
}

// setupLogging installs a JSON slog handler as the process default, which
// also captures output from the standard log package.
func setupLogging(service, env string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "timestamp"
			case slog.LevelKey:
				attr.Key = "severity"
				if level, ok := attr.Value.Any().(slog.Level); ok {
					attr.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			case slog.MessageKey:
				attr.Key = "message"
			}
			return attr
		},
	})

	attrs := []any{slog.String("service", service)}
	if env != "" {
		attrs = append(attrs, slog.String("env", env))
	}
	logger := slog.New(handler).With(attrs...)
	slog.SetDefault(logger)
	return logger
}
