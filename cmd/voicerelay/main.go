package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaykit/voicerelay/internal/dotenv"
	"github.com/relaykit/voicerelay/pkg/billing"
	"github.com/relaykit/voicerelay/pkg/gateway/config"
	gatewayserver "github.com/relaykit/voicerelay/pkg/gateway/server"
	"github.com/relaykit/voicerelay/pkg/gateway/live/bridge"
	"github.com/relaykit/voicerelay/pkg/gateway/live/session"
	"github.com/relaykit/voicerelay/pkg/store"
)

type appDeps struct {
	loadConfig   func() (config.Config, error)
	migrate      func(ctx context.Context, databaseURL string) error
	openStore    func(ctx context.Context, databaseURL string, logger *slog.Logger) (*store.Store, error)
	newBackend   func(ctx context.Context, apiKey, model string) (bridge.Backend, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultAppDeps() appDeps {
	return appDeps{
		loadConfig: config.LoadFromEnv,
		migrate:    store.Migrate,
		openStore:  store.Open,
		newBackend: func(ctx context.Context, apiKey, model string) (bridge.Backend, error) {
			return bridge.NewGeminiBackend(ctx, apiKey, model)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps appDeps) error {
	if deps.loadConfig == nil || deps.migrate == nil || deps.openStore == nil || deps.newBackend == nil {
		return errors.New("missing dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := deps.migrate(ctx, cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	st, err := deps.openStore(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	backend, err := deps.newBackend(ctx, cfg.GeminiAPIKey, cfg.LiveModel)
	if err != nil {
		return fmt.Errorf("create ai backend: %w", err)
	}

	var reporter session.UsageReporter
	if cfg.StripeSecretKey != "" {
		reporter = billing.NewReporter(billing.Config{
			APIKey:      cfg.StripeSecretKey,
			CustomerID:  cfg.StripeCustomerID,
			InputMeter:  cfg.StripeInputMeter,
			OutputMeter: cfg.StripeOutputMeter,
		}, logger)
		logger.Info("stripe usage reporting enabled")
	}

	gw := gatewayserver.New(cfg, logger, gatewayserver.Deps{
		Backend:   backend,
		Agents:    store.NewAgentResolver(st, cfg.KnowledgeCharLimit, cfg.InputSampleRate),
		Records:   st,
		Usage:     reporter,
		AgentAPI:  st,
		Documents: st,
		Metrics:   st,
		DB:        st,
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "live_model", cfg.LiveModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps appDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(stderr, "voicerelay: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "voicerelay: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultAppDeps()))
}
