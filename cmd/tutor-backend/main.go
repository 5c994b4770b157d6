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
	"time"

	"github.com/vango-go/vai-tutor/internal/dotenv"
	"github.com/vango-go/vai-tutor/internal/logging"
	"github.com/vango-go/vai-tutor/pkg/backend/lifecycle"
	"github.com/vango-go/vai-tutor/pkg/backend/mint"
	backendserver "github.com/vango-go/vai-tutor/pkg/backend/server"
	"github.com/vango-go/vai-tutor/pkg/backend/store"
	"github.com/vango-go/vai-tutor/pkg/config"
)

type backendDeps struct {
	loadConfig   func() (config.Backend, error)
	openStore    func(context.Context, config.Backend, *slog.Logger) (*store.Store, error)
	newMinter    func(config.Backend) mint.Minter
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultBackendDeps() backendDeps {
	return backendDeps{
		loadConfig: config.LoadBackendFromEnv,
		openStore:  openStore,
		newMinter: func(cfg config.Backend) mint.Minter {
			return &mint.OpenAI{
				BaseURL:    cfg.OpenAIBaseURL,
				APIKey:     cfg.OpenAIAPIKey,
				Model:      cfg.RealtimeModel,
				HTTPClient: &http.Client{Timeout: cfg.HandlerTimeout},
			}
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func openStore(ctx context.Context, cfg config.Backend, logger *slog.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, store.Options{Driver: cfg.DBDriver, DSN: cfg.DatabaseURL, Logger: logger})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

func buildHTTPServer(cfg config.Backend, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		// Handlers are bounded by HandlerTimeout; leave room to write the response.
		WriteTimeout: cfg.HandlerTimeout + 5*time.Second,
	}
}

func runBackend(ctx context.Context, logger *slog.Logger, deps backendDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.openStore == nil || deps.newMinter == nil {
		return errors.New("missing store or minter dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	st, err := deps.openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	srv := backendserver.New(cfg, st, deps.newMinter(cfg), &lifecycle.Lifecycle{}, logger)
	httpSrv := buildHTTPServer(cfg, srv.Handler())

	logger.Info("starting tutor backend", "addr", cfg.Addr, "db_driver", cfg.DBDriver)

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
		logger.Info("shutdown requested", "reason", ctx.Err())
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	srv.SetDraining()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if !srv.WaitInFlight(shutdownCtx) {
		logger.Warn("requests still in flight after grace period")
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("tutor backend stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps backendDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}

	if err := dotenv.LoadDefault(); err != nil {
		fmt.Fprintf(stderr, "tutor-backend: %v\n", err)
		return 1
	}
	logger := logging.New(os.Getenv("TUTOR_LOG_LEVEL"), os.Getenv("TUTOR_LOG_FORMAT"), stderr)
	slog.SetDefault(logger)

	if err := runBackend(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "tutor-backend: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultBackendDeps()))
}
