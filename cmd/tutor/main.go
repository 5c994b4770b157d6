package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-tutor/internal/dotenv"
	"github.com/vango-go/vai-tutor/internal/logging"
	"github.com/vango-go/vai-tutor/pkg/backend"
	"github.com/vango-go/vai-tutor/pkg/config"
	"github.com/vango-go/vai-tutor/pkg/realtime/stream"
	"github.com/vango-go/vai-tutor/pkg/tutor/session"
	"github.com/vango-go/vai-tutor/pkg/tutor/topics"
)

// app holds what every command needs, built once per invocation.
type app struct {
	cfg       config.Client
	logger    *slog.Logger
	backend   *backend.Client
	newStream func() session.Stream
	catalog   *topics.Catalog
}

func loadApp(stderr io.Writer) (*app, error) {
	if err := dotenv.LoadDefault(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadClientFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(cfg, logging.New(cfg.LogLevel, cfg.LogFormat, stderr))
}

func newApp(cfg config.Client, logger *slog.Logger) (*app, error) {
	catalog, err := topics.Load()
	if err != nil {
		return nil, err
	}
	client := backend.NewClient(
		backend.WithBaseURL(cfg.APIURL),
		backend.WithToken(cfg.AuthToken),
		backend.WithTimeout(cfg.HTTPTimeout),
		backend.WithLogger(logger),
	)
	return &app{
		cfg:     cfg,
		logger:  logger,
		backend: client,
		newStream: func() session.Stream {
			return stream.New(stream.Options{
				URL:          cfg.RealtimeURL,
				PingInterval: cfg.WSPingInterval,
				WriteTimeout: cfg.WSWriteTimeout,
				Logger:       logger,
			})
		},
		catalog: catalog,
	}, nil
}

func main() {
	root := newRootCmd(func() (*app, error) { return loadApp(os.Stderr) })
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(load func() (*app, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           "tutor",
		Short:         "Voice tutoring sessions from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newSessionCmd(load))
	root.AddCommand(newTopicsCmd(load))
	root.AddCommand(newProfileCmd(load))
	root.AddCommand(newVoicesCmd(load))
	root.AddCommand(newHistoryCmd(load))
	root.AddCommand(newRegisterCmd(load))
	return root
}
