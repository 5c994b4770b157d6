package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
	"github.com/vango-go/vai-tutor/pkg/tutor/outcome"
	"github.com/vango-go/vai-tutor/pkg/tutor/session"
)

func newSessionCmd(load func() (*app, error)) *cobra.Command {
	var (
		topicID  string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "session [--topic id] [--duration d]",
		Short: "Run one tutoring session; Ctrl-C ends it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			label := ""
			if topicID = strings.TrimSpace(topicID); topicID != "" {
				t, ok := a.catalog.ByID(topicID)
				if !ok {
					return fmt.Errorf("unknown topic %q (see `tutor topics`)", topicID)
				}
				label = t.Name
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, a, cmd.OutOrStdout(), label, duration)
		},
	}
	cmd.Flags().StringVar(&topicID, "topic", "", "topic id from `tutor topics`")
	cmd.Flags().DurationVar(&duration, "duration", 0, "end automatically after this long (0 = until Ctrl-C)")
	return cmd
}

// statePrinter writes one line per state change.
type statePrinter struct {
	mu   sync.Mutex
	out  io.Writer
	last session.State
}

func (p *statePrinter) print(v session.View) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v.State == p.last {
		return
	}
	p.last = v.State
	_, _ = fmt.Fprintf(p.out, "[%s] %s\n", formatElapsed(v.ElapsedSeconds), v.State)
}

// printf shares the lock with state lines; notifications arrive on other goroutines.
func (p *statePrinter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func formatElapsed(seconds int) string {
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func runSession(ctx context.Context, a *app, out io.Writer, topic string, duration time.Duration) error {
	ctrl, err := session.New(session.Dependencies{
		Backend:   a.backend,
		NewStream: a.newStream,
		Reporter: outcome.NewReporter(a.backend, outcome.Options{
			RetryDelay: a.cfg.ReportRetryDelay,
			Logger:     a.logger,
		}),
		Config: session.Config{
			DefaultVoice:            a.cfg.DefaultVoice,
			Temperature:             a.cfg.Temperature,
			MaxResponseOutputTokens: a.cfg.MaxOutputTokens,
		},
		Logger: a.logger,
	})
	if err != nil {
		return err
	}

	printer := &statePrinter{out: out, last: session.StateIdle}
	var ending atomic.Bool
	lost := make(chan session.View, 1)
	unsubscribe := ctrl.Subscribe(func(v session.View) {
		printer.print(v)
		if v.State == session.StateIdle && v.LastError != "" && !ending.Load() {
			select {
			case lost <- v:
			default:
			}
		}
	})
	defer unsubscribe()

	if err := ctrl.StartSession(ctx, topic); err != nil {
		if errors.Is(err, session.ErrStartAborted) || ctx.Err() != nil {
			printer.printf("session cancelled before it started\n")
			return nil
		}
		return err
	}
	// Start failures notify with LastError too; drop anything queued so far.
	select {
	case <-lost:
	default:
	}
	printer.printf("connected - talk to your tutor, Ctrl-C to finish\n")

	var deadline <-chan time.Time
	if duration > 0 {
		t := time.NewTimer(duration)
		defer t.Stop()
		deadline = t.C
	}

	select {
	case v := <-lost:
		return fmt.Errorf("session ended unexpectedly: %s", v.LastError)
	case <-ctx.Done():
	case <-deadline:
	}

	ending.Store(true)
	res, err := ctrl.EndSession(context.Background())
	switch {
	case err != nil && core.IsType(err, core.ErrReportFailed) && res != nil:
		printOutcome(printer, res)
		printer.printf("warning: your points may not have been recorded (%v)\n", err)
		return nil
	case core.IsType(err, core.ErrInvalidState):
		// The stream dropped between the wait and the end request.
		v := ctrl.View()
		return fmt.Errorf("session ended unexpectedly: %s", v.LastError)
	case err != nil:
		return err
	case res == nil:
		printer.printf("session cancelled before it started\n")
		return nil
	}
	printOutcome(printer, res)
	return nil
}

func printOutcome(p *statePrinter, res *outcome.Outcome) {
	topic := res.Topic
	if topic == "" {
		topic = types.DefaultTopic
	}
	p.printf("session complete: %s (%d min), +%d points, topic %s\n",
		formatElapsed(res.ElapsedSeconds), res.DurationMinutes, res.PointsEarned, topic)
}
