// Package outcome turns a finished session's elapsed time into a recorded
// outcome.
package outcome

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

// Submitter persists an outcome for a session. Implementations must treat
// repeated submissions for one sessionID as a single outcome.
type Submitter interface {
	ReportOutcome(ctx context.Context, sessionID string, req types.OutcomeRequest) (*types.Conversation, error)
}

// Outcome is what a finished session earned. Record is nil when the
// submission failed.
type Outcome struct {
	SessionID       string
	ElapsedSeconds  int
	DurationMinutes int
	PointsEarned    int
	Topic           string
	Record          *types.Conversation
}

// Compute derives the submitted fields. Minutes are rounded up and the
// points are floored at one.
func Compute(elapsedSeconds int, topic string) types.OutcomeRequest {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	minutes := (elapsedSeconds + 59) / 60
	points := max(1, minutes*2)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = types.DefaultTopic
	}
	return types.OutcomeRequest{
		DurationMinutes: minutes,
		Topic:           topic,
		PointsEarned:    points,
	}
}

type Options struct {
	// Retries is the number of additional attempts after the first failure.
	// Zero means the default of one.
	Retries    uint64
	RetryDelay time.Duration
	Logger     *slog.Logger
}

type Reporter struct {
	submitter  Submitter
	retries    uint64
	retryDelay time.Duration
	logger     *slog.Logger
}

func NewReporter(submitter Submitter, opts Options) *Reporter {
	r := &Reporter{
		submitter:  submitter,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if r.retries == 0 {
		r.retries = 1
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Report submits the outcome once, retrying a failure immediately up to the
// configured retry count. The returned Outcome always carries the computed
// fields; on failure the error is a report_failed *core.Error.
func (r *Reporter) Report(ctx context.Context, sessionID string, elapsedSeconds int, topic string) (*Outcome, error) {
	req := Compute(elapsedSeconds, topic)
	out := &Outcome{
		SessionID:       sessionID,
		ElapsedSeconds:  max(0, elapsedSeconds),
		DurationMinutes: req.DurationMinutes,
		PointsEarned:    req.PointsEarned,
		Topic:           req.Topic,
	}
	if strings.TrimSpace(sessionID) == "" {
		return out, core.NewReportFailedError("session id is required", nil)
	}

	delay := r.retryDelay
	backoff := retry.WithMaxRetries(r.retries, retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	}))

	attempt := 0
	record, err := retry.DoValue(ctx, backoff, func(ctx context.Context) (*types.Conversation, error) {
		attempt++
		rec, err := r.submitter.ReportOutcome(ctx, sessionID, req)
		if err == nil {
			return rec, nil
		}
		r.logger.Warn("outcome submission failed",
			"session_id", sessionID,
			"attempt", attempt,
			"err", err,
		)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, retry.RetryableError(err)
	})
	if err != nil {
		return out, core.NewReportFailedError("points may not have been recorded", err)
	}

	out.Record = record
	r.logger.Info("outcome recorded",
		"session_id", sessionID,
		"duration_minutes", req.DurationMinutes,
		"points_earned", req.PointsEarned,
		"topic", req.Topic,
	)
	return out, nil
}
