// Package session drives one real-time tutoring session at a time: backend
// session creation, the voice stream, the session timer and the outcome
// report.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
	"github.com/vango-go/vai-tutor/pkg/realtime/protocol"
	"github.com/vango-go/vai-tutor/pkg/tutor/outcome"
	"github.com/vango-go/vai-tutor/pkg/tutor/timer"
)

// ErrStartAborted is returned by StartSession when EndSession aborted it
// while connecting.
var ErrStartAborted = errors.New("session start aborted")

// Backend is the persistence API the controller needs.
type Backend interface {
	GetProfile(ctx context.Context) (types.Profile, error)
	CreateSession(ctx context.Context) (types.SessionTicket, error)
	outcome.Submitter
}

// Stream is one voice connection. A fresh Stream is used for every session.
type Stream interface {
	OnEvent(handler func(protocol.ServerEvent))
	OnUnexpectedClose(handler func(error))
	Connect(ctx context.Context, token string, cfg protocol.SessionConfig) error
	Send(ctx context.Context, v any) error
	Close() error
}

// Config holds the session.update values that are not taken from the
// learner profile.
type Config struct {
	DefaultVoice            string
	Temperature             float64
	MaxResponseOutputTokens int
}

// Dependencies are the collaborators injected into New. Backend and
// NewStream are required; the rest have defaults.
type Dependencies struct {
	Backend   Backend
	NewStream func() Stream
	// NewTimer builds the per-session timer. onTick must be wired to the
	// timer's OnTick so views refresh every second.
	NewTimer func(onTick func(elapsedSeconds int)) *timer.Timer
	Reporter *outcome.Reporter
	Config   Config
	Logger   *slog.Logger
}

// View is the read-only snapshot rendered by callers.
type View struct {
	State          State
	SessionID      string
	Topic          string
	StartedAt      time.Time
	ElapsedSeconds int
	LastError      string
}

// Controller owns the single active session. All methods are safe for
// concurrent use.
type Controller struct {
	backend   Backend
	newStream func() Stream
	newTimer  func(onTick func(int)) *timer.Timer
	reporter  *outcome.Reporter
	cfg       Config
	logger    *slog.Logger

	mu            sync.Mutex
	state         State
	gen           uint64
	sessionID     string
	topic         string
	startedAt     time.Time
	frozenElapsed int
	lastError     string
	stream        Stream
	timer         *timer.Timer
	abortConnect  context.CancelFunc
	usedTokens    map[string]struct{}

	// Stream callbacks can fire before Connect returns; while Connecting
	// they are held here and settled before the Connected transition.
	earlyEvents []protocol.ServerEvent
	earlyLoss   error

	subMu   sync.Mutex
	subs    map[int]func(View)
	nextSub int
}

// New validates deps and returns an Idle controller.
func New(deps Dependencies) (*Controller, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if deps.NewStream == nil {
		return nil, fmt.Errorf("stream factory is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewTimer == nil {
		deps.NewTimer = func(onTick func(int)) *timer.Timer {
			return timer.New(timer.Options{OnTick: onTick})
		}
	}
	if deps.Reporter == nil {
		deps.Reporter = outcome.NewReporter(deps.Backend, outcome.Options{Logger: deps.Logger})
	}
	if strings.TrimSpace(deps.Config.DefaultVoice) == "" {
		deps.Config.DefaultVoice = types.DefaultVoice
	}
	if deps.Config.Temperature == 0 {
		deps.Config.Temperature = protocol.DefaultTemperature
	}
	if deps.Config.MaxResponseOutputTokens == 0 {
		deps.Config.MaxResponseOutputTokens = protocol.DefaultMaxResponseOutputTokens
	}

	return &Controller{
		backend:    deps.Backend,
		newStream:  deps.NewStream,
		newTimer:   deps.NewTimer,
		reporter:   deps.Reporter,
		cfg:        deps.Config,
		logger:     deps.Logger,
		state:      StateIdle,
		usedTokens: make(map[string]struct{}),
		subs:       make(map[int]func(View)),
	}, nil
}

// StartSession creates a backend session and opens the voice stream. topic
// is an optional label. It returns once the session is Connected, failed
// (connection_failed), or was aborted by EndSession (ErrStartAborted).
func (c *Controller) StartSession(ctx context.Context, topic string) error {
	c.mu.Lock()
	if c.state != StateIdle {
		st := c.state
		c.mu.Unlock()
		return core.NewInvalidStateError(fmt.Sprintf("cannot start a session while %s", st))
	}
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.gen++
	gen := c.gen
	c.topic = strings.TrimSpace(topic)
	c.abortConnect = cancel
	c.transitionLocked(triggerStart)
	c.mu.Unlock()
	c.notify()

	profile, err := c.backend.GetProfile(connectCtx)
	if err != nil {
		return c.failConnect(gen, "load learner profile", err)
	}
	ticket, err := c.backend.CreateSession(connectCtx)
	if err != nil {
		return c.failConnect(gen, "create session", err)
	}
	if strings.TrimSpace(ticket.SessionID) == "" || strings.TrimSpace(ticket.StreamToken) == "" {
		return c.failConnect(gen, "backend returned an incomplete session ticket", nil)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrStartAborted
	}
	if _, used := c.usedTokens[ticket.StreamToken]; used {
		c.mu.Unlock()
		return c.failConnect(gen, "stream token was already used", nil)
	}
	c.usedTokens[ticket.StreamToken] = struct{}{}
	c.sessionID = ticket.SessionID
	st := c.newStream()
	c.stream = st
	c.mu.Unlock()

	st.OnEvent(func(ev protocol.ServerEvent) { c.handleEvent(gen, ev) })
	st.OnUnexpectedClose(func(err error) { c.handleUnexpectedClose(gen, err) })

	if err := st.Connect(connectCtx, ticket.StreamToken, c.sessionConfig(profile, ticket)); err != nil {
		_ = st.Close()
		return c.failConnect(gen, "connect voice stream", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = st.Close()
		return ErrStartAborted
	}
	if loss := c.earlyLoss; loss != nil {
		c.mu.Unlock()
		_ = st.Close()
		return c.failConnect(gen, "voice stream closed before the session started", loss)
	}
	tm := c.newTimer(func(int) { c.notify() })
	if err := tm.Start(); err != nil {
		c.mu.Unlock()
		_ = st.Close()
		return c.failConnect(gen, "start session timer", err)
	}
	c.timer = tm
	c.startedAt = tm.StartedAt()
	c.abortConnect = nil
	c.transitionLocked(triggerConnected)
	early := c.earlyEvents
	c.earlyEvents = nil
	for _, ev := range early {
		c.applyEventLocked(ev)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// EndSession ends the active session. While connecting it aborts and
// returns (nil, nil). While streaming it closes the stream, freezes the
// timer and reports the outcome; a failed report returns the computed
// outcome with a report_failed error. The controller is Idle on return
// in every case except invalid_state.
func (c *Controller) EndSession(ctx context.Context) (*outcome.Outcome, error) {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		cancel := c.abortConnect
		c.transitionLocked(triggerAbort)
		c.resetLocked()
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.notify()
		return nil, nil
	case StateConnected, StateSpeaking:
	default:
		st := c.state
		c.mu.Unlock()
		return nil, core.NewInvalidStateError(fmt.Sprintf("cannot end a session while %s", st))
	}

	st, tm := c.stream, c.timer
	sessionID, topic := c.sessionID, c.topic
	c.frozenElapsed = tm.Stop()
	elapsed := c.frozenElapsed
	c.transitionLocked(triggerEnd)
	c.mu.Unlock()
	c.notify()

	_ = st.Close()

	// The report is never cancelled once issued.
	out, err := c.reporter.Report(context.WithoutCancel(ctx), sessionID, elapsed, topic)

	c.mu.Lock()
	c.transitionLocked(triggerReportSettled)
	c.resetLocked()
	if err != nil {
		c.lastError = err.Error()
	}
	c.mu.Unlock()
	c.notify()
	return out, err
}

// Send forwards an outbound frame on the open voice stream.
func (c *Controller) Send(ctx context.Context, v any) error {
	c.mu.Lock()
	if !c.state.Streaming() {
		st := c.state
		c.mu.Unlock()
		return core.NewInvalidStateError(fmt.Sprintf("cannot send while %s", st))
	}
	st := c.stream
	c.mu.Unlock()
	return st.Send(ctx, v)
}

// View returns the current snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:     c.state,
		SessionID: c.sessionID,
		Topic:     c.topic,
		StartedAt: c.startedAt,
		LastError: c.lastError,
	}
	switch {
	case c.state.Streaming() && c.timer != nil:
		v.ElapsedSeconds = c.timer.Elapsed()
	case c.state == StateEnding:
		v.ElapsedSeconds = c.frozenElapsed
	}
	return v
}

// Subscribe registers fn to receive a View after every transition and
// every timer tick. fn must not block.
func (c *Controller) Subscribe(fn func(View)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) notify() {
	c.subMu.Lock()
	if len(c.subs) == 0 {
		c.subMu.Unlock()
		return
	}
	fns := make([]func(View), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	v := c.View()
	for _, fn := range fns {
		fn(v)
	}
}

func (c *Controller) handleEvent(gen uint64, ev protocol.ServerEvent) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	if c.state == StateConnecting {
		c.earlyEvents = append(c.earlyEvents, ev)
		c.mu.Unlock()
		return
	}
	if !c.state.Streaming() {
		c.mu.Unlock()
		return
	}
	changed := c.applyEventLocked(ev)
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// applyEventLocked reports whether the view changed.
func (c *Controller) applyEventLocked(ev protocol.ServerEvent) bool {
	changed := false
	switch e := ev.(type) {
	case protocol.ConversationItemCreated:
		if e.FromAssistant() {
			changed = c.transitionLocked(triggerAssistantItem)
		}
	case protocol.ResponseDone:
		changed = c.transitionLocked(triggerResponseDone)
	case protocol.ServerError:
		c.lastError = e.Message()
		changed = true
		c.logger.Warn("voice service error",
			"session_id", c.sessionID,
			"type", e.Error.Type,
			"code", e.Error.Code,
			"message", e.Error.Message,
		)
	}
	return changed
}

func (c *Controller) handleUnexpectedClose(gen uint64, err error) {
	c.mu.Lock()
	if c.gen == gen && c.state == StateConnecting {
		if c.earlyLoss == nil {
			c.earlyLoss = err
		}
		c.mu.Unlock()
		return
	}
	if c.gen != gen || !c.state.Streaming() {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	if !core.IsType(err, core.ErrConnectionLost) {
		err = core.NewConnectionLostError("voice stream closed unexpectedly", err)
	}
	c.transitionLocked(triggerUnexpectedClose)
	c.resetLocked()
	c.lastError = err.Error()
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) failConnect(gen uint64, msg string, err error) error {
	var out *core.Error
	if !errors.As(err, &out) || out.Type != core.ErrConnectionFailed {
		out = core.NewConnectionFailedError(msg, err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrStartAborted
	}
	c.transitionLocked(triggerConnectFailed)
	c.resetLocked()
	c.lastError = out.Error()
	c.mu.Unlock()
	c.notify()
	return out
}

// transitionLocked applies tr if the table allows it from the current state.
// A successful transition clears lastError.
func (c *Controller) transitionLocked(tr trigger) bool {
	from := c.state
	to, ok := nextState(from, tr)
	if !ok {
		return false
	}
	c.state = to
	c.lastError = ""
	c.logger.Debug("session transition",
		"session_id", c.sessionID,
		"from", string(from),
		"to", string(to),
		"trigger", string(tr),
	)
	return true
}

// resetLocked discards the session's fields and invalidates callbacks bound
// to it. Stream and timer cleanup is the caller's job.
func (c *Controller) resetLocked() {
	c.gen++
	c.sessionID = ""
	c.topic = ""
	c.startedAt = time.Time{}
	c.frozenElapsed = 0
	c.lastError = ""
	c.stream = nil
	c.timer = nil
	c.abortConnect = nil
	c.earlyEvents = nil
	c.earlyLoss = nil
}

func (c *Controller) sessionConfig(profile types.Profile, ticket types.SessionTicket) protocol.SessionConfig {
	name := firstNonEmpty(profile.Name, ticket.UserName)
	age := profile.Age
	if age <= 0 {
		age = ticket.UserAge
	}
	voice := firstNonEmpty(profile.SelectedVoice, ticket.Voice, c.cfg.DefaultVoice)

	c.mu.Lock()
	topic := c.topic
	c.mu.Unlock()

	cfg := protocol.NewSessionConfig(voice, Instructions(name, age, topic))
	cfg.Temperature = c.cfg.Temperature
	cfg.MaxResponseOutputTokens = c.cfg.MaxResponseOutputTokens
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
