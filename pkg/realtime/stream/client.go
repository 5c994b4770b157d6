// Package stream owns the websocket connection to the realtime voice
// service for the lifetime of one tutoring session.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/realtime/protocol"
)

const (
	DefaultURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-realtime-preview-2024-12-17"

	betaHeader      = "OpenAI-Beta"
	betaHeaderValue = "realtime=v1"

	defaultPingInterval = 20 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultCloseWait    = 2 * time.Second
	sendQueueSize       = 64
)

type Options struct {
	// URL of the realtime endpoint. Defaults to DefaultURL.
	URL    string
	Dialer *websocket.Dialer
	// Header is merged into the handshake request.
	Header http.Header

	PingInterval time.Duration
	WriteTimeout time.Duration
	// CloseWait bounds how long Close waits for the peer to acknowledge the close frame.
	CloseWait time.Duration

	Logger *slog.Logger
}

// Client is single use: one Connect, one Close. A new Client is required per session.
type Client struct {
	opts   Options
	logger *slog.Logger

	handlerMu         sync.RWMutex
	onEvent           func(protocol.ServerEvent)
	onUnexpectedClose func(error)

	mu         sync.Mutex
	started    bool
	conn       *websocket.Conn
	cancel     context.CancelFunc
	queue      chan []byte
	readDone   chan struct{}
	writerDone chan struct{}

	closing   atomic.Bool
	closeOnce sync.Once
}

func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{opts: opts, logger: logger}
}

// OnEvent registers the handler for decoded inbound frames. Events are
// delivered one at a time, in arrival order, on the read goroutine.
func (c *Client) OnEvent(handler func(protocol.ServerEvent)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onEvent = handler
}

// OnUnexpectedClose registers the handler fired once when the connection
// ends without Close having been called. The error is a connection_lost *core.Error.
func (c *Client) OnUnexpectedClose(handler func(error)) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()
	c.onUnexpectedClose = handler
}

// Connect dials the voice service with token and sends cfg as the first
// frame. It returns once the configuration has been written. All failures
// are connection_failed *core.Error values.
func (c *Client) Connect(ctx context.Context, token string, cfg protocol.SessionConfig) error {
	if strings.TrimSpace(token) == "" {
		return core.NewConnectionFailedError("stream token is required", nil)
	}
	if err := protocol.ValidateSessionConfig(cfg); err != nil {
		return core.NewConnectionFailedError("invalid session configuration", err)
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return core.NewConnectionFailedError("stream client already used", nil)
	}
	c.started = true
	c.mu.Unlock()
	if c.closing.Load() {
		return core.NewConnectionFailedError("stream closed before connect", nil)
	}

	wsURL := c.opts.URL
	if wsURL == "" {
		wsURL = DefaultURL
	}
	headers := make(http.Header)
	for k, vs := range c.opts.Header {
		headers[k] = append([]string(nil), vs...)
	}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set(betaHeader, betaHeaderValue)

	dialer := c.opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		terr := &core.TransportError{Op: "GET", URL: wsURL, Err: err}
		if resp != nil {
			terr.Err = fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return core.NewConnectionFailedError("open voice stream", terr)
	}

	payload, err := json.Marshal(protocol.NewSessionUpdate(cfg))
	if err != nil {
		_ = conn.Close()
		return core.NewConnectionFailedError("encode session configuration", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout()))
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = conn.Close()
		return core.NewConnectionFailedError("send session configuration", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return core.NewConnectionFailedError("connect cancelled", err)
	}

	c.mu.Lock()
	if c.closing.Load() {
		c.mu.Unlock()
		_ = conn.Close()
		return core.NewConnectionFailedError("stream closed before confirmation", nil)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.conn = conn
	c.cancel = cancel
	c.queue = make(chan []byte, sendQueueSize)
	c.readDone = make(chan struct{})
	c.writerDone = make(chan struct{})
	writer := &outboundWriter{
		ws:           conn,
		ctx:          runCtx,
		queue:        c.queue,
		pingInterval: c.opts.PingInterval,
		writeTimeout: c.opts.WriteTimeout,
	}
	readDone, writerDone := c.readDone, c.writerDone
	c.mu.Unlock()

	go func() {
		defer close(writerDone)
		if err := writer.Run(); err != nil && !c.closing.Load() {
			c.logger.Debug("voice stream writer stopped", "err", err)
			// Unblock the reader so the loss is reported.
			_ = conn.Close()
		}
	}()
	go c.readLoop(conn, readDone)
	return nil
}

// Send queues v as a JSON text frame.
func (c *Client) Send(ctx context.Context, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.mu.Lock()
	queue, writerDone := c.queue, c.writerDone
	c.mu.Unlock()
	if queue == nil {
		return core.NewInvalidStateError("voice stream is not connected")
	}
	if c.closing.Load() {
		return core.NewInvalidStateError("voice stream is closed")
	}
	select {
	case queue <- payload:
		return nil
	case <-writerDone:
		return core.NewConnectionLostError("voice stream writer stopped", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close sends a normal close frame and releases the connection. It is safe
// to call more than once and before Connect. It never fires the
// unexpected-close handler.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing.Store(true)
		conn, cancel := c.conn, c.cancel
		readDone, writerDone := c.readDone, c.writerDone
		c.mu.Unlock()
		if conn == nil {
			return
		}

		cancel()
		waitFor(writerDone, c.writeTimeout())
		closeWait := c.opts.CloseWait
		if closeWait <= 0 {
			closeWait = defaultCloseWait
		}
		if !waitFor(readDone, closeWait) {
			c.logger.Debug("voice stream close not acknowledged")
		}
		_ = conn.Close()
	})
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return
			}
			c.lost(conn, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		event, err := protocol.DecodeServerEvent(data)
		if err != nil {
			c.logger.Warn("dropping malformed voice frame", "err", err, "bytes", len(data))
			continue
		}
		c.handlerMu.RLock()
		handler := c.onEvent
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(event)
		}
	}
}

func (c *Client) lost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	_ = conn.Close()
	if cancel != nil {
		cancel()
	}

	msg := "voice stream closed unexpectedly"
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		msg = fmt.Sprintf("voice stream closed by peer (code %d)", closeErr.Code)
	}
	c.logger.Info("voice stream lost", "err", err)

	c.handlerMu.RLock()
	handler := c.onUnexpectedClose
	c.handlerMu.RUnlock()
	if handler != nil {
		handler(core.NewConnectionLostError(msg, err))
	}
}

func (c *Client) writeTimeout() time.Duration {
	if c.opts.WriteTimeout > 0 {
		return c.opts.WriteTimeout
	}
	return defaultWriteTimeout
}

func waitFor(ch <-chan struct{}, d time.Duration) bool {
	if ch == nil {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	}
}
