// Package backend is the HTTP client for the tutoring persistence API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/vai-tutor/pkg/core"
	"github.com/vango-go/vai-tutor/pkg/core/types"
)

const (
	DefaultBaseURL = "http://localhost:3000"

	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: newDefaultHTTPClient(),
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = strings.TrimRight(strings.TrimSpace(c.baseURL), "/")
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// CreateSession asks the backend for a new conversation and its single-use stream token.
func (c *Client) CreateSession(ctx context.Context) (types.SessionTicket, error) {
	var out types.SessionTicket
	if err := c.do(ctx, http.MethodPost, "/api/conversation", nil, &out); err != nil {
		return types.SessionTicket{}, err
	}
	if out.SessionID == "" || out.StreamToken == "" {
		return types.SessionTicket{}, core.NewAPIError("backend returned an incomplete session ticket")
	}
	return out, nil
}

// ReportOutcome records the outcome of the conversation with the given id.
func (c *Client) ReportOutcome(ctx context.Context, sessionID string, req types.OutcomeRequest) (*types.Conversation, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("session id is required", "id")
	}
	var out types.ConversationResponse
	path := "/api/conversation/" + url.PathEscape(sessionID) + "/end"
	if err := c.do(ctx, http.MethodPatch, path, req, &out); err != nil {
		return nil, err
	}
	return &out.Conversation, nil
}

func (c *Client) GetProfile(ctx context.Context) (types.Profile, error) {
	var out types.ProfileResponse
	if err := c.do(ctx, http.MethodGet, "/api/profile", nil, &out); err != nil {
		return types.Profile{}, err
	}
	return out.User, nil
}

// UpdateProfile changes the learner's name or voice and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, upd types.ProfileUpdate) (types.Profile, error) {
	var out types.ProfileResponse
	if err := c.do(ctx, http.MethodPatch, "/api/profile", upd, &out); err != nil {
		return types.Profile{}, err
	}
	return out.User, nil
}

// ListVoices returns the voice catalog, filtered by age when age > 0.
func (c *Client) ListVoices(ctx context.Context, age int) ([]types.Voice, error) {
	path := "/api/voices"
	if age > 0 {
		path += "?age=" + strconv.Itoa(age)
	}
	var out types.VoicesResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Voices, nil
}

func (c *Client) ListConversations(ctx context.Context, limit, offset int) (types.ConversationPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/api/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out types.ConversationPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return types.ConversationPage{}, err
	}
	return out, nil
}

// Register creates a learner. The returned token is shown once.
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) (types.Registration, error) {
	var out types.Registration
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", req, &out); err != nil {
		return types.Registration{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	endpoint := c.baseURL + path
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return core.NewInvalidRequestError("failed to marshal request body")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &core.TransportError{Op: method, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.TransportError{Op: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	c.logger.Debug("backend request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeErrorResponse(resp, endpoint, method)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &core.TransportError{Op: method, URL: endpoint, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &core.Error{
			Type:      core.ErrAPI,
			Message:   fmt.Sprintf("decode %s response: %v", path, err),
			RequestID: requestIDFromHeader(resp.Header),
			Cause:     err,
		}
	}
	return nil
}

func decodeErrorResponse(resp *http.Response, endpoint, method string) error {
	requestID := requestIDFromHeader(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &core.TransportError{Op: method, URL: endpoint, Err: err}
	}

	var env struct {
		Error *core.Error `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		if env.Error.RequestID == "" {
			env.Error.RequestID = requestID
		}
		if env.Error.RetryAfter == nil {
			env.Error.RetryAfter = parseRetryAfterHeader(resp.Header.Get("Retry-After"))
		}
		if env.Error.Type == "" {
			env.Error.Type = inferErrorType(resp.StatusCode)
		}
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(resp.StatusCode)
		}
		return env.Error
	}

	return &core.Error{
		Type:      inferErrorType(resp.StatusCode),
		Message:   fmt.Sprintf("backend request failed with status %d", resp.StatusCode),
		RequestID: requestID,
	}
}

func inferErrorType(statusCode int) core.ErrorType {
	switch statusCode {
	case http.StatusBadRequest:
		return core.ErrInvalidRequest
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrAuthentication
	case http.StatusNotFound:
		return core.ErrNotFound
	case http.StatusConflict:
		return core.ErrConflict
	case http.StatusServiceUnavailable, 529:
		return core.ErrOverloaded
	default:
		return core.ErrAPI
	}
}

func requestIDFromHeader(h http.Header) string {
	if h == nil {
		return ""
	}
	return strings.TrimSpace(h.Get("X-Request-ID"))
}

func parseRetryAfterHeader(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &seconds
}
