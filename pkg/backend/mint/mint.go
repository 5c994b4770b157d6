// Package mint issues single-use realtime stream tokens from the voice vendor.
package mint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vango-go/vai-tutor/pkg/core"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-realtime-preview-2024-12-17"

	maxResponseBytes = 1 << 20
)

type MintRequest struct {
	Voice        string
	Instructions string
}

// Minter issues stream tokens.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) (string, error)
}

// OpenAI mints ephemeral client secrets via POST /v1/realtime/sessions.
type OpenAI struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
	// RetryDelay is the pause before the single retry of a 5xx. Zero retries immediately.
	RetryDelay time.Duration
}

type sessionRequest struct {
	Model        string   `json:"model"`
	Voice        string   `json:"voice,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Modalities   []string `json:"modalities"`
}

type sessionResponse struct {
	ClientSecret struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func (o *OpenAI) Mint(ctx context.Context, req MintRequest) (string, error) {
	if strings.TrimSpace(o.APIKey) == "" {
		return "", core.NewAuthenticationError("voice vendor api key is not configured")
	}
	model := o.Model
	if model == "" {
		model = DefaultModel
	}
	body, err := json.Marshal(sessionRequest{
		Model:        model,
		Voice:        req.Voice,
		Instructions: req.Instructions,
		Modalities:   []string{"audio", "text"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal session request: %w", err)
	}

	delay := o.RetryDelay
	backoff := retry.WithMaxRetries(1, retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	}))
	return retry.DoValue(ctx, backoff, func(ctx context.Context) (string, error) {
		token, err := o.post(ctx, body)
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.IsRetryable() {
			return "", retry.RetryableError(err)
		}
		return token, err
	})
}

func (o *OpenAI) post(ctx context.Context, body []byte) (string, error) {
	base := strings.TrimRight(o.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := base + "/v1/realtime/sessions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	client := o.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &core.TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", vendorError(resp.StatusCode, data)
	}

	var out sessionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", &core.Error{Type: core.ErrAPI, Message: "voice vendor returned an undecodable session", Cause: err}
	}
	if out.ClientSecret.Value == "" {
		return "", core.NewAPIError("voice vendor returned no client secret")
	}
	return out.ClientSecret.Value, nil
}

// vendorError types a non-2xx reply: 429 and 503 are overloaded, other 5xx
// are api errors, and 4xx are the request's fault. Only the first two retry.
func vendorError(status int, data []byte) *core.Error {
	msg := fmt.Sprintf("voice vendor returned status %d", status)
	var out *core.Error
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		out = core.NewOverloadedError(msg)
	case status >= 500:
		out = core.NewAPIError(msg)
	default:
		out = core.NewInvalidRequestError(msg)
	}
	out.Code = vendorErrorCode(data)
	return out
}

func vendorErrorCode(data []byte) string {
	var env struct {
		Error struct {
			Code string `json:"code"`
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return ""
	}
	if env.Error.Code != "" {
		return env.Error.Code
	}
	return env.Error.Type
}
