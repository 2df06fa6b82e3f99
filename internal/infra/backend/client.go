// Package backend is the HTTP client for the scoring backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"iq-quiz-client/internal/domain"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend's JSON API. Every response is wrapped in an
// envelope {success, data, error}.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-successful backend reply.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type forwardedKey struct{}

// WithForwardedFor attaches the end user's address to ctx. Calls made with it
// carry X-Forwarded-For so per-origin rules apply to the user, not to us.
func WithForwardedFor(ctx context.Context, addr string) context.Context {
	if addr == "" {
		return ctx
	}
	return context.WithValue(ctx, forwardedKey{}, addr)
}

func forwardedFor(ctx context.Context) string {
	addr, _ := ctx.Value(forwardedKey{}).(string)
	return addr
}

func (c *Client) LoadQuestions(ctx context.Context) (domain.QuestionSet, error) {
	var set domain.QuestionSet
	if err := c.do(ctx, http.MethodGet, "/questions", nil, &set); err != nil {
		return domain.QuestionSet{}, fmt.Errorf("%w: %w", domain.ErrLoadFailed, err)
	}
	return set, nil
}

func (c *Client) CheckEligibility(ctx context.Context) (bool, error) {
	var out struct {
		CanSubmit *bool `json:"canSubmit"`
	}
	if err := c.do(ctx, http.MethodGet, "/questions/eligibility", nil, &out); err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrEligibilityUnknown, err)
	}
	if out.CanSubmit == nil {
		return false, fmt.Errorf("%w: canSubmit missing", domain.ErrEligibilityUnknown)
	}
	return *out.CanSubmit, nil
}

func (c *Client) Submit(ctx context.Context, sub domain.Submission) (domain.Result, error) {
	var result domain.Result
	if err := c.do(ctx, http.MethodPost, "/results", sub, &result); err != nil {
		return domain.Result{}, fmt.Errorf("%w: %w", domain.ErrSubmitFailed, err)
	}
	return result, nil
}

// GetResult fetches a result by numeric id or share token.
func (c *Client) GetResult(ctx context.Context, idOrToken string) (domain.Result, error) {
	if strings.TrimSpace(idOrToken) == "" {
		return domain.Result{}, domain.ErrResultNotFound
	}
	var result domain.Result
	err := c.do(ctx, http.MethodGet, "/results/"+url.PathEscape(idOrToken), nil, &result)
	var apiErr *APIError
	switch {
	case err == nil:
		return result, nil
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound:
		return domain.Result{}, fmt.Errorf("%w: %s", domain.ErrResultNotFound, idOrToken)
	default:
		return domain.Result{}, err
	}
}

// GetRanking fetches the board. A bare array of entries is accepted as a board
// without markers.
func (c *Client) GetRanking(ctx context.Context) (domain.Ranking, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/results/ranking", nil, &raw); err != nil {
		return domain.Ranking{}, fmt.Errorf("%w: %w", domain.ErrRankingUnavailable, err)
	}
	var ranking domain.Ranking
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &ranking.Entries); err != nil {
			return domain.Ranking{}, fmt.Errorf("%w: decode: %w", domain.ErrRankingUnavailable, err)
		}
		return ranking, nil
	}
	if err := json.Unmarshal(trimmed, &ranking); err != nil {
		return domain.Ranking{}, fmt.Errorf("%w: decode: %w", domain.ErrRankingUnavailable, err)
	}
	return ranking, nil
}

func (c *Client) SubmitFeedback(ctx context.Context, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	if err := c.do(ctx, http.MethodPost, "/feedbacks", body, nil); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrFeedbackFailed, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if addr := forwardedFor(ctx); addr != "" {
		req.Header.Set("X-Forwarded-For", addr)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.DebugContext(ctx, "backend call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{Status: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.New("response without data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
