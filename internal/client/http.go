package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/auth"
	"github.com/santelle/santelle/internal/contract"
	"github.com/santelle/santelle/internal/domain"
)

// HTTPConfig configures the REST client.
type HTTPConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// HTTP talks to `santelle serve`.
type HTTP struct {
	cfg    HTTPConfig
	actor  string
	http   *http.Client
	logger *zap.Logger
}

// NewHTTP builds a client for the actor named by cfg.Token.
func NewHTTP(cfg HTTPConfig, logger *zap.Logger) (*HTTP, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base url is empty", ErrInvalid)
	}
	actor, err := auth.ActorFromToken(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTP{
		cfg:    cfg,
		actor:  actor,
		http:   newHTTPClient(),
		logger: logger.Named("client"),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
		},
	}
}

func (c *HTTP) Actor() string { return c.actor }

func (c *HTTP) CreateSession(ctx context.Context) (*domain.TestSession, error) {
	var out contract.Session
	if _, err := c.do(ctx, http.MethodPost, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) FetchOpen(ctx context.Context) (*domain.TestSession, error) {
	var out contract.Session
	status, err := c.do(ctx, http.MethodGet, "/sessions/open", nil, &out)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	return out.ToDomain(), nil
}

func (c *HTTP) patch(ctx context.Context, sessionID string, p contract.SessionPatch) (*domain.TestSession, error) {
	var out contract.Session
	if _, err := c.do(ctx, http.MethodPatch, "/sessions/"+url.PathEscape(sessionID), p, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) SetStep(ctx context.Context, sessionID string, step int) (*domain.TestSession, error) {
	return c.patch(ctx, sessionID, contract.SessionPatch{CurrentStep: &step})
}

func (c *HTTP) SetPHResultReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error) {
	return c.patch(ctx, sessionID, contract.SessionPatch{PHResultReadyAt: &at})
}

func (c *HTTP) SetResultsReadyAt(ctx context.Context, sessionID string, at time.Time) (*domain.TestSession, error) {
	return c.patch(ctx, sessionID, contract.SessionPatch{ResultsReadyAt: &at})
}

func (c *HTTP) Complete(ctx context.Context, sessionID string) (*domain.TestSession, error) {
	var out contract.Session
	if _, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/complete", nil, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) Abort(ctx context.Context, sessionID, reason string) error {
	_, err := c.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/abort", contract.AbortRequest{Reason: reason}, nil)
	return err
}

func (c *HTTP) UpsertResults(ctx context.Context, sessionID string, patch domain.LogPatch) (*domain.TestLog, error) {
	var out contract.Log
	if _, err := c.do(ctx, http.MethodPut, "/sessions/"+url.PathEscape(sessionID)+"/log", patch, &out); err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) GetLog(ctx context.Context, sessionID string) (*domain.TestLog, error) {
	var out contract.Log
	_, err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/log", nil, &out)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.ToDomain(), nil
}

func (c *HTTP) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	path := "/sessions/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []contract.HistoryEntry
	if _, err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return contract.ToHistory(out), nil
}

// do sends one request, retrying only when the server could not be reached.
// It returns the final status code.
func (c *HTTP) do(ctx context.Context, method, path string, body, out any) (int, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshaling request: %w", err)
		}
		payload = data
	}

	var lastErr error
	attempts := 1 + c.cfg.MaxRetries
	for i := 0; i < attempts; i++ {
		status, err := c.doRequest(ctx, method, path, payload, out)
		if err == nil {
			c.logger.Debug("request",
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Duration("latency", time.Since(start)))
			return status, nil
		}
		lastErr = err

		// Only unreachable-server failures are retried.
		if ctx.Err() != nil || !errors.Is(err, ErrUnavailable) {
			break
		}
	}

	c.logger.Warn("request failed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Duration("latency", time.Since(start)),
		zap.Error(lastErr))

	if ctx.Err() != nil && !errors.Is(lastErr, ErrUnavailable) {
		return 0, fmt.Errorf("%s %s: %w: %w", method, path, ErrUnavailable, ctx.Err())
	}
	return 0, lastErr
}

func (c *HTTP) doRequest(ctx context.Context, method, path string, payload []byte, out any) (int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w: reading response: %v", method, path, ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		return resp.StatusCode, fmt.Errorf("%s %s: %w", method, path, decodeError(resp.StatusCode, respBody))
	}
	if resp.StatusCode == http.StatusNoContent || out == nil || len(respBody) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, nil
}

// decodeError maps a failed response to a client error kind, keeping the
// domain sentinel when the body names one.
func decodeError(status int, body []byte) error {
	var er contract.ErrorResponse
	_ = json.Unmarshal(body, &er)
	if er.Error == "" {
		er.Error = strings.TrimSpace(string(body))
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = ErrUnauthorized
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusConflict:
		kind = ErrConflict
	case status >= 500:
		kind = ErrUnavailable
	default:
		kind = ErrInvalid
	}

	if domErr := er.DomainError(); domErr != nil {
		return fmt.Errorf("%w: %w", kind, domErr)
	}
	return fmt.Errorf("%w: %s", kind, er.Error)
}

// Login exchanges credentials for a bearer token.
func Login(ctx context.Context, baseURL, email, password string) (*contract.LoginResponse, error) {
	data, err := json.Marshal(contract.LoginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/auth/login", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := newHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("login: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("login: %w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: %w", decodeError(resp.StatusCode, body))
	}
	var out contract.LoginResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	return &out, nil
}
