// Package apiclient talks to the exam platform's REST API. The agent holds no business
// data of its own; every call here is a thin passthrough.
package apiclient

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

	"exam-proctor-agent/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("exam-proctor-agent/apiclient")

// APIError is a non-2xx answer from the platform.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

type Client struct {
	BaseURL       string
	Client        *http.Client
	AdminCookie   string
	SubmitTimeout time.Duration
}

func NewClient(cfg config.APIConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		AdminCookie:   cfg.AdminCookie,
		SubmitTimeout: cfg.SubmitTimeout,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// do sends body as JSON and decodes a 2xx answer into out (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.send(ctx, method, path, body, false)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body any, admin bool) ([]byte, error) {
	ctx, span := tracer.Start(ctx, method+" "+routeOf(path))
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("http.path", path))

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewBuffer(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if admin && c.AdminCookie != "" {
		req.Header.Set("Cookie", c.AdminCookie)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Message = env.Message
		}
		span.SetStatus(codes.Error, apiErr.Error())
		return nil, apiErr
	}
	return raw, nil
}

// routeOf trims ids from the span name so traces group by endpoint.
func routeOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	for _, prefix := range []string{
		"/api/exam/details/",
		"/api/submission/summary/",
		"/api/admin/session/",
	} {
		if strings.HasPrefix(path, prefix) {
			return prefix + "{id}"
		}
	}
	return path
}
