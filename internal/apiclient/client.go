package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subject-focus/internal/logging"
	"subject-focus/internal/metrics"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-attempt request id for correlation with
// service logs.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is read for its message.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	// BaseURL of the processing service, e.g. http://localhost:8000.
	BaseURL string
	// Timeout applies to every call except Render and Download, which are
	// bounded by the caller's context. Zero means no per-call timeout.
	Timeout time.Duration
	// Retry applies to calls that are safe to repeat.
	Retry Policy
	// HTTPClient overrides the default transport.
	HTTPClient *http.Client
}

// Client is a typed binding to the processing service. It is safe for
// concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	retry   Policy
}

// New creates a Client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &ValidationError{Field: "base URL", Reason: "must not be empty"}
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, &ValidationError{Field: "base URL", Reason: fmt.Sprintf("unsupported scheme %q", base.Scheme)}
	}
	if base.Host == "" {
		return nil, &ValidationError{Field: "base URL", Reason: "missing host"}
	}

	retry := cfg.Retry
	if retry == (Policy{}) {
		retry = DefaultPolicy()
	}
	if err := retry.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	return &Client{
		base:    base,
		http:    hc,
		timeout: cfg.Timeout,
		retry:   retry,
	}, nil
}

// BaseURL returns the service URL the client was configured with.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// CloseIdleConnections releases pooled connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// withTimeout applies the per-call timeout when one is configured.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// formFields builds a multipart body from simple fields.
func formFields(fields [][2]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// send executes one request and returns the response when the status is
// 2xx. The caller closes the body.
func (c *Client) send(req *http.Request, op string) (*http.Response, error) {
	req.Header.Set(RequestIDHeader, uuid.NewString())

	metrics.APIRequestsInFlight.Inc()
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.APIRequestsInFlight.Dec()
	metrics.APIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.APIRequestsTotal.WithLabelValues(op, "network_error").Inc()
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.APIRequestsTotal.WithLabelValues(op, "error").Inc()
		te := &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    errorMessage(resp.Body),
		}
		closeBody(resp, op)
		logging.Debug("%s %s -> %s", req.Method, req.URL.Path, resp.Status)
		return nil, te
	}

	metrics.APIRequestsTotal.WithLabelValues(op, "success").Inc()
	return resp, nil
}

// errorMessage extracts the service's error text from a failed response.
func errorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
		Error   string      `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil {
		switch d := payload.Detail.(type) {
		case string:
			if d != "" {
				return d
			}
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
		return ""
	}
	return strings.TrimSpace(string(data))
}

func closeBody(resp *http.Response, op string) {
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	if err := resp.Body.Close(); err != nil {
		logging.Debug("failed to close %s response body: %v", op, err)
	}
}

func decodeJSON(resp *http.Response, op string, v interface{}) error {
	defer closeBody(resp, op)
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &TransportError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Err:        fmt.Errorf("malformed response: %w", err),
		}
	}
	return nil
}

// postForm sends a multipart form and decodes the JSON answer into v.
func (c *Client) postForm(ctx context.Context, op, path string, fields [][2]string, v interface{}) error {
	body, contentType, err := formFields(fields)
	if err != nil {
		return fmt.Errorf("failed to encode %s form: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), body)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req, op)
	if err != nil {
		return err
	}
	return decodeJSON(resp, op, v)
}

// get sends a GET request and hands the successful response to read.
func (c *Client) get(ctx context.Context, op, path string, query url.Values, read func(*http.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	resp, err := c.send(req, op)
	if err != nil {
		return err
	}
	return read(resp)
}

// readBody wraps a body read failure so it is classified like any other
// transport failure.
func readBody(resp *http.Response, op string, w io.Writer) (int64, error) {
	defer closeBody(resp, op)
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: op, Err: fmt.Errorf("reading body: %w", err)}
	}
	return n, nil
}
