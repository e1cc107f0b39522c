// Package httpx is the REST transport shared by every storefront store.
package httpx

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

	"github.com/google/uuid"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
)

// DefaultTimeout applies when no timeout option is given
const DefaultTimeout = 5 * time.Second

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 64 << 10

// TokenSource provides the bearer credential for each request
type TokenSource interface {
	Token() string
}

// UnauthorizedHandler is called when the backend answers 401
type UnauthorizedHandler func(ctx context.Context, reason string)

// Request describes one backend call
type Request struct {
	Method string
	// Route is the path template used for metrics, e.g. /cart-items/{id}
	Route string
	Path  string
	Query url.Values
	Body  interface{}
}

// Client performs JSON calls against the storefront REST API
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	onUnauthorized UnauthorizedHandler
	log            *logger.Logger
}

// Option configures the client
type Option func(*Client)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTokenSource sets where bearer tokens come from
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithUnauthorizedHandler sets the hook run on 401 responses
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) { c.onUnauthorized = h }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTransport replaces the underlying RoundTripper (still instrumented)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = Instrument(rt) }
}

// New creates a client for baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: Instrument(nil),
		},
		log: logger.GetGlobalLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With("httpx")
	return c
}

// Logger returns the client's logger
func (c *Client) Logger() *logger.Logger { return c.log }

// errorBody is the error envelope the backend returns on non-2xx
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Do executes req and decodes a 2xx JSON body into out (when non-nil).
// Every failure is returned as *errs.Error.
func (c *Client) Do(ctx context.Context, req Request, out interface{}) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
	}
	route := req.Route
	if route == "" {
		route = req.Path
	}
	ctx = WithRoute(ctx, route)

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.transportError(ctx, req, route, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(ctx, req, route, resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(ctx, req, route, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		c.log.Warn(ctx, "malformed response body", logger.Fields{
			"method": req.Method,
			"route":  route,
			"error":  err.Error(),
		})
		return errs.New(errs.MalformedResponse, "").WithStatus(resp.StatusCode).WithCause(err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errs.New(errs.InvalidArgument, "").WithCause(fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, body)
	if err != nil {
		return nil, errs.New(errs.InvalidArgument, "").WithCause(err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set(RequestIDHeader, logger.RequestID(ctx))
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

func (c *Client) transportError(ctx context.Context, req Request, route string, err error) error {
	fields := logger.Fields{"method": req.Method, "route": route, "error": err.Error()}
	if isTimeout(err) {
		c.log.Warn(ctx, "backend call timed out", fields)
		return errs.New(errs.DeadlineExceeded, "").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return errs.New(errs.ServiceUnavailable, "").WithCause(err)
	}
	c.log.Warn(ctx, "backend call failed", fields)
	return errs.New(errs.ServiceUnavailable, "").WithCause(err)
}

func (c *Client) statusError(ctx context.Context, req Request, route string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var eb errorBody
	message := ""
	if json.Unmarshal(raw, &eb) == nil {
		message = eb.Message
		if message == "" {
			message = eb.Error
		}
	}

	message = strings.TrimSpace(message)
	details := map[string]string{}
	if eb.Code != "" {
		details["backend_code"] = eb.Code
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			details["retry_after"] = strconv.Itoa(secs)
			if message == "" {
				message = fmt.Sprintf("Too many requests, please try again in %d seconds", secs)
			}
		}
	}

	e := errs.New(errs.FromHTTPStatus(resp.StatusCode), message).WithStatus(resp.StatusCode)
	if len(details) > 0 {
		e = e.WithDetails(details)
	}
	if rid := resp.Header.Get(RequestIDHeader); rid != "" {
		e = e.WithCorrelationID(rid)
	} else {
		e = e.WithCorrelationID(logger.RequestID(ctx))
	}

	c.log.Debug(ctx, "backend rejected call", logger.Fields{
		"method": req.Method,
		"route":  route,
		"status": resp.StatusCode,
	})

	if resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
		c.onUnauthorized(ctx, fmt.Sprintf("401 from %s %s", req.Method, route))
	}
	return e
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// PathID formats an identifier as an escaped path segment
func PathID(id interface{}) string {
	return url.PathEscape(fmt.Sprint(id))
}
