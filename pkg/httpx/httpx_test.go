package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loft-dughairi/storefront/pkg/errs"
	"github.com/loft-dughairi/storefront/pkg/logger"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	return New(srv.URL+"/", opts...)
}

func TestDoSendsHeadersAndDecodes(t *testing.T) {
	var got *http.Request
	var body map[string]int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"quantity":2}`))
	}, WithTokenSource(staticToken("tok")))

	var out struct {
		ID       int64 `json:"id"`
		Quantity int   `json:"quantity"`
	}
	err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Route:  "/cart-items",
		Path:   "/cart-items",
		Query:  url.Values{"source": {"test"}},
		Body:   map[string]int{"productId": 3, "quantity": 2},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, 2, out.Quantity)
	assert.Equal(t, "Bearer tok", got.Header.Get("Authorization"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.NotEmpty(t, got.Header.Get(RequestIDHeader))
	assert.Equal(t, "/cart-items", got.URL.Path)
	assert.Equal(t, "test", got.URL.Query().Get("source"))
	assert.Equal(t, 3, body["productId"])
}

func TestDoKeepsContextRequestID(t *testing.T) {
	var rid string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		rid = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := logger.WithRequestID(context.Background(), "req-42")
	require.NoError(t, c.Do(ctx, Request{Method: http.MethodDelete, Path: "/cart"}, nil))
	assert.Equal(t, "req-42", rid)
}

func TestDoNoTokenNoAuthorizationHeader(t *testing.T) {
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}, WithTokenSource(staticToken("")))
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, nil))
	assert.Empty(t, auth)
}

func TestDoEmptyBodyLeavesOutUntouched(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	out := map[string]string{"keep": "me"}
	require.NoError(t, c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, &out))
	assert.Equal(t, "me", out["keep"])
}

func TestDoBackendErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(RequestIDHeader, "backend-rid")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"OUT_OF_STOCK","message":"Only 2 left in stock"}`))
	})

	err := c.Do(context.Background(), Request{Method: http.MethodPut, Path: "/cart-items/1"}, nil)
	require.Error(t, err)

	assert.Equal(t, errs.Conflict, errs.CodeOf(err))
	assert.Equal(t, "Only 2 left in stock", errs.UserMessage(err, "fallback"))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, http.StatusConflict, e.Status)
	assert.Equal(t, "backend-rid", e.CorrelationID)
	assert.True(t, e.IsRemote())
	assert.Equal(t, map[string]string{"backend_code": "OUT_OF_STOCK"}, e.Details)
}

func TestDoErrorFieldAndFallback(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"quantity must be positive"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`<html>oops</html>`))
		}
	})

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/a"}, nil)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
	assert.Equal(t, "quantity must be positive", errs.UserMessage(err, "fallback"))

	err = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/b"}, nil)
	assert.Equal(t, errs.Internal, errs.CodeOf(err))
	assert.Equal(t, "Failed to load cart", errs.UserMessage(err, "Failed to load cart"))
}

func TestDoTooManyRequestsCarriesRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
	})

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/cart-items"}, nil)
	assert.True(t, errs.Is(err, errs.TooManyRequests))
	assert.Equal(t, "Too many requests, please try again in 30 seconds", errs.UserMessage(err, "fallback"))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, map[string]string{"retry_after": "30"}, e.Details)
}

func TestDoUnauthorizedInvokesHook(t *testing.T) {
	var reasons []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, WithUnauthorizedHandler(func(ctx context.Context, reason string) {
		reasons = append(reasons, reason)
	}))

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Route: "/wishlist", Path: "/wishlist"}, nil)
	assert.True(t, errs.Is(err, errs.Unauthenticated))
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "/wishlist")
}

func TestDoTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(50*time.Millisecond))
	defer close(release)

	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.DeadlineExceeded, errs.CodeOf(err))
	assert.Equal(t, "The request timed out, please try again", errs.UserMessage(err, "fallback"))
}

func TestDoUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c := New(base, WithLogger(logger.Nop()))
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, nil)
	require.Error(t, err)
	assert.Equal(t, errs.ServiceUnavailable, errs.CodeOf(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.True(t, e.IsRemote())
}

func TestDoMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": [`))
	})
	var out map[string]interface{}
	err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/cart"}, &out)
	assert.Equal(t, errs.MalformedResponse, errs.CodeOf(err))
}

func TestPathID(t *testing.T) {
	assert.Equal(t, "42", PathID(42))
	assert.Equal(t, "a%2Fb", PathID("a/b"))
}

func TestRouteFromContext(t *testing.T) {
	ctx := WithRoute(context.Background(), "/cart-items/{id}")
	assert.Equal(t, "/cart-items/{id}", RouteFromContext(ctx, "/cart-items/9"))
	assert.Equal(t, "/x", RouteFromContext(context.Background(), "/x"))
	assert.Equal(t, context.Background(), WithRoute(context.Background(), ""))
}
