// Package httpx client middleware: request ids and metrics around every backend call
package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/loft-dughairi/storefront/pkg/logger"
	"github.com/loft-dughairi/storefront/pkg/metrics"
)

// RequestIDHeader is sent on every backend call
const RequestIDHeader = "X-Request-ID"

// instrumentedTransport wraps a RoundTripper with request ids and metrics
type instrumentedTransport struct {
	next http.RoundTripper
}

// Instrument wraps next (or http.DefaultTransport) with request ids and metrics
func Instrument(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &instrumentedTransport{next: next}
}

// RoundTrip implements http.RoundTripper
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) == "" {
		id := logger.RequestID(req.Context())
		if id == "" {
			id = uuid.NewString()
		}
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set(RequestIDHeader, id)
	}

	route := RouteFromContext(req.Context(), req.URL.Path)
	startedAt := time.Now()
	resp, err := t.next.RoundTrip(req)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	metrics.ObserveAPIRequest(req.Method, route, status, startedAt)
	return resp, err
}
