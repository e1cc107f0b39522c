// Package httpx - context helpers carrying per-call metadata to the transport
package httpx

import (
	"context"
)

// ContextKey represents the type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyRoute stores the route template of the call, used as metrics label
	ContextKeyRoute ContextKey = "route"
)

// WithRoute stores the route template in context
func WithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, ContextKeyRoute, route)
}

// RouteFromContext retrieves the route template, falling back to def
func RouteFromContext(ctx context.Context, def string) string {
	if ctx == nil {
		return def
	}
	if route, ok := ctx.Value(ContextKeyRoute).(string); ok && route != "" {
		return route
	}
	return def
}
