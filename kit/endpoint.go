// Package kit holds the transport-neutral plumbing shared by domheal's
// tool surfaces: endpoints, middleware, and MCP registration.
package kit

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middleware so the first one listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Timeout bounds every call to d. Heal operations retry until their context
// ends, so tool calls need a deadline.
func Timeout(d time.Duration) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// Logging logs each call with its duration. Failures are logged at Warn,
// deadline overruns included.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"tool", name,
				"transport", GetTransport(ctx),
				"request_id", GetRequestID(ctx),
				"duration", time.Since(start),
			}
			switch {
			case err == nil:
				logger.Debug("kit: call", attrs...)
			case errors.Is(err, context.DeadlineExceeded):
				logger.Warn("kit: call timed out", append(attrs, "error", err)...)
			default:
				logger.Warn("kit: call failed", append(attrs, "error", err)...)
			}
			return resp, err
		}
	}
}
