// Package kit carries the transport-agnostic plumbing shared by the MCP and
// HTTP surfaces: the Endpoint abstraction, middleware chaining, and request
// context accessors.
package kit

import "context"

// Endpoint is one logical operation, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
