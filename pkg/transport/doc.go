// Package transport holds the HTTP plumbing shared by the engine's
// endpoints: the contracts the HTTP adapter needs from the catalog, the
// dispatch core and the health probe, plus error rendering and the
// middleware chain.
//
// # Middleware
//
// Middleware wraps an http.Handler. The built-in chain provides panic
// recovery, request ID assignment (X-Request-ID) and structured access
// logging via log/slog. Chain(a, b, c) runs a first.
//
// # Errors
//
// Failures are written as {"error": {...}} bodies built from pkg/api
// errors. A *dispatch.TransformError keeps the status chosen by the
// dispatch core, so a 507 from a full disk reaches the client unchanged.
package transport
