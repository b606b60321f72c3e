// Package server provides the HTTP server for the yieldboard dashboard and
// API.
//
// It serves the embedded dashboard, a JSON API for submitting portfolios,
// cancelling jobs and reading balances, and a Server-Sent Events stream of
// board updates. Actions are delegated to a [Controller]; board state comes
// from the store.
//
// The server shuts down gracefully on context cancellation, with a 5-second
// timeout for in-flight requests.
package server
