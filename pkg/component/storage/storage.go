// Package storage defines the contract shared by the project's storage
// backends (postgres, redis) and a manager that owns their lifecycle.
// The server registers each backend once at startup and drives health
// checks and shutdown through the manager.
package storage

import (
	"context"
	"time"
)

// Client is implemented by every storage backend the manager tracks.
type Client interface {
	// Name is the lowercase backend identifier ("postgres", "redis").
	// It doubles as the registration key and the log/health label.
	Name() string

	// Ping verifies connectivity with a lightweight round trip.
	Ping(ctx context.Context) error

	// Close releases the connection. Safe to call more than once.
	Close() error

	// Health returns a check function usable without holding the client.
	Health() HealthChecker
}

// HealthChecker runs one health check against a backend.
type HealthChecker func() error

// HealthStatus is the outcome of checking a single backend.
type HealthStatus struct {
	// Name matches Client.Name().
	Name string

	// Healthy is true when the backend answered normally.
	Healthy bool

	// Latency is how long the check took. A slow-but-passing check is
	// an early signal worth watching.
	Latency time.Duration

	// Error holds the failure detail, nil when Healthy.
	Error error
}

// Factory builds a connected, verified Client. It exists so the server
// wiring can be tested with fakes.
type Factory interface {
	Create(ctx context.Context) (Client, error)
}
