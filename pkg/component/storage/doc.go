// Package storage defines the shared contract for the service's storage
// backends (PostgreSQL state store, Redis cache).
//
// Every backend client implements the Client interface: a name, a Ping for
// connectivity checks, a Close for shutdown, and a HealthChecker used by the
// Manager. The Manager is a registry over those clients; the HTTP health
// endpoint fans out through Manager.HealthCheckAll and reports per-backend
// latency and failure.
//
//	mgr := storage.NewManager()
//	mgr.MustRegister("postgres", pgClient)
//	mgr.MustRegister("redis", redisClient)
//
//	statuses := mgr.HealthCheckAll(ctx)
//
// StorageError carries a stable error code plus an optional message and
// cause, so callers can match on the sentinel (errors.Is) while logs keep
// the backend detail.
package storage
