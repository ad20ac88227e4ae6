package storage

import (
	"context"
	"testing"
	"time"
)

// fakeBackend stands in for the postgres and redis clients the server registers.
type fakeBackend struct {
	name    string
	healthy bool
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Ping(_ context.Context) error {
	if !f.healthy {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeBackend) Close() error { return nil }

func (f *fakeBackend) Health() HealthChecker {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return f.Ping(ctx)
	}
}

var _ Client = (*fakeBackend)(nil)

func TestManagerRegisterAndGet(t *testing.T) {
	mgr := NewManager()
	mgr.MustRegister("postgres", &fakeBackend{name: "postgres", healthy: true})
	mgr.MustRegister("redis", &fakeBackend{name: "redis", healthy: true})

	if mgr.Count() != 2 {
		t.Fatalf("expected 2 registered backends, got %d", mgr.Count())
	}
	if !mgr.Has("postgres") {
		t.Error("expected postgres backend to be registered")
	}

	client, err := mgr.Get("redis")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if client.Name() != "redis" {
		t.Errorf("expected client name redis, got %s", client.Name())
	}

	if _, err := mgr.Get("milvus"); err == nil {
		t.Error("expected error for unregistered backend")
	}
}

func TestManagerRegisterDuplicate(t *testing.T) {
	mgr := NewManager()
	if err := mgr.Register("postgres", &fakeBackend{name: "postgres"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := mgr.Register("postgres", &fakeBackend{name: "postgres"}); err == nil {
		t.Error("expected error on duplicate registration")
	}
}

func TestManagerHealthCheckAll(t *testing.T) {
	mgr := NewManager()
	mgr.MustRegister("postgres", &fakeBackend{name: "postgres", healthy: true})
	mgr.MustRegister("redis", &fakeBackend{name: "redis", healthy: false})

	statuses := mgr.HealthCheckAll(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses["postgres"].Healthy {
		t.Error("expected postgres to be healthy")
	}
	if statuses["redis"].Healthy {
		t.Error("expected redis to be unhealthy")
	}
	if statuses["redis"].Error == nil {
		t.Error("expected error on unhealthy backend status")
	}

	if mgr.AllHealthy(context.Background()) {
		t.Error("expected AllHealthy to be false with one unhealthy backend")
	}
}
