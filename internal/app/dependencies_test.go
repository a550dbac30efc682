package app

import (
	"context"
	"testing"
)

func TestNewDependencies_MemoryDriver(t *testing.T) {
	cfg := DefaultConfig()

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer deps.Close()

	if deps.Backend == nil {
		t.Fatal("backend must be initialized")
	}
	if deps.Outbox == nil || deps.Idem == nil {
		t.Fatal("outbox and idempotency repos must be initialized")
	}
	if deps.Directory != nil {
		t.Fatal("memory driver must not have a user directory")
	}
	if err := deps.PingBackend(context.Background()); err != nil {
		t.Fatalf("memory backend ping must succeed: %v", err)
	}
}

func TestNewDependencies_RESTDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendDriver = DriverREST
	cfg.BackendBaseURL = "http://backend.local/api"

	deps, err := NewDependencies(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewDependencies failed: %v", err)
	}
	defer deps.Close()

	if deps.Backend == nil {
		t.Fatal("backend must be initialized")
	}
	if deps.Directory == nil {
		t.Fatal("rest driver must expose a user directory")
	}
}

func TestNewDependencies_UnknownDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendDriver = "cassandra"

	if _, err := NewDependencies(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
