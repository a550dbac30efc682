package app

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.APIAddr != ":8080" {
		t.Fatalf("unexpected api addr: %s", cfg.APIAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Fatalf("unexpected metrics addr: %s", cfg.MetricsAddr)
	}
	if cfg.BackendDriver != DriverMemory {
		t.Fatalf("unexpected default driver: %s", cfg.BackendDriver)
	}
	if cfg.BackendTimeout != 30*time.Second {
		t.Fatalf("unexpected backend timeout: %s", cfg.BackendTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CARTSYNC_API_ADDR", ":18080")
	t.Setenv("CARTSYNC_BACKEND_DRIVER", "rest")
	t.Setenv("CARTSYNC_BACKEND_BASE_URL", "http://backend.local/api")
	t.Setenv("CARTSYNC_BACKEND_TOKEN", "secret")
	t.Setenv("CARTSYNC_BACKEND_TIMEOUT", "5s")
	t.Setenv("CARTSYNC_KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("CARTSYNC_OUTBOX_BATCH_SIZE", "25")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}

	if cfg.APIAddr != ":18080" {
		t.Fatalf("unexpected api addr: %s", cfg.APIAddr)
	}
	if cfg.BackendDriver != DriverREST {
		t.Fatalf("unexpected driver: %s", cfg.BackendDriver)
	}
	if cfg.BackendBaseURL != "http://backend.local/api" {
		t.Fatalf("unexpected base url: %s", cfg.BackendBaseURL)
	}
	if cfg.BackendTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.BackendTimeout)
	}
	if cfg.KafkaBrokers != "kafka-1:9092,kafka-2:9092" {
		t.Fatalf("unexpected brokers: %s", cfg.KafkaBrokers)
	}
	if cfg.OutboxBatchSize != 25 {
		t.Fatalf("unexpected outbox batch size: %d", cfg.OutboxBatchSize)
	}
}

func TestFromEnv_InvalidDuration(t *testing.T) {
	t.Setenv("CARTSYNC_BACKEND_TIMEOUT", "not-a-duration")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected parse error for invalid duration")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "memory ok", mutate: func(*Config) {}, wantErr: false},
		{
			name:    "rest without base url",
			mutate:  func(c *Config) { c.BackendDriver = DriverREST },
			wantErr: true,
		},
		{
			name: "rest with base url",
			mutate: func(c *Config) {
				c.BackendDriver = DriverREST
				c.BackendBaseURL = "http://backend.local"
			},
			wantErr: false,
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.BackendDriver = DriverPostgres },
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.BackendDriver = DriverPostgres
				c.PostgresDSN = "postgres://localhost/cartsync"
			},
			wantErr: false,
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.BackendDriver = "cassandra" },
			wantErr: true,
		},
		{
			name:    "empty api addr",
			mutate:  func(c *Config) { c.APIAddr = "" },
			wantErr: true,
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.BackendTimeout = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
