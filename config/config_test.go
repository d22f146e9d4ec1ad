package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Ntopng.Host != "localhost" || cfg.Ntopng.Port != 3000 {
			t.Errorf("unexpected ntopng defaults: %+v", cfg.Ntopng)
		}
		if cfg.Poll.Interval != 10*time.Second {
			t.Errorf("expected default poll interval 10s, got %s", cfg.Poll.Interval)
		}
		if cfg.Poll.ReconcileInterval != 0 {
			t.Errorf("reconciliation must be off by default, got %s", cfg.Poll.ReconcileInterval)
		}
		if cfg.DB.Port != 5432 || cfg.DB.Name != "audience_metrics" {
			t.Errorf("unexpected db defaults: %+v", cfg.DB)
		}
		if cfg.Remote.Endpoint != "" {
			t.Errorf("remote endpoint should default to empty, got %s", cfg.Remote.Endpoint)
		}
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("NTOPNG_HOST", "appliance.local")
		t.Setenv("NTOPNG_PORT", "3333")
		t.Setenv("POLL_INTERVAL", "30")
		t.Setenv("REMOTE_ENDPOINT", "https://collector.example/ingest")
		t.Setenv("REMOTE_API_KEY", "k3y")
		t.Setenv("RECONCILE_INTERVAL", "300")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Ntopng.Host != "appliance.local" || cfg.Ntopng.Port != 3333 {
			t.Errorf("env override not applied: %+v", cfg.Ntopng)
		}
		if cfg.Ntopng.BaseURL() != "http://appliance.local:3333" {
			t.Errorf("unexpected base url: %s", cfg.Ntopng.BaseURL())
		}
		if cfg.Poll.Interval != 30*time.Second {
			t.Errorf("expected 30s interval, got %s", cfg.Poll.Interval)
		}
		if cfg.Poll.ReconcileInterval != 5*time.Minute {
			t.Errorf("expected 5m reconcile interval, got %s", cfg.Poll.ReconcileInterval)
		}
		if cfg.Remote.Endpoint != "https://collector.example/ingest" || cfg.Remote.APIKey != "k3y" {
			t.Errorf("remote config not applied: %+v", cfg.Remote)
		}
	})

	t.Run("invalid values rejected", func(t *testing.T) {
		t.Setenv("POLL_INTERVAL", "0")
		if _, err := Load(); err == nil {
			t.Fatal("expected error for zero poll interval")
		}
	})
}

func TestDSN(t *testing.T) {
	d := DBConfig{Host: "db", Port: 5432, Name: "metrics", User: "u", Password: "p"}
	want := "host=db port=5432 dbname=metrics user=u password=p sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("DSN mismatch:\n got %s\nwant %s", got, want)
	}
}
