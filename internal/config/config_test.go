package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voltgrid/ocppd/pkg/ocpp"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Addr != ":9220" {
		t.Errorf("Addr = %q, want :9220", cfg.Addr)
	}
	if cfg.Path != "/ocpp" {
		t.Errorf("Path = %q, want /ocpp", cfg.Path)
	}
	if cfg.SessionTimeout != 60 {
		t.Errorf("SessionTimeout = %d, want 60", cfg.SessionTimeout)
	}
	if len(cfg.Protocols) != 2 {
		t.Errorf("Protocols = %v, want both supported versions", cfg.Protocols)
	}
	if cfg.RateLimit.RPM != 600 || cfg.RateLimit.Burst != 20 {
		t.Errorf("RateLimit = %+v, want 600 rpm / 20 burst", cfg.RateLimit)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "ocppd.yaml", `
addr: ":8887"
protocols: ["ocpp1.6"]
actions_allowed: [Heartbeat, BootNotification]
session_timeout: 90
basic_auth: true
credentials:
  CP001: s3cret
rate_limit:
  rpm: 120
  burst: 5
redis:
  addr: "localhost:6379"
  prefix: "ocppd:"
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8887" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if len(cfg.Protocols) != 1 || cfg.Protocols[0] != ocpp.Subprotocol16 {
		t.Errorf("Protocols = %v", cfg.Protocols)
	}
	if cfg.SessionTimeout != 90 {
		t.Errorf("SessionTimeout = %d, want 90", cfg.SessionTimeout)
	}
	if !cfg.BasicAuth || cfg.Credentials["CP001"] != "s3cret" {
		t.Errorf("credentials not parsed: %+v", cfg.Credentials)
	}
	if cfg.RateLimit.RPM != 120 || cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Prefix != "ocppd:" {
		t.Errorf("Redis = %+v", cfg.Redis)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	// Unset fields keep their defaults.
	if cfg.Path != "/ocpp" || cfg.MaxConnections != 1024 {
		t.Errorf("defaults not preserved: path=%q max=%d", cfg.Path, cfg.MaxConnections)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "ocppd.json5", `{
	// comments are allowed here
	addr: ":8888",
	protocols: ["ocpp2.0.1"],
	max_connections: 64,
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8888" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if len(cfg.Protocols) != 1 || cfg.Protocols[0] != ocpp.Subprotocol201 {
		t.Errorf("Protocols = %v", cfg.Protocols)
	}
	if cfg.MaxConnections != 64 {
		t.Errorf("MaxConnections = %d", cfg.MaxConnections)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"missing_file", "", "", "read"},
		{"bad_yaml", "c.yaml", "addr: [unclosed", "parse"},
		{"bad_json5", "c.json5", "{addr:", "parse"},
		{"empty_addr", "c.yaml", `addr: ""`, "addr"},
		{"unknown_protocol", "c.yaml", `protocols: ["ocpp9.9"]`, "unknown protocol"},
		{"no_protocols", "c.yaml", `protocols: []`, "protocol"},
		{"negative_timeout", "c.yaml", "session_timeout: -5", "session_timeout"},
		{"schema_without_dir", "c.yaml", "schema_validation: true", "schema_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.yaml")
			if tt.file != "" {
				path = writeConfig(t, tt.file, tt.body)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
