package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test waits out the debounce window")
	}

	path := filepath.Join(t.TempDir(), "ocppd.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9220\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})

	if err := w.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("addr: \":9221\"\nmax_connections: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Addr != ":9221" || cfg.MaxConnections != 7 {
			t.Errorf("reloaded config = addr %q max %d", cfg.Addr, cfg.MaxConnections)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change handler never ran")
	}
}

func TestWatcherKeepsPreviousConfigOnBadReload(t *testing.T) {
	if testing.Short() {
		t.Skip("watcher test waits out the debounce window")
	}

	path := filepath.Join(t.TempDir(), "ocppd.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9220\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(path)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// A file that fails validation must not reach the handlers.
	if err := os.WriteFile(path, []byte("addr: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-reloaded:
		t.Fatalf("handler ran with invalid config: %+v", cfg)
	case <-time.After(time.Second):
	}
}
