package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/provectl/internal/worker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "provectl.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadServiceConfigExampleFile(t *testing.T) {
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ID != "provectl.local" {
		t.Fatalf("unexpected id: %q", cfg.ID)
	}
	if cfg.DefaultHost != "https://vm.aleo.org/api" {
		t.Fatalf("unexpected default host: %q", cfg.DefaultHost)
	}
	if cfg.Heartbeat != 5*time.Second {
		t.Fatalf("unexpected heartbeat: %v", cfg.Heartbeat)
	}
	if cfg.CacheSize != 128 {
		t.Fatalf("unexpected cache size: %d", cfg.CacheSize)
	}
	if cfg.NetworkTimeout != 20*time.Second {
		t.Fatalf("unexpected network timeout: %v", cfg.NetworkTimeout)
	}
	if !cfg.ProveLocal {
		t.Fatalf("expected prove_local enabled")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CORSOrigins)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	path := writeConfig(t, "id = \"w-1\"\nprove_local = false\nstatus_addr = \"\"\n")
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := worker.DefaultServiceConfig()
	if cfg.ID != "w-1" {
		t.Fatalf("unexpected id: %q", cfg.ID)
	}
	if cfg.ProveLocal {
		t.Fatalf("expected prove_local disabled")
	}
	if cfg.StatusAddr != "" {
		t.Fatalf("expected status listener disabled, got %q", cfg.StatusAddr)
	}
	if cfg.ListenAddr != def.ListenAddr || cfg.Heartbeat != def.Heartbeat || cfg.QueueDepth != def.QueueDepth {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadServiceConfigEmptyPathIsDefaults(t *testing.T) {
	cfg, err := loadServiceConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ID != worker.DefaultServiceConfig().ID {
		t.Fatalf("unexpected id: %q", cfg.ID)
	}
}

func TestLoadServiceConfigRejects(t *testing.T) {
	cases := map[string]string{
		"bad duration":     "heartbeat = \"soon\"\n",
		"zero heartbeat":   "heartbeat = \"0s\"\n",
		"unknown key":      "listen = \"127.0.0.1:1\"\n",
		"bad timeout":      "network_timeout = \"x\"\n",
		"negative threads": "engine_threads = -1\n",
		"not toml":         "id = \n",
	}
	for name, body := range cases {
		t.Run(strings.ReplaceAll(name, " ", "_"), func(t *testing.T) {
			if _, err := loadServiceConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error for %q", body)
			}
		})
	}
}
