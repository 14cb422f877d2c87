package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/provectl/internal/worker"
)

type fileConfig struct {
	ID                 string   `toml:"id"`
	DefaultHost        string   `toml:"default_host"`
	ListenAddr         string   `toml:"listen_addr"`
	StatusAddr         string   `toml:"status_addr"`
	CORSOrigins        []string `toml:"cors_origins"`
	StatusToken        string   `toml:"status_token"`
	Heartbeat          string   `toml:"heartbeat"`
	QueueDepth         int      `toml:"queue_depth"`
	ProveLocal         bool     `toml:"prove_local"`
	CacheSize          int      `toml:"cache_size"`
	HistorySize        int      `toml:"history_size"`
	EngineThreads      int      `toml:"engine_threads"`
	NetworkTimeout     string   `toml:"network_timeout"`
	NetworkMaxAttempts int      `toml:"network_max_attempts"`
}

// loadServiceConfig overlays the keys present in path onto the defaults.
// An empty path returns the defaults.
func loadServiceConfig(path string) (worker.ServiceConfig, error) {
	cfg := worker.DefaultServiceConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return worker.ServiceConfig{}, fmt.Errorf("load provectl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return worker.ServiceConfig{}, fmt.Errorf("load provectl config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.ID = id
		}
	}
	if meta.IsDefined("default_host") {
		cfg.DefaultHost = strings.TrimSpace(raw.DefaultHost)
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeList(raw.CORSOrigins)
	}
	if meta.IsDefined("status_token") {
		cfg.StatusToken = strings.TrimSpace(raw.StatusToken)
	}
	if meta.IsDefined("heartbeat") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Heartbeat))
		if err != nil {
			return worker.ServiceConfig{}, fmt.Errorf("parse heartbeat: %w", err)
		}
		cfg.Heartbeat = d
	}
	if meta.IsDefined("queue_depth") {
		cfg.QueueDepth = raw.QueueDepth
	}
	if meta.IsDefined("prove_local") {
		cfg.ProveLocal = raw.ProveLocal
	}
	if meta.IsDefined("cache_size") {
		cfg.CacheSize = raw.CacheSize
	}
	if meta.IsDefined("history_size") {
		cfg.HistorySize = raw.HistorySize
	}
	if meta.IsDefined("engine_threads") {
		cfg.EngineThreads = raw.EngineThreads
	}
	if meta.IsDefined("network_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.NetworkTimeout))
		if err != nil {
			return worker.ServiceConfig{}, fmt.Errorf("parse network_timeout: %w", err)
		}
		cfg.NetworkTimeout = d
	}
	if meta.IsDefined("network_max_attempts") {
		cfg.NetworkMaxAttempts = raw.NetworkMaxAttempts
	}

	if err := cfg.Validate(); err != nil {
		return worker.ServiceConfig{}, err
	}
	return cfg, nil
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
