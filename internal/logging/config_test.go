package logging

import (
	"bytes"
	"strings"
	"testing"

	logs "github.com/danmuck/smplog"
)

func TestParseLevelAliases(t *testing.T) {
	cases := map[string]logs.Level{
		"trace":       logs.TraceLevel,
		"diagnostics": logs.TraceLevel,
		" Debug ":     logs.DebugLevel,
		"warning":     logs.WarnLevel,
		"off":         logs.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok {
			t.Fatalf("parseLevel(%q) not recognized", raw)
		}
		if got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", raw, got, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("expected unknown level to be rejected")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "true")
	t.Setenv(EnvLogBypass, "not-a-bool")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != logs.ErrorLevel {
		t.Fatalf("unexpected level: %v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("expected timestamp disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("expected no color")
	}
	if cfg.Bypass {
		t.Fatalf("expected invalid bypass value to be ignored")
	}
}

func TestDefaultConfigProfiles(t *testing.T) {
	rt := defaultConfig(ProfileRuntime)
	if rt.Level != logs.InfoLevel || !rt.Timestamp {
		t.Fatalf("unexpected runtime profile: level=%v timestamp=%v", rt.Level, rt.Timestamp)
	}
	tc := defaultConfig(ProfileTest)
	if tc.Level != logs.DebugLevel || tc.Timestamp {
		t.Fatalf("unexpected test profile: level=%v timestamp=%v", tc.Level, tc.Timestamp)
	}
}

func TestBypassConfigWritesJSON(t *testing.T) {
	prev := logs.Configured()
	t.Cleanup(func() { logs.Configure(prev) })

	var buf bytes.Buffer
	cfg := defaultConfig(ProfileRuntime)
	cfg.Writer = &buf
	cfg.Bypass = true
	logs.Configure(cfg)

	logs.Debug("hidden")
	logs.Zerolog().Info().Str("cache_key", "hello.aleo:hello").Msg("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %q", out)
	}
	if !strings.Contains(out, `"cache_key":"hello.aleo:hello"`) {
		t.Fatalf("expected json field in output: %q", out)
	}
}
