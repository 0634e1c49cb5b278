package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "LONGPOLL_TIMEOUT", "REAPER_INTERVAL", "GROUP_RETENTION",
		"NATS_URL", "NATS_SUBJECT_PREFIX", "LOG_LEVEL", "LOG_FORMAT", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raidtimer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	if cfg.LongPollTimeout != 55*time.Second || cfg.ReaperInterval != time.Hour || cfg.GroupRetention != 24*time.Hour {
		t.Errorf("durations = %s %s %s", cfg.LongPollTimeout, cfg.ReaperInterval, cfg.GroupRetention)
	}
	if cfg.NATS.URL != "" || cfg.NATS.SubjectPrefix != "raidtimer.groups" {
		t.Errorf("nats = %+v", cfg.NATS)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
port: "9000"
longpoll_timeout: 30s
reaper_interval: 10m
nats:
  url: nats://bus:4222
log:
  level: debug
  format: json
cors:
  allowed_origins: ["https://a.example"]
`)
	t.Setenv("REAPER_INTERVAL", "5m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://b.example, https://c.example,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" || cfg.LongPollTimeout != 30*time.Second {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
	if cfg.ReaperInterval != 5*time.Minute {
		t.Errorf("ReaperInterval = %s, env should win", cfg.ReaperInterval)
	}
	if cfg.GroupRetention != 24*time.Hour {
		t.Errorf("GroupRetention = %s, default should survive", cfg.GroupRetention)
	}
	if cfg.NATS.URL != "nats://bus:4222" || cfg.Log.Format != "json" {
		t.Errorf("nested values = %+v %+v", cfg.NATS, cfg.Log)
	}
	if got := strings.Join(cfg.CORS.AllowedOrigins, "|"); got != "https://b.example|https://c.example" {
		t.Errorf("AllowedOrigins = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "bad duration in env", env: map[string]string{"LONGPOLL_TIMEOUT": "soon"}},
		{name: "zero retention", env: map[string]string{"GROUP_RETENTION": "0s"}},
		{name: "unknown format", env: map[string]string{"LOG_FORMAT": "xml"}},
		{name: "broken yaml", yaml: "port: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, tt.yaml)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("Load succeeded")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load succeeded for a missing file")
	}
}

func TestSetupLogging(t *testing.T) {
	prevLogger, prevLevel := log.Logger, zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	if err := setupLogging(LogConfig{Level: "warn", Format: "json"}, &buf); err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("hidden")
	log.Warn().Str("group_id", "alpha").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"group_id":"alpha"`) {
		t.Fatalf("output = %q", out)
	}

	if err := setupLogging(LogConfig{Level: "loud"}, &buf); err == nil {
		t.Fatal("invalid level accepted")
	}
}
