package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("proj-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Project.ID != "proj-1" {
		t.Fatalf("project id not applied: %q", cfg.Project.ID)
	}
	if cfg.AI.Provider != "gemini" || cfg.AI.APIKeyEnv != "GEMINI_API_KEY" {
		t.Fatalf("unexpected ai defaults: %+v", cfg.AI)
	}
	if cfg.AI.Timeout() != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.AI.Timeout())
	}
	if _, err := FromYAML([]byte(GenerateDefault("proj-2"))); err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"missing project": func(c *Config) { c.Project.ID = "" },
		"provider":        func(c *Config) { c.AI.Provider = "openai" },
		"temperature":     func(c *Config) { c.AI.Temperature = 3 },
		"base path":       func(c *Config) { c.Server.BasePath = "v0" },
		"log level":       func(c *Config) { c.Logging.Level = "loud" },
		"webhook url":     func(c *Config) { c.Webhooks = []WebhookConfig{{URL: " "}} },
	}
	for name, mutate := range cases {
		cfg := Default("p")
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestAIEnabledNeedsKey(t *testing.T) {
	cfg := Default("p")
	cfg.AI.APIKeyEnv = "ONBOARDLINE_TEST_KEY"
	t.Setenv("ONBOARDLINE_TEST_KEY", "")
	if cfg.AIEnabled() {
		t.Fatalf("expected ai disabled without key")
	}
	t.Setenv("ONBOARDLINE_TEST_KEY", "secret")
	if !cfg.AIEnabled() {
		t.Fatalf("expected ai enabled with key")
	}
	cfg.AI.Provider = "none"
	if cfg.AIEnabled() {
		t.Fatalf("provider none must disable ai")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil config for empty workspace, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("ws")), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Project.ID != "ws" {
		t.Fatalf("unexpected project %q", cfg.Project.ID)
	}
}
