package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"onboardline/internal/ai"
	"onboardline/internal/config"
	"onboardline/internal/engine"
)

func TestOpenWithoutConfigUsesFallbackModel(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	ctx := context.Background()
	ws, err := Open(ctx, t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Engine.Synth.Adapter.Configured() {
		t.Fatalf("adapter must be unconfigured without an API key")
	}
	if _, err := ResolveProject(ctx, ws.Engine.Repo, ws.Config, ""); err == nil {
		t.Fatalf("expected error with no projects")
	}
	p, err := ws.Engine.CreateProject(ctx, engine.ProjectCreateOptions{Name: "Acme", TypeLabel: "voice_ai"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	id, err := ResolveProject(ctx, ws.Engine.Repo, ws.Config, "")
	if err != nil || id != p.ID {
		t.Fatalf("resolve = %q, %v", id, err)
	}
	if _, err := ResolveProject(ctx, ws.Engine.Repo, ws.Config, "nope"); err == nil {
		t.Fatalf("expected error for unknown override")
	}
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(config.GenerateDefault("proj-x")), 0o644); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer ws.Close()
	if ws.Config.Project.ID != "proj-x" {
		t.Fatalf("config not loaded: %+v", ws.Config.Project)
	}
}

func TestBuildModelNeedsKey(t *testing.T) {
	cfg := config.Default("p")
	cfg.AI.APIKeyEnv = "ONBOARDLINE_APP_TEST_KEY"
	t.Setenv("ONBOARDLINE_APP_TEST_KEY", "")
	if _, err := BuildModel(context.Background(), cfg); !errors.Is(err, ai.ErrConfigurationAbsent) {
		t.Fatalf("expected configuration absent, got %v", err)
	}
}
