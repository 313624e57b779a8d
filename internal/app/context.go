package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"onboardline/internal/ai"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/engine"
	"onboardline/internal/migrate"
	"onboardline/internal/repo"
)

// Workspace is an opened onboardline workspace.
type Workspace struct {
	Dir    string
	Config *config.Config
	DB     *sql.DB
	Engine engine.Engine
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}

// Open loads config (falling back to defaults), migrates the database and
// wires the engine with whatever model the config allows.
func Open(ctx context.Context, dir string, logger *zap.Logger) (*Workspace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("default")
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	model, err := BuildModel(ctx, cfg)
	switch {
	case errors.Is(err, ai.ErrConfigurationAbsent):
		logger.Debug("no model configured; todos will use the fallback generator")
	case err != nil:
		logger.Warn("model unavailable; todos will use the fallback generator", zap.Error(err))
		model = nil
	}
	synth := engine.NewSynthesizer(model, cfg.AI.Timeout(), logger)
	return &Workspace{
		Dir:    dir,
		Config: cfg,
		DB:     conn,
		Engine: engine.New(conn, cfg, synth, logger),
	}, nil
}

// BuildModel returns the configured model, or ErrConfigurationAbsent when
// the provider is off or the API key is not set.
func BuildModel(ctx context.Context, cfg *config.Config) (ai.Model, error) {
	if cfg == nil || !cfg.AIEnabled() {
		return nil, ai.ErrConfigurationAbsent
	}
	name := cfg.AI.Model
	if name == "" {
		name = ai.DefaultGeminiModel
	}
	m, err := ai.NewGeminiModel(ctx, cfg.AI.APIKey(), name, cfg.AI.Temperature)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveProject picks the active project: the override when given, the
// configured project when it exists, else the only project in the workspace.
func ResolveProject(ctx context.Context, r repo.Repo, cfg *config.Config, override string) (string, error) {
	if override != "" {
		if _, err := r.GetProject(ctx, override); err != nil {
			return "", fmt.Errorf("project %s: %w", override, err)
		}
		return override, nil
	}
	if cfg != nil && cfg.Project.ID != "" {
		if _, err := r.GetProject(ctx, cfg.Project.ID); err == nil {
			return cfg.Project.ID, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
	}
	p, err := r.SingleProject(ctx)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", fmt.Errorf("no project found; create one with ol project create")
		}
		return "", err
	}
	return p.ID, nil
}
