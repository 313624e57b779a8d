package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"onboardline/internal/app"
	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/logging"
	"onboardline/internal/repo"
	"onboardline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ol",
	Short: "Onboardline CLI",
	Long: `Onboardline turns completed client onboarding questionnaires into work.
- Project: a client engagement with a project type label (web design, voice AI, software).
- Session: one completed questionnaire; its responses drive generation.
- Tasks: produced by deterministic rules matched on the project type.
- Todos: admin and client checklists produced by the model, or by a fallback generator when no model is configured.
- Event log: every submission, generation and update; view with 'ol log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ONBOARDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("project", "", "project id (overrides config default)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	for _, name := range []string{"workspace", "json", "actor-id", "project", "log-level", "log-format"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(synthCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(todoCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectShowCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Org", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.TypeLabel, p.OrgID, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if opts.OrgID == "" {
					opts.OrgID = ws.Config.Project.OrgID
				}
				opts.ActorID = viper.GetString("actor-id")
				p, err := ws.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (derived from org and name when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.TypeLabel, "type", "", "project type label, e.g. \"Web Design\"")
	cmd.Flags().StringVar(&opts.OrgID, "org-id", "", "organization id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active project with item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				r := ws.Engine.Repo
				p, err := r.GetProject(ctx, projectID)
				if err != nil {
					return err
				}
				sessions, err := r.ListSessions(ctx, projectID)
				if err != nil {
					return err
				}
				tasks, err := r.CountItemsByStatus(ctx, projectID, repo.KindTask)
				if err != nil {
					return err
				}
				todos, err := r.CountItemsByStatus(ctx, projectID, repo.KindTodo)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(server.ProjectStatusResponse{Project: p, Sessions: len(sessions), TaskCounts: tasks, TodoCounts: todos})
				}
				fmt.Printf("%s (%s) type=%q sessions=%d\n", p.Name, p.ID, p.TypeLabel, len(sessions))
				tw := newTable()
				tw.AppendHeader(table.Row{"Kind", domain.StatusTodo, domain.StatusInProgress, domain.StatusDone})
				tw.AppendRow(table.Row{"tasks", tasks[domain.StatusTodo], tasks[domain.StatusInProgress], tasks[domain.StatusDone]})
				tw.AppendRow(table.Row{"todos", todos[domain.StatusTodo], todos[domain.StatusInProgress], todos[domain.StatusDone]})
				tw.Render()
				return nil
			})
		},
	}
}

func sessionCmd() *cobra.Command {
	s := &cobra.Command{Use: "session", Short: "Submit and inspect onboarding sessions"}
	s.AddCommand(sessionSubmitCmd())
	s.AddCommand(sessionListCmd())
	s.AddCommand(sessionShowCmd())
	return s
}

func sessionSubmitCmd() *cobra.Command {
	var file, id, completedAt string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit questionnaire responses from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			responses, err := readResponses(file)
			if err != nil {
				return err
			}
			var completed time.Time
			if completedAt != "" {
				completed, err = time.Parse(time.RFC3339, completedAt)
				if err != nil {
					return fmt.Errorf("invalid --completed-at: %w", err)
				}
			}
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				s, err := ws.Engine.SubmitSession(ctx, engine.SessionSubmitOptions{
					ID: id, ProjectID: projectID, Responses: responses, CompletedAt: completed, ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "responses JSON file (- for stdin)")
	cmd.Flags().StringVar(&id, "id", "", "session id (random when empty)")
	cmd.Flags().StringVar(&completedAt, "completed-at", "", "completion timestamp (RFC3339, default now)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions of the active project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				items, err := ws.Engine.Repo.ListSessions(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Completed", "Submitted By", "Runs"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.CompletedAt, s.SubmittedBy, s.GeneratedRuns})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session with its generation runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				s, err := ws.Engine.Repo.GetSession(ctx, args[0])
				if err != nil {
					return err
				}
				runs, err := ws.Engine.Repo.ListRuns(ctx, s.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"session": s, "runs": runs})
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				f.ProjectID = projectID
				events, err := ws.Engine.Repo.LatestEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	c.AddCommand(configInitCmd())
	return c
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default("default")
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate onboardline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			result := map[string]any{
				"valid":      true,
				"project_id": cfg.Project.ID,
				"ai_enabled": cfg.AIEnabled(),
				"auth":       cfg.Server.JWTSecret() != "",
				"webhooks":   len(cfg.Webhooks),
			}
			if viper.GetBool("json") {
				return printJSON(result)
			}
			fmt.Printf("config ok: project=%s ai_enabled=%t auth=%t webhooks=%d\n",
				cfg.Project.ID, cfg.AIEnabled(), cfg.Server.JWTSecret() != "", len(cfg.Webhooks))
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var projectID string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default onboardline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(projectID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&projectID, "project-id", "default", "project id recorded in the config")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server and webhook dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				cfg := ws.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				logger := ws.Engine.Logger
				authCfg := server.AuthConfig{
					JWTSecret:        cfg.Server.JWTSecret(),
					AllowActorHeader: cfg.Server.AllowActorHeader,
					Logger:           logger,
				}
				if !cfg.AIEnabled() {
					logger.Info("model not configured; todos will use the fallback generator")
				}
				if authCfg.JWTSecret == "" {
					logger.Warn("no JWT secret configured; API is unauthenticated", zap.String("env", cfg.Server.JWTSecretEnv))
				}
				handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				dispatcher := server.NewWebhookDispatcher(ws.Engine.Repo, cfg.Webhooks, logger)
				if err := dispatcher.SeedCursors(ctx); err != nil {
					return err
				}
				go dispatcher.Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving onboardline API",
					zap.String("addr", addr), zap.String("base_path", basePath), zap.Int("webhooks", len(cfg.Webhooks)))
				fmt.Printf("Serving Onboardline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

func tokenCmd() *cobra.Command {
	var actor string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = config.Default("default")
			}
			secret := cfg.Server.JWTSecret()
			if secret == "" {
				return fmt.Errorf("%s is not set", cfg.Server.JWTSecretEnv)
			}
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			token, exp, err := server.SignToken(secret, actor, ttl, time.Now())
			if err != nil {
				return err
			}
			return printJSON(server.TokenResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "token subject (default --actor-id)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level := viper.GetString("log-level")
	format := viper.GetString("log-format")
	if cfg != nil {
		if level == "" {
			level = cfg.Logging.Level
		}
		if format == "" {
			format = cfg.Logging.Format
		}
	}
	if level == "" {
		level = "warn"
	}
	return logging.New(level, format)
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ws, err := app.Open(ctx, workspace, logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withProject(ctx context.Context, fn func(context.Context, *app.Workspace, string) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		projectID, err := app.ResolveProject(ctx, ws.Engine.Repo, ws.Config, viper.GetString("project"))
		if err != nil {
			return err
		}
		return fn(ctx, ws, projectID)
	})
}

func readResponses(path string) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, nil
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
