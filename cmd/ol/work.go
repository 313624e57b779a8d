package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"onboardline/internal/app"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
	"onboardline/internal/rules"
)

// synthInput is the file format accepted by ol synth. A file without a
// "responses" key is treated as the responses themselves.
type synthInput struct {
	ProjectTypeLabel string                   `json:"project_type_label"`
	Responses        map[string]any           `json:"responses"`
	Context          domain.GenerationContext `json:"context"`
}

func loadSynthInput(path, typeLabel string, now time.Time) (synthInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return synthInput{}, err
	}
	var in synthInput
	if err := json.Unmarshal(data, &in); err != nil {
		return synthInput{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if in.Responses == nil {
		if err := json.Unmarshal(data, &in.Responses); err != nil {
			return synthInput{}, fmt.Errorf("parse %s: %w", path, err)
		}
		delete(in.Responses, "project_type_label")
		delete(in.Responses, "context")
	}
	if typeLabel != "" {
		in.ProjectTypeLabel = typeLabel
	}
	if in.Context.ProjectTypeLabel == "" {
		in.Context.ProjectTypeLabel = in.ProjectTypeLabel
	}
	if in.Context.SessionID == "" {
		in.Context.SessionID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if in.Context.CompletionTimestamp.IsZero() {
		in.Context.CompletionTimestamp = now.UTC()
	}
	return in, nil
}

func synthCmd() *cobra.Command {
	s := &cobra.Command{Use: "synth", Short: "Synthesize tasks or todos from a responses file without storing them"}
	s.AddCommand(synthTasksCmd())
	s.AddCommand(synthTodosCmd())
	s.AddCommand(synthBatchCmd())
	return s
}

func synthTasksCmd() *cobra.Command {
	var typeLabel string
	cmd := &cobra.Command{
		Use:   "tasks <responses.json>",
		Short: "Run the rule path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadSynthInput(args[0], typeLabel, time.Now())
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				batch, err := ws.Engine.Synth.SynthesizeTasks(in.ProjectTypeLabel, in.Responses, in.Context)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(batch)
				}
				printItems("Tasks", batch.Items)
				printFindings(batch.Findings)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeLabel, "type", "", "project type label (overrides the file)")
	return cmd
}

func synthTodosCmd() *cobra.Command {
	var typeLabel string
	cmd := &cobra.Command{
		Use:   "todos <responses.json>",
		Short: "Run the model path, falling back to the built-in generator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := loadSynthInput(args[0], typeLabel, time.Now())
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Synth.SynthesizeTodos(ctx, in.ProjectTypeLabel, in.Responses, in.Context)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("path: %s\n", res.Path)
				if res.Analysis != nil {
					fmt.Printf("complexity: %s, setup: %s\n", res.Analysis.Complexity, res.Analysis.EstimatedSetupTime)
				}
				printItems("Admin todos", res.AdminTodos)
				printItems("Client todos", res.ClientTodos)
				printFindings(res.Findings)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeLabel, "type", "", "project type label (overrides the file)")
	return cmd
}

type batchResult struct {
	File        string   `json:"file"`
	Tasks       int      `json:"tasks"`
	AdminTodos  int      `json:"admin_todos"`
	ClientTodos int      `json:"client_todos"`
	Path        string   `json:"path"`
	Findings    []string `json:"findings,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// runBatch synthesizes every file concurrently. Per-file errors are reported
// in the result rather than aborting the batch.
func runBatch(ctx context.Context, s engine.Synthesizer, files []string, typeLabel string, limit int, now time.Time) []batchResult {
	results := make([]batchResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, file := range files {
		g.Go(func() error {
			res := batchResult{File: file}
			defer func() { results[i] = res }()
			in, err := loadSynthInput(file, typeLabel, now)
			if err != nil {
				res.Error = err.Error()
				return nil
			}
			tasks, err := s.SynthesizeTasks(in.ProjectTypeLabel, in.Responses, in.Context)
			if err != nil {
				res.Error = err.Error()
				return nil
			}
			todos, err := s.SynthesizeTodos(gctx, in.ProjectTypeLabel, in.Responses, in.Context)
			if err != nil {
				res.Error = err.Error()
				return nil
			}
			res.Tasks = len(tasks.Items)
			res.AdminTodos = len(todos.AdminTodos)
			res.ClientTodos = len(todos.ClientTodos)
			res.Path = todos.Path
			res.Findings = append(append([]string{}, tasks.Findings...), todos.Findings...)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func synthBatchCmd() *cobra.Command {
	var typeLabel string
	var parallel int
	cmd := &cobra.Command{
		Use:   "batch <responses.json>...",
		Short: "Synthesize tasks and todos for many files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				results := runBatch(ctx, ws.Engine.Synth, args, typeLabel, parallel, time.Now())
				if viper.GetBool("json") {
					return printJSON(results)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"File", "Tasks", "Admin", "Client", "Path", "Findings", "Error"})
				for _, r := range results {
					tw.AppendRow(table.Row{r.File, r.Tasks, r.AdminTodos, r.ClientTodos, r.Path, len(r.Findings), r.Error})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeLabel, "type", "", "project type label for every file")
	cmd.Flags().IntVar(&parallel, "parallel", 4, "maximum concurrent files")
	return cmd
}

func generateCmd() *cobra.Command {
	g := &cobra.Command{Use: "generate", Short: "Generate and store work for a submitted session"}
	g.AddCommand(generateSubCmd("tasks", "Generate tasks from rules"))
	g.AddCommand(generateSubCmd("todos", "Generate admin and client todos"))
	g.AddCommand(generateSubCmd("all", "Generate tasks and todos"))
	return g
}

func generateSubCmd(which, short string) *cobra.Command {
	var typeLabel string
	cmd := &cobra.Command{
		Use:   which + " <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				opts := engine.GenerateOptions{SessionID: args[0], TypeLabel: typeLabel, ActorID: viper.GetString("actor-id")}
				var (
					tasks *engine.TasksOutcome
					todos *engine.TodosOutcome
				)
				switch which {
				case "tasks":
					out, err := ws.Engine.GenerateTasks(ctx, opts)
					if err != nil {
						return err
					}
					tasks = &out
				case "todos":
					out, err := ws.Engine.GenerateTodos(ctx, opts)
					if err != nil {
						return err
					}
					todos = &out
				default:
					out, err := ws.Engine.GenerateSession(ctx, opts)
					if err != nil {
						return err
					}
					tasks, todos = &out.Tasks, &out.Todos
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"tasks": tasks, "todos": todos})
				}
				if tasks != nil {
					fmt.Printf("tasks run %s (replaced %d)\n", tasks.Run.ID, tasks.Replaced)
					printTasks(tasks.Tasks)
					printFindings(tasks.Run.Findings)
				}
				if todos != nil {
					fmt.Printf("todos run %s via %s (replaced %d)\n", todos.Run.ID, todos.Run.Path, todos.Replaced)
					printTodos(append(append([]domain.Todo{}, todos.AdminTodos...), todos.ClientTodos...))
					printFindings(todos.Run.Findings)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeLabel, "type", "", "override the project type label for rule routing")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Stored tasks"}
	t.AddCommand(itemListCmd(repo.KindTask))
	t.AddCommand(itemUpdateCmd(repo.KindTask))
	return t
}

func todoCmd() *cobra.Command {
	t := &cobra.Command{Use: "todo", Short: "Stored admin and client todos"}
	t.AddCommand(itemListCmd(repo.KindTodo))
	t.AddCommand(itemUpdateCmd(repo.KindTodo))
	return t
}

func itemListCmd(kind string) *cobra.Command {
	var f repo.ItemFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List " + kind + "s",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withProject(cmd.Context(), func(ctx context.Context, ws *app.Workspace, projectID string) error {
				f.ProjectID = projectID
				if kind == repo.KindTask {
					items, err := ws.Engine.Repo.ListTasks(ctx, f)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(items)
					}
					printTasks(items)
					return nil
				}
				items, err := ws.Engine.Repo.ListTodos(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printTodos(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.SessionID, "session", "", "session filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum rows")
	if kind == repo.KindTodo {
		cmd.Flags().StringVar(&f.Audience, "audience", "", "admin or client")
	}
	return cmd
}

func itemUpdateCmd(kind string) *cobra.Command {
	var status, assignee string
	var force bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change status or assignee of a " + kind,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ItemUpdateOptions{ID: args[0], Status: status, ActorID: viper.GetString("actor-id"), Force: force}
			if cmd.Flags().Changed("assignee-id") {
				opts.AssigneeID = &assignee
			}
			if opts.Status == "" && opts.AssigneeID == nil {
				return fmt.Errorf("nothing to update: pass --status or --assignee-id")
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				if kind == repo.KindTask {
					t, err := ws.Engine.UpdateTask(ctx, opts)
					if err != nil {
						return err
					}
					return printJSON(t)
				}
				t, err := ws.Engine.UpdateTodo(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "todo, in_progress or done")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee (empty string clears)")
	cmd.Flags().BoolVar(&force, "force", false, "complete even when dependencies are open")
	return cmd
}

func rulesCmd() *cobra.Command {
	r := &cobra.Command{Use: "rules", Short: "Built-in task rules"}
	var typeLabel string
	list := &cobra.Command{
		Use:   "list",
		Short: "List rule sets, or the rules a project type routes to",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := rules.Default()
			var sets []rules.RuleSet
			if typeLabel == "" {
				sets = reg.Sets()
			} else {
				wanted := map[string]bool{}
				for _, name := range reg.MatchSets(typeLabel) {
					wanted[name] = true
				}
				for _, set := range reg.Sets() {
					if wanted[set.Name] {
						sets = append(sets, set)
					}
				}
			}
			if viper.GetBool("json") {
				type row struct {
					Set          string   `json:"set"`
					ID           string   `json:"id"`
					Name         string   `json:"name"`
					Priority     int      `json:"priority"`
					ResponseKeys []string `json:"response_keys,omitempty"`
				}
				var rows []row
				for _, set := range sets {
					for _, rule := range rules.SortByPriority(set.Rules) {
						rows = append(rows, row{Set: set.Name, ID: rule.ID, Name: rule.Name, Priority: rule.Priority, ResponseKeys: rule.ResponseKeys})
					}
				}
				return printJSON(rows)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Set", "ID", "Name", "Priority", "Response Keys"})
			for _, set := range sets {
				for _, rule := range rules.SortByPriority(set.Rules) {
					tw.AppendRow(table.Row{set.Name, rule.ID, rule.Name, rule.Priority, strings.Join(rule.ResponseKeys, ", ")})
				}
			}
			tw.Render()
			return nil
		},
	}
	list.Flags().StringVar(&typeLabel, "type", "", "project type label")
	r.AddCommand(list)
	return r
}

func printItems(title string, items []domain.Item) {
	tw := newTable()
	tw.SetTitle(fmt.Sprintf("%s (%d)", title, len(items)))
	tw.AppendHeader(table.Row{"#", "Title", "Priority", "Category", "Due", "Source", "Deps"})
	for i, it := range items {
		due := ""
		if it.DueDate != nil {
			due = it.DueDate.Format("2006-01-02")
		}
		deps := make([]string, len(it.Dependencies))
		for j, d := range it.Dependencies {
			deps[j] = fmt.Sprintf("%d", d)
		}
		tw.AppendRow(table.Row{i, it.Title, it.Priority, it.Category, due, it.SourceType, strings.Join(deps, ",")})
	}
	tw.Render()
}

func printTasks(items []domain.Task) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Assignee", "Deps"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, deref(t.DueDate), deref(t.AssigneeID), len(t.DependsOn)})
	}
	tw.Render()
}

func printTodos(items []domain.Todo) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Audience", "Title", "Status", "Priority", "Due", "Assignee"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Audience, t.Title, t.Status, t.Priority, deref(t.DueDate), deref(t.AssigneeID)})
	}
	tw.Render()
}

func printFindings(findings []string) {
	for _, f := range findings {
		fmt.Fprintln(os.Stderr, "finding:", f)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
