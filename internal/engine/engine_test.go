package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/events"
	"onboardline/internal/migrate"
	"onboardline/internal/repo"
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Project domain.Project
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg, engine.NewSynthesizer(nil, 0, nil), nil)
	eng.Now = func() time.Time { return fixedNow }
	ctx := context.Background()
	p, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{
		ID: "proj-1", OrgID: "org-1", Name: "Acme Site", TypeLabel: "web_design", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Project: p}
}

func (env testEnv) submit(t *testing.T, id string, r map[string]any) domain.Session {
	t.Helper()
	s, err := env.Engine.SubmitSession(env.Ctx, engine.SessionSubmitOptions{
		ID: id, ProjectID: env.Project.ID, Responses: r, CompletedAt: fixedNow, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("submit session: %v", err)
	}
	return s
}

func webAnswers() map[string]any {
	return map[string]any{
		"step2": map[string]any{"pages": []any{"Home", "About"}},
		"step3": map[string]any{"domain_name": "acme.com", "analytics_id": "G-1"},
		"step4": map[string]any{"preferred_meeting_times": "Mon 10am"},
	}
}

func TestSubmitSessionRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	s := env.submit(t, "sess-1", webAnswers())
	got, err := env.Engine.Repo.GetSession(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.CompletedAt != fixedNow.Format(time.RFC3339) || got.SubmittedBy != "tester" {
		t.Fatalf("unexpected session %+v", got)
	}
	if _, ok := got.Responses["step3"]; !ok {
		t.Fatalf("responses not persisted: %v", got.Responses)
	}
	if _, err := env.Engine.SubmitSession(env.Ctx, engine.SessionSubmitOptions{ProjectID: "missing"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown project, got %v", err)
	}
}

func TestGenerateTasksPersistsBatch(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", webAnswers())
	out, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-1", ActorID: "tester"})
	if err != nil {
		t.Fatalf("generate tasks: %v", err)
	}
	if len(out.Tasks) == 0 || out.Run.Path != domain.SourceRule || out.Run.Stats.Total != len(out.Tasks) {
		t.Fatalf("unexpected outcome %+v", out.Run)
	}
	stored, err := env.Engine.Repo.ListTasks(env.Ctx, repo.ItemFilters{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(out.Tasks) {
		t.Fatalf("stored %d tasks, generated %d", len(stored), len(out.Tasks))
	}
	position := map[string]int{}
	for _, task := range stored {
		position[task.ID] = task.Position
	}
	withDeps := 0
	for _, task := range stored {
		if task.Status != domain.StatusTodo {
			t.Fatalf("task %q has status %s", task.Title, task.Status)
		}
		for _, dep := range task.DependsOn {
			withDeps++
			if position[dep] >= task.Position {
				t.Fatalf("task %q depends forward on %s", task.Title, dep)
			}
		}
	}
	if withDeps == 0 {
		t.Fatalf("expected resolved dependencies")
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{ProjectID: "proj-1", Type: events.TasksGenerated})
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected one tasks.generated event, got %d (%v)", len(evts), err)
	}
}

func TestRegenerateReplacesTasksWithStableIDs(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", webAnswers())
	first, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if second.Replaced != int64(len(first.Tasks)) {
		t.Fatalf("replaced %d, want %d", second.Replaced, len(first.Tasks))
	}
	for i := range first.Tasks {
		if first.Tasks[i].ID != second.Tasks[i].ID {
			t.Fatalf("task %d id changed across regeneration", i)
		}
	}
	runs, err := env.Engine.Repo.ListRuns(env.Ctx, "sess-1")
	if err != nil || len(runs) != 2 {
		t.Fatalf("expected two runs, got %d (%v)", len(runs), err)
	}
	s, err := env.Engine.Repo.GetSession(env.Ctx, "sess-1")
	if err != nil || s.GeneratedRuns != 2 {
		t.Fatalf("generated runs = %d (%v)", s.GeneratedRuns, err)
	}
}

func TestGenerateTodosFallbackWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", nil)
	out, err := env.Engine.GenerateTodos(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("generate todos: %v", err)
	}
	if out.Run.Path != domain.SourceFallback || out.Run.Analysis == nil {
		t.Fatalf("unexpected run %+v", out.Run)
	}
	admin, err := env.Engine.Repo.ListTodos(env.Ctx, repo.ItemFilters{SessionID: "sess-1", Audience: domain.AudienceAdmin})
	if err != nil {
		t.Fatal(err)
	}
	client, err := env.Engine.Repo.ListTodos(env.Ctx, repo.ItemFilters{SessionID: "sess-1", Audience: domain.AudienceClient})
	if err != nil {
		t.Fatal(err)
	}
	if len(admin) != len(out.AdminTodos) || len(client) != len(out.ClientTodos) || len(admin) == 0 || len(client) == 0 {
		t.Fatalf("admin %d/%d client %d/%d", len(admin), len(out.AdminTodos), len(client), len(out.ClientTodos))
	}
	run, err := env.Engine.Repo.LatestRun(env.Ctx, "sess-1", "todos")
	if err != nil {
		t.Fatal(err)
	}
	if run.Analysis == nil || run.Analysis.Complexity == "" {
		t.Fatalf("analysis not stored: %+v", run)
	}
}

type cannedModel string

func (m cannedModel) Complete(context.Context, string, string) (string, error) {
	return string(m), nil
}

func TestGenerateTodosOutOfRangeReplyFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Synth = engine.NewSynthesizer(cannedModel(`{
  "adminTodos": [{"title": "Call client", "priority": "urgent"}],
  "clientTodos": [{"title": "Send logo", "priority": "high"}],
  "analysis": {"complexity": "low"}
}`), time.Second, nil)
	env.submit(t, "sess-1", webAnswers())
	out, err := env.Engine.GenerateTodos(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("generate todos: %v", err)
	}
	if out.Run.Path != domain.SourceFallback {
		t.Fatalf("expected fallback path, got %q", out.Run.Path)
	}
	stored, err := env.Engine.Repo.ListTodos(env.Ctx, repo.ItemFilters{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != len(out.AdminTodos)+len(out.ClientTodos) {
		t.Fatalf("stored %d todos, outcome has %d", len(stored), len(out.AdminTodos)+len(out.ClientTodos))
	}
	for _, td := range stored {
		if td.Title == "Call client" {
			t.Fatalf("rejected model item persisted: %+v", td)
		}
	}
}

func TestGenerateSessionRunsBoth(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", webAnswers())
	out, err := env.Engine.GenerateSession(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("generate session: %v", err)
	}
	if len(out.Tasks.Tasks) == 0 || len(out.Todos.AdminTodos) == 0 {
		t.Fatalf("unexpected outcome: %d tasks, %d admin todos", len(out.Tasks.Tasks), len(out.Todos.AdminTodos))
	}
	counts, err := env.Engine.Repo.CountItemsByStatus(env.Ctx, "proj-1", repo.KindTask)
	if err != nil || counts[domain.StatusTodo] != len(out.Tasks.Tasks) {
		t.Fatalf("counts %v (%v)", counts, err)
	}
}

func TestGenerateRejectsInvalidWhenConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Synthesis.RejectInvalid = true
	env.submit(t, "sess-clean", webAnswers())
	if _, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-clean"}); err != nil {
		t.Fatalf("clean batch must persist: %v", err)
	}

	long := strings.Repeat("x", 220)
	env.submit(t, "sess-long", map[string]any{"step2": map[string]any{"pages": []any{long}}})
	_, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-long"})
	var fe *engine.FindingsError
	if !errors.As(err, &fe) || len(fe.Findings) == 0 {
		t.Fatalf("expected findings error, got %v", err)
	}
	stored, err := env.Engine.Repo.ListTasks(env.Ctx, repo.ItemFilters{SessionID: "sess-long"})
	if err != nil || len(stored) != 0 {
		t.Fatalf("rejected batch persisted %d tasks (%v)", len(stored), err)
	}

	env.Engine.Config.Synthesis.RejectInvalid = false
	out, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-long"})
	if err != nil || len(out.Run.Findings) == 0 {
		t.Fatalf("findings must be recorded on the run: %v", err)
	}

	_, err = env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "missing"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", webAnswers())
	out, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	var free domain.Task
	for _, task := range out.Tasks {
		if len(task.DependsOn) == 0 {
			free = task
			break
		}
	}
	task, err := env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: free.ID, Status: domain.StatusInProgress, ActorID: "tester"})
	if err != nil || task.Status != domain.StatusInProgress {
		t.Fatalf("to in_progress: %v", err)
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: free.ID, Status: domain.StatusDone, ActorID: "tester"})
	if err != nil || task.Status != domain.StatusDone || task.CompletedAt == nil {
		t.Fatalf("to done: %v", err)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: free.ID, Status: "review"}); err == nil {
		t.Fatalf("expected transition error")
	}
	task, err = env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: free.ID, Status: domain.StatusInProgress})
	if err != nil || task.CompletedAt != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestDependencyGating(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", webAnswers())
	out, err := env.Engine.GenerateTasks(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	var blocked domain.Task
	for _, task := range out.Tasks {
		if len(task.DependsOn) > 0 {
			blocked = task
			break
		}
	}
	if blocked.ID == "" {
		t.Fatalf("no task with dependencies")
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: blocked.ID, Status: domain.StatusDone}); err == nil {
		t.Fatalf("expected dependency error")
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: blocked.ID, Status: domain.StatusDone, Force: true}); err != nil {
		t.Fatalf("forced completion: %v", err)
	}
}

func TestAssignTodo(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "sess-1", nil)
	out, err := env.Engine.GenerateTodos(env.Ctx, engine.GenerateOptions{SessionID: "sess-1"})
	if err != nil {
		t.Fatal(err)
	}
	who := "ops-1"
	todo, err := env.Engine.UpdateTodo(env.Ctx, engine.ItemUpdateOptions{ID: out.AdminTodos[0].ID, AssigneeID: &who, ActorID: "tester"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if todo.AssigneeID == nil || *todo.AssigneeID != who || todo.Audience != domain.AudienceAdmin {
		t.Fatalf("unexpected todo %+v", todo)
	}
	if _, err := env.Engine.UpdateTask(env.Ctx, engine.ItemUpdateOptions{ID: out.AdminTodos[0].ID, Status: domain.StatusDone}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("todo must not be reachable as a task, got %v", err)
	}
}
