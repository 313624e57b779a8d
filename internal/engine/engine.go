package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"onboardline/internal/config"
	"onboardline/internal/domain"
	"onboardline/internal/events"
	"onboardline/internal/repo"
	"onboardline/internal/responses"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Synth  Synthesizer
	Logger *zap.Logger
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config, synth Synthesizer, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if synth.Logger == nil {
		synth.Logger = logger
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Config: cfg,
		Synth:  synth,
		Logger: logger,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) writer() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// FindingsError is returned when synthesis.reject_invalid is set and the
// post-processor reported validation findings.
type FindingsError struct {
	SessionID string
	Findings  []string
}

func (f *FindingsError) Error() string {
	return fmt.Sprintf("session %s: %d validation findings: %s", f.SessionID, len(f.Findings), strings.Join(f.Findings, "; "))
}

type ProjectCreateOptions struct {
	ID        string
	OrgID     string
	Name      string
	TypeLabel string
	ActorID   string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, errors.New("project name is required")
	}
	if opts.OrgID == "" {
		opts.OrgID = "default-org"
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(opts.OrgID+"|"+opts.Name)).String()
	}
	p := domain.Project{
		ID:        id,
		OrgID:     opts.OrgID,
		Name:      strings.TrimSpace(opts.Name),
		TypeLabel: strings.TrimSpace(opts.TypeLabel),
		Status:    "active",
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.Entry{
		Type: events.ProjectCreated, ProjectID: p.ID, EntityKind: "project", EntityID: p.ID, ActorID: opts.ActorID,
		Payload: events.Payload{"name": p.Name, "type_label": p.TypeLabel},
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

type SessionSubmitOptions struct {
	ID          string
	ProjectID   string
	Responses   map[string]any
	CompletedAt time.Time
	ActorID     string
}

// SubmitSession stores a completed questionnaire. Responses are kept as sent.
func (e Engine) SubmitSession(ctx context.Context, opts SessionSubmitOptions) (domain.Session, error) {
	if opts.ProjectID == "" {
		return domain.Session{}, errors.New("project is required")
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Session{}, err
	}
	now := e.now().UTC()
	completed := opts.CompletedAt
	if completed.IsZero() {
		completed = now
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	actor := opts.ActorID
	if actor == "" {
		actor = "system"
	}
	s := domain.Session{
		ID:          id,
		ProjectID:   opts.ProjectID,
		Responses:   opts.Responses,
		CompletedAt: completed.UTC().Format(time.RFC3339),
		SubmittedBy: actor,
		CreatedAt:   now.Format(time.RFC3339),
	}
	if s.Responses == nil {
		s.Responses = map[string]any{}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Session{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSessionTx(ctx, tx, s); err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.Entry{
		Type: events.SessionSubmitted, ProjectID: s.ProjectID, EntityKind: "session", EntityID: s.ID, ActorID: actor,
		Payload: events.Payload{"answered": responses.CountAnswered(s.Responses), "completed_at": s.CompletedAt},
	}); err != nil {
		return domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// GenerateOptions selects the session to synthesize for.
type GenerateOptions struct {
	SessionID string
	// TypeLabel overrides the project's type label for rule routing.
	TypeLabel string
	ActorID   string
}

type TasksOutcome struct {
	Run      domain.GenerationRun `json:"run"`
	Tasks    []domain.Task        `json:"tasks"`
	Replaced int64                `json:"replaced"`
}

type TodosOutcome struct {
	Run         domain.GenerationRun `json:"run"`
	AdminTodos  []domain.Todo        `json:"admin_todos"`
	ClientTodos []domain.Todo        `json:"client_todos"`
	Replaced    int64                `json:"replaced"`
}

type SessionOutcome struct {
	Tasks TasksOutcome `json:"tasks"`
	Todos TodosOutcome `json:"todos"`
}

type generationInput struct {
	project domain.Project
	session domain.Session
	label   string
	context domain.GenerationContext
}

func (e Engine) loadGeneration(ctx context.Context, opts GenerateOptions) (generationInput, error) {
	if opts.SessionID == "" {
		return generationInput{}, errors.New("session is required")
	}
	s, err := e.Repo.GetSession(ctx, opts.SessionID)
	if err != nil {
		return generationInput{}, fmt.Errorf("session %s: %w", opts.SessionID, err)
	}
	p, err := e.Repo.GetProject(ctx, s.ProjectID)
	if err != nil {
		return generationInput{}, fmt.Errorf("project %s: %w", s.ProjectID, err)
	}
	completed, err := time.Parse(time.RFC3339, s.CompletedAt)
	if err != nil {
		return generationInput{}, fmt.Errorf("session %s has invalid completed_at %q: %w", s.ID, s.CompletedAt, err)
	}
	label := opts.TypeLabel
	if label == "" {
		label = p.TypeLabel
	}
	return generationInput{
		project: p,
		session: s,
		label:   label,
		context: domain.GenerationContext{
			ProjectID:           p.ID,
			ProjectName:         p.Name,
			ProjectTypeLabel:    label,
			OrganizationID:      p.OrgID,
			SessionID:           s.ID,
			CompletionTimestamp: completed,
		},
	}, nil
}

func (e Engine) rejectInvalid() bool {
	return e.Config != nil && e.Config.Synthesis.RejectInvalid
}

// GenerateTasks runs the rule path for a session and replaces its stored tasks.
func (e Engine) GenerateTasks(ctx context.Context, opts GenerateOptions) (TasksOutcome, error) {
	in, err := e.loadGeneration(ctx, opts)
	if err != nil {
		return TasksOutcome{}, err
	}
	batch, err := e.Synth.SynthesizeTasks(in.label, in.session.Responses, in.context)
	if err != nil {
		return TasksOutcome{}, err
	}
	return e.persistTasks(ctx, in, batch, opts.ActorID)
}

// GenerateTodos runs the model-or-fallback path for a session and replaces its stored todos.
func (e Engine) GenerateTodos(ctx context.Context, opts GenerateOptions) (TodosOutcome, error) {
	in, err := e.loadGeneration(ctx, opts)
	if err != nil {
		return TodosOutcome{}, err
	}
	res, err := e.Synth.SynthesizeTodos(ctx, in.label, in.session.Responses, in.context)
	if err != nil {
		return TodosOutcome{}, err
	}
	return e.persistTodos(ctx, in, res, opts.ActorID)
}

// GenerateSession synthesizes tasks and todos concurrently, then persists both.
func (e Engine) GenerateSession(ctx context.Context, opts GenerateOptions) (SessionOutcome, error) {
	in, err := e.loadGeneration(ctx, opts)
	if err != nil {
		return SessionOutcome{}, err
	}
	var (
		batch domain.TaskBatch
		res   domain.SynthesisResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		batch, err = e.Synth.SynthesizeTasks(in.label, in.session.Responses, in.context)
		return err
	})
	g.Go(func() error {
		var err error
		res, err = e.Synth.SynthesizeTodos(gctx, in.label, in.session.Responses, in.context)
		return err
	})
	if err := g.Wait(); err != nil {
		return SessionOutcome{}, err
	}
	var out SessionOutcome
	if out.Tasks, err = e.persistTasks(ctx, in, batch, opts.ActorID); err != nil {
		return SessionOutcome{}, err
	}
	if out.Todos, err = e.persistTodos(ctx, in, res, opts.ActorID); err != nil {
		return SessionOutcome{}, err
	}
	return out, nil
}

func (e Engine) newRun(in generationInput, kind, path string, findings []string, stats domain.Stats, analysis *domain.Analysis, actor string) domain.GenerationRun {
	now := e.now().UTC()
	return domain.GenerationRun{
		ID:        uuid.NewString(),
		ProjectID: in.project.ID,
		SessionID: in.session.ID,
		Kind:      kind,
		Path:      path,
		Analysis:  analysis,
		Findings:  findings,
		Stats:     stats,
		ActorID:   actor,
		CreatedAt: now.Format(time.RFC3339),
	}
}

func actorOrSystem(actor string) string {
	if actor == "" {
		return "system"
	}
	return actor
}

func (e Engine) persistTasks(ctx context.Context, in generationInput, batch domain.TaskBatch, actor string) (TasksOutcome, error) {
	if e.rejectInvalid() && len(batch.Findings) > 0 {
		return TasksOutcome{}, &FindingsError{SessionID: in.session.ID, Findings: batch.Findings}
	}
	actor = actorOrSystem(actor)
	run := e.newRun(in, "tasks", domain.SourceRule, batch.Findings, batch.Stats, nil, actor)
	rows := e.itemRows(in, repo.KindTask, "", batch.Items)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TasksOutcome{}, err
	}
	defer tx.Rollback()
	replaced, err := e.Repo.DeleteSessionItemsTx(ctx, tx, in.session.ID, repo.KindTask)
	if err != nil {
		return TasksOutcome{}, fmt.Errorf("clear tasks: %w", err)
	}
	if err := e.insertItems(ctx, tx, repo.KindTask, rows); err != nil {
		return TasksOutcome{}, err
	}
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return TasksOutcome{}, fmt.Errorf("insert run: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.Entry{
		Type: events.TasksGenerated, ProjectID: in.project.ID, EntityKind: "session", EntityID: in.session.ID, ActorID: actor,
		Payload: events.Payload{"run_id": run.ID, "path": run.Path, "count": len(rows), "replaced": replaced, "findings": len(batch.Findings)},
	}); err != nil {
		return TasksOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return TasksOutcome{}, err
	}
	e.logger().Info("tasks generated",
		zap.String("session_id", in.session.ID), zap.Int("count", len(rows)), zap.Int("findings", len(batch.Findings)))
	tasks := make([]domain.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.Task
	}
	return TasksOutcome{Run: run, Tasks: tasks, Replaced: replaced}, nil
}

func (e Engine) persistTodos(ctx context.Context, in generationInput, res domain.SynthesisResult, actor string) (TodosOutcome, error) {
	if e.rejectInvalid() && len(res.Findings) > 0 {
		return TodosOutcome{}, &FindingsError{SessionID: in.session.ID, Findings: res.Findings}
	}
	actor = actorOrSystem(actor)
	run := e.newRun(in, "todos", res.Path, res.Findings, res.Stats, res.Analysis, actor)
	admin := e.itemRows(in, repo.KindTodo, domain.AudienceAdmin, res.AdminTodos)
	client := e.itemRows(in, repo.KindTodo, domain.AudienceClient, res.ClientTodos)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TodosOutcome{}, err
	}
	defer tx.Rollback()
	replaced, err := e.Repo.DeleteSessionItemsTx(ctx, tx, in.session.ID, repo.KindTodo)
	if err != nil {
		return TodosOutcome{}, fmt.Errorf("clear todos: %w", err)
	}
	if err := e.insertItems(ctx, tx, repo.KindTodo, admin); err != nil {
		return TodosOutcome{}, err
	}
	if err := e.insertItems(ctx, tx, repo.KindTodo, client); err != nil {
		return TodosOutcome{}, err
	}
	if err := e.Repo.InsertRunTx(ctx, tx, run); err != nil {
		return TodosOutcome{}, fmt.Errorf("insert run: %w", err)
	}
	if err := e.writer().Append(ctx, tx, events.Entry{
		Type: events.TodosGenerated, ProjectID: in.project.ID, EntityKind: "session", EntityID: in.session.ID, ActorID: actor,
		Payload: events.Payload{
			"run_id": run.ID, "path": run.Path, "admin": len(admin), "client": len(client),
			"replaced": replaced, "findings": len(res.Findings),
		},
	}); err != nil {
		return TodosOutcome{}, err
	}
	if err := tx.Commit(); err != nil {
		return TodosOutcome{}, err
	}
	e.logger().Info("todos generated",
		zap.String("session_id", in.session.ID), zap.String("path", run.Path),
		zap.Int("admin", len(admin)), zap.Int("client", len(client)))
	return TodosOutcome{Run: run, AdminTodos: admin, ClientTodos: client, Replaced: replaced}, nil
}

// itemRows turns a post-processed batch into rows. Sibling indices in
// Dependencies become the ids of the referenced rows.
func (e Engine) itemRows(in generationInput, kind, audience string, items []domain.Item) []domain.Todo {
	now := e.now().UTC().Format(time.RFC3339)
	ids := make([]string, len(items))
	for i := range items {
		name := strings.Join([]string{in.project.ID, in.session.ID, kind, audience, fmt.Sprint(i)}, "|")
		ids[i] = uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
	}
	rows := make([]domain.Todo, len(items))
	for i, it := range items {
		status := it.Status
		if status == "" {
			status = domain.StatusTodo
		}
		t := domain.Todo{
			Task: domain.Task{
				ID:               ids[i],
				ProjectID:        in.project.ID,
				SessionID:        in.session.ID,
				Position:         i,
				Title:            it.Title,
				Description:      it.Description,
				Status:           status,
				Priority:         it.Priority,
				Category:         it.Category,
				EstimatedMinutes: it.EstimatedMinutes,
				SourceType:       it.SourceType,
				SourceMetadata:   it.SourceMetadata,
				CreatedAt:        now,
				UpdatedAt:        now,
			},
			Audience: audience,
		}
		if it.DueDate != nil {
			d := it.DueDate.UTC().Format(time.RFC3339)
			t.DueDate = &d
		}
		if it.AssignedTo != "" {
			a := it.AssignedTo
			t.AssigneeID = &a
		}
		if status == domain.StatusDone {
			t.CompletedAt = &now
		}
		for _, d := range it.Dependencies {
			if d >= 0 && d < i {
				t.DependsOn = append(t.DependsOn, ids[d])
			}
		}
		rows[i] = t
	}
	return rows
}

func (e Engine) insertItems(ctx context.Context, tx *sql.Tx, kind string, rows []domain.Todo) error {
	for _, r := range rows {
		if err := e.Repo.InsertItemTx(ctx, tx, kind, r); err != nil {
			return fmt.Errorf("insert %s %q: %w", kind, r.Title, err)
		}
		if err := e.Repo.AddDependenciesTx(ctx, tx, r.ID, r.DependsOn); err != nil {
			return err
		}
	}
	return nil
}

// ItemUpdateOptions changes status or assignment of a stored task or todo.
type ItemUpdateOptions struct {
	ID         string
	Status     string
	AssigneeID *string
	ActorID    string
	// Force skips the dependency check when completing an item.
	Force bool
}

var transitions = map[string][]string{
	domain.StatusTodo:       {domain.StatusInProgress, domain.StatusDone},
	domain.StatusInProgress: {domain.StatusTodo, domain.StatusDone},
	domain.StatusDone:       {domain.StatusInProgress},
}

func allowedTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (e Engine) UpdateTask(ctx context.Context, opts ItemUpdateOptions) (domain.Task, error) {
	t, err := e.updateItem(ctx, repo.KindTask, events.TaskUpdated, opts)
	return t.Task, err
}

func (e Engine) UpdateTodo(ctx context.Context, opts ItemUpdateOptions) (domain.Todo, error) {
	return e.updateItem(ctx, repo.KindTodo, events.TodoUpdated, opts)
}

func (e Engine) updateItem(ctx context.Context, kind, evtType string, opts ItemUpdateOptions) (domain.Todo, error) {
	if opts.ID == "" {
		return domain.Todo{}, fmt.Errorf("%s id is required", kind)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Todo{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetItemTx(ctx, tx, opts.ID, kind)
	if err != nil {
		return domain.Todo{}, err
	}
	before := t.Status
	payload := events.Payload{}
	if opts.Status != "" && opts.Status != t.Status {
		if !allowedTransition(t.Status, opts.Status) {
			return domain.Todo{}, fmt.Errorf("invalid transition %s -> %s", t.Status, opts.Status)
		}
		if opts.Status == domain.StatusDone && !opts.Force {
			for _, dep := range t.DependsOn {
				d, err := e.Repo.GetItemTx(ctx, tx, dep, kind)
				if err != nil {
					return domain.Todo{}, err
				}
				if d.Status != domain.StatusDone {
					return domain.Todo{}, fmt.Errorf("dependency %q not done", d.Title)
				}
			}
		}
		t.Status = opts.Status
		payload["from"] = before
		payload["to"] = t.Status
	}
	now := e.now().UTC().Format(time.RFC3339)
	if t.Status == domain.StatusDone && before != domain.StatusDone {
		t.CompletedAt = &now
	}
	if t.Status != domain.StatusDone {
		t.CompletedAt = nil
	}
	if opts.AssigneeID != nil {
		a := strings.TrimSpace(*opts.AssigneeID)
		t.AssigneeID = &a
		payload["assignee_id"] = a
	}
	if len(payload) == 0 {
		return t, nil
	}
	t.UpdatedAt = now
	if err := e.Repo.UpdateItemTx(ctx, tx, t); err != nil {
		return domain.Todo{}, err
	}
	if err := e.writer().Append(ctx, tx, events.Entry{
		Type: evtType, ProjectID: t.ProjectID, EntityKind: kind, EntityID: t.ID, ActorID: opts.ActorID, Payload: payload,
	}); err != nil {
		return domain.Todo{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Todo{}, err
	}
	return t, nil
}
