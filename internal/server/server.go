package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"onboardline/internal/domain"
	"onboardline/internal/engine"
	"onboardline/internal/repo"
	"onboardline/internal/rules"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"session not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the onboardline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, err := range errs {
				msgs[i] = err.Error()
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			data, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(data))
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), bodyBytesKey{}, data)))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Onboardline API", "0.1.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	e := cfg.Engine
	registerDocs(router, basePath)
	registerHealth(group)
	registerRules(group, e)
	registerSynthesize(group, e)
	registerProjects(group, e)
	registerSessions(group, e)
	registerGenerate(group, e)
	registerItems(group, e)
	registerEvents(group, e)
	registerToken(group, cfg.Auth, e)
	registerOpenAPI(router, api, basePath)
	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body:   apiErrorBody{Code: code, Message: message, Details: details},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe *engine.FindingsError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{"findings": fe.Findings})
	}
	if errors.Is(err, domain.ErrInvalidContext) {
		return newAPIError(http.StatusBadRequest, "invalid_context", err.Error(), nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", "already exists", map[string]any{"error": msg})
	case strings.Contains(lowered, "invalid transition"), strings.Contains(lowered, "not done"):
		return newAPIError(http.StatusConflict, "invalid_transition", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(doc)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: &huma.Schema{Type: "object"}},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", basePath, "openapi.json")
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <title>Onboardline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => { SwaggerUIBundle({ url: '%s', dom_id: '#swagger-ui' }); };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerRules(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-rules",
		Method:      http.MethodGet,
		Path:        "/rules",
		Summary:     "List rule sets",
	}, func(ctx context.Context, input *struct {
		ProjectType string `query:"project_type" doc:"Only sets that apply to this project type label"`
	}) (*struct {
		Body []RuleSetResponse `json:"body"`
	}, error) {
		reg := e.Synth.Registry
		if reg == nil {
			reg = rules.Default()
		}
		var wanted map[string]bool
		if input.ProjectType != "" {
			wanted = map[string]bool{rules.SetGeneric: true}
			for _, name := range reg.MatchSets(input.ProjectType) {
				wanted[name] = true
			}
		}
		out := []RuleSetResponse{}
		for _, set := range reg.Sets() {
			if wanted != nil && !wanted[set.Name] {
				continue
			}
			rs := RuleSetResponse{Name: set.Name, Keywords: set.Keywords, Rules: []RuleResponse{}}
			for _, r := range rules.SortByPriority(set.Rules) {
				rs.Rules = append(rs.Rules, RuleResponse{
					ID: r.ID, Set: set.Name, Name: r.Name, Description: r.Description,
					ResponseKeys: r.ResponseKeys, Priority: r.Priority,
				})
			}
			out = append(out, rs)
		}
		return &struct {
			Body []RuleSetResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerSynthesize(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "synthesize-tasks",
		Method:      http.MethodPost,
		Path:        "/synthesize/tasks",
		Summary:     "Run the rule path without persisting",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SynthesizeRequest `json:"body"`
	}) (*struct {
		Body domain.TaskBatch `json:"body"`
	}, error) {
		label := synthLabel(input.Body)
		batch, err := e.Synth.SynthesizeTasks(label, input.Body.Responses, input.Body.Context)
		if err != nil {
			return nil, handleError(err)
		}
		if batch.Items == nil {
			batch.Items = []domain.Item{}
		}
		return &struct {
			Body domain.TaskBatch `json:"body"`
		}{Body: batch}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "synthesize-todos",
		Method:      http.MethodPost,
		Path:        "/synthesize/todos",
		Summary:     "Run the model-or-fallback path without persisting",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SynthesizeRequest `json:"body"`
	}) (*struct {
		Body domain.SynthesisResult `json:"body"`
	}, error) {
		label := synthLabel(input.Body)
		res, err := e.Synth.SynthesizeTodos(ctx, label, input.Body.Responses, input.Body.Context)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.SynthesisResult `json:"body"`
		}{Body: res}, nil
	})
}

func synthLabel(req SynthesizeRequest) string {
	if req.ProjectTypeLabel != "" {
		return req.ProjectTypeLabel
	}
	return req.Context.ProjectTypeLabel
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
			ID:        input.Body.ID,
			OrgID:     input.Body.OrgID,
			Name:      input.Body.Name,
			TypeLabel: input.Body.TypeLabel,
			ActorID:   actorID(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Project with item counts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectStatusResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		sessions, err := e.Repo.ListSessions(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		tasks, err := e.Repo.CountItemsByStatus(ctx, p.ID, repo.KindTask)
		if err != nil {
			return nil, handleError(err)
		}
		todos, err := e.Repo.CountItemsByStatus(ctx, p.ID, repo.KindTodo)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectStatusResponse `json:"body"`
		}{Body: ProjectStatusResponse{Project: p, Sessions: len(sessions), TaskCounts: tasks, TodoCounts: todos}}, nil
	})
}

func registerSessions(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-session",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sessions",
		Summary:       "Submit a completed onboarding questionnaire",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      SubmitSessionRequest `json:"body"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		opts := engine.SessionSubmitOptions{
			ID:        input.Body.ID,
			ProjectID: input.ProjectID,
			Responses: input.Body.Responses,
			ActorID:   actorID(ctx),
		}
		if input.Body.CompletedAt != nil {
			opts.CompletedAt = *input.Body.CompletedAt
		}
		s, err := e.SubmitSession(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sessions",
		Summary:     "List sessions",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Session `json:"body"`
	}, error) {
		if _, err := e.Repo.GetProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListSessions(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Session{}
		}
		return &struct {
			Body []domain.Session `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body domain.Session `json:"body"`
	}, error) {
		s, err := e.Repo.GetSession(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Session `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/runs",
		Summary:     "List generation runs of a session",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body []domain.GenerationRun `json:"body"`
	}, error) {
		if _, err := e.Repo.GetSession(ctx, input.SessionID); err != nil {
			return nil, handleError(err)
		}
		runs, err := e.Repo.ListRuns(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		if runs == nil {
			runs = []domain.GenerationRun{}
		}
		return &struct {
			Body []domain.GenerationRun `json:"body"`
		}{Body: runs}, nil
	})
}

func registerGenerate(api huma.API, e engine.Engine) {
	type generateInput struct {
		SessionID string          `path:"session_id"`
		Body      GenerateRequest `json:"body,omitempty" required:"false"`
	}
	opts := func(ctx context.Context, in *generateInput) engine.GenerateOptions {
		return engine.GenerateOptions{SessionID: in.SessionID, TypeLabel: in.Body.TypeLabel, ActorID: actorID(ctx)}
	}
	errs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity}

	huma.Register(api, huma.Operation{
		OperationID: "generate-tasks",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/generate-tasks",
		Summary:     "Generate and store tasks for a session",
		Errors:      errs,
	}, func(ctx context.Context, input *generateInput) (*struct {
		Body engine.TasksOutcome `json:"body"`
	}, error) {
		out, err := e.GenerateTasks(ctx, opts(ctx, input))
		if err != nil {
			return nil, handleError(err)
		}
		out.Tasks = nonNilTasks(out.Tasks)
		return &struct {
			Body engine.TasksOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-todos",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/generate-todos",
		Summary:     "Generate and store admin and client todos for a session",
		Errors:      errs,
	}, func(ctx context.Context, input *generateInput) (*struct {
		Body engine.TodosOutcome `json:"body"`
	}, error) {
		out, err := e.GenerateTodos(ctx, opts(ctx, input))
		if err != nil {
			return nil, handleError(err)
		}
		out.AdminTodos = nonNilTodos(out.AdminTodos)
		out.ClientTodos = nonNilTodos(out.ClientTodos)
		return &struct {
			Body engine.TodosOutcome `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "generate-session",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/generate",
		Summary:     "Generate tasks and todos for a session",
		Errors:      errs,
	}, func(ctx context.Context, input *generateInput) (*struct {
		Body engine.SessionOutcome `json:"body"`
	}, error) {
		out, err := e.GenerateSession(ctx, opts(ctx, input))
		if err != nil {
			return nil, handleError(err)
		}
		out.Tasks.Tasks = nonNilTasks(out.Tasks.Tasks)
		out.Todos.AdminTodos = nonNilTodos(out.Todos.AdminTodos)
		out.Todos.ClientTodos = nonNilTodos(out.Todos.ClientTodos)
		return &struct {
			Body engine.SessionOutcome `json:"body"`
		}{Body: out}, nil
	})
}

func registerItems(api huma.API, e engine.Engine) {
	type listInput struct {
		ProjectID  string `path:"project_id"`
		SessionID  string `query:"session_id"`
		Status     string `query:"status" enum:"todo,in_progress,done,"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit"`
	}
	filters := func(in *listInput) repo.ItemFilters {
		return repo.ItemFilters{
			ProjectID: in.ProjectID, SessionID: in.SessionID, Status: in.Status, AssigneeID: in.AssigneeID, Limit: in.Limit,
		}
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
	}, func(ctx context.Context, input *listInput) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		items, err := e.Repo.ListTasks(ctx, filters(input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-todos",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/todos",
		Summary:     "List todos",
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		SessionID  string `query:"session_id"`
		Status     string `query:"status" enum:"todo,in_progress,done,"`
		Audience   string `query:"audience" enum:"admin,client,"`
		AssigneeID string `query:"assignee_id"`
		Limit      int    `query:"limit"`
	}) (*struct {
		Body []domain.Todo `json:"body"`
	}, error) {
		f := repo.ItemFilters{
			ProjectID: input.ProjectID, SessionID: input.SessionID, Status: input.Status,
			Audience: input.Audience, AssigneeID: input.AssigneeID, Limit: input.Limit,
		}
		items, err := e.Repo.ListTodos(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Todo `json:"body"`
		}{Body: nonNilTodos(items)}, nil
	})

	type updateInput struct {
		ID   string            `path:"id"`
		Body UpdateItemRequest `json:"body"`
	}
	updateOpts := func(ctx context.Context, in *updateInput) engine.ItemUpdateOptions {
		o := engine.ItemUpdateOptions{ID: in.ID, AssigneeID: in.Body.AssigneeID, ActorID: actorID(ctx), Force: in.Body.Force}
		if in.Body.Status != nil {
			o.Status = *in.Body.Status
		}
		return o
	}
	updateErrs := []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict}

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task status or assignee",
		Errors:      updateErrs,
	}, func(ctx context.Context, input *updateInput) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		t, err := e.UpdateTask(ctx, updateOpts(ctx, input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-todo",
		Method:      http.MethodPatch,
		Path:        "/todos/{id}",
		Summary:     "Update todo status or assignee",
		Errors:      updateErrs,
	}, func(ctx context.Context, input *updateInput) (*struct {
		Body domain.Todo `json:"body"`
	}, error) {
		t, err := e.UpdateTodo(ctx, updateOpts(ctx, input))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Todo `json:"body"`
		}{Body: t}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"project,session,task,todo,"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, repo.EventFilters{
			ProjectID: input.ProjectID, Type: input.Type, EntityKind: input.EntityKind, EntityID: input.EntityID,
			Before: cursorID, Limit: limit + 1,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

// maxTokenTTL bounds tokens minted over HTTP; longer tokens need the
// signing secret and `ol token`.
const maxTokenTTL = 24 * time.Hour

func registerToken(api huma.API, auth AuthConfig, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "mint-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Mint a fresh bearer token for the calling actor",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body TokenRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		if !auth.enabled() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "authentication is not configured", nil)
		}
		caller, ok := principalFromContext(ctx)
		if !ok || caller.Source != "jwt" {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "a bearer token is required to mint tokens", nil)
		}
		actor := strings.TrimSpace(input.Body.ActorID)
		if actor == "" {
			actor = caller.ActorID
		}
		if actor != caller.ActorID {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "tokens can only be minted for the calling actor",
				map[string]any{"actor_id": actor})
		}
		ttl := time.Hour
		if input.Body.TTL != "" {
			d, err := time.ParseDuration(input.Body.TTL)
			if err != nil || d <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid ttl", map[string]any{"ttl": input.Body.TTL})
			}
			if d > maxTokenTTL {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "ttl exceeds maximum",
					map[string]any{"ttl": input.Body.TTL, "max": maxTokenTTL.String()})
			}
			ttl = d
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		token, exp, err := SignToken(auth.JWTSecret, actor, ttl, now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, ExpiresAt: exp.Format(time.RFC3339)}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
