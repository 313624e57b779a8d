package onboardlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Onboardline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   60 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Name      string `json:"name"`
	TypeLabel string `json:"type_label"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// Session is a submitted questionnaire.
type Session struct {
	ID            string         `json:"id"`
	ProjectID     string         `json:"project_id"`
	Responses     map[string]any `json:"responses"`
	CompletedAt   string         `json:"completed_at"`
	SubmittedBy   string         `json:"submitted_by"`
	GeneratedRuns int            `json:"generated_runs"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string   `json:"id"`
	ProjectID  string   `json:"project_id"`
	SessionID  string   `json:"session_id"`
	Position   int      `json:"position"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	Category   string   `json:"category"`
	DueDate    *string  `json:"due_date"`
	AssigneeID *string  `json:"assignee_id"`
	SourceType string   `json:"source_type"`
	DependsOn  []string `json:"depends_on"`
}

// Todo is a task addressed to an audience.
type Todo struct {
	Task
	Audience string `json:"audience"`
}

// Run records one generation pass.
type Run struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Kind      string   `json:"kind"`
	Path      string   `json:"path"`
	Findings  []string `json:"findings"`
	CreatedAt string   `json:"created_at"`
}

type TasksOutcome struct {
	Run      Run    `json:"run"`
	Tasks    []Task `json:"tasks"`
	Replaced int64  `json:"replaced"`
}

type TodosOutcome struct {
	Run         Run    `json:"run"`
	AdminTodos  []Todo `json:"admin_todos"`
	ClientTodos []Todo `json:"client_todos"`
	Replaced    int64  `json:"replaced"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityID   string `json:"entity_id"`
	EntityKind string `json:"entity_kind"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// CreateProject creates a project and makes it the client's default.
func (c *Client) CreateProject(ctx context.Context, name, typeLabel string) (Project, error) {
	body := map[string]any{"name": name, "type_label": typeLabel}
	if c.ProjectID != "" {
		body["id"] = c.ProjectID
	}
	var resp Project
	if err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp); err != nil {
		return Project{}, err
	}
	c.ProjectID = resp.ID
	return resp, nil
}

// SubmitSession stores a completed questionnaire for the client's project.
func (c *Client) SubmitSession(ctx context.Context, id string, responses map[string]any, completedAt time.Time) (Session, error) {
	body := map[string]any{"id": id, "responses": responses}
	if !completedAt.IsZero() {
		body["completed_at"] = completedAt.UTC().Format(time.RFC3339)
	}
	var resp Session
	err := c.do(ctx, http.MethodPost, c.projectPath("sessions"), body, &resp)
	return resp, err
}

// GenerateTasks runs the rule path for a session and stores the result.
func (c *Client) GenerateTasks(ctx context.Context, sessionID string) (TasksOutcome, error) {
	var resp TasksOutcome
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "generate-tasks"), map[string]any{}, &resp)
	return resp, err
}

// GenerateTodos runs the model-or-fallback path for a session and stores the result.
func (c *Client) GenerateTodos(ctx context.Context, sessionID string) (TodosOutcome, error) {
	var resp TodosOutcome
	err := c.do(ctx, http.MethodPost, c.sessionPath(sessionID, "generate-todos"), map[string]any{}, &resp)
	return resp, err
}

// Tasks lists tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, status string) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, withQuery(c.projectPath("tasks"), "status", status), nil, &resp)
	return resp, err
}

// Todos lists todos, optionally filtered by audience.
func (c *Client) Todos(ctx context.Context, audience string) ([]Todo, error) {
	var resp []Todo
	err := c.do(ctx, http.MethodGet, withQuery(c.projectPath("todos"), "audience", audience), nil, &resp)
	return resp, err
}

// SetTaskStatus moves a task; force skips the dependency check on completion.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string, force bool) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status, "force": force}, &resp)
	return resp, err
}

// AssignTodo sets the assignee of a todo.
func (c *Client) AssignTodo(ctx context.Context, todoID, assignee string) (Todo, error) {
	var resp Todo
	endpoint := fmt.Sprintf("v0/todos/%s", url.PathEscape(todoID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"assignee_id": assignee}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = withQuery(endpoint, "limit", fmt.Sprintf("%d", limit))
	}
	endpoint = withQuery(endpoint, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) sessionPath(sessionID, p string) string {
	return fmt.Sprintf("v0/sessions/%s/%s", url.PathEscape(sessionID), p)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}

func withQuery(endpoint, key, value string) string {
	if value == "" {
		return endpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + key + "=" + url.QueryEscape(value)
}
