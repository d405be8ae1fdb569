package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/monica/internal/taskstore"
	"github.com/ShayCichocki/monica/pkg/models"
)

// directivePrefix marks lines in a task body that carry engine metadata.
const directivePrefix = "monica:"

// TodoStore implements taskstore.Client over Microsoft To Do.
// Task IDs are "<list id>/<task id>" so a task can be fetched without
// searching every list.
type TodoStore struct {
	client *Client
	lists  []string
	loc    *time.Location

	mu      sync.Mutex
	listIDs map[string]string
	names   map[string]string
}

// NewTodoStore creates a To Do backed task store. lists are the display
// names scanned by ListOpen; the first is the default for new tasks.
func NewTodoStore(client *Client, lists []string, timeZone string) (*TodoStore, error) {
	loc := time.UTC
	if timeZone != "" {
		l, err := time.LoadLocation(timeZone)
		if err != nil {
			return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
		}
		loc = l
	}
	return &TodoStore{
		client:  client,
		lists:   lists,
		loc:     loc,
		listIDs: make(map[string]string),
		names:   make(map[string]string),
	}, nil
}

var _ taskstore.Client = (*TodoStore)(nil)

type todoList struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type itemBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type todoTask struct {
	ID                string            `json:"id,omitempty"`
	Title             string            `json:"title,omitempty"`
	Status            string            `json:"status,omitempty"`
	Categories        []string          `json:"categories,omitempty"`
	Body              *itemBody         `json:"body,omitempty"`
	DueDateTime       *dateTimeTimeZone `json:"dueDateTime,omitempty"`
	CompletedDateTime *dateTimeTimeZone `json:"completedDateTime,omitempty"`
	CreatedDateTime   string            `json:"createdDateTime,omitempty"`
	// LastModifiedDateTime is read only; it stands in for a missing
	// completedDateTime so redeliveries of one change share a fingerprint.
	LastModifiedDateTime string `json:"lastModifiedDateTime,omitempty"`
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// SplitTaskID splits a composite task ID into list and task IDs.
func SplitTaskID(id string) (listID, taskID string, err error) {
	listID, taskID, ok := strings.Cut(id, "/")
	if !ok || listID == "" || taskID == "" {
		return "", "", fmt.Errorf("%w: task id %q is not <list>/<task>", models.ErrNotFound, id)
	}
	return listID, taskID, nil
}

// ParseResource extracts the composite task ID from a notification
// resource such as "Users/{uid}/todo/lists/{list}/tasks/{task}".
func ParseResource(resource string) (string, bool) {
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	for i := 0; i+3 < len(parts); i++ {
		if strings.EqualFold(parts[i], "lists") && strings.EqualFold(parts[i+2], "tasks") {
			return parts[i+1] + "/" + parts[i+3], true
		}
	}
	return "", false
}

// resolveList maps a list display name to its ID, caching the full list
// table for the lifetime of the store.
func (s *TodoStore) resolveList(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	id, ok := s.listIDs[strings.ToLower(name)]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	if err := s.refreshLists(ctx); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.listIDs[strings.ToLower(name)]; ok {
		return id, nil
	}
	return "", models.Failed(fmt.Sprintf("list %q not found", name))
}

func (s *TodoStore) refreshLists(ctx context.Context) error {
	path := s.client.userPath() + "/todo/lists"
	var lists []todoList
	for path != "" {
		var p page[todoList]
		if err := s.client.do(ctx, "GET", path, nil, &p); err != nil {
			return fmt.Errorf("list todo lists: %w", err)
		}
		lists = append(lists, p.Value...)
		path = p.NextLink
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lists {
		s.listIDs[strings.ToLower(l.DisplayName)] = l.ID
		s.names[l.ID] = l.DisplayName
	}
	return nil
}

func (s *TodoStore) listName(ctx context.Context, listID string) string {
	s.mu.Lock()
	name, ok := s.names[listID]
	s.mu.Unlock()
	if ok {
		return name
	}
	if err := s.refreshLists(ctx); err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names[listID]
}

func (s *TodoStore) taskPath(listID, taskID string) string {
	return fmt.Sprintf("%s/todo/lists/%s/tasks/%s", s.client.userPath(),
		url.PathEscape(listID), url.PathEscape(taskID))
}

// Get fetches a task by composite ID.
func (s *TodoStore) Get(ctx context.Context, id string) (*models.Task, error) {
	listID, taskID, err := SplitTaskID(id)
	if err != nil {
		return nil, err
	}
	var tt todoTask
	if err := s.client.do(ctx, "GET", s.taskPath(listID, taskID), nil, &tt); err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	task := s.toTask(listID, &tt)
	task.List = s.listName(ctx, listID)
	return task, nil
}

// Create creates a task in the template's list, or the default list.
func (s *TodoStore) Create(ctx context.Context, tmpl *models.TaskTemplate) (string, error) {
	if err := tmpl.Validate(); err != nil {
		return "", err
	}
	listName := tmpl.List
	if listName == "" {
		if len(s.lists) == 0 {
			return "", models.Failed("no list given and no default list configured")
		}
		listName = s.lists[0]
	}
	listID, err := s.resolveList(ctx, listName)
	if err != nil {
		return "", fmt.Errorf("create task %q: %w", tmpl.Title, err)
	}

	req := todoTask{
		Title:      tmpl.Title,
		Categories: tmpl.Categories,
		Body:       encodeDirectives("", tmpl.ChainTag, tmpl.EstimatedDuration),
	}
	if tmpl.Due != nil {
		req.DueDateTime = newDateTimeTimeZone(*tmpl.Due, s.loc)
	}

	var created todoTask
	path := fmt.Sprintf("%s/todo/lists/%s/tasks", s.client.userPath(), url.PathEscape(listID))
	if err := s.client.do(ctx, "POST", path, req, &created); err != nil {
		return "", fmt.Errorf("create task %q: %w", tmpl.Title, err)
	}
	if created.ID == "" {
		return "", models.Retryable(fmt.Errorf("create task %q: response carried no id", tmpl.Title))
	}
	return listID + "/" + created.ID, nil
}

// ListOpen returns incomplete tasks from every configured list.
func (s *TodoStore) ListOpen(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	for _, name := range s.lists {
		listID, err := s.resolveList(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("list open tasks: %w", err)
		}

		q := url.Values{}
		q.Set("$filter", "status ne 'completed'")
		path := fmt.Sprintf("%s/todo/lists/%s/tasks?%s", s.client.userPath(), url.PathEscape(listID), q.Encode())
		for path != "" {
			var p page[todoTask]
			if err := s.client.do(ctx, "GET", path, nil, &p); err != nil {
				return nil, fmt.Errorf("list open tasks in %q: %w", name, err)
			}
			for i := range p.Value {
				task := s.toTask(listID, &p.Value[i])
				if !task.IsOpen() {
					continue
				}
				task.List = name
				tasks = append(tasks, *task)
			}
			path = p.NextLink
		}
	}
	return tasks, nil
}

// Complete marks a task completed at the given time.
func (s *TodoStore) Complete(ctx context.Context, id string, at time.Time) error {
	listID, taskID, err := SplitTaskID(id)
	if err != nil {
		return err
	}
	req := todoTask{
		Status:            "completed",
		CompletedDateTime: newDateTimeTimeZone(at, time.UTC),
	}
	if err := s.client.do(ctx, "PATCH", s.taskPath(listID, taskID), req, nil); err != nil {
		return fmt.Errorf("complete task %s: %w", id, err)
	}
	return nil
}

// Update writes title, categories, due date and directives back to To Do.
func (s *TodoStore) Update(ctx context.Context, task *models.Task) error {
	listID, taskID, err := SplitTaskID(task.ID)
	if err != nil {
		return err
	}

	var current todoTask
	if err := s.client.do(ctx, "GET", s.taskPath(listID, taskID), nil, &current); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	note := ""
	if current.Body != nil {
		note, _, _ = parseDirectives(current.Body.Content)
	}

	req := todoTask{
		Title:      task.Title,
		Categories: task.Categories,
		Body:       encodeDirectives(note, task.ChainTag, task.EstimatedDuration),
	}
	if req.Body == nil {
		req.Body = &itemBody{ContentType: "text"}
	}
	if task.Due != nil {
		req.DueDateTime = newDateTimeTimeZone(*task.Due, s.loc)
	}
	if err := s.client.do(ctx, "PATCH", s.taskPath(listID, taskID), req, nil); err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return nil
}

func (s *TodoStore) toTask(listID string, tt *todoTask) *models.Task {
	task := &models.Task{
		ID:         listID + "/" + tt.ID,
		Title:      tt.Title,
		Categories: tt.Categories,
		State:      models.TaskStateOpen,
	}
	if tt.Status == "completed" {
		task.State = models.TaskStateCompleted
	}
	if tt.DueDateTime != nil {
		if due, err := tt.DueDateTime.Time(); err == nil {
			task.Due = &due
		}
	}
	if tt.CompletedDateTime != nil {
		if at, err := tt.CompletedDateTime.Time(); err == nil {
			task.CompletedAt = &at
		}
	}
	if task.CompletedAt == nil && task.State == models.TaskStateCompleted && tt.LastModifiedDateTime != "" {
		if at, err := time.Parse(time.RFC3339Nano, tt.LastModifiedDateTime); err == nil {
			at = at.UTC()
			task.CompletedAt = &at
		}
	}
	if tt.CreatedDateTime != "" {
		if created, err := time.Parse(time.RFC3339Nano, tt.CreatedDateTime); err == nil {
			task.CreatedAt = created.UTC()
		}
	}
	if tt.Body != nil {
		_, task.ChainTag, task.EstimatedDuration = parseDirectives(tt.Body.Content)
	}
	return task
}

// parseDirectives splits a task note into free text and monica directives:
//
//	monica: chain: weekly-review
//	monica: estimate: 30m
func parseDirectives(content string) (note, chain string, estimate time.Duration) {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, directivePrefix)
		if !ok {
			kept = append(kept, line)
			continue
		}
		key, value, _ := strings.Cut(strings.TrimSpace(rest), ":")
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "chain":
			chain = value
		case "estimate":
			if d, err := time.ParseDuration(value); err == nil && d > 0 {
				estimate = d
			}
		}
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n "), chain, estimate
}

func encodeDirectives(note, chain string, estimate time.Duration) *itemBody {
	var b strings.Builder
	b.WriteString(note)
	if chain != "" || estimate > 0 {
		if note != "" {
			b.WriteString("\n\n")
		}
		if chain != "" {
			fmt.Fprintf(&b, "%s chain: %s\n", directivePrefix, chain)
		}
		if estimate > 0 {
			fmt.Fprintf(&b, "%s estimate: %s\n", directivePrefix, estimate)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	return &itemBody{Content: b.String(), ContentType: "text"}
}
