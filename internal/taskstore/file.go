package taskstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/monica/pkg/models"
)

// fileDocument is the on-disk layout of a task file.
type fileDocument struct {
	Tasks   []models.Task               `yaml:"tasks"`
	Windows []models.AvailabilityWindow `yaml:"windows,omitempty"`
}

// FileStore keeps tasks and availability windows in a YAML file that a
// person may also edit by hand. Every call re-reads the file.
type FileStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewFileStore creates a store over path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (*fileDocument, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &fileDocument{}, nil
	}
	if err != nil {
		return nil, models.Retryable(fmt.Errorf("read %s: %w", s.path, err))
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	for i := range doc.Tasks {
		if doc.Tasks[i].State == "" {
			doc.Tasks[i].State = models.TaskStateOpen
		}
	}
	return &doc, nil
}

// save writes the document atomically so watchers never see a partial file.
func (s *FileStore) save(doc *fileDocument) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.Retryable(fmt.Errorf("create %s: %w", dir, err))
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return models.Retryable(fmt.Errorf("write %s: %w", s.path, err))
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return models.Retryable(fmt.Errorf("write %s: %w", s.path, err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.Retryable(fmt.Errorf("write %s: %w", s.path, err))
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return models.Retryable(fmt.Errorf("replace %s: %w", s.path, err))
	}
	return nil
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return models.Retryable(err)
	}
	return nil
}

// Get returns the task with the given ID.
func (s *FileStore) Get(ctx context.Context, id string) (*models.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for i := range doc.Tasks {
		if doc.Tasks[i].ID == id {
			task := doc.Tasks[i]
			return &task, nil
		}
	}
	return nil, fmt.Errorf("task %s: %w", id, models.ErrNotFound)
}

// Create appends a new open task built from tmpl.
func (s *FileStore) Create(ctx context.Context, tmpl *models.TaskTemplate) (string, error) {
	if err := checkCtx(ctx); err != nil {
		return "", err
	}
	if err := tmpl.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	task := models.Task{
		ID:                uuid.New().String(),
		Title:             tmpl.Title,
		List:              tmpl.List,
		Categories:        tmpl.Categories,
		Due:               tmpl.Due,
		EstimatedDuration: tmpl.EstimatedDuration,
		State:             models.TaskStateOpen,
		ChainTag:          tmpl.ChainTag,
		CreatedAt:         s.now().UTC(),
	}
	doc.Tasks = append(doc.Tasks, task)

	if err := s.save(doc); err != nil {
		return "", err
	}
	return task.ID, nil
}

// ListOpen returns all open tasks in file order.
func (s *FileStore) ListOpen(ctx context.Context) ([]models.Task, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	var open []models.Task
	for _, t := range doc.Tasks {
		if t.IsOpen() {
			open = append(open, t)
		}
	}
	return open, nil
}

// Complete marks a task completed at the given time.
func (s *FileStore) Complete(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, id, func(t *models.Task) error {
		if t.State == models.TaskStateCompleted {
			return nil
		}
		completed := at.UTC()
		t.State = models.TaskStateCompleted
		t.CompletedAt = &completed
		return nil
	})
}

// Update replaces the stored fields of task.ID with those of task.
func (s *FileStore) Update(ctx context.Context, task *models.Task) error {
	if strings.TrimSpace(task.Title) == "" {
		return models.Failed("task title is empty")
	}
	if !task.State.Valid() {
		return models.Failed(fmt.Sprintf("invalid task state %q", task.State))
	}
	return s.mutate(ctx, task.ID, func(t *models.Task) error {
		createdAt := t.CreatedAt
		*t = *task
		t.CreatedAt = createdAt
		return nil
	})
}

func (s *FileStore) mutate(ctx context.Context, id string, fn func(*models.Task) error) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	for i := range doc.Tasks {
		if doc.Tasks[i].ID != id {
			continue
		}
		if err := fn(&doc.Tasks[i]); err != nil {
			return err
		}
		return s.save(doc)
	}
	return fmt.Errorf("task %s: %w", id, models.ErrNotFound)
}

// ListWindows returns the file's windows intersecting [from, to].
func (s *FileStore) ListWindows(ctx context.Context, from, to time.Time) ([]models.AvailabilityWindow, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return ClipWindows(doc.Windows, from, to), nil
}

// tasksByID snapshots the state of every task in the file.
func (s *FileStore) tasksByID() (map[string]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Task, len(doc.Tasks))
	for _, t := range doc.Tasks {
		out[t.ID] = t
	}
	return out, nil
}

var (
	_ Client             = (*FileStore)(nil)
	_ AvailabilitySource = (*FileStore)(nil)
)
