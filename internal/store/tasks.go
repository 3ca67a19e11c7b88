package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"studycal/internal/model"
)

// TaskFilter narrows ListTasks. Zero fields do not filter.
type TaskFilter struct {
	Status   model.TaskStatus
	Provider string
}

func (s *Store) ListTasks(ctx context.Context, userID string, f TaskFilter) ([]model.Task, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Provider != "" {
		q = q.Where("source_provider = ?", f.Provider)
	}

	var tasks []model.Task
	if err := q.Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, userID, id string) (*model.Task, error) {
	var t model.Task
	if err := s.conn(ctx).Where("user_id = ? AND id = ?", userID, id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// CreateTask inserts t. Status defaults to pending.
func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	if t.UserID == "" || strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: task needs user and title", ErrInvalid)
	}
	if t.Status == "" {
		t.Status = model.TaskPending
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, t.Status)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.conn(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// TaskUpdate is a partial update; nil fields are left alone.
type TaskUpdate struct {
	Title      *string
	Due        *string
	Priority   *float64
	Status     *model.TaskStatus
	CourseName *string
}

func (u TaskUpdate) columns() (map[string]any, error) {
	cols := make(map[string]any)
	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return nil, fmt.Errorf("%w: empty title", ErrInvalid)
		}
		cols["title"] = *u.Title
	}
	if u.Due != nil {
		cols["due"] = *u.Due
	}
	if u.Priority != nil {
		cols["priority"] = *u.Priority
	}
	if u.Status != nil {
		if !u.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, *u.Status)
		}
		cols["status"] = *u.Status
	}
	if u.CourseName != nil {
		cols["course_name"] = *u.CourseName
	}
	return cols, nil
}

// UpdateTask applies u and returns the updated row.
func (s *Store) UpdateTask(ctx context.Context, userID, id string, u TaskUpdate) (*model.Task, error) {
	cols, err := u.columns()
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		res := s.conn(ctx).Model(&model.Task{}).Where("user_id = ? AND id = ?", userID, id).Updates(cols)
		if res.Error != nil {
			return nil, fmt.Errorf("store: update task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return s.GetTask(ctx, userID, id)
}

func (s *Store) UpdateTaskStatus(ctx context.Context, userID, id string, status model.TaskStatus) (*model.Task, error) {
	return s.UpdateTask(ctx, userID, id, TaskUpdate{Status: &status})
}

func (s *Store) DeleteTask(ctx context.Context, userID, id string) error {
	res := s.conn(ctx).Where("user_id = ? AND id = ?", userID, id).Delete(&model.Task{})
	if res.Error != nil {
		return fmt.Errorf("store: delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
