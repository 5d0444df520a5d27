package service

import (
	"context"
	"strings"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/rs/zerolog"
)

type CreateTaskInput struct {
	Title        string
	Description  string
	DueDate      time.Time
	Priority     models.TaskPriority
	Status       models.TaskStatus
	AssignedToID string
}

type TaskQuery struct {
	Status       models.TaskStatus
	Priority     models.TaskPriority
	CreatorID    string
	AssignedToID string
	OverdueOnly  bool
}

type TaskService struct {
	logger   zerolog.Logger
	tasks    TaskRepository
	users    UserRepository
	notifier Notifier
	now      func() time.Time
}

func NewTaskService(
	logger zerolog.Logger,
	tasks TaskRepository,
	users UserRepository,
	notifier Notifier,
) *TaskService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &TaskService{
		logger:   logger.With().Str("component", "tasks").Logger(),
		tasks:    tasks,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

// WithClock replaces the clock used for overdue evaluation and timestamps.
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput, creatorID string) (*models.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Priority == "" {
		in.Priority = models.DefaultPriority
	}
	if in.Status == "" {
		in.Status = models.DefaultStatus
	}
	if err := validateTaskFields(&in.Title, &in.Description, &in.Priority, &in.Status); err != nil {
		return nil, err
	}
	if in.DueDate.IsZero() {
		return nil, errors.NewValidationError("dueDate", "is required")
	}

	if _, err := s.users.GetUserByID(ctx, creatorID); err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrUnauthorized
		}
		return nil, err
	}
	if err := s.checkAssignee(ctx, in.AssignedToID); err != nil {
		return nil, err
	}

	now := storedTime(s.now())
	task := &models.Task{
		Title:        in.Title,
		Description:  in.Description,
		DueDate:      storedTime(in.DueDate),
		Priority:     in.Priority,
		Status:       in.Status,
		CreatorID:    creatorID,
		AssignedToID: in.AssignedToID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to create task")
		return nil, err
	}
	s.logger.Info().
		Str("task_id", task.ID).
		Str("creator_id", task.CreatorID).
		Str("assigned_to_id", task.AssignedToID).
		Msg("created task")

	s.notifier.TaskChanged(task)
	s.notifier.TaskAssigned(task)
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	existing, err := s.tasks.GetTaskByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		v := strings.TrimSpace(*patch.Title)
		patch.Title = &v
	}
	if patch.Description != nil {
		v := strings.TrimSpace(*patch.Description)
		patch.Description = &v
	}
	if err := validateTaskFields(patch.Title, patch.Description, patch.Priority, patch.Status); err != nil {
		return nil, err
	}
	if patch.DueDate != nil {
		v := storedTime(*patch.DueDate)
		patch.DueDate = &v
	}

	reassigned := patch.AssignedToID != nil && *patch.AssignedToID != existing.AssignedToID
	if reassigned {
		if err := s.checkAssignee(ctx, *patch.AssignedToID); err != nil {
			return nil, err
		}
	}

	updated, err := s.tasks.UpdateTask(ctx, id, patch)
	if err != nil {
		if errors.Is(err, errors.ErrTaskNotFound) {
			s.logger.Warn().
				Str("task_id", id).
				Msg("task vanished before update")
		} else {
			s.logger.Error().
				Err(err).
				Str("task_id", id).
				Msg("failed to update task")
		}
		return nil, err
	}
	s.logger.Info().
		Str("task_id", id).
		Bool("reassigned", reassigned).
		Msg("updated task")

	s.notifier.TaskChanged(updated)
	if reassigned {
		s.notifier.TaskAssigned(updated)
	}
	return updated, nil
}

// DeleteTask reports whether a task existed. Deletions are not broadcast.
func (s *TaskService) DeleteTask(ctx context.Context, id string) (bool, error) {
	if err := s.tasks.DeleteTask(ctx, id); err != nil {
		if errors.Is(err, errors.ErrTaskNotFound) {
			return false, nil
		}
		s.logger.Error().
			Err(err).
			Str("task_id", id).
			Msg("failed to delete task")
		return false, err
	}
	s.logger.Info().
		Str("task_id", id).
		Msg("deleted task")
	return true, nil
}

func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return s.tasks.GetTaskByID(ctx, id)
}

func (s *TaskService) ListTasks(ctx context.Context, q TaskQuery) ([]models.Task, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, errors.NewValidationError("status", "must be one of To Do, In Progress, Review, Completed")
	}
	if q.Priority != "" && !q.Priority.Valid() {
		return nil, errors.NewValidationError("priority", "must be one of Low, Medium, High, Urgent")
	}

	filter := models.TaskFilter{
		Status:       q.Status,
		Priority:     q.Priority,
		CreatorID:    q.CreatorID,
		AssignedToID: q.AssignedToID,
	}
	if q.OverdueOnly {
		now := s.now().UTC()
		filter.DueBefore = &now
	}

	tasks, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to list tasks")
		return nil, err
	}
	return tasks, nil
}

func (s *TaskService) checkAssignee(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.NewValidationError("assignedToId", "is required")
	}
	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, errors.ErrUserNotFound) {
			return errors.NewValidationError("assignedToId", "user does not exist")
		}
		return err
	}
	return nil
}

func validateTaskFields(title, description *string, priority *models.TaskPriority, status *models.TaskStatus) error {
	verr := &errors.ValidationError{Fields: map[string]string{}}
	if title != nil {
		switch n := len([]rune(*title)); {
		case n == 0:
			verr.Fields["title"] = "is required"
		case n > 100:
			verr.Fields["title"] = "must be at most 100 characters"
		}
	}
	if description != nil && *description == "" {
		verr.Fields["description"] = "is required"
	}
	if priority != nil && !priority.Valid() {
		verr.Fields["priority"] = "must be one of Low, Medium, High, Urgent"
	}
	if status != nil && !status.Valid() {
		verr.Fields["status"] = "must be one of To Do, In Progress, Review, Completed"
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}
