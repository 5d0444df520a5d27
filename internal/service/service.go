package service

import (
	"context"
	"time"

	"taskhub/internal/domain/models"
)

// UserRepository is the credential store. Implementations return
// ErrUserNotFound for unknown ids and emails and ErrEmailInUse when the
// unique email constraint rejects a write.
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserName(ctx context.Context, id, name string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// TaskRepository is the task store. Every method is a single atomic store
// operation; ErrTaskNotFound is returned when the id has no record.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTaskByID(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Notifier delivers task events to connected clients. Emission is fire and
// forget; implementations must not block the caller.
type Notifier interface {
	TaskChanged(task *models.Task)
	TaskAssigned(task *models.Task)
}

type nopNotifier struct{}

func (nopNotifier) TaskChanged(*models.Task)  {}
func (nopNotifier) TaskAssigned(*models.Task) {}

// storedTime rounds t down to millisecond precision in UTC, the coarsest
// resolution any store keeps, so a value returned from a write matches what
// a later read returns.
func storedTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
