package storage

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStorage(t *testing.T) {
	storage := NewStorage()

	require.NotNil(t, storage)
	assert.NotNil(t, storage.users)
	assert.NotNil(t, storage.tasks)
	assert.Empty(t, storage.users)
	assert.Empty(t, storage.tasks)
}

func TestStorageCreateUser(t *testing.T) {
	tests := []struct {
		name  string
		user  *models.User
		setup func(*Storage)
		want  struct {
			err error
		}
	}{
		{
			name: "new user",
			user: &models.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "h"},
			want: struct{ err error }{},
		},
		{
			name: "duplicate email",
			user: &models.User{Name: "Other", Email: "alice@example.com", PasswordHash: "h"},
			setup: func(s *Storage) {
				_ = s.CreateUser(context.Background(), &models.User{Name: "Alice", Email: "alice@example.com"})
			},
			want: struct{ err error }{err: errors.ErrEmailInUse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStorage()
			if tt.setup != nil {
				tt.setup(s)
			}
			before := len(s.users)

			err := s.CreateUser(context.Background(), tt.user)
			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				assert.Len(t, s.users, before)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.user.ID)
			assert.False(t, tt.user.CreatedAt.IsZero())

			got, err := s.GetUserByEmail(context.Background(), tt.user.Email)
			require.NoError(t, err)
			assert.Equal(t, tt.user.ID, got.ID)
		})
	}
}

func TestStorageUsers(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	bob := &models.User{Name: "Bob", Email: "bob@example.com"}
	alice := &models.User{Name: "Alice", Email: "alice@example.com"}
	require.NoError(t, s.CreateUser(ctx, bob))
	require.NoError(t, s.CreateUser(ctx, alice))

	_, err := s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "Bob", users[1].Name)

	updated, err := s.UpdateUserName(ctx, bob.ID, "Robert")
	require.NoError(t, err)
	assert.Equal(t, "Robert", updated.Name)
	assert.Equal(t, "bob@example.com", updated.Email)

	_, err = s.UpdateUserName(ctx, "missing", "x")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestStorageListTasks(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []models.Task{
		{Title: "c", DueDate: base.Add(48 * time.Hour), Priority: models.PriorityHigh, Status: models.StatusCompleted, CreatorID: "u1", AssignedToID: "u2"},
		{Title: "a", DueDate: base.Add(-time.Hour), Priority: models.PriorityLow, Status: models.StatusToDo, CreatorID: "u1", AssignedToID: "u1"},
		{Title: "b", DueDate: base, Priority: models.PriorityHigh, Status: models.StatusCompleted, CreatorID: "u2", AssignedToID: "u2"},
		{Title: "d", DueDate: base.Add(48 * time.Hour), Priority: models.PriorityHigh, Status: models.StatusCompleted, CreatorID: "u2", AssignedToID: "u1"},
	}
	for i := range seed {
		seed[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateTask(ctx, &seed[i]))
	}

	tests := []struct {
		name   string
		filter models.TaskFilter
		want   []string
	}{
		{name: "all sorted by due date then creation", filter: models.TaskFilter{}, want: []string{"a", "b", "c", "d"}},
		{name: "status and priority", filter: models.TaskFilter{Status: models.StatusCompleted, Priority: models.PriorityHigh}, want: []string{"b", "c", "d"}},
		{name: "assignee", filter: models.TaskFilter{AssignedToID: "u1"}, want: []string{"a", "d"}},
		{name: "creator", filter: models.TaskFilter{CreatorID: "u2"}, want: []string{"b", "d"}},
		{name: "due strictly before", filter: models.TaskFilter{DueBefore: &base}, want: []string{"a"}},
		{name: "nothing matches", filter: models.TaskFilter{AssignedToID: "u9"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks, err := s.ListTasks(ctx, tt.filter)
			require.NoError(t, err)
			require.NotNil(t, tasks)

			titles := make([]string, 0, len(tasks))
			for _, task := range tasks {
				titles = append(titles, task.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestStorageUpdateAndDeleteTask(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	task := &models.Task{Title: "original", Description: "d", Priority: models.PriorityLow, Status: models.StatusToDo, AssignedToID: "u1"}
	require.NoError(t, s.CreateTask(ctx, task))

	title := "renamed"
	status := models.StatusReview
	updated, err := s.UpdateTask(ctx, task.ID, models.TaskPatch{Title: &title, Status: &status})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, models.StatusReview, updated.Status)
	assert.Equal(t, models.PriorityLow, updated.Priority)
	assert.Equal(t, "u1", updated.AssignedToID)
	assert.Equal(t, fixed, updated.UpdatedAt)

	_, err = s.UpdateTask(ctx, "missing", models.TaskPatch{Title: &title})
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	assert.ErrorIs(t, s.DeleteTask(ctx, task.ID), errors.ErrTaskNotFound)
	_, err = s.GetTaskByID(ctx, task.ID)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}

func TestStorageReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	task := &models.Task{Title: "stable"}
	require.NoError(t, s.CreateTask(ctx, task))

	got, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := s.GetTaskByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "stable", again.Title)
}

func TestStorageConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateUser(ctx, &models.User{Name: fmt.Sprintf("user-%d", i), Email: "same@example.com"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}
