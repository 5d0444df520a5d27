package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const defaultTestURI = "mongodb://localhost:27017/?serverSelectionTimeoutMS=1000"

func setupTestStorage(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping mongo integration test in short mode")
	}

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		uri = defaultTestURI
	}
	database := fmt.Sprintf("taskhub_test_%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s, err := NewStorage(ctx, uri, database, zerolog.Nop())
	if err != nil {
		t.Skipf("skipping: cannot connect to mongo: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.client.Database(database).Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

func TestTaskFilterDocument(t *testing.T) {
	oid := primitive.NewObjectID()
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter models.TaskFilter
		want   struct {
			doc bson.M
			ok  bool
		}
	}{
		{
			name:   "empty filter matches everything",
			filter: models.TaskFilter{},
			want: struct {
				doc bson.M
				ok  bool
			}{doc: bson.M{}, ok: true},
		},
		{
			name:   "all constraints",
			filter: models.TaskFilter{Status: models.StatusReview, Priority: models.PriorityHigh, AssignedToID: oid.Hex(), DueBefore: &cutoff},
			want: struct {
				doc bson.M
				ok  bool
			}{doc: bson.M{
				"status":       "Review",
				"priority":     "High",
				"assignedToId": oid,
				"dueDate":      bson.M{"$lt": cutoff},
			}, ok: true},
		},
		{
			name:   "malformed creator id",
			filter: models.TaskFilter{CreatorID: "xyz"},
			want: struct {
				doc bson.M
				ok  bool
			}{ok: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := taskFilterDocument(tt.filter)
			assert.Equal(t, tt.want.ok, ok)
			if ok {
				assert.Equal(t, tt.want.doc, doc)
			}
		})
	}
}

func TestTaskUpdateDocument(t *testing.T) {
	now := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	title := "renamed"
	priority := models.PriorityUrgent
	assignee := primitive.NewObjectID().Hex()

	update, err := taskUpdateDocument(models.TaskPatch{Title: &title, Priority: &priority, AssignedToID: &assignee}, now)
	require.NoError(t, err)

	set, ok := update["$set"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, now, set["updatedAt"])
	assert.Equal(t, "renamed", set["title"])
	assert.Equal(t, "Urgent", set["priority"])
	assert.NotContains(t, set, "status")
	assert.NotContains(t, set, "description")
	assert.Equal(t, assignee, set["assignedToId"].(primitive.ObjectID).Hex())

	bad := "not-hex"
	_, err = taskUpdateDocument(models.TaskPatch{AssignedToID: &bad}, now)
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))
}

func TestStorageUsers(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	alice := &models.User{Name: "Alice", Email: "alice@example.com", PasswordHash: "h"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, &models.User{Name: "Bob", Email: "bob@example.com", PasswordHash: "h"}))
	assert.ErrorIs(t, s.CreateUser(ctx, &models.User{Name: "Dup", Email: "alice@example.com"}), errors.ErrEmailInUse)

	got, err := s.GetUserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = s.GetUserByID(ctx, "nope")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	updated, err := s.UpdateUserName(ctx, alice.ID, "Alice Cooper")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Alice Cooper", users[0].Name)
}

func TestStorageTasks(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	alice := &models.User{Name: "Alice", Email: "alice@example.com"}
	bob := &models.User{Name: "Bob", Email: "bob@example.com"}
	require.NoError(t, s.CreateUser(ctx, alice))
	require.NoError(t, s.CreateUser(ctx, bob))

	now := time.Now().UTC().Truncate(time.Millisecond)
	late := &models.Task{Title: "late", Description: "d", DueDate: now.Add(-time.Hour),
		Priority: models.PriorityHigh, Status: models.StatusToDo, CreatorID: alice.ID, AssignedToID: bob.ID,
		CreatedAt: now, UpdatedAt: now}
	soon := &models.Task{Title: "soon", Description: "d", DueDate: now.Add(time.Hour),
		Priority: models.PriorityLow, Status: models.StatusToDo, CreatorID: alice.ID, AssignedToID: alice.ID,
		CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateTask(ctx, soon))
	require.NoError(t, s.CreateTask(ctx, late))

	tasks, err := s.ListTasks(ctx, models.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "late", tasks[0].Title)

	tasks, err = s.ListTasks(ctx, models.TaskFilter{AssignedToID: bob.ID})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, late.ID, tasks[0].ID)

	tasks, err = s.ListTasks(ctx, models.TaskFilter{DueBefore: &now})
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	status := models.StatusCompleted
	updated, err := s.UpdateTask(ctx, soon.ID, models.TaskPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Equal(t, "soon", updated.Title)

	_, err = s.UpdateTask(ctx, primitive.NewObjectID().Hex(), models.TaskPatch{Status: &status})
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)

	require.NoError(t, s.DeleteTask(ctx, soon.ID))
	assert.ErrorIs(t, s.DeleteTask(ctx, soon.ID), errors.ErrTaskNotFound)
	_, err = s.GetTaskByID(ctx, soon.ID)
	assert.ErrorIs(t, err, errors.ErrTaskNotFound)
}
