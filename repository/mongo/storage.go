package mongo

import (
	"context"
	"fmt"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	queryTimeout    = 15 * time.Second
	usersCollection = "users"
	tasksCollection = "tasks"
)

type userDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Name         string             `bson:"name"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d *userDocument) toModel() *models.User {
	return &models.User{
		ID:           d.ID.Hex(),
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type taskDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Title        string             `bson:"title"`
	Description  string             `bson:"description"`
	DueDate      time.Time          `bson:"dueDate"`
	Priority     string             `bson:"priority"`
	Status       string             `bson:"status"`
	CreatorID    primitive.ObjectID `bson:"creatorId"`
	AssignedToID primitive.ObjectID `bson:"assignedToId"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func (d *taskDocument) toModel() models.Task {
	return models.Task{
		ID:           d.ID.Hex(),
		Title:        d.Title,
		Description:  d.Description,
		DueDate:      d.DueDate.UTC(),
		Priority:     models.TaskPriority(d.Priority),
		Status:       models.TaskStatus(d.Status),
		CreatorID:    d.CreatorID.Hex(),
		AssignedToID: d.AssignedToID.Hex(),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// Storage keeps users and tasks as documents. Every write is a single
// document operation, so it is atomic without transactions.
type Storage struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
	logger zerolog.Logger
	now    func() time.Time
}

func NewStorage(ctx context.Context, uri, database string, logger zerolog.Logger) (*Storage, error) {
	logger = logger.With().Str("component", "mongo").Logger()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		logger.Error().
			Err(err).
			Msg("failed to connect to mongo")
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		logger.Error().
			Err(err).
			Msg("failed to ping mongo")
		return nil, err
	}

	db := client.Database(database)
	s := &Storage{
		client: client,
		users:  db.Collection(usersCollection),
		tasks:  db.Collection(tasksCollection),
		logger: logger,
		now:    time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info().
		Str("database", database).
		Msg("connected to mongo")
	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.tasks.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "dueDate", Value: 1}}},
		{Keys: bson.D{{Key: "assignedToId", Value: 1}, {Key: "dueDate", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create tasks indexes: %w", err)
	}
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	err := s.client.Disconnect(ctx)
	s.logger.Info().Msg("disconnected from mongo")
	return err
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := userDocument{
		ID:           primitive.NewObjectID(),
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errors.ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}
	user.ID = doc.ID.Hex()
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrUserNotFound
	}
	return s.findUser(ctx, bson.M{"_id": oid})
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *Storage) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc userDocument
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Storage) UpdateUserName(ctx context.Context, id, name string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"name": name, "updatedAt": s.now().UTC()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDocument
	if err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return doc.toModel(), nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.users.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]models.User, 0, len(docs))
	for i := range docs {
		users = append(users, *docs[i].toModel())
	}
	return users, nil
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	creator, err := primitive.ObjectIDFromHex(task.CreatorID)
	if err != nil {
		return errors.ErrUnauthorized
	}
	assignee, err := primitive.ObjectIDFromHex(task.AssignedToID)
	if err != nil {
		return errors.NewValidationError("assignedToId", "user does not exist")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	doc := taskDocument{
		ID:           primitive.NewObjectID(),
		Title:        task.Title,
		Description:  task.Description,
		DueDate:      task.DueDate,
		Priority:     string(task.Priority),
		Status:       string(task.Status),
		CreatorID:    creator,
		AssignedToID: assignee,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	task.ID = doc.ID.Hex()
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrTaskNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var doc taskDocument
	if err := s.tasks.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	task := doc.toModel()
	return &task, nil
}

// taskFilterDocument returns ok=false when an id filter can never match.
func taskFilterDocument(filter models.TaskFilter) (bson.M, bool) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Priority != "" {
		query["priority"] = string(filter.Priority)
	}
	if filter.CreatorID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.CreatorID)
		if err != nil {
			return nil, false
		}
		query["creatorId"] = oid
	}
	if filter.AssignedToID != "" {
		oid, err := primitive.ObjectIDFromHex(filter.AssignedToID)
		if err != nil {
			return nil, false
		}
		query["assignedToId"] = oid
	}
	if filter.DueBefore != nil {
		query["dueDate"] = bson.M{"$lt": *filter.DueBefore}
	}
	return query, true
}

func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	query, ok := taskFilterDocument(filter)
	if !ok {
		return []models.Task{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "dueDate", Value: 1}, {Key: "createdAt", Value: 1}})
	cur, err := s.tasks.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	var docs []taskDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}

	tasks := make([]models.Task, 0, len(docs))
	for i := range docs {
		tasks = append(tasks, docs[i].toModel())
	}
	return tasks, nil
}

func taskUpdateDocument(patch models.TaskPatch, now time.Time) (bson.M, error) {
	set := bson.M{"updatedAt": now}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.DueDate != nil {
		set["dueDate"] = patch.DueDate.UTC()
	}
	if patch.Priority != nil {
		set["priority"] = string(*patch.Priority)
	}
	if patch.Status != nil {
		set["status"] = string(*patch.Status)
	}
	if patch.AssignedToID != nil {
		oid, err := primitive.ObjectIDFromHex(*patch.AssignedToID)
		if err != nil {
			return nil, errors.NewValidationError("assignedToId", "user does not exist")
		}
		set["assignedToId"] = oid
	}
	return bson.M{"$set": set}, nil
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errors.ErrTaskNotFound
	}
	update, err := taskUpdateDocument(patch, s.now().UTC())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDocument
	if err := s.tasks.FindOneAndUpdate(ctx, bson.M{"_id": oid}, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	task := doc.toModel()
	return &task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.ErrTaskNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if res.DeletedCount == 0 {
		return errors.ErrTaskNotFound
	}
	return nil
}
