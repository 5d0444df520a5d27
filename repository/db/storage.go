package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskhub/internal/domain/errors"
	"taskhub/internal/domain/models"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const queryTimeout = 15 * time.Second

const (
	insertUserQuery = `
INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	selectUserColumns     = `SELECT id::text, name, email, password_hash, created_at, updated_at FROM users`
	selectUserByIDQuery   = selectUserColumns + ` WHERE id = $1`
	selectUserByEmail     = selectUserColumns + ` WHERE email = $1`
	selectUsersByNameSort = selectUserColumns + ` ORDER BY name ASC, id ASC`
	updateUserNameQuery   = `
UPDATE users
SET name = $2,
    updated_at = now()
WHERE id = $1
RETURNING id::text, name, email, password_hash, created_at, updated_at
`

	taskColumns = `id::text, title, description, due_date, priority, status,
       creator_id::text, assigned_to_id::text, created_at, updated_at`
	insertTaskQuery = `
INSERT INTO tasks (id, title, description, due_date, priority, status,
                   creator_id, assigned_to_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	selectTaskByIDQuery = `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	updateTaskQuery     = `
UPDATE tasks
SET title          = COALESCE($2, title),
    description    = COALESCE($3, description),
    due_date       = COALESCE($4, due_date),
    priority       = COALESCE($5, priority),
    status         = COALESCE($6, status),
    assigned_to_id = COALESCE($7::uuid, assigned_to_id),
    updated_at     = now()
WHERE id = $1
RETURNING ` + taskColumns
	deleteTaskQuery = `DELETE FROM tasks WHERE id = $1`
)

type Storage struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func NewStorage(ctx context.Context, connStr string, logger zerolog.Logger) (*Storage, error) {
	logger = logger.With().Str("component", "postgres").Logger()

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		logger.Error().
			Err(err).
			Msg("failed to parse postgres config")
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		logger.Error().
			Err(err).
			Msg("failed to connect to postgres")
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Error().
			Err(err).
			Msg("failed to ping postgres")
		return nil, err
	}

	logger.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Uint16("port", poolCfg.ConnConfig.Port).
		Msg("connected to postgres")
	return &Storage{pool: pool, logger: logger}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	s.logger.Info().Msg("disconnected from postgres")
}

func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user.ID = uuid.New().String()
	_, err := s.pool.Exec(ctx, insertUserQuery,
		user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgerrcode.UniqueViolation {
			return errors.ErrEmailInUse
		}
		return fmt.Errorf("insert user: %w", err)
	}
	s.logger.Debug().
		Str("user_id", user.ID).
		Msg("inserted user")
	return nil
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if !validID(id) {
		return nil, errors.ErrUserNotFound
	}
	return s.getUser(ctx, selectUserByIDQuery, id)
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, selectUserByEmail, email)
}

func (s *Storage) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (s *Storage) UpdateUserName(ctx context.Context, id, name string) (*models.User, error) {
	if !validID(id) {
		return nil, errors.ErrUserNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	user, err := scanUser(s.pool.QueryRow(ctx, updateUserNameQuery, id, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (s *Storage) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectUsersByNameSort)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (s *Storage) CreateTask(ctx context.Context, task *models.Task) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task.ID = uuid.New().String()
	_, err := s.pool.Exec(ctx, insertTaskQuery,
		task.ID, task.Title, task.Description, task.DueDate,
		string(task.Priority), string(task.Status),
		task.CreatorID, task.AssignedToID, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		if pgErrCode(err) == pgerrcode.ForeignKeyViolation {
			return errors.NewValidationError("assignedToId", "user does not exist")
		}
		return fmt.Errorf("insert task: %w", err)
	}
	s.logger.Debug().
		Str("task_id", task.ID).
		Msg("inserted task")
	return nil
}

func (s *Storage) GetTaskByID(ctx context.Context, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, errors.ErrTaskNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, selectTaskByIDQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

func (s *Storage) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.Task, error) {
	query, args := buildListTasksQuery(filter)
	if query == "" {
		return []models.Task{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// buildListTasksQuery returns an empty query when a filter on an id column
// can never match, so that a malformed id is not sent to the server.
func buildListTasksQuery(filter models.TaskFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}

	if filter.Status != "" {
		add("status = ?", string(filter.Status))
	}
	if filter.Priority != "" {
		add("priority = ?", string(filter.Priority))
	}
	if filter.CreatorID != "" {
		if !validID(filter.CreatorID) {
			return "", nil
		}
		add("creator_id = ?", filter.CreatorID)
	}
	if filter.AssignedToID != "" {
		if !validID(filter.AssignedToID) {
			return "", nil
		}
		add("assigned_to_id = ?", filter.AssignedToID)
	}
	if filter.DueBefore != nil {
		add("due_date < ?", *filter.DueBefore)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY due_date ASC, created_at ASC`
	return query, args
}

func (s *Storage) UpdateTask(ctx context.Context, id string, patch models.TaskPatch) (*models.Task, error) {
	if !validID(id) {
		return nil, errors.ErrTaskNotFound
	}
	if patch.AssignedToID != nil && !validID(*patch.AssignedToID) {
		return nil, errors.NewValidationError("assignedToId", "user does not exist")
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	task, err := scanTask(s.pool.QueryRow(ctx, updateTaskQuery,
		id, patch.Title, patch.Description, patch.DueDate,
		stringPtr(patch.Priority), stringPtr(patch.Status), patch.AssignedToID))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return nil, errors.ErrTaskNotFound
		case pgErrCode(err) == pgerrcode.ForeignKeyViolation:
			return nil, errors.NewValidationError("assignedToId", "user does not exist")
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	if !validID(id) {
		return errors.ErrTaskNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	ct, err := s.pool.Exec(ctx, deleteTaskQuery, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return errors.ErrTaskNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		task     models.Task
		priority string
		status   string
	)
	err := row.Scan(&task.ID, &task.Title, &task.Description, &task.DueDate, &priority, &status,
		&task.CreatorID, &task.AssignedToID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Priority = models.TaskPriority(priority)
	task.Status = models.TaskStatus(status)
	task.DueDate = task.DueDate.UTC()
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func stringPtr[T ~string](v *T) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
