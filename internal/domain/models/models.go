package models

import (
	"strings"
	"time"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// PublicUser is the only user shape that leaves the service.
type PublicUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email}
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "Low"
	PriorityMedium TaskPriority = "Medium"
	PriorityHigh   TaskPriority = "High"
	PriorityUrgent TaskPriority = "Urgent"
)

var TaskPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p TaskPriority) Valid() bool {
	for _, v := range TaskPriorities {
		if p == v {
			return true
		}
	}
	return false
}

type TaskStatus string

const (
	StatusToDo       TaskStatus = "To Do"
	StatusInProgress TaskStatus = "In Progress"
	StatusReview     TaskStatus = "Review"
	StatusCompleted  TaskStatus = "Completed"
)

var TaskStatuses = []TaskStatus{StatusToDo, StatusInProgress, StatusReview, StatusCompleted}

func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if s == v {
			return true
		}
	}
	return false
}

const (
	DefaultPriority = PriorityMedium
	DefaultStatus   = StatusToDo
)

type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	DueDate      time.Time    `json:"dueDate"`
	Priority     TaskPriority `json:"priority"`
	Status       TaskStatus   `json:"status"`
	CreatorID    string       `json:"creatorId"`
	AssignedToID string       `json:"assignedToId"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title        *string
	Description  *string
	DueDate      *time.Time
	Priority     *TaskPriority
	Status       *TaskStatus
	AssignedToID *string
}

func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate.UTC()
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.AssignedToID != nil {
		t.AssignedToID = *p.AssignedToID
	}
}

// TaskFilter constraints compose with AND; zero values impose nothing.
type TaskFilter struct {
	Status       TaskStatus
	Priority     TaskPriority
	CreatorID    string
	AssignedToID string
	DueBefore    *time.Time
}

func (f TaskFilter) Match(t *Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.CreatorID != "" && t.CreatorID != f.CreatorID {
		return false
	}
	if f.AssignedToID != "" && t.AssignedToID != f.AssignedToID {
		return false
	}
	if f.DueBefore != nil && !t.DueDate.Before(*f.DueBefore) {
		return false
	}
	return true
}

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,bcryptlen"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

func (r *UpdateProfileRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *RegisterRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

type CreateTaskRequest struct {
	Title        string `json:"title" validate:"required,min=1,max=100"`
	Description  string `json:"description" validate:"required,min=1"`
	DueDate      string `json:"dueDate" validate:"required,isodate"`
	Priority     string `json:"priority" validate:"omitempty,taskpriority"`
	Status       string `json:"status" validate:"omitempty,taskstatus"`
	AssignedToID string `json:"assignedToId" validate:"required,min=1"`
}

func (r *CreateTaskRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

type UpdateTaskRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1,max=100"`
	Description  *string `json:"description" validate:"omitempty,min=1"`
	DueDate      *string `json:"dueDate" validate:"omitempty,isodate"`
	Priority     *string `json:"priority" validate:"omitempty,taskpriority"`
	Status       *string `json:"status" validate:"omitempty,taskstatus"`
	AssignedToID *string `json:"assignedToId" validate:"omitempty,min=1"`
}

func (r *UpdateTaskRequest) Normalize() {
	if r.Title != nil {
		v := strings.TrimSpace(*r.Title)
		r.Title = &v
	}
	if r.Description != nil {
		v := strings.TrimSpace(*r.Description)
		r.Description = &v
	}
}

type ListTasksQuery struct {
	Status       string `form:"status" validate:"omitempty,taskstatus"`
	Priority     string `form:"priority" validate:"omitempty,taskpriority"`
	AssignedToID string `form:"assignedToId"`
	CreatorID    string `form:"creatorId"`
	OverdueOnly  string `form:"overdueOnly" validate:"omitempty,oneof=true false"`
}
