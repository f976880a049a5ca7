package api

import (
	"time"

	"github.com/phrazzld/todo-api/internal/domain"
)

// CreateTaskRequest defines the payload for POST /tasks.
type CreateTaskRequest struct {
	Title     string `json:"title"      validate:"required"`
	Status    string `json:"status"     validate:"required,oneof=OPEN IN_PROGRESS DONE CLOSED"`
	CreatedBy int64  `json:"created_by" validate:"required,gt=0"`
}

// UpdateTaskRequest defines the payload for PUT /tasks/{id}.
// CreatedBy is accepted for symmetry with creation but never changes the owner.
type UpdateTaskRequest struct {
	Title     string `json:"title"                validate:"required"`
	Status    string `json:"status"               validate:"required,oneof=OPEN IN_PROGRESS DONE CLOSED"`
	CreatedBy int64  `json:"created_by,omitempty" validate:"omitempty,gt=0"`
}

// TaskResponse is the JSON representation of a task.
type TaskResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:        t.ID,
		Title:     t.Title,
		Status:    string(t.Status),
		CreatedBy: t.CreatedBy,
		CreatedAt: t.CreatedAt,
	}
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return out
}
