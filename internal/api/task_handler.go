package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/todo-api/internal/api/shared"
	"github.com/phrazzld/todo-api/internal/domain"
	"github.com/phrazzld/todo-api/internal/platform/logger"
	"github.com/phrazzld/todo-api/internal/redact"
	"github.com/phrazzld/todo-api/internal/service"
)

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if taskService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("taskService cannot be nil for TaskHandler")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With(slog.String("component", "task_handler")),
	}
}

// Routes registers the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", h.ListTasks)
		r.Post("/", h.CreateTask)
		r.Get("/active/count", h.CountActiveTasks)
		r.Get("/{id}", h.GetTask)
		r.Put("/{id}", h.UpdateTask)
		r.Delete("/{id}", h.DeleteTask)
	})
}

// CreateTask handles POST /tasks requests.
// It responds 201 with the stored task and a Location header.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	task := &domain.Task{
		Title:     req.Title,
		Status:    domain.TaskStatus(req.Status),
		CreatedBy: req.CreatedBy,
	}
	created, err := h.taskService.CreateTask(r.Context(), task)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	log.Debug("task created via API", slog.Int64("task_id", created.ID))
	w.Header().Set("Location", "/tasks/"+strconv.FormatInt(created.ID, 10))
	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(created))
}

// GetTask handles GET /tasks/{id} requests.
// A missing task is a 404 with an empty body.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	task, err := h.taskService.GetTaskByID(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(task))
}

// ListTasks handles GET /tasks?user_id=&from=&to= requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDQuery(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	from, err := getTimeQuery(r, "from", domain.MinTime)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	to, err := getTimeQuery(r, "to", domain.MaxTime)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	tasks, err := h.taskService.GetTasks(r.Context(), from, to, userID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// UpdateTask handles PUT /tasks/{id} requests.
// The id in the path wins over anything in the body.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	var req UpdateTaskRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	err = h.taskService.UpdateTask(r.Context(), &domain.Task{
		ID:     id,
		Title:  req.Title,
		Status: domain.TaskStatus(req.Status),
	})
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), id); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CountActiveTasks handles GET /tasks/active/count?user_id= requests.
// The body is a bare JSON integer.
func (h *TaskHandler) CountActiveTasks(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDQuery(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	count, err := h.taskService.CountActiveTasks(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, count)
}

// decodeAndValidate writes a 400 and returns false when the body is
// malformed or fails validation.
func (h *TaskHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if err := shared.DecodeJSON(r, v); err != nil {
		log.Debug("invalid request format", slog.String("error", redact.Error(err)))
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return false
	}
	if err := shared.ValidateRequest(v); err != nil {
		HandleAPIError(w, r, err)
		return false
	}
	return true
}
