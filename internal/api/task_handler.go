package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/goalq/internal/api/shared"
	"github.com/phrazzld/goalq/internal/domain"
	"github.com/phrazzld/goalq/internal/platform/logger"
	"github.com/phrazzld/goalq/internal/service"
)

// TaskHandler handles the /tasks endpoints.
type TaskHandler struct {
	taskService service.TaskService
	validator   *validator.Validate
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(taskService service.TaskService) *TaskHandler {
	return &TaskHandler{
		taskService: taskService,
		validator:   shared.NewValidator(),
	}
}

// SubmitTask handles POST /tasks.
func (h *TaskHandler) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrBodyTooLarge) {
			HandleAPIError(w, r, err, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.Submit(r.Context(), service.SubmitRequest{
		ID:       req.ID,
		Goal:     req.Goal,
		MaxSteps: req.MaxSteps,
	})
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	logger.FromContext(r.Context()).Debug("task accepted", slog.String("task_id", task.ID))
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+task.ID)
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ListTasks handles GET /tasks?status=&limit=. The response is always a
// JSON array, empty when nothing matches.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryLimit(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.taskService.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// CancelTask handles DELETE /tasks/{id}. A task that is already processing
// or finished yields 409 with its current state in the message.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathTaskID(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.taskService.Cancel(r.Context(), id)
	if errors.Is(err, service.ErrCancelTooLate) && task != nil {
		HandleAPIError(w, r, err, "Task is "+string(task.State)+" and can no longer be cancelled")
		return
	}
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CancelTaskResponse{ID: task.ID, State: task.State})
}
