package http

import (
	"context"
	"net/http"

	"github.com/pricescout/pricescout/internal/domain/task"
)

const maxBodyBytes = 4 << 10

// TaskService is the slice of the service layer the handlers need.
type TaskService interface {
	Create(ctx context.Context, query, country string) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
}

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	Tasks TaskService
}

type createTaskRequest struct {
	Query   string `json:"query"`
	Country string `json:"country"`
}

type createTaskResponse struct {
	TaskID string `json:"task_id"`
}

// statusResponse is the poll reply. Data is null while pending, the
// listings array when completed, and the failure reason when failed.
type statusResponse struct {
	Status task.Status `json:"status"`
	Data   any         `json:"data"`
}

// CreateTask accepts a search request and replies 202 with the task ID.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createTaskRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}

	t, err := h.Tasks.Create(r.Context(), req.Query, req.Country)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}

	writeJSON(w, http.StatusAccepted, createTaskResponse{TaskID: t.ID})
}

// GetTask reports the current state of a task.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")

	t, err := h.Tasks.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}

	resp := statusResponse{Status: t.Status}
	switch t.Status {
	case task.StatusCompleted:
		listings := t.Listings
		if listings == nil {
			listings = []task.Listing{}
		}
		resp.Data = listings
	case task.StatusFailed:
		resp.Data = t.Error
	}

	writeJSON(w, http.StatusOK, resp)
}
