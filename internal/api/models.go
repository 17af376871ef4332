package api

import "github.com/phrazzld/goalq/internal/domain"

// SubmitTaskRequest defines the payload for POST /tasks. An absent max_steps
// takes the default; an explicit one, zero included, must be in range. Goal
// length and the max_steps range are checked again by the domain.
type SubmitTaskRequest struct {
	ID       string `json:"id,omitempty" validate:"omitempty,taskid"`
	Goal     string `json:"goal"         validate:"required,max=10000"`
	MaxSteps *int   `json:"max_steps"    validate:"omitempty,gte=1,lte=100"`
}

// CancelTaskResponse is returned by DELETE /tasks/{id}.
type CancelTaskResponse struct {
	ID    string           `json:"id"`
	State domain.TaskState `json:"state"`
}

// HealthResponse is returned by the unauthenticated health probe.
type HealthResponse struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	Dispatcher bool   `json:"dispatcher"`
	Version    string `json:"version,omitempty"`
}
