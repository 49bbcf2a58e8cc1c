package api

import (
	"net/http"

	"github.com/okian/aquascan/internal/domain/labels"
)

// StatusHandler reports the connection to the remote models.
type StatusHandler struct {
	deps Dependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps Dependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

// HandleStatus handles GET /api/v1/status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.deps.Status())
}

// LabelsHandler serves the species table.
type LabelsHandler struct {
	deps Dependencies
}

// NewLabelsHandler creates a new labels handler.
func NewLabelsHandler(deps Dependencies) *LabelsHandler {
	return &LabelsHandler{deps: deps}
}

type labelsResponse struct {
	Count  int            `json:"count"`
	Labels []labels.Label `json:"labels"`
}

// HandleLabels handles GET /api/v1/labels requests.
func (h *LabelsHandler) HandleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	all := h.deps.Labels()
	writeJSON(w, http.StatusOK, labelsResponse{Count: len(all), Labels: all})
}
