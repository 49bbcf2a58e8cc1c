package api

import "net/http"

// StatsProvider reports service counters for /stats: connection state,
// analyses served and failed, label table size.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler returns a handler over provider. A nil provider yields an
// empty object.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats writes the provider's snapshot as JSON.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats := map[string]interface{}{}
	if h.provider != nil {
		if s := h.provider.GetStats(); s != nil {
			stats = s
		}
	}
	writeJSON(w, http.StatusOK, stats)
}
