package admin

import "net/http"

// handleHealth handles GET /admin/health
func (h *AdminHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := h.engine.Query(r.Context(), "SELECT 1", true); err != nil {
		writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	active, running := h.server.SessionStats()
	response := map[string]interface{}{
		"healthy": true,
		"stats": map[string]interface{}{
			"sessions":        active,
			"running_queries": running,
		},
	}

	writeJSONResponse(w, response, false)
}

// handleStats handles GET /admin/stats
func (h *AdminHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	active, running := h.server.SessionStats()
	open, inUse := h.engine.PoolStats()

	response := map[string]interface{}{
		"sessions":            active,
		"running_queries":     running,
		"engine_open_conns":   open,
		"engine_conns_in_use": inUse,
		"history_enabled":     h.server.History() != nil,
	}
	if file := h.engineFileInfo(); file != nil {
		response["engine_file"] = file
	}

	writeJSONResponse(w, response, false)
}
