package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxpert/powder/protocol"
)

// handleListQueries handles GET /admin/queries. Running queries come first,
// followed by the most recent history records when history is enabled.
func (h *AdminHandlers) handleListQueries(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	running := h.server.Queries().Running()
	runningInfo := make([]protocol.QueryInfo, 0, len(running))
	for _, q := range running {
		runningInfo = append(runningInfo, q.Info())
	}

	response := map[string]interface{}{
		"running": runningInfo,
	}

	if history := h.server.History(); history != nil && r.URL.Query().Get("status") != "running" {
		recent, err := history.Recent(limit)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		response["recent"] = recent
	}

	writeJSONResponse(w, response, false)
}

// handleGetQuery handles GET /admin/queries/{queryID}
func (h *AdminHandlers) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	if q, err := h.server.Queries().Get(queryID); err == nil {
		writeJSONResponse(w, q.Info(), false)
		return
	}

	if history := h.server.History(); history != nil {
		rec, err := history.Get(queryID)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		if rec != nil {
			writeJSONResponse(w, rec, false)
			return
		}
	}

	writeErrorResponse(w, http.StatusNotFound, "query not found")
}

// handleAbortQuery handles POST /admin/queries/{queryID}/abort
func (h *AdminHandlers) handleAbortQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryID")

	err := h.server.AbortQuery(queryID)
	if errors.Is(err, protocol.ErrQueryNotFound) {
		writeErrorResponse(w, http.StatusNotFound, "query not found")
		return
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, map[string]interface{}{
		"id":      queryID,
		"aborted": true,
	}, false)
}
