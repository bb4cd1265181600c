package admin

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maxpert/powder/protocol"
)

// handleListSessions handles GET /admin/sessions
func (h *AdminHandlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions := h.server.Sessions().List()
	hasMore := len(sessions) > limit
	if hasMore {
		sessions = sessions[:limit]
	}

	result := make([]protocol.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		result = append(result, s.Info())
	}

	writeJSONResponse(w, result, hasMore)
}

// handleGetSession handles GET /admin/sessions/{sessionID}
func (h *AdminHandlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromPath(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, s.Info(), false)
}

// handleCloseSession handles DELETE /admin/sessions/{sessionID}. A running
// query of the session is aborted.
func (h *AdminHandlers) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionFromPath(w, r)
	if !ok {
		return
	}
	h.server.CloseSession(s, "admin")

	writeJSONResponse(w, map[string]interface{}{
		"id":     s.ID,
		"closed": true,
	}, false)
}

func (h *AdminHandlers) sessionFromPath(w http.ResponseWriter, r *http.Request) (*protocol.Session, bool) {
	id, err := parseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	s, err := h.server.Sessions().ByID(id)
	if errors.Is(err, protocol.ErrSessionNotFound) {
		writeErrorResponse(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return s, true
}
