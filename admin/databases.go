package admin

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maxpert/powder/db"
)

// handleListDatabases handles GET /admin/databases
func (h *AdminHandlers) handleListDatabases(w http.ResponseWriter, r *http.Request) {
	databases, err := h.engine.Catalog().Databases(r.Context(), nil)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(databases))
	for _, d := range databases {
		schemas, err := h.engine.Catalog().Schemas(r.Context(), d.Name, nil)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		result = append(result, map[string]interface{}{
			"name":       d.Name,
			"created_on": d.CreatedOn.UTC().Format(time.RFC3339),
			"schemas":    len(schemas),
		})
	}

	writeJSONResponse(w, result, false)
}

// handleListSchemas handles GET /admin/databases/{database}/schemas
func (h *AdminHandlers) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	database := chi.URLParam(r, "database")
	if database == "" {
		writeErrorResponse(w, http.StatusBadRequest, "database name is required")
		return
	}

	ok, err := h.engine.Catalog().DatabaseExists(r.Context(), database)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "database '"+database+"' not found")
		return
	}

	schemas, err := h.engine.Catalog().Schemas(r.Context(), database, nil)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	result := make([]map[string]interface{}, 0, len(schemas))
	for _, s := range schemas {
		objects, err := h.engine.Catalog().Objects(r.Context(), database, s.Name, "", nil)
		if err != nil {
			writeErrorResponse(w, http.StatusInternalServerError, err.Error())
			return
		}
		tables, views := 0, 0
		for _, o := range objects {
			if o.Kind == db.KindView {
				views++
			} else {
				tables++
			}
		}
		result = append(result, map[string]interface{}{
			"name":       s.Name,
			"created_on": s.CreatedOn.UTC().Format(time.RFC3339),
			"tables":     tables,
			"views":      views,
		})
	}

	writeJSONResponse(w, result, false)
}

// engineFileInfo reports the engine file size, or nothing for a missing
// file.
func (h *AdminHandlers) engineFileInfo() map[string]interface{} {
	stat, err := os.Stat(h.engine.Path())
	if err != nil {
		return nil
	}
	return map[string]interface{}{
		"path":          h.engine.Path(),
		"file_size":     stat.Size(),
		"last_modified": stat.ModTime().Format(time.RFC3339),
	}
}
