package handler

import (
	"log/slog"
	"net/http"
	"strconv"
)

const recentResponsesDefault = 10

// requireAdmin guards the analytics endpoints with HTTP basic auth. The
// password hash lives in store metadata; an unset password locks the
// endpoints entirely.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, password, ok := r.BasicAuth()
		if !ok {
			h.unauthorized(w, r)
			return
		}
		match, err := h.store.CheckAdminPassword(password)
		if err != nil {
			slog.Error("check admin password", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
			return
		}
		if !match {
			h.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Basic realm="learnchat admin"`)
	h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "ErrUnauthorized")
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats()
	if err != nil {
		slog.Error("load stats", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRecentResponses(w http.ResponseWriter, r *http.Request) {
	limit := recentResponsesDefault
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 1000 {
			h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
			return
		}
		limit = n
	}

	records, err := h.store.RecentResponses(limit)
	if err != nil {
		slog.Error("load recent responses", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"responses": records})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exports, err := h.store.ExportResponses()
	if err != nil {
		slog.Error("export responses", "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="responses.json"`)
	writeJSON(w, http.StatusOK, map[string]any{"sessions": exports})
}
