package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, msg string) {
	writeJSON(w, logger, r, status, ErrorResponseDTO{Error: msg})
}

func int64Param(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
