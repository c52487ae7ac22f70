package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/autobahn/moderation/internal/denylist_service/app"
	"github.com/autobahn/moderation/internal/denylist_service/domain"
)

// DenylistManager is the subset of *app.Manager the handler needs.
type DenylistManager interface {
	Add(ctx context.Context, category domain.Category, tokens []string) (*app.Report, error)
	AddPayload(ctx context.Context, category domain.Category, payload []byte) (*app.Report, error)
	Retire(ctx context.Context, category domain.Category, tokens []string) (*app.RetireReport, error)
	Query(ctx context.Context, category domain.Category, indices []int64) (*app.QueryResult, error)
	Counts(ctx context.Context) ([]app.CategoryCount, error)
}

type DenylistHandler struct {
	manager  DenylistManager
	logger   *slog.Logger
	validate *validator.Validate
}

func NewDenylistHandler(manager DenylistManager, logger *slog.Logger, validate *validator.Validate) *DenylistHandler {
	return &DenylistHandler{manager: manager, logger: logger.With("component", "denylist_handler"), validate: validate}
}

func (h *DenylistHandler) Routes(r chi.Router) {
	r.Get("/denylists", h.Counts)
	r.Get("/denylists/{category}", h.Query)
	r.Post("/denylists/{category}", h.Add)
	r.Post("/denylists/{category}/retire", h.Retire)
}

// denylistStatus maps manager errors to HTTP statuses.
func denylistStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownCategory), errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *DenylistHandler) category(w http.ResponseWriter, r *http.Request) (domain.Category, bool) {
	category, err := domain.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		writeError(w, h.logger, r, http.StatusNotFound, err.Error())
		return 0, false
	}
	return category, true
}

func (h *DenylistHandler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	category, ok := h.category(w, r)
	if !ok {
		return
	}

	var reqDTO AddDenylistRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	var (
		report *app.Report
		err    error
	)
	if category.Binary() {
		report, err = h.manager.AddPayload(ctx, category, reqDTO.Payload)
	} else {
		report, err = h.manager.Add(ctx, category, reqDTO.Items)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Denylist add failed", "category", category.String(), "error", err)
		writeError(w, logger, r, denylistStatus(err), err.Error())
		return
	}
	writeJSON(w, logger, r, http.StatusOK, report)
}

func (h *DenylistHandler) Retire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	category, ok := h.category(w, r)
	if !ok {
		return
	}

	var reqDTO RetireDenylistRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	report, err := h.manager.Retire(ctx, category, reqDTO.Items)
	if err != nil {
		logger.ErrorContext(ctx, "Denylist retire failed", "category", category.String(), "error", err)
		writeError(w, logger, r, denylistStatus(err), err.Error())
		return
	}
	writeJSON(w, logger, r, http.StatusOK, report)
}

// Query accepts ?indices=1,4..9 and otherwise lists the active entries.
func (h *DenylistHandler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category, ok := h.category(w, r)
	if !ok {
		return
	}

	var args []string
	if raw := strings.TrimSpace(r.URL.Query().Get("indices")); raw != "" {
		args = []string{raw}
	}
	indices, err := app.ParseIndices(args)
	if err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.manager.Query(ctx, category, indices)
	if err != nil {
		h.logger.ErrorContext(ctx, "Denylist query failed", "category", category.String(), "error", err)
		writeError(w, h.logger, r, denylistStatus(err), err.Error())
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, result)
}

func (h *DenylistHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.manager.Counts(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Denylist count failed", "error", err)
		writeError(w, h.logger, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, counts)
}
