package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/autobahn/moderation/internal/admin_api_service/middleware"
	"github.com/autobahn/moderation/internal/banlist_service/app"
	"github.com/autobahn/moderation/internal/banlist_service/domain"
)

// maxImportBytes bounds an uploaded CSV.
const maxImportBytes = 64 << 20

type BanService interface {
	GlobalBan(ctx context.Context, id int64, reason, message string) (*domain.BannedUser, error)
	GlobalUnban(ctx context.Context, id int64) (bool, error)
	Lookup(ctx context.Context, ids []int64) ([]domain.BannedUser, error)
	CountReason(ctx context.Context, reason string) (int64, error)
	TotalCount(ctx context.Context) (int64, error)
}

type SyncService interface {
	Import(ctx context.Context, r io.Reader) (*app.ImportResult, error)
	Export(ctx context.Context, w io.Writer, diff []int64) error
	ExportDiff(ctx context.Context, w io.Writer, other io.Reader) error
}

type BanlistHandler struct {
	bans     BanService
	sync     SyncService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewBanlistHandler(bans BanService, sync SyncService, logger *slog.Logger, validate *validator.Validate) *BanlistHandler {
	return &BanlistHandler{bans: bans, sync: sync, logger: logger.With("component", "banlist_handler"), validate: validate}
}

func (h *BanlistHandler) Routes(r chi.Router) {
	r.Get("/bans", h.Lookup)
	r.Get("/bans/count", h.Count)
	r.Post("/bans", h.GlobalBan)
	r.Delete("/bans/{userID}", h.GlobalUnban)
	r.Post("/banlist/import", h.Import)
	r.Get("/banlist/export", h.Export)
	r.Post("/banlist/export/diff", h.ExportDiff)
}

func banStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAutomatedBan):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Lookup takes ?ids=1,2,3 and returns the banned users among them.
func (h *BanlistHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var ids []int64
	for _, part := range strings.Split(r.URL.Query().Get("ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := domain.ParseUserID(part)
		if err != nil {
			writeError(w, h.logger, r, http.StatusBadRequest, err.Error())
			return
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeError(w, h.logger, r, http.StatusBadRequest, "ids query parameter required")
		return
	}

	users, err := h.bans.Lookup(r.Context(), ids)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Ban lookup failed", "error", err)
		writeError(w, h.logger, r, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []domain.BannedUser{}
	}
	writeJSON(w, h.logger, r, http.StatusOK, users)
}

// Count returns the total, or the count for ?reason= when given.
func (h *BanlistHandler) Count(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reason := r.URL.Query().Get("reason")
	var (
		n   int64
		err error
	)
	if reason != "" {
		n, err = h.bans.CountReason(ctx, reason)
	} else {
		n, err = h.bans.TotalCount(ctx)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Ban count failed", "error", err)
		writeError(w, h.logger, r, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, CountResponseDTO{Reason: reason, Count: n})
}

func (h *BanlistHandler) GlobalBan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	if op, ok := middleware.OperatorFrom(ctx); ok {
		logger = logger.With("operator", op.Subject)
	}

	var reqDTO GlobalBanRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(ctx, reqDTO); err != nil {
		writeError(w, logger, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	user, err := h.bans.GlobalBan(ctx, reqDTO.UserID, reqDTO.Reason, reqDTO.Message)
	if err != nil {
		logger.WarnContext(ctx, "Global ban refused", "user_id", reqDTO.UserID, "error", err)
		writeError(w, logger, r, banStatus(err), err.Error())
		return
	}
	logger.InfoContext(ctx, "Global ban issued", "user_id", user.ID, "reason", user.Reason)
	writeJSON(w, logger, r, http.StatusCreated, user)
}

func (h *BanlistHandler) GlobalUnban(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := int64Param(r, "userID")
	if err != nil || id <= 0 {
		writeError(w, h.logger, r, http.StatusBadRequest, "invalid user id")
		return
	}
	removed, err := h.bans.GlobalUnban(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "Global unban failed", "user_id", id, "error", err)
		writeError(w, h.logger, r, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if !removed {
		status = http.StatusNotFound
	}
	writeJSON(w, h.logger, r, status, UnbanResponseDTO{UserID: id, Removed: removed})
}

func (h *BanlistHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.sync.Import(ctx, http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.logger.ErrorContext(ctx, "Banlist import failed", "error", err)
		writeError(w, h.logger, r, banStatus(err), err.Error())
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, result)
}

// Export streams the registry as CSV. ?exclude=1,2 narrows it to a diff.
func (h *BanlistHandler) Export(w http.ResponseWriter, r *http.Request) {
	var diff []int64
	if raw := r.URL.Query().Get("exclude"); raw != "" {
		diff = []int64{}
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				writeError(w, h.logger, r, http.StatusBadRequest, "invalid id in exclude: "+part)
				return
			}
			diff = append(diff, id)
		}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="banlist.csv"`)
	if err := h.sync.Export(r.Context(), w, diff); err != nil {
		h.logger.ErrorContext(r.Context(), "Banlist export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
	}
}

// ExportDiff answers with the users missing from the uploaded CSV.
func (h *BanlistHandler) ExportDiff(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="banlist_diff.csv"`)
	if err := h.sync.ExportDiff(r.Context(), w, http.MaxBytesReader(w, r.Body, maxImportBytes)); err != nil {
		h.logger.ErrorContext(r.Context(), "Banlist diff export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
	}
}
