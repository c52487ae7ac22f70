package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/autobahn/moderation/internal/chat_service/domain"
)

type TagEditor interface {
	TagsFor(ctx context.Context, chatID int64) (map[string]string, error)
	SetTag(ctx context.Context, chatID int64, name, value string) (map[string]string, error)
	RemoveTag(ctx context.Context, chatID int64, name string) (map[string]string, error)
}

type ChatHandler struct {
	tags     TagEditor
	logger   *slog.Logger
	validate *validator.Validate
}

func NewChatHandler(tags TagEditor, logger *slog.Logger, validate *validator.Validate) *ChatHandler {
	return &ChatHandler{tags: tags, logger: logger.With("component", "chat_handler"), validate: validate}
}

func (h *ChatHandler) Routes(r chi.Router) {
	r.Get("/chats/{chatID}/tags", h.Get)
	r.Put("/chats/{chatID}/tags/{name}", h.Set)
	r.Delete("/chats/{chatID}/tags/{name}", h.Remove)
}

func (h *ChatHandler) respond(w http.ResponseWriter, r *http.Request, tags map[string]string, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidInput) {
			status = http.StatusBadRequest
		}
		h.logger.ErrorContext(r.Context(), "Chat tag request failed", "error", err)
		writeError(w, h.logger, r, status, err.Error())
		return
	}
	writeJSON(w, h.logger, r, http.StatusOK, tags)
}

func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	chatID, err := int64Param(r, "chatID")
	if err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, "invalid chat id")
		return
	}
	tags, err := h.tags.TagsFor(r.Context(), chatID)
	h.respond(w, r, tags, err)
}

func (h *ChatHandler) Set(w http.ResponseWriter, r *http.Request) {
	chatID, err := int64Param(r, "chatID")
	if err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, "invalid chat id")
		return
	}
	var reqDTO SetTagRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&reqDTO); err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validate.StructCtx(r.Context(), reqDTO); err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}
	tags, err := h.tags.SetTag(r.Context(), chatID, chi.URLParam(r, "name"), reqDTO.Value)
	h.respond(w, r, tags, err)
}

func (h *ChatHandler) Remove(w http.ResponseWriter, r *http.Request) {
	chatID, err := int64Param(r, "chatID")
	if err != nil {
		writeError(w, h.logger, r, http.StatusBadRequest, "invalid chat id")
		return
	}
	tags, err := h.tags.RemoveTag(r.Context(), chatID, chi.URLParam(r, "name"))
	h.respond(w, r, tags, err)
}
