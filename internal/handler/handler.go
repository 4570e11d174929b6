// Package handler implements the HTTP API: the streaming chat endpoint,
// response logging, session-context persistence and the admin analytics
// surface.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/learnchat/learnchat/internal/block"
	appI18n "github.com/learnchat/learnchat/internal/i18n"
	"github.com/learnchat/learnchat/internal/llm"
	"github.com/learnchat/learnchat/internal/model"
	"github.com/learnchat/learnchat/internal/store"
)

const maxRequestBody = 1 << 20 // 1 MiB

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatService runs one chat turn and streams text deltas. *llm.Client is
// the production implementation.
type ChatService interface {
	RunTurn(ctx context.Context, messages []model.ChatMessage, excludeIDs []string, onDelta func(string) error) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store *store.Store
	chat  ChatService
}

// New creates a new Handler.
func New(s *store.Store, chat ChatService) *Handler {
	return &Handler{store: s, chat: chat}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/chat", h.handleChat)
	r.Post("/api/responses", h.handleLogResponse)
	r.Get("/api/context/{sessionID}", h.handleGetContext)
	r.Put("/api/context/{sessionID}", h.handlePutContext)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/api/stats", h.handleStats)
		r.Get("/api/responses/recent", h.handleRecentResponses)
		r.Get("/api/export", h.handleExport)
	})
}

type chatRequest struct {
	SessionID string              `json:"session_id"`
	Messages  []model.ChatMessage `json:"messages" validate:"required,min=1,dive"`
}

// handleChat resolves one chat turn and streams the answer as SSE text
// events. Failures before the first byte is streamed become JSON errors
// with a classified code; failures mid-stream become an error event on the
// stream itself.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	var excludeIDs []string
	if req.SessionID != "" {
		ids, err := h.store.SeenItemIDs(req.SessionID)
		if err != nil {
			slog.Error("load seen item ids", "session", req.SessionID, "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
			return
		}
		excludeIDs = ids
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}

	streaming := false
	startStream := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		streaming = true
	}

	var answer strings.Builder
	onDelta := func(text string) error {
		if !streaming {
			startStream()
		}
		answer.WriteString(text)
		return writeEvent(w, flusher, sseEvent{Type: "text", Content: text})
	}

	ctx := model.ContextWithSessionID(r.Context(), req.SessionID)
	err := h.chat.RunTurn(ctx, req.Messages, excludeIDs, onDelta)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing left to write.
			return
		}

		var cerr *llm.ClassifiedError
		if !errors.As(err, &cerr) {
			cerr = llm.Classify(err)
		}
		slog.Error("chat turn failed", "session", req.SessionID, "kind", cerr.Kind, "error", err)

		if streaming {
			msg := appI18n.T(r.Context(), messageKey(cerr.Kind))
			_ = writeEvent(w, flusher, sseEvent{Type: "error", Code: string(cerr.Kind), Error: msg})
			return
		}
		h.writeError(w, r, cerr.Status, string(cerr.Kind), messageKey(cerr.Kind))
		return
	}

	// Clients do their own rendering of the raw text; the parse here is
	// for diagnostics only (malformed blocks are logged, never surfaced).
	parsed := block.ParseMessage(answer.String())
	if len(parsed.Items) > 0 || len(parsed.Artifacts) > 0 || len(parsed.Links) > 0 || len(parsed.InvalidBlocks) > 0 {
		slog.Debug("answer blocks",
			"session", req.SessionID,
			"items", len(parsed.Items),
			"artifacts", len(parsed.Artifacts),
			"links", len(parsed.Links),
			"invalid", len(parsed.InvalidBlocks),
		)
	}

	if !streaming {
		startStream()
	}
	_ = writeEvent(w, flusher, sseEvent{Type: "done"})
}

type sseEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeEvent(w io.Writer, flusher http.Flusher, ev sseEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// messageKey maps an error classification to its locale message id.
func messageKey(kind llm.Kind) string {
	switch kind {
	case llm.KindMissingAPIKey:
		return "ErrMissingAPIKey"
	case llm.KindInvalidAPIKey:
		return "ErrInvalidAPIKey"
	case llm.KindRateLimited:
		return "ErrRateLimited"
	case llm.KindOverloaded:
		return "ErrOverloaded"
	case llm.KindNetwork:
		return "ErrNetwork"
	default:
		return "ErrInternal"
	}
}

// logResponseRequest is the union payload of the response log endpoint:
// either an answer event or a generated item.
type logResponseRequest struct {
	Type      string          `json:"type,omitempty"` // "" (response) or "generated_item"
	SessionID string          `json:"session_id" validate:"required"`
	ItemID    string          `json:"item_id" validate:"required"`
	Selected  string          `json:"selected,omitempty"`
	Correct   string          `json:"correct,omitempty"`
	LatencyMS int64           `json:"latency_ms,omitempty" validate:"omitempty,min=0"`
	Item      json.RawMessage `json:"item,omitempty"`
}

func (h *Handler) handleLogResponse(w http.ResponseWriter, r *http.Request) {
	var req logResponseRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	switch req.Type {
	case "generated_item":
		if len(req.Item) == 0 {
			h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
			return
		}
		id, err := h.store.LogGeneratedItem(model.GeneratedItem{
			SessionID: req.SessionID,
			ItemID:    req.ItemID,
			Data:      req.Item,
		})
		if err != nil {
			slog.Error("log generated item", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})

	case "":
		if req.Selected == "" || req.Correct == "" {
			h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
			return
		}
		// is_correct is derived here, never taken from the client.
		rec := model.NewResponseRecord(req.SessionID, req.ItemID, req.Selected, req.Correct, req.LatencyMS)
		id, err := h.store.LogResponse(rec)
		if err != nil {
			slog.Error("log response", "error", err)
			h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "is_correct": rec.IsCorrect})

	default:
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
	}
}

func (h *Handler) handleGetContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	doc, err := h.store.GetSessionContext(sessionID)
	if err != nil {
		slog.Error("get session context", "session", sessionID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}
	if doc == nil {
		writeJSON(w, http.StatusOK, map[string]any{"context": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": doc})
}

func (h *Handler) handlePutContext(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
		return
	}
	if !json.Valid(body) {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
		return
	}

	if err := h.store.SaveSessionContext(sessionID, body); err != nil {
		slog.Error("save session context", "session", sessionID, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "internal", "ErrInternal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// decodeJSON reads, decodes and schema-validates a request body. It writes
// the error response itself and reports whether decoding succeeded.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	body := io.LimitReader(r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
		return false
	}
	if err := validate.Struct(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "bad_request", "ErrBadRequest")
		return false
	}
	return true
}

// writeError sends a JSON error with a stable code and a localized message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, msgKey string) {
	writeJSON(w, status, map[string]string{
		"code":  code,
		"error": appI18n.T(r.Context(), msgKey),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
