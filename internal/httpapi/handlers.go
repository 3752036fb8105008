package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/mfenderov/multichat/internal/apiclient"
	"github.com/mfenderov/multichat/internal/chat"
	"github.com/mfenderov/multichat/internal/ratelimit"
	"github.com/mfenderov/multichat/internal/scan"
	"github.com/mfenderov/multichat/pkg/models"
)

// Handler holds route handlers.
type Handler struct {
	deps   Deps
	config Config
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ask handles POST /ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	body := http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, AskResponse{Message: "Invalid request body."})
		return
	}

	ctx := chat.WithAcceptLanguage(r.Context(), r.Header.Get("Accept-Language"))
	res, err := h.deps.Chat.Ask(ctx, chat.Request{
		Message:  req.Message,
		Language: req.Language,
		Identity: ratelimit.Identity(r, h.config.UserHeader),
	})
	if err != nil {
		var chatErr *chat.Error
		if !errors.As(err, &chatErr) {
			slog.Error("chat request failed", "request_id", middleware.GetReqID(ctx), "error", err)
			writeJSON(w, http.StatusInternalServerError, AskResponse{Message: apiclient.GenericMessage})
			return
		}
		if chatErr.Status >= 500 {
			slog.Error("chat request failed", "request_id", middleware.GetReqID(ctx), "kind", chatErr.Kind, "error", err)
		}
		if chatErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(chatErr.RetryAfter))
		}
		writeJSON(w, chatErr.Status, AskResponse{Message: chatErr.Message})
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{Success: true, Message: res.Message})
}

func validateScanRequest(req scan.Request) error {
	return validation.ValidateStruct(&req,
		validation.Field(&req.SitemapURL, is.URL),
		validation.Field(&req.Language, validation.Length(2, 8)),
	)
}

// Scan handles POST /admin/scan. The body is optional.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scan.Request
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
			return
		}
	}
	if err := validateScanRequest(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	res, err := h.deps.Scans.Run(r.Context(), req)
	switch {
	case errors.Is(err, scan.ErrNoSitemap):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, scan.ErrInProgress):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case err != nil:
		slog.Error("scan failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// KnowledgeStatus is the body of GET /admin/knowledge.
type KnowledgeStatus struct {
	Language   string                  `json:"language"`
	Metadata   models.SnapshotMetadata `json:"metadata"`
	SourceURLs []models.SourceRef      `json:"source_urls"`
	Age        string                  `json:"age"`
}

func (h *Handler) language(r *http.Request) string {
	if lang := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("language"))); lang != "" {
		return lang
	}
	return h.config.DefaultLanguage
}

// KnowledgeStatus handles GET /admin/knowledge?language=.
func (h *Handler) KnowledgeStatus(w http.ResponseWriter, r *http.Request) {
	language := h.language(r)
	snap, ok, err := h.deps.Knowledge.Load(r.Context(), language)
	if err != nil {
		slog.Error("failed to load knowledge base", "language", language, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to load knowledge base"))
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("no knowledge base cached for "+language))
		return
	}

	writeJSON(w, http.StatusOK, KnowledgeStatus{
		Language:   language,
		Metadata:   snap.Metadata,
		SourceURLs: snap.SourceURLs,
		Age:        time.Since(snap.Metadata.ScannedAt).Round(time.Second).String(),
	})
}

// ClearResponses handles DELETE /admin/cache/responses.
func (h *Handler) ClearResponses(w http.ResponseWriter, r *http.Request) {
	n, err := h.deps.Responses.ClearCache(r.Context())
	if err != nil {
		slog.Error("failed to clear response cache", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to clear response cache"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// ClearKnowledge handles DELETE /admin/cache/knowledge. Without a language
// query parameter every snapshot is removed.
func (h *Handler) ClearKnowledge(w http.ResponseWriter, r *http.Request) {
	language := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("language")))
	n, err := h.deps.Knowledge.Clear(r.Context(), language)
	if err != nil {
		slog.Error("failed to clear knowledge base", "language", language, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to clear knowledge base"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}
