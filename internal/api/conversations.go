package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/identity"
	"github.com/ashureev/gita-reflect/internal/reflection"
	"github.com/ashureev/gita-reflect/internal/shared"
)

// ConversationHandler serves conversation endpoints.
type ConversationHandler struct {
	svc         *reflection.Service
	limiter     *RateLimiter
	maxBodySize int64
}

// NewConversationHandler creates a conversation handler. A nil limiter
// disables rate limiting.
func NewConversationHandler(svc *reflection.Service, limiter *RateLimiter, maxBodySize int64) *ConversationHandler {
	return &ConversationHandler{svc: svc, limiter: limiter, maxBodySize: maxBodySize}
}

type createConversationRequest struct {
	SessionID string `json:"sessionId"`
}

type submitMessageRequest struct {
	Message string `json:"message"`
}

type aiResponse struct {
	Message         string   `json:"message"`
	Options         []string `json:"options"`
	ShouldShowVerse bool     `json:"shouldShowVerse"`
}

type submitMessageResponse struct {
	Conversation  *domain.Conversation `json:"conversation"`
	AIResponse    aiResponse           `json:"aiResponse"`
	RelevantVerse *domain.Verse        `json:"relevantVerse,omitempty"`
}

// Create handles POST /api/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if status, err := decodeJSON(w, r, h.maxBodySize, &req); err != nil {
		Error(w, status, err.Error())
		return
	}
	if req.SessionID == "" {
		req.SessionID = identity.SessionIDFromRequest(r)
	}

	conv, err := h.svc.Start(r.Context(), req.SessionID)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	slog.InfoContext(r.Context(), "Conversation started", "session_id", conv.SessionID)
	JSON(w, http.StatusOK, conv)
}

// Get handles GET /api/conversations/{sessionId}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Get(r.Context(), identity.SessionIDFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, conv)
}

// SubmitMessage handles POST /api/conversations/{sessionId}/messages.
func (h *ConversationHandler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())

	// Keyed by client IP so clients cannot bypass throttling by rotating
	// session IDs.
	if h.limiter != nil && !h.limiter.Allow(identity.IPFromRequest(r)) {
		slog.WarnContext(r.Context(), "Rate limit exceeded",
			"session_id", sessionID, "remote_ip", identity.IPFromRequest(r))
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req submitMessageRequest
	if status, err := decodeJSON(w, r, h.maxBodySize, &req); err != nil {
		Error(w, status, err.Error())
		return
	}

	res, err := h.svc.SubmitMessage(r.Context(), sessionID, req.Message)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	options := res.Reply.Options
	if options == nil {
		options = []string{}
	}
	JSON(w, http.StatusOK, submitMessageResponse{
		Conversation: res.Conversation,
		AIResponse: aiResponse{
			Message:         res.Reply.Message,
			Options:         options,
			ShouldShowVerse: res.Reply.ShouldShowVerse,
		},
		RelevantVerse: res.Verse,
	})
}

// RegisterRoutes registers conversation routes.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Use(sessionContext)
			r.Get("/", h.Get)
			r.Post("/messages", h.SubmitMessage)
		})
	})
}

// sessionContext validates the {sessionId} path parameter and stores it in
// the request context. A malformed id cannot name a conversation.
func sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionId")
		if !identity.IsValidSessionID(sessionID) {
			WriteError(w, r, shared.NotFound("conversation %q", sessionID))
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithSessionID(r.Context(), sessionID)))
	})
}
