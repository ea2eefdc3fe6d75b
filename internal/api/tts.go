package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// TTSHandler acknowledges text-to-speech requests. Audio is synthesized by
// the browser's speech API; the server only validates and echoes the text.
type TTSHandler struct {
	maxBodySize int64
}

// NewTTSHandler creates a TTS handler.
func NewTTSHandler(maxBodySize int64) *TTSHandler {
	return &TTSHandler{maxBodySize: maxBodySize}
}

type ttsRequest struct {
	Text string `json:"text"`
}

type ttsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

// Speak handles POST /api/tts.
func (h *TTSHandler) Speak(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if status, err := decodeJSON(w, r, h.maxBodySize, &req); err != nil {
		Error(w, status, err.Error())
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		Error(w, http.StatusBadRequest, "text is required")
		return
	}
	JSON(w, http.StatusOK, ttsResponse{
		Success: true,
		Message: "Use Web Speech API on frontend",
		Text:    text,
	})
}

// RegisterRoutes registers the TTS route.
func (h *TTSHandler) RegisterRoutes(r chi.Router) {
	r.Post("/tts", h.Speak)
}
