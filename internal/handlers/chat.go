package handlers

import (
	"context"
	"log"
	"net/http"

	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/services"
	"chatgate-backend/internal/uistream"
)

// maxChatBodyBytes leaves room for inline image attachments.
const maxChatBodyBytes = 10 << 20

type chatService interface {
	Configured() bool
	Stream(ctx context.Context, turn models.ChatTurn, sink uistream.Sink) error
}

type ChatHandler struct {
	chat chatService
}

func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Chat handles POST /api/chat and streams the answer as a UI message stream.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	// Checked before the body so a misconfigured server always answers 500
	if !h.chat.Configured() {
		handleServiceError(w, r, services.ErrMissingAPIKey)
		return
	}

	turn, err := services.ParseChatRequest(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	turn.RequestID = r.Header.Get(middleware.RequestIDHeader)

	sink, err := uistream.NewSSESink(w)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Streaming is not supported", r))
		return
	}

	if err := h.chat.Stream(r.Context(), turn, sink); err != nil {
		log.Printf("Chat request %s ended with error: %v", turn.RequestID, err)
	}
}
