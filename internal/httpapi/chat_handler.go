package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mindatlas/backend/internal/chat"
	"github.com/mindatlas/backend/internal/model"
	"github.com/mindatlas/backend/internal/skill"
)

// ConversationCreator is the slice of ConversationRepo the chat handler
// needs to start a new conversation.
type ConversationCreator interface {
	Create(ctx context.Context) (*model.Conversation, error)
}

type chatHandler struct {
	runner        *chat.Runner
	conversations ConversationCreator
	log           zerolog.Logger
}

func (h *chatHandler) create(w http.ResponseWriter, r *http.Request) {
	conv, err := h.conversations.Create(r.Context())
	if err != nil {
		writeErr(w, h.log, err)
		return
	}
	writeData(w, h.log, http.StatusCreated, conv)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// sendMessage streams one chat turn's SSE events.
func (h *chatHandler) sendMessage(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	convID, err := uuid.Parse(idStr)
	if err != nil {
		writeErr(w, h.log, model.NewValidationError("id", "not a valid conversation id"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, h.log, model.NewValidationError("content", "invalid request body"))
		return
	}
	if req.Content == "" {
		writeErr(w, h.log, model.NewValidationError("content", "must not be empty"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErr(w, h.log, fmt.Errorf("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emit := func(evt skill.Event) {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			payload = []byte(`{}`)
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, payload)
		flusher.Flush()
	}

	if _, err := h.runner.Turn(r.Context(), convID, req.Content, emit); err != nil {
		h.log.Error().Err(err).Str("conversation_id", idStr).Msg("chat turn failed")
	}
}
