package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/OmChillure/streamchat/internal/models"
	"github.com/OmChillure/streamchat/internal/session"
	"github.com/tmaxmax/go-sse"
)

// SSE event types for real-time updates.
var (
	messagesSSEType     = sse.Type("messages")
	statusSSEType       = sse.Type("status")
	closeMessageSSEType = sse.Type("closeMessage")
	closeChatSSEType    = sse.Type("closeChat")
)

// HandleChats accepts a user message through the "message" form field and starts streaming the assistant's
// response. It responds with the rendered user message followed by the assistant placeholder; the
// placeholder is then kept up to date through Server-Sent Events on the message's topic.
//
// Only one response streams at a time: a submission while the session is streaming is rejected with 409
// Conflict, and blank input with 400 Bad Request.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := r.FormValue("message")

	ctx, turn, err := m.session.Submit(m.ctx, msg)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrEmptyInput):
			http.Error(w, "Message is required", http.StatusBadRequest)
		case errors.Is(err, session.ErrStreaming):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			m.logger.Error("Failed to submit message", slog.String(errLoggerKey, err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// The model sees every message before the empty placeholder it is streaming into.
	messages := m.session.Messages()
	history := messages
	if n := len(messages); n > 0 && messages[n-1].ID == turn.Assistant.ID {
		history = messages[:n-1]
	}

	m.publishStatus(models.StatusStreaming)
	go m.chat(ctx, turn.Assistant.ID, history)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := m.templates.ExecuteTemplate(w, "message", m.renderer.Message(turn.User, false)); err != nil {
		m.logger.Error("Failed to render user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := m.templates.ExecuteTemplate(w, "message", m.renderer.Message(turn.Assistant, true)); err != nil {
		m.logger.Error("Failed to render assistant message", slog.String(errLoggerKey, err.Error()))
	}
}

// chat streams the model response into the assistant message aiID, publishing the re-rendered message
// after every chunk. The session returns to idle when the stream ends, fails or is cancelled.
func (m Main) chat(ctx context.Context, aiID string, history []models.Message) {
	defer func() {
		if err := m.session.Finish(aiID); err != nil {
			// The session was reset while streaming; the message no longer exists.
			m.logger.Debug("Stream ended without finishing", slog.String("messageID", aiID),
				slog.String(errLoggerKey, err.Error()))
		} else if msg, ok := m.session.Message(aiID); ok {
			m.publishMessage(msg, false)
		}
		m.publishStatus(m.session.Status())

		e := &sse.Message{Type: closeMessageSSEType}
		e.AppendData("bye")
		_ = m.sseSrv.Publish(e, messageIDTopic(aiID))
	}()

	for chunk, err := range m.llm.Chat(ctx, history) {
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Error("Error from llm provider", slog.String(errLoggerKey, err.Error()))
			chunk = fmt.Sprintf("\n\nError: %s", err)
		}

		msg, aerr := m.session.Append(aiID, chunk)
		if aerr != nil {
			m.logger.Debug("Dropping chunk", slog.String("messageID", aiID), slog.String(errLoggerKey, aerr.Error()))
			return
		}
		m.publishMessage(msg, err == nil)

		if err != nil {
			return
		}
	}
}

func (m Main) publishMessage(msg models.Message, streaming bool) {
	var sb strings.Builder
	if err := m.templates.ExecuteTemplate(&sb, "message_inner", m.renderer.Message(msg, streaming)); err != nil {
		m.logger.Error("Failed to render message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	e := &sse.Message{Type: messagesSSEType}
	e.AppendData(sb.String())
	if err := m.sseSrv.Publish(e, messageIDTopic(msg.ID)); err != nil {
		m.logger.Error("Failed to publish message",
			slog.String("messageID", msg.ID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishStatus(status models.Status) {
	e := &sse.Message{Type: statusSSEType}
	e.AppendData(string(status))
	if err := m.sseSrv.Publish(e); err != nil {
		m.logger.Error("Failed to publish status", slog.String(errLoggerKey, err.Error()))
	}
}

// HandleMessage renders the current state of a single message. Clients use it to catch up with a stream
// they subscribed to after it started.
func (m Main) HandleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.URL.Query().Get("message_id")
	msg, ok := m.session.Message(id)
	if !ok {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	streaming := m.session.StreamingID() == id
	if err := m.templates.ExecuteTemplate(w, "message_inner", m.renderer.Message(msg, streaming)); err != nil {
		m.logger.Error("Failed to render message",
			slog.String("messageID", id),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
