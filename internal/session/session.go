// Package session holds the single in-memory chat session: the transcript and the streaming status
// that gates user input. All state changes go through the transition methods on Session.
package session

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/OmChillure/streamchat/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrEmptyInput is returned by Submit when the input is blank.
	ErrEmptyInput = errors.New("input is empty")
	// ErrStreaming is returned by Submit while a response is still being generated.
	ErrStreaming = errors.New("a response is already streaming")
	// ErrNotStreaming is returned when a token or finish arrives for a message that is not streaming.
	ErrNotStreaming = errors.New("message is not streaming")
	// ErrMessageNotFound is returned when the message id is not part of the transcript.
	ErrMessageNotFound = errors.New("message not found")
)

// Turn is the pair of messages created by a successful Submit.
type Turn struct {
	User      models.Message
	Assistant models.Message
}

// Session is the explicit state container for the chat transcript. It is safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	messages    []models.Message
	status      models.Status
	streamingID string
	cancel      context.CancelFunc

	now func() time.Time
}

// New creates an idle session with an empty transcript.
func New() *Session {
	return &Session{
		status: models.StatusIdle,
		now:    time.Now,
	}
}

// Submit appends the user's input and an empty assistant message, and moves the session from idle to
// streaming. The returned context is derived from parent and is cancelled by Reset; the streaming
// goroutine should use it for the model request.
func (s *Session) Submit(parent context.Context, input string) (context.Context, Turn, error) {
	if strings.TrimSpace(input) == "" {
		return nil, Turn{}, ErrEmptyInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == models.StatusStreaming {
		return nil, Turn{}, ErrStreaming
	}

	now := s.now()
	turn := Turn{
		User: models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleUser,
			Content:   input,
			Timestamp: now,
		},
		Assistant: models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Timestamp: now,
		},
	}
	s.messages = append(s.messages, turn.User, turn.Assistant)

	ctx, cancel := context.WithCancel(parent)
	s.status = models.StatusStreaming
	s.streamingID = turn.Assistant.ID
	s.cancel = cancel

	return ctx, turn, nil
}

// Append grows the content of the streaming assistant message by token and returns the updated message.
func (s *Session) Append(id, token string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Message{}, ErrMessageNotFound
	}
	if s.status != models.StatusStreaming || s.streamingID != id {
		return models.Message{}, ErrNotStreaming
	}

	s.messages[idx].Content += token
	return s.messages[idx], nil
}

// Finish ends the stream of message id and moves the session back to idle.
func (s *Session) Finish(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return ErrMessageNotFound
	}
	if s.status != models.StatusStreaming || s.streamingID != id {
		return ErrNotStreaming
	}

	s.cancel()
	s.status = models.StatusIdle
	s.streamingID = ""
	s.cancel = nil
	return nil
}

// Reset cancels any in-flight stream, drops the transcript and returns the session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.messages = nil
	s.status = models.StatusIdle
	s.streamingID = ""
	s.cancel = nil
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.messages)
}

// Message returns the message with the given id.
func (s *Session) Message(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return models.Message{}, false
	}
	return s.messages[idx], true
}

// Status returns the current streaming status.
func (s *Session) Status() models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// StreamingID returns the id of the assistant message being streamed, or an empty string when idle.
func (s *Session) StreamingID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.streamingID
}

func (s *Session) indexOf(id string) int {
	return slices.IndexFunc(s.messages, func(m models.Message) bool { return m.ID == id })
}
