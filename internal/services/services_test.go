package services_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/OmChillure/streamchat/internal/models"
	"github.com/OmChillure/streamchat/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func history() []models.Message {
	return []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "Write a loop"},
		{ID: "2", Role: models.RoleAssistant, Content: ""},
	}
}

func collect(t *testing.T, seq func(func(string, error) bool)) ([]string, error) {
	t.Helper()
	var chunks []string
	for chunk, err := range seq {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestAnthropicChat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "event: message_start\ndata: {\"type\":\"message_start\"}\n\n"+
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"```py\\n\"}}\n\n"+
			"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"print(1)\"}}\n\n"+
			"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	a := services.NewAnthropic("secret", "claude", "Be brief", 512, srv.URL, discardLogger())

	chunks, err := collect(t, a.Chat(context.Background(), history()))
	require.NoError(t, err)
	assert.Equal(t, []string{"```py\n", "print(1)"}, chunks)

	assert.Equal(t, "Be brief", gotBody["system"])
	assert.Equal(t, true, gotBody["stream"])
	msgs, ok := gotBody["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestAnthropicChat_Error(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "Error event",
			status:  http.StatusOK,
			body:    "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n",
			wantErr: "anthropic error overloaded_error: Overloaded",
		},
		{
			name:    "Bad status",
			status:  http.StatusUnauthorized,
			body:    `{"error":"nope"}`,
			wantErr: "unexpected status code: 401",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			a := services.NewAnthropic("k", "claude", "", 512, srv.URL, discardLogger())

			_, err := collect(t, a.Chat(context.Background(), history()))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnthropicChat_StopEarly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for range 3 {
			_, _ = io.WriteString(w, "event: content_block_delta\ndata: {\"delta\":{\"text\":\"x\"}}\n\n")
		}
	}))
	defer srv.Close()

	a := services.NewAnthropic("k", "claude", "", 512, srv.URL, discardLogger())

	n := 0
	for _, err := range a.Chat(context.Background(), history()) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestOpenRouterChat(t *testing.T) {
	var gotBody struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n"+
			"data: {\"choices\":[]}\n\n"+
			"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n"+
			"data: [DONE]\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenRouter("secret", "meta/llama", "sys", srv.URL, discardLogger())

	chunks, err := collect(t, o.Chat(context.Background(), history()))
	require.NoError(t, err)
	assert.Equal(t, "Hello world", strings.Join(chunks, ""))

	assert.Equal(t, "meta/llama", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, "system", gotBody.Messages[0].Role)
	assert.Equal(t, "Write a loop", gotBody.Messages[1].Content)
}

func TestOpenRouterChat_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"error\":{\"code\":429,\"message\":\"rate limited\"}}\n\n")
	}))
	defer srv.Close()

	o := services.NewOpenRouter("k", "m", "", srv.URL, discardLogger())

	_, err := collect(t, o.Chat(context.Background(), history()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"}}]}\n\n"+
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\" there\"}}]}\n\n"+
			"data: [DONE]\n\n")
	}))
	defer srv.Close()

	temp := float32(0.2)
	o := services.NewOpenAI("k", srv.URL, "gpt", "sys", services.LLMParameters{Temperature: &temp}, discardLogger())

	chunks, err := collect(t, o.Chat(context.Background(), history()))
	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, chunks)
}

func TestNewOllama_InvalidHost(t *testing.T) {
	_, err := services.NewOllama("://bad", "llama", "", discardLogger())
	assert.Error(t, err)
}
