package handlers

import (
	"log/slog"
	"net/http"

	"github.com/OmChillure/streamchat/internal/models"
	"github.com/OmChillure/streamchat/internal/render"
)

type homePageData struct {
	Messages  []render.MessageView
	Streaming bool
}

// HandleHome renders the full chat page with the current transcript. While a response is streaming the
// input is rendered disabled and the streaming message carries the loading indicator.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data := homePageData{
		Messages:  m.renderer.Transcript(m.session.Messages(), m.session.StreamingID()),
		Streaming: m.session.Status() == models.StatusStreaming,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		m.logger.Error("Failed to render home page", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleReset discards the transcript, cancelling any response in progress, and redirects to the home page.
func (m Main) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.session.Reset()
	m.publishStatus(models.StatusIdle)
	m.logger.Info("Session reset")

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleHighlightCSS serves the stylesheet for highlighted code blocks.
func (m Main) HandleHighlightCSS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if err := m.renderer.WriteCSS(w); err != nil {
		m.logger.Error("Failed to write highlight css", slog.String(errLoggerKey, err.Error()))
	}
}
