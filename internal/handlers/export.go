package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/OmChillure/streamchat/internal/export"
)

// HandleExport downloads the transcript. The "format" query parameter selects "md" (default) or "html".
func (m Main) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now()
	doc, err := m.exporter.Export(format, m.session.Messages(), now)
	if err != nil {
		m.logger.Error("Failed to export transcript",
			slog.String("format", string(format)),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	filename := fmt.Sprintf("chat-%s.%s", now.Format("20060102-150405"), format)
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(doc); err != nil {
		m.logger.Error("Failed to write export", slog.String(errLoggerKey, err.Error()))
	}
}
