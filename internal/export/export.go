// Package export converts the session transcript into downloadable documents. Markdown is the source
// format; HTML is produced from it with goldmark.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/OmChillure/streamchat/internal/content"
	"github.com/OmChillure/streamchat/internal/models"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
)

// Format is a transcript export format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

// ParseFormat maps a query value to a Format. An empty value selects Markdown.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatMarkdown:
		return FormatMarkdown, nil
	case FormatHTML:
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

// Exporter renders transcripts.
type Exporter struct {
	md goldmark.Markdown
}

// New creates an Exporter whose HTML output highlights code with the named chroma style.
func New(style string) Exporter {
	return Exporter{
		md: goldmark.New(
			goldmark.WithExtensions(
				highlighting.NewHighlighting(
					highlighting.WithStyle(style),
				),
			),
		),
	}
}

// Export renders msgs in the given format.
func (e Exporter) Export(f Format, msgs []models.Message, exportedAt time.Time) ([]byte, error) {
	md := Markdown(msgs, exportedAt)
	if f == FormatMarkdown {
		return md, nil
	}
	return e.HTML(md)
}

// Markdown writes the transcript as Markdown. Code segments are re-fenced as python blocks; text segments
// are copied verbatim, and a fence a message leaves open is closed before the next message starts.
func Markdown(msgs []models.Message, exportedAt time.Time) []byte {
	var sb strings.Builder

	sb.WriteString("# Chat transcript\n\n")
	sb.WriteString(fmt.Sprintf("_Exported %s_\n", exportedAt.Format(time.RFC3339)))

	for _, msg := range msgs {
		sb.WriteString("\n---\n\n")
		if msg.Role == models.RoleUser {
			sb.WriteString("## You\n\n")
		} else {
			sb.WriteString("## AI\n\n")
		}

		var body strings.Builder
		for _, seg := range content.Parse(msg.Content) {
			if seg.Kind == models.SegmentCode {
				body.WriteString("```python\n")
				body.WriteString(seg.Value)
				body.WriteString("\n```\n")
				continue
			}
			body.WriteString(seg.Value)
		}
		sb.WriteString(body.String())
		sb.WriteString("\n")

		// A stream cut short leaves its fence open, which would swallow every later message.
		if fence := openFence(body.String()); fence != "" {
			sb.WriteString(fence)
			sb.WriteString("\n")
		}

		if msg.Role == models.RoleAssistant {
			sb.WriteString(fmt.Sprintf("\n_Tokens: ~%d_\n", content.TokenCount(msg.Content)))
		}
	}

	return []byte(sb.String())
}

// openFence reports the marker that closes a fenced code block left open at the end of md, or "" when
// every fence is closed. It follows the CommonMark rules: an opener is a run of at least three backticks
// or tildes indented by at most three spaces; a closer is a run of the same character at least as long,
// followed only by blanks.
func openFence(md string) string {
	var open string
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimLeft(line, " ")
		if len(line)-len(trimmed) > 3 || trimmed == "" {
			continue
		}

		c := trimmed[0]
		if c != '`' && c != '~' {
			continue
		}
		n := 0
		for n < len(trimmed) && trimmed[n] == c {
			n++
		}
		if n < 3 {
			continue
		}
		rest := trimmed[n:]

		switch {
		case open == "":
			if c == '`' && strings.ContainsRune(rest, '`') {
				continue
			}
			open = trimmed[:n]
		case c == open[0] && n >= len(open) && strings.TrimSpace(rest) == "":
			open = ""
		}
	}
	return open
}

// HTML converts an exported Markdown transcript into a standalone HTML document.
func (e Exporter) HTML(md []byte) ([]byte, error) {
	var body bytes.Buffer
	if err := e.md.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <title>Chat transcript</title>\n")
	sb.WriteString("    <meta name=\"generator\" content=\"streamchat\">\n")
	sb.WriteString("</head>\n")
	sb.WriteString("<body>\n")
	sb.Write(body.Bytes())
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}
