// Package render turns transcript messages into view models for the HTML templates. Text segments are
// passed through for escaping by html/template; code segments are syntax-highlighted with chroma.
package render

import (
	"html/template"
	"io"
	"strings"

	"github.com/OmChillure/streamchat/internal/content"
	"github.com/OmChillure/streamchat/internal/models"
	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// DefaultStyle is the chroma style used when none is configured.
const DefaultStyle = "github"

// Renderer maps messages to MessageView values.
type Renderer struct {
	lexer     chroma.Lexer
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

// SegmentView is a rendered segment. Text holds the raw value of both kinds, and is the copy payload for
// code segments; HTML holds the highlighted markup of code segments.
type SegmentView struct {
	Kind models.SegmentKind
	Text string
	HTML template.HTML
}

// MessageView is the template data for a single transcript message.
type MessageView struct {
	ID       string
	Role     models.Role
	Segments []SegmentView
	// Tokens is the approximate token count shown under assistant messages.
	Tokens    int
	Streaming bool
}

// IsUser reports whether the message should be right-aligned with the user marker.
func (v MessageView) IsUser() bool {
	return v.Role == models.RoleUser
}

// IsCode reports whether the segment is a highlighted code block.
func (v SegmentView) IsCode() bool {
	return v.Kind == models.SegmentCode
}

// New creates a Renderer highlighting python with the named chroma style. Unknown style names fall back
// to chroma's default style.
func New(styleName string) *Renderer {
	if styleName == "" {
		styleName = DefaultStyle
	}
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}

	lexer := lexers.Get("python")
	if lexer == nil {
		lexer = lexers.Fallback
	}

	return &Renderer{
		lexer: chroma.Coalesce(lexer),
		style: style,
		formatter: chromahtml.New(
			chromahtml.WithClasses(true),
			chromahtml.TabWidth(4),
		),
	}
}

// Message renders msg. streaming marks the message as the one currently being generated.
func (r *Renderer) Message(msg models.Message, streaming bool) MessageView {
	segs := content.Parse(msg.Content)
	views := make([]SegmentView, len(segs))
	for i, seg := range segs {
		views[i] = SegmentView{
			Kind: seg.Kind,
			Text: seg.Value,
		}
		if seg.Kind == models.SegmentCode {
			views[i].HTML = r.Highlight(seg.Value)
		}
	}

	v := MessageView{
		ID:        msg.ID,
		Role:      msg.Role,
		Segments:  views,
		Streaming: streaming,
	}
	if msg.Role == models.RoleAssistant {
		v.Tokens = content.TokenCount(msg.Content)
	}
	return v
}

// Transcript renders every message, marking the one with streamingID as streaming.
func (r *Renderer) Transcript(msgs []models.Message, streamingID string) []MessageView {
	views := make([]MessageView, len(msgs))
	for i, msg := range msgs {
		views[i] = r.Message(msg, streamingID != "" && msg.ID == streamingID)
	}
	return views
}

// Highlight returns python-highlighted HTML for code. If highlighting fails the code is returned escaped
// inside a plain pre block.
func (r *Renderer) Highlight(code string) template.HTML {
	it, err := r.lexer.Tokenise(nil, code)
	if err != nil {
		return plainBlock(code)
	}

	var sb strings.Builder
	if err := r.formatter.Format(&sb, r.style, it); err != nil {
		return plainBlock(code)
	}
	return template.HTML(sb.String())
}

// WriteCSS writes the stylesheet for the highlighted code classes.
func (r *Renderer) WriteCSS(w io.Writer) error {
	return r.formatter.WriteCSS(w, r.style)
}

func plainBlock(code string) template.HTML {
	return template.HTML("<pre class=\"chroma\"><code>" + template.HTMLEscapeString(code) + "</code></pre>")
}
