package export_test

import (
	"strings"
	"testing"
	"time"

	"github.com/OmChillure/streamchat/internal/export"
	"github.com/OmChillure/streamchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exportedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func transcript() []models.Message {
	return []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "Show me a loop <script>alert(1)</script>"},
		{ID: "2", Role: models.RoleAssistant, Content: "Sure:\n```PY\nfor i in range(3):\n    print(i)\n```\nThat's it."},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    export.Format
		wantErr bool
	}{
		{in: "", want: export.FormatMarkdown},
		{in: "md", want: export.FormatMarkdown},
		{in: "HTML", want: export.FormatHTML},
		{in: "pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := export.ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkdown(t *testing.T) {
	md := string(export.Markdown(transcript(), exportedAt))

	assert.Contains(t, md, "# Chat transcript")
	assert.Contains(t, md, "_Exported 2024-05-01T12:00:00Z_")
	assert.Contains(t, md, "## You\n\nShow me a loop")
	assert.Contains(t, md, "## AI\n\nSure:\n```python\nfor i in range(3):\n    print(i)\n```\n\nThat's it.")
	assert.Contains(t, md, "_Tokens: ~")
}

func TestExport(t *testing.T) {
	e := export.New("github")

	md, err := e.Export(export.FormatMarkdown, transcript(), exportedAt)
	require.NoError(t, err)
	assert.Equal(t, export.Markdown(transcript(), exportedAt), md)

	out, err := e.Export(export.FormatHTML, transcript(), exportedAt)
	require.NoError(t, err)

	doc := string(out)
	assert.Contains(t, doc, "<!DOCTYPE html>")
	assert.Contains(t, doc, "<h1>Chat transcript</h1>")
	assert.Contains(t, doc, "<h2>AI</h2>")
	assert.Contains(t, doc, "print")
	assert.NotContains(t, doc, "<script>")
}

func TestExport_UnterminatedFence(t *testing.T) {
	msgs := []models.Message{
		{ID: "1", Role: models.RoleUser, Content: "code please"},
		{ID: "2", Role: models.RoleAssistant, Content: "```python\nprint(1\n\nError: boom"},
		{ID: "3", Role: models.RoleUser, Content: "second question"},
		{ID: "4", Role: models.RoleAssistant, Content: "plain answer"},
	}

	out, err := export.New("github").Export(export.FormatHTML, msgs, exportedAt)
	require.NoError(t, err)

	doc := string(out)
	assert.Equal(t, 4, strings.Count(doc, "<h2>"))
	assert.Equal(t, 1, strings.Count(doc, "<pre"))
	assert.Contains(t, doc, "<h2>You</h2>")
	assert.Contains(t, doc, "<p>second question</p>")
	assert.Contains(t, doc, "<p>plain answer</p>")
}

func TestMarkdown_ClosesOpenFences(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantClose string
	}{
		{
			name:      "Open python fence",
			content:   "```python\nprint(1",
			wantClose: "print(1\n```\n",
		},
		{
			name:      "Open foreign fence",
			content:   "Here:\n```js\nlet x",
			wantClose: "let x\n```\n",
		},
		{
			name:      "Open tilde fence",
			content:   "~~~~\nraw",
			wantClose: "raw\n~~~~\n",
		},
		{
			name:      "Longer backtick run",
			content:   "````\n```\nstill open",
			wantClose: "still open\n````\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []models.Message{{ID: "1", Role: models.RoleAssistant, Content: tt.content}}
			md := string(export.Markdown(msgs, exportedAt))

			assert.Contains(t, md, tt.wantClose)
		})
	}
}

func TestMarkdown_BalancedFencesUntouched(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "Python block", content: "```py\nx = 1\n```"},
		{name: "Foreign block", content: "```go\nfmt.Println()\n```\ndone"},
		{name: "Inline backticks", content: "use ```code``` inline"},
		{name: "Indented too far", content: "    ```\nnot a fence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []models.Message{{ID: "1", Role: models.RoleAssistant, Content: tt.content}}
			md := string(export.Markdown(msgs, exportedAt))

			assert.Equal(t, strings.Count(tt.content, "```"), strings.Count(md, "```"), md)
		})
	}
}

func TestFormatContentType(t *testing.T) {
	assert.Equal(t, "text/html; charset=utf-8", export.FormatHTML.ContentType())
	assert.Equal(t, "text/markdown; charset=utf-8", export.FormatMarkdown.ContentType())
}
