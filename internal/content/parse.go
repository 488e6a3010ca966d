// Package content splits message text into plain text runs and fenced python code blocks, and
// estimates token counts for display.
package content

import (
	"strings"

	"github.com/OmChillure/streamchat/internal/models"
)

const fence = "```"

type scanState int

const (
	outsideFence scanState = iota
	insideFence
)

// Parse converts content into an ordered sequence of segments.
//
// A fence opens with three backticks at the start of a line, optionally followed by a "python" or "py"
// tag (case-insensitive), optional blanks and a newline. It closes at the first three backticks after
// the opening line. The fence body becomes a code segment with its leading and trailing newlines
// trimmed; the text between fences is emitted verbatim, and empty text runs are skipped. Fences with any
// other tag, and fences that never close, are left in the text untouched.
//
// Parse is total: it never fails, and returns an empty slice for empty content.
func Parse(content string) []models.Segment {
	segments := make([]models.Segment, 0)

	state := outsideFence
	textStart := 0 // start of the text not yet emitted
	fenceStart := 0
	pos := 0

scan:
	for {
		switch state {
		case outsideFence:
			open := nextLineFence(content, pos)
			if open < 0 {
				break scan
			}
			bodyStart, ok := openingLine(content, open)
			if !ok {
				pos = open + len(fence)
				continue
			}
			fenceStart = open
			pos = bodyStart
			state = insideFence
		case insideFence:
			end := strings.Index(content[pos:], fence)
			if end < 0 {
				// An unterminated fence can't be followed by any other match, since any later
				// opening marker would have closed this one.
				break scan
			}
			end += pos
			if fenceStart > textStart {
				segments = append(segments, models.Segment{Kind: models.SegmentText, Value: content[textStart:fenceStart]})
			}
			segments = append(segments, models.Segment{
				Kind:  models.SegmentCode,
				Value: strings.Trim(content[pos:end], "\r\n"),
			})
			pos = end + len(fence)
			textStart = pos
			state = outsideFence
		}
	}

	if textStart < len(content) {
		segments = append(segments, models.Segment{Kind: models.SegmentText, Value: content[textStart:]})
	}
	return segments
}

// nextLineFence returns the index of the next fence marker at or after pos that starts a line, or -1.
func nextLineFence(content string, pos int) int {
	for pos < len(content) {
		idx := strings.Index(content[pos:], fence)
		if idx < 0 {
			return -1
		}
		idx += pos
		if idx == 0 || content[idx-1] == '\n' {
			return idx
		}
		pos = idx + 1
	}
	return -1
}

// openingLine reports whether the fence marker at open starts a python fence, and returns the index
// right after the opening line's newline.
func openingLine(content string, open int) (int, bool) {
	i := open + len(fence)
	rest := content[i:]
	switch {
	case hasPrefixFold(rest, "python"):
		i += len("python")
	case hasPrefixFold(rest, "py"):
		i += len("py")
	}

	for i < len(content) {
		switch content[i] {
		case ' ', '\t', '\r':
			i++
		case '\n':
			return i + 1, true
		default:
			return 0, false
		}
	}
	return 0, false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
