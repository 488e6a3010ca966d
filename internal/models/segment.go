package models

// SegmentKind classifies a span of message content.
type SegmentKind string

const (
	// SegmentText is a plain text run, kept verbatim.
	SegmentText SegmentKind = "text"
	// SegmentCode is the body of a fenced python code block, fence markers removed.
	SegmentCode SegmentKind = "code"
)

// Segment is a contiguous span of a message's content. Segments are derived from Message.Content on
// every render and carry no identity beyond their position.
type Segment struct {
	Kind  SegmentKind
	Value string
}
