package llm

import "fmt"

// EventKind discriminates the variants of StreamEvent.
type EventKind int

const (
	// KindContent carries a fragment of generated text.
	KindContent EventKind = iota

	// KindMetadata carries the accounting record of the completion.
	KindMetadata

	// KindEnd marks the normal end of a stream. Exactly one is produced per
	// successful stream and nothing follows it.
	KindEnd

	// KindAttemptRestarted marks that the stream was re-issued after a
	// transport failure. Events after it belong to the new attempt.
	KindAttemptRestarted
)

func (k EventKind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindMetadata:
		return "metadata"
	case KindEnd:
		return "end"
	case KindAttemptRestarted:
		return "attempt_restarted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// StreamEvent is one element of a completion stream. Only the field matching
// Kind is meaningful.
type StreamEvent struct {
	Kind     EventKind
	Text     string
	Metadata *Metadata
	Attempt  int
}

// ContentFragment returns a content event holding text.
func ContentFragment(text string) StreamEvent {
	return StreamEvent{Kind: KindContent, Text: text}
}

// MetadataRecord returns a metadata event.
func MetadataRecord(md *Metadata) StreamEvent {
	return StreamEvent{Kind: KindMetadata, Metadata: md}
}

// EndOfStream returns the terminal event of a successful stream.
func EndOfStream() StreamEvent {
	return StreamEvent{Kind: KindEnd}
}

// AttemptRestarted returns the boundary event emitted before the events of
// retry attempt n (1-based count of retries).
func AttemptRestarted(n int) StreamEvent {
	return StreamEvent{Kind: KindAttemptRestarted, Attempt: n}
}
