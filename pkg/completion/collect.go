package completion

import (
	"iter"
	"strings"

	"github.com/papercomputeco/streamline/pkg/llm"
)

// Collector accumulates a stream into a Completion. An AttemptRestarted
// event discards what the failed attempt delivered.
type Collector struct {
	sb       strings.Builder
	metadata *llm.Metadata
	done     bool
	restarts int
}

// Add records ev.
func (c *Collector) Add(ev llm.StreamEvent) {
	switch ev.Kind {
	case llm.KindContent:
		c.sb.WriteString(ev.Text)
	case llm.KindMetadata:
		c.metadata = ev.Metadata
	case llm.KindEnd:
		c.done = true
	case llm.KindAttemptRestarted:
		c.sb.Reset()
		c.metadata = nil
		c.restarts++
	}
}

// Done reports whether the end of stream was seen.
func (c *Collector) Done() bool { return c.done }

// Restarts returns how many attempt boundaries were seen.
func (c *Collector) Restarts() int { return c.restarts }

// Completion returns what has been collected so far.
func (c *Collector) Completion() *llm.Completion {
	return &llm.Completion{
		Content:  c.sb.String(),
		Metadata: c.metadata,
	}
}

// Collect drains seq. On error the partial completion is returned with it.
func Collect(seq iter.Seq2[llm.StreamEvent, error]) (*llm.Completion, error) {
	var c Collector
	for ev, err := range seq {
		if err != nil {
			return c.Completion(), err
		}
		c.Add(ev)
	}
	return c.Completion(), nil
}
