package eventstream

import "context"

// Publisher publishes completion events to an event stream backend.
type Publisher interface {
	PublishCompletion(ctx context.Context, event *CompletionRecordedEvent) error
	Close() error
}
