package queue

import "context"

// Job handles every message of one Type.
type Job interface {
	// Name identifies the job in logs.
	Name() string
	Type() string
	// Handle processes one message. A non-nil error schedules a retry
	// until the retry limit, then the message is dead-lettered.
	Handle(ctx context.Context, msg Message) error
}
