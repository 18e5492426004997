package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Publisher enqueues work for consumers in any process sharing the queue.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) error
}

// Config contains the consumer configuration for the queue.
type Config struct {
	Workers     int           // number of workers
	RetryLimit  int           // number of retries before dead-lettering
	RetryDelay  time.Duration // delay before the first retry, doubled per attempt
	PollTimeout time.Duration // blocking pop timeout per worker iteration
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage encodes payload into a fresh envelope.
func NewMessage(msgType string, payload interface{}, now time.Time) (Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Timestamp: now.UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("marshal payload: %w", err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// ParsePayload decodes the message payload into T. An empty payload yields the zero value.
func ParsePayload[T any](msg Message) (*T, error) {
	var result T
	if len(msg.Payload) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return &result, nil
}

// retryDelay doubles base for each attempt already made.
func retryDelay(base time.Duration, attempts int) time.Duration {
	d := base
	for i := 1; i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	return d
}
