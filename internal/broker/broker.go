// Package broker provides message broker implementations for dataset
// invalidation.
package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/school-platform/attendance-service/internal/fault"
)

// InvalidationEvent announces that one or more datasets changed upstream
// and their local copies must be dropped.
type InvalidationEvent struct {
	Datasets  []string `json:"datasets"`
	Action    string   `json:"action"`
	Timestamp int64    `json:"timestamp"`
}

// InvalidationHandler processes an invalidation event.
type InvalidationHandler func(event InvalidationEvent) error

// Broker defines the message broker interface.
type Broker interface {
	// Subscribe registers a handler for invalidation events.
	Subscribe(ctx context.Context, topic string, handler InvalidationHandler) error

	// Publish sends an invalidation event.
	Publish(ctx context.Context, topic string, event InvalidationEvent) error

	// Close closes the broker connection.
	Close() error

	// Healthy returns whether the broker is healthy.
	Healthy() bool
}

// DefaultRetryConfig returns the default reconnect retry configuration.
func DefaultRetryConfig() fault.RetryConfig {
	return fault.NewRetryConfig(
		fault.WithMaxAttempts(5),
		fault.WithInitialInterval(time.Second),
		fault.WithMaxInterval(30*time.Second),
		fault.WithMultiplier(2.0),
		fault.WithJitterStrategy(fault.FullJitter),
	)
}

// EncodeEvent encodes an invalidation event to JSON.
func EncodeEvent(event InvalidationEvent) ([]byte, error) {
	return json.Marshal(event)
}

// DecodeEvent decodes an invalidation event from JSON.
func DecodeEvent(data []byte) (InvalidationEvent, error) {
	var event InvalidationEvent
	err := json.Unmarshal(data, &event)
	return event, err
}

// NoOpBroker is a no-operation broker for when messaging is disabled.
type NoOpBroker struct{}

// NewNoOpBroker creates a new no-op broker.
func NewNoOpBroker() *NoOpBroker {
	return &NoOpBroker{}
}

// Subscribe does nothing.
func (b *NoOpBroker) Subscribe(ctx context.Context, topic string, handler InvalidationHandler) error {
	return nil
}

// Publish does nothing.
func (b *NoOpBroker) Publish(ctx context.Context, topic string, event InvalidationEvent) error {
	return nil
}

// Close does nothing.
func (b *NoOpBroker) Close() error {
	return nil
}

// Healthy always returns true.
func (b *NoOpBroker) Healthy() bool {
	return true
}
