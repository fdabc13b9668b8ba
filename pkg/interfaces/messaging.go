package interfaces

import "context"

// MessagingPort publishes lifecycle events for downstream consumers.
// This service only produces; it never consumes topics.
type MessagingPort interface {
	Publish(ctx context.Context, topic string, message []byte) error

	// PublishWithKey publishes with a partition key so events for one
	// store stay ordered.
	PublishWithKey(ctx context.Context, topic string, key string, message []byte) error

	Close() error
}
