package bus

import "context"

// Transport is a fan-out pub/sub broker connection
type Transport interface {
	// Publish sends payload to every current listener of topic
	Publish(topic string, payload []byte) error
	// Listen delivers payloads of topic until ctx is cancelled (returns nil) or the
	// connection fails (returns the error). deliver must not block.
	Listen(ctx context.Context, topic string, deliver func(payload []byte)) error
	// Close releases the transport
	Close() error
}
