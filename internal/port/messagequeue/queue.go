// Package messagequeue defines the port for publishing lifecycle events.
package messagequeue

import "context"

// Publisher sends a message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}
