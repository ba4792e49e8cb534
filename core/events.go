package core

import "context"

// EventPublisher appends domain events to a named stream (eg. a Redis stream).
type EventPublisher interface {
	Publish(ctx context.Context, stream string, values map[string]interface{}) error
}
