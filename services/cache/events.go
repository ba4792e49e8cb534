package cachesvc

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/databayt/hogwarts-sub013/core"
)

// streamMaxLen caps each stream, approximately.
const streamMaxLen = 10000

type Publisher struct {
	client redis.UniversalClient
}

var _ core.EventPublisher = (*Publisher)(nil)

// NewPublisher appends events to Redis streams.
func NewPublisher(client redis.UniversalClient) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, stream string, values map[string]interface{}) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err()
	return errors.Wrap(err, "publishing to "+stream)
}

type NopPublisher struct{}

var _ core.EventPublisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, string, map[string]interface{}) error { return nil }
