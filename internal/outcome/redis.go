package outcome

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/txengine/internal/ledger"
)

const defaultBatchSize = 500

// RedisPublisher appends outcomes to a Redis stream. Entries are queued on a
// pipeline and sent every BatchSize outcomes or on Flush.
type RedisPublisher struct {
	client    redis.Cmdable
	stream    string
	maxLen    int64
	batchSize int
	pipe      redis.Pipeliner
	queued    int
}

// RedisOption customises a RedisPublisher.
type RedisOption func(*RedisPublisher)

// WithMaxLen caps the stream at roughly n entries. Zero leaves it unbounded.
func WithMaxLen(n int64) RedisOption {
	return func(p *RedisPublisher) { p.maxLen = n }
}

// WithBatchSize sets how many outcomes are pipelined before a round trip.
func WithBatchSize(n int) RedisOption {
	return func(p *RedisPublisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewRedisPublisher builds a publisher writing to stream.
func NewRedisPublisher(client redis.Cmdable, stream string, opts ...RedisOption) *RedisPublisher {
	p := &RedisPublisher{client: client, stream: stream, batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish queues the outcome and sends the batch once it is full.
func (p *RedisPublisher) Publish(ctx context.Context, o ledger.Outcome) error {
	if p.pipe == nil {
		p.pipe = p.client.Pipeline()
	}

	values := make(map[string]any, 7)
	for k, v := range Fields(o) {
		values[k] = v
	}
	p.pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: p.maxLen > 0,
		Values: values,
	})
	p.queued++

	if p.queued >= p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Flush sends any queued outcomes.
func (p *RedisPublisher) Flush(ctx context.Context) error {
	if p.pipe == nil || p.queued == 0 {
		return nil
	}
	pipe := p.pipe
	n := p.queued
	p.pipe = nil
	p.queued = 0

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish %d outcomes to %s: %w", n, p.stream, err)
	}
	return nil
}
