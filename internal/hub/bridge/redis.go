// Package bridge relays hub broadcasts between service instances over a
// Redis pub/sub channel.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/relayline/chathub/pkg/logger"
)

// Deliverer receives frames published by other instances.
type Deliverer interface {
	DeliverLocal(group string, data []byte)
}

// envelope is the wire shape on the Redis channel. Origin lets an instance
// skip frames it published itself.
type envelope struct {
	Origin string          `json:"origin"`
	Group  string          `json:"group"`
	Frame  json.RawMessage `json:"frame"`
}

// Redis is a pub/sub broadcast bridge. It implements the hub's Publisher and
// the system service lifecycle.
type Redis struct {
	client  *redis.Client
	channel string
	origin  string
	sink    Deliverer
	log     *logger.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedis constructs a bridge against addr, publishing on channel.
func NewRedis(addr, channel string, sink Deliverer, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("bridge")
	}
	return &Redis{
		client:  redis.NewClient(&redis.Options{Addr: addr}),
		channel: channel,
		origin:  uuid.NewString(),
		sink:    sink,
		log:     log,
	}
}

// Name implements the service interface.
func (b *Redis) Name() string { return "redis-bridge" }

// Start verifies connectivity and begins consuming the channel.
func (b *Redis) Start(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})

	sub := b.client.Subscribe(runCtx, b.channel)
	go b.consume(runCtx, sub)
	return nil
}

// Stop tears down the subscription and the client.
func (b *Redis) Stop(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
		}
	}
	return b.client.Close()
}

// Publish sends a frame for a group to the other instances.
func (b *Redis) Publish(ctx context.Context, group string, frame []byte) error {
	payload, err := json.Marshal(envelope{Origin: b.origin, Group: group, Frame: frame})
	if err != nil {
		return fmt.Errorf("encode bridge envelope: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *Redis) consume(ctx context.Context, sub *redis.PubSub) {
	defer close(b.done)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.WithError(err).Warn("discarding malformed bridge payload")
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.sink.DeliverLocal(env.Group, env.Frame)
		}
	}
}
