package storage

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces every fan-out channel the gateway uses.
const ChannelPrefix = "dm:"

// Delivery is one payload received on a channel.
type Delivery struct {
	Channel string
	Payload []byte
}

// Broker carries serialized events between gateway instances.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe receives everything published under ChannelPrefix until the
	// returned closer is closed or ctx ends.
	Subscribe(ctx context.Context) (<-chan Delivery, io.Closer, error)
}

// RedisBroker fans out through Redis pub/sub so every instance sees every
// channel.
type RedisBroker struct {
	client *redis.Client
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{client: client}
}

func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", channel)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan Delivery, io.Closer, error) {
	ps := b.client.PSubscribe(ctx, ChannelPrefix+"*")
	// Wait for the subscription confirmation so nothing published after
	// Subscribe returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, errors.Wrap(err, "psubscribe")
	}

	out := make(chan Delivery, 256)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- Delivery{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, ps, nil
}

// MemoryBroker is a single-process Broker. Publish blocks until every
// subscriber took the payload, which keeps per-channel order.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	ch     chan Delivery
	done   chan struct{}
	once   sync.Once
	broker *MemoryBroker
}

func (s *memorySub) Close() error {
	s.once.Do(func() {
		// done first: a Publish blocked on this subscriber holds the read lock.
		close(s.done)
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
	})
	return nil
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[*memorySub]struct{})}
}

func (b *MemoryBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if !strings.HasPrefix(channel, ChannelPrefix) {
		return nil
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	d := Delivery{Channel: channel, Payload: append([]byte(nil), payload...)}
	for sub := range b.subs {
		select {
		case sub.ch <- d:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan Delivery, io.Closer, error) {
	sub := &memorySub{ch: make(chan Delivery, 256), done: make(chan struct{}), broker: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub.ch, sub, nil
}
