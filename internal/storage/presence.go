package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence tracks which connections are currently inside which room, across
// all gateway instances.
type Presence interface {
	Enter(ctx context.Context, roomID, userID, connID string) error
	Leave(ctx context.Context, roomID, userID, connID string) error
	InRoom(ctx context.Context, roomID, userID string) (bool, error)
}

// presenceTTL bounds how long a crashed instance can leave stale entries.
const presenceTTL = 2 * time.Hour

func presenceKey(roomID, userID string) string {
	return "presence:room:" + roomID + ":" + userID
}

// RedisPresence keeps one set of connection ids per (room, user).
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func (p *RedisPresence) Enter(ctx context.Context, roomID, userID, connID string) error {
	key := presenceKey(roomID, userID)
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, connID)
	pipe.Expire(ctx, key, presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "presence enter")
	}
	return nil
}

func (p *RedisPresence) Leave(ctx context.Context, roomID, userID, connID string) error {
	if err := p.client.SRem(ctx, presenceKey(roomID, userID), connID).Err(); err != nil {
		return errors.Wrap(err, "presence leave")
	}
	return nil
}

func (p *RedisPresence) InRoom(ctx context.Context, roomID, userID string) (bool, error) {
	n, err := p.client.SCard(ctx, presenceKey(roomID, userID)).Result()
	if err != nil {
		return false, errors.Wrap(err, "presence lookup")
	}
	return n > 0, nil
}

// MemoryPresence is Presence for a single instance.
type MemoryPresence struct {
	mu    sync.Mutex
	conns map[string]map[string]struct{}
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{conns: make(map[string]map[string]struct{})}
}

func (p *MemoryPresence) Enter(_ context.Context, roomID, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := presenceKey(roomID, userID)
	if p.conns[key] == nil {
		p.conns[key] = make(map[string]struct{})
	}
	p.conns[key][connID] = struct{}{}
	return nil
}

func (p *MemoryPresence) Leave(_ context.Context, roomID, userID, connID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := presenceKey(roomID, userID)
	delete(p.conns[key], connID)
	if len(p.conns[key]) == 0 {
		delete(p.conns, key)
	}
	return nil
}

func (p *MemoryPresence) InRoom(_ context.Context, roomID, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[presenceKey(roomID, userID)]) > 0, nil
}
