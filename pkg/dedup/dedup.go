// Package dedup drops messages that the capture layer delivered more than once.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

// Store remembers fingerprints. Keys are checked when a message arrives and
// recorded only once the message has been written, so a delivery whose write
// failed is not mistaken for a duplicate when it comes back.
type Store interface {
	// Seen reports whether key has been recorded.
	Seen(ctx context.Context, key string) (bool, error)
	// Add records key.
	Add(ctx context.Context, key string) error
}

// Fingerprint identifies a message by its content: sender, body and capture time.
// Two deliveries of the same SMS produce the same fingerprint even when the
// capture layer assigned them different IDs.
func Fingerprint(msg api.RawMessage) string {
	h := sha256.New()
	h.Write([]byte(msg.Sender))
	h.Write([]byte{0})
	h.Write([]byte(msg.Body))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(msg.ReceivedAt.UnixMilli(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// DefaultCapacity is the number of fingerprints Memory keeps by default.
const DefaultCapacity = 10000

// Memory is an in-process Store holding the most recent fingerprints.
// When full, the oldest fingerprint is forgotten.
type Memory struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	ring     []string
	next     int
	capacity int
}

// NewMemory creates a Memory store. capacity <= 0 selects DefaultCapacity.
func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Memory{
		seen:     make(map[string]struct{}, capacity),
		ring:     make([]string, capacity),
		capacity: capacity,
	}
}

// Seen implements Store.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.seen[key]
	return ok, nil
}

// Add implements Store.
func (m *Memory) Add(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[key]; ok {
		return nil
	}
	if old := m.ring[m.next]; old != "" {
		delete(m.seen, old)
	}
	m.ring[m.next] = key
	m.next = (m.next + 1) % m.capacity
	m.seen[key] = struct{}{}
	return nil
}

// Client is the subset of the Redis client used by Redis.
type Client interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Redis is a Store shared between processes. Fingerprints expire after TTL.
type Redis struct {
	client Client
	ttl    time.Duration
	prefix string
}

// NewRedis creates a Redis store. Keys are written as "<prefix><key>".
func NewRedis(client Client, ttl time.Duration, prefix string) *Redis {
	if prefix == "" {
		prefix = "smsexpensor:dedup:"
	}
	return &Redis{client: client, ttl: ttl, prefix: prefix}
}

// Seen implements Store.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("checking fingerprint: %w", err)
	}
	return n > 0, nil
}

// Add implements Store.
func (r *Redis) Add(ctx context.Context, key string) error {
	if err := r.client.Set(ctx, r.prefix+key, 1, r.ttl).Err(); err != nil {
		return fmt.Errorf("recording fingerprint: %w", err)
	}
	return nil
}

// Dial connects to Redis at addr and verifies the connection.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return rdb, nil
}
