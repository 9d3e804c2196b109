package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

const defaultRedisKeyPrefix = "contracts:audit:"

// RedisTrail stores each trail as a Redis list. RPUSH is atomic per key, which
// gives append-only semantics without a read-modify-write cycle.
type RedisTrail struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisTrail constructs a Trail backed by client. An empty prefix selects the default.
func NewRedisTrail(client redis.UniversalClient, keyPrefix string) (*RedisTrail, error) {
	if client == nil {
		return nil, fmt.Errorf("audit: redis client is required")
	}
	if strings.TrimSpace(keyPrefix) == "" {
		keyPrefix = defaultRedisKeyPrefix
	}
	return &RedisTrail{client: client, keyPrefix: keyPrefix}, nil
}

// DialRedis parses a redis:// URL and pings the server.
func DialRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("audit: parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("audit: ping redis: %w", err)
	}
	return client, nil
}

// Append pushes the event onto the tail of the list for signatureID.
func (trail *RedisTrail) Append(ctx context.Context, signatureID string, event Event) error {
	if err := validateAppend(signatureID, event); err != nil {
		return err
	}
	event.Timestamp = event.Timestamp.UTC()
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	if err := trail.client.RPush(ctx, trail.key(signatureID), payload).Err(); err != nil {
		return fmt.Errorf("audit: append event: %w", err)
	}
	return nil
}

// Read returns the whole list for signatureID in push order.
func (trail *RedisTrail) Read(ctx context.Context, signatureID string) ([]Event, error) {
	values, err := trail.client.LRange(ctx, trail.key(signatureID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("audit: read trail: %w", err)
	}
	events := make([]Event, 0, len(values))
	for index, value := range values {
		var event Event
		if err := json.Unmarshal([]byte(value), &event); err != nil {
			return nil, fmt.Errorf("audit: decode event %d: %w", index, err)
		}
		events = append(events, event)
	}
	return events, nil
}

func (trail *RedisTrail) key(signatureID string) string {
	return trail.keyPrefix + strings.TrimSpace(signatureID)
}
