package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists samples and finalized sessions into redis hashes.
// Sample writes upsert by monotonic-time key, so at-least-once delivery and
// duplicate timestamps are safe.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// NewRedisStoreFromClient wraps an existing client, mainly for tests.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func samplesHash(sessionID string) string {
	return "session:" + sessionID + ":samples"
}

func sessionHash(sessionID string) string {
	return "session:" + sessionID
}

func (r *RedisStore) PersistSample(ctx context.Context, sessionID string, monotonic float64, fields map[string]float64) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal sample fields: %w", err)
	}
	if err := r.client.HSet(ctx, samplesHash(sessionID), sampleKey(monotonic), payload).Err(); err != nil {
		return fmt.Errorf("persist sample: %w", err)
	}
	return nil
}

func (r *RedisStore) FinalizeSession(ctx context.Context, sessionID string, start, end time.Time, duration float64, summary map[string]float64) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	err = r.client.HSet(ctx, sessionHash(sessionID),
		"start_time", start.UTC().Format(time.RFC3339),
		"end_time", end.UTC().Format(time.RFC3339),
		"duration_s", fmt.Sprintf("%.3f", duration),
		"summary", payload,
	).Err()
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
