package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client), client
}

func TestRedisStoreUpsertsByMonotonicKey(t *testing.T) {
	store, client := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := store.PersistSample(ctx, "s1", 1.0, map[string]float64{"power": 100}); err != nil {
		t.Fatalf("PersistSample: %v", err)
	}
	if err := store.PersistSample(ctx, "s1", 1.0, map[string]float64{"power": 120}); err != nil {
		t.Fatalf("PersistSample: %v", err)
	}
	if err := store.PersistSample(ctx, "s1", 2.0, map[string]float64{"power": 130}); err != nil {
		t.Fatalf("PersistSample: %v", err)
	}

	n, err := client.HLen(ctx, "session:s1:samples").Result()
	if err != nil {
		t.Fatalf("HLen: %v", err)
	}
	if n != 2 {
		t.Fatalf("sample fields = %d, want 2 (duplicate key must upsert)", n)
	}

	raw, err := client.HGet(ctx, "session:s1:samples", "1.000").Result()
	if err != nil {
		t.Fatalf("HGet: %v", err)
	}
	var fields map[string]float64
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if fields["power"] != 120 {
		t.Fatalf("power = %v, want 120 (last write wins)", fields["power"])
	}
}

func TestRedisStoreFinalizeSession(t *testing.T) {
	store, client := newTestRedisStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	err := store.FinalizeSession(ctx, "s1", start, end, 3600,
		map[string]float64{"avg_power": 200})
	if err != nil {
		t.Fatalf("FinalizeSession: %v", err)
	}

	got, err := client.HGetAll(ctx, "session:s1").Result()
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if got["start_time"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("start_time = %q", got["start_time"])
	}
	if got["end_time"] != "2026-03-01T13:00:00Z" {
		t.Fatalf("end_time = %q", got["end_time"])
	}
	if got["duration_s"] != "3600.000" {
		t.Fatalf("duration_s = %q", got["duration_s"])
	}
	var summary map[string]float64
	if err := json.Unmarshal([]byte(got["summary"]), &summary); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if summary["avg_power"] != 200 {
		t.Fatalf("summary avg_power = %v, want 200", summary["avg_power"])
	}
}
