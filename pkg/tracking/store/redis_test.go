package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient connects to a local Redis or skips the test when none is
// reachable, so the suite stays runnable without infrastructure.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()

	opt, _ := redis.ParseURL("redis://localhost:6379")
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("Skipping test: Redis not available (%v)", err)
	}

	return client
}

func TestParseIncrementReply(t *testing.T) {
	tests := []struct {
		name      string
		res       interface{}
		wantCount int64
		wantTTL   time.Duration
		wantErr   bool
	}{
		{
			name:      "valid pair",
			res:       []interface{}{int64(7), int64(30000)},
			wantCount: 7,
			wantTTL:   30 * time.Second,
		},
		{
			name:      "negative pttl uses full window",
			res:       []interface{}{int64(1), int64(-1)},
			wantCount: 1,
			wantTTL:   time.Minute,
		},
		{name: "not a slice", res: "OK", wantErr: true},
		{name: "wrong length", res: []interface{}{int64(7)}, wantErr: true},
		{name: "count not an integer", res: []interface{}{"7", int64(30000)}, wantErr: true},
		{name: "ttl not an integer", res: []interface{}{int64(7), "30000"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, ttl, err := parseIncrementReply(tt.res, time.Minute)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseIncrementReply(%v) = (%d, %v), want error", tt.res, count, ttl)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseIncrementReply(%v) error = %v", tt.res, err)
			}
			if count != tt.wantCount {
				t.Errorf("count = %d, want %d", count, tt.wantCount)
			}
			if ttl != tt.wantTTL {
				t.Errorf("ttl = %v, want %v", ttl, tt.wantTTL)
			}
		})
	}
}

func TestRedisStore_IncrementAndGet(t *testing.T) {
	client := redisClient(t)

	s, err := NewRedisStore(client, WithKeyPrefix("ganymede:test:"))
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	key := "incr-" + time.Now().Format("150405.000000")

	first, ttl, err := s.IncrementAndGet(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("IncrementAndGet failed: %v", err)
	}
	if first != 1 {
		t.Errorf("Expected first count 1, got %d", first)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected TTL in (0, 1m], got %v", ttl)
	}

	second, _, err := s.IncrementAndGet(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("IncrementAndGet failed: %v", err)
	}
	if second != 2 {
		t.Errorf("Expected second count 2, got %d", second)
	}
}

func TestRedisStore_DeadlineReportsUnavailable(t *testing.T) {
	client := redisClient(t)

	s, err := NewRedisStore(client, WithCallTimeout(time.Nanosecond))
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()

	_, _, err = s.IncrementAndGet(context.Background(), "deadline", time.Minute)
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got: %v", err)
	}
}

func TestRedisStore_UnreachableHost(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	if _, err := NewRedisStore(client); err == nil {
		t.Error("Expected connection error for unreachable host")
	}
}
