package ratelimit

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestGCRA(t *testing.T) {
	rate := Rate{Requests: 3, Period: time.Minute}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var tat time.Time
	for i := 0; i < 3; i++ {
		next, limited := gcra(tat, start, rate)
		if limited {
			t.Fatalf("request %d limited inside the burst", i)
		}
		tat = next
	}
	next, limited := gcra(tat, start, rate)
	if !limited {
		t.Fatalf("fourth request admitted")
	}
	if !next.Equal(tat) {
		t.Fatalf("limited request changed TAT: %v -> %v", tat, next)
	}
	if _, limited := gcra(tat, start.Add(20*time.Second), rate); limited {
		t.Fatalf("request after one interval should pass")
	}
	if _, limited := gcra(tat, start.Add(19*time.Second), rate); !limited {
		t.Fatalf("request before one interval should be limited")
	}
}

func TestMemoryLimiterPerKey(t *testing.T) {
	m, err := NewMemory(Rate{Requests: 2, Period: time.Minute})
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	want := []bool{false, false, true, true}
	for i, w := range want {
		got, err := m.CheckAndConsume(ctx, "alice")
		if err != nil || got != w {
			t.Fatalf("alice request %d: limited=%v err=%v, want %v", i, got, err, w)
		}
	}
	if limited, _ := m.CheckAndConsume(ctx, "bob"); limited {
		t.Fatalf("bob limited by alice's traffic")
	}
	now = now.Add(30 * time.Second)
	if limited, _ := m.CheckAndConsume(ctx, "alice"); limited {
		t.Fatalf("alice still limited after one interval")
	}
}

func TestRateValidate(t *testing.T) {
	if _, err := NewMemory(Rate{Requests: 0, Period: time.Minute}); err == nil {
		t.Fatalf("expected error for zero requests")
	}
	if _, err := NewRedis(nil, Rate{Requests: 1}, ""); err == nil {
		t.Fatalf("expected error for zero period")
	}
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	key := "test-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	limiter, err := NewRedis(client, Rate{Requests: 2, Period: time.Minute}, "")
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer client.Del(ctx, "ratelimit:"+key)

	want := []bool{false, false, true}
	for i, w := range want {
		got, err := limiter.CheckAndConsume(ctx, key)
		if err != nil || got != w {
			t.Fatalf("request %d: limited=%v err=%v, want %v", i, got, err, w)
		}
	}
	ttl, err := client.PTTL(ctx, "ratelimit:"+key).Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, %v", ttl, err)
	}
}
