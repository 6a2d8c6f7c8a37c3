package cache_test

import (
	"testing"
	"time"

	"github.com/boddenberg/ops-bfa-go/internal/infra/cache"
	"github.com/boddenberg/ops-bfa-go/internal/port"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	_ port.Cache[string] = (*cache.InMemory[string])(nil)
	_ port.Cache[string] = (*cache.Redis[string])(nil)
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	c.Set("funnel:f1:all", 1)
	c.Set("funnel:f1:2024-01-01..2024-01-31", 2)
	c.Set("funnel:f10:all", 3)

	c.DeletePrefix("funnel:f1:")

	if _, ok := c.Get("funnel:f1:all"); ok {
		t.Error("expected funnel:f1:all to be dropped")
	}
	if _, ok := c.Get("funnel:f1:2024-01-01..2024-01-31"); ok {
		t.Error("expected windowed key to be dropped")
	}
	if _, ok := c.Get("funnel:f10:all"); !ok {
		t.Error("expected funnel:f10 to survive")
	}
}

func TestRedis_KeyIsNamespaced(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	c := cache.NewRedis[string](client, "revenue", time.Minute, zap.NewNop())
	if got := c.Key("funnel:f1:all"); got != "bfa:revenue:funnel:f1:all" {
		t.Errorf("unexpected key %q", got)
	}
}
