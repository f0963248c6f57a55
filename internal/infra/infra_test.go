package infra

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	defer client.Close()

	if client.Options().PoolSize != batchPoolSize {
		t.Fatalf("expected pool size %d, got %d", batchPoolSize, client.Options().PoolSize)
	}
}

func TestNewRedisClientErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRedisClient(ctx, ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewRedisClient(ctx, "://bad"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}

func TestNewPostgresPoolErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewPostgresPool(ctx, ""); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewPostgresPool(ctx, "postgres://%zz"); err == nil {
		t.Fatal("expected error for malformed url")
	}
}
