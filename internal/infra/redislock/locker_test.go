package redislock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dvloznov/finance-recurring/internal/engine"
	"github.com/google/uuid"
)

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := Connect(ctx, "127.0.0.1:1"); err == nil {
		t.Fatal("expected an error connecting to a closed port")
	}
}

// TestLocker_Redis runs against a real server when REDIS_URL is set.
func TestLocker_Redis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx := context.Background()
	locker, err := Connect(ctx, url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer locker.Close()

	key := "test:" + uuid.NewString()
	release, err := locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := locker.Acquire(ctx, key, time.Minute); !errors.Is(err, engine.ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}

	release()
	release()

	again, err := locker.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}
