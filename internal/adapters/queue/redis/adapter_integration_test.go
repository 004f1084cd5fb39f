//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"omvstack.control/internal/core/domain"
)

func startRedis(ctx context.Context, t *testing.T) (*goredis.Client, func()) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(1 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	return client, func() {
		_ = client.Close()
		_ = container.Terminate(context.Background())
	}
}

func TestRedisAdapter_EventsAndLocks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, cleanup := startRedis(ctx, t)
	defer cleanup()

	adapter := NewFromClient(client, time.Minute)

	subCtx, stop := context.WithCancel(ctx)
	defer stop()
	events, err := adapter.Subscribe(subCtx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := adapter.Publish(ctx, domain.Event{Type: domain.EventStatusChanged, Service: "Immich"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-events:
		if got.Type != domain.EventStatusChanged || got.Service != "Immich" {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("event not received")
	}

	ok, err := adapter.Acquire(ctx, "Immich", "install:1")
	if err != nil || !ok {
		t.Fatalf("acquire: %v, %v", ok, err)
	}
	if ok, _ := adapter.Acquire(ctx, "Immich", "restart:2"); ok {
		t.Fatal("lock acquired twice")
	}
	if holder, _ := adapter.Holder(ctx, "Immich"); holder != "install:1" {
		t.Fatalf("holder = %q", holder)
	}

	// Only the owner can release.
	if err := adapter.Release(ctx, "Immich", "restart:2"); err != nil {
		t.Fatal(err)
	}
	if holder, _ := adapter.Holder(ctx, "Immich"); holder != "install:1" {
		t.Fatalf("holder after foreign release = %q", holder)
	}
	if err := adapter.Release(ctx, "Immich", "install:1"); err != nil {
		t.Fatal(err)
	}
	if holder, _ := adapter.Holder(ctx, "Immich"); holder != "" {
		t.Fatalf("holder after release = %q", holder)
	}

	if ok, _ := adapter.Acquire(ctx, "Gitea", "remove:3"); !ok {
		t.Fatal("acquire Gitea")
	}
	if ttl, _ := client.TTL(ctx, LockKeyPrefix+"Gitea").Result(); ttl <= 0 || ttl > time.Minute {
		t.Errorf("lock ttl = %v", ttl)
	}
}

func TestRedisAdapter_LockOutlivesTTL(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	client, cleanup := startRedis(ctx, t)
	defer cleanup()

	adapter := NewFromClient(client, 600*time.Millisecond)

	if ok, err := adapter.Acquire(ctx, "Immich", "install:1"); err != nil || !ok {
		t.Fatalf("acquire: %v, %v", ok, err)
	}
	// A slow install runs past several TTLs and keeps the lock.
	time.Sleep(2 * time.Second)
	if holder, _ := adapter.Holder(ctx, "Immich"); holder != "install:1" {
		t.Fatalf("holder after 2s = %q", holder)
	}
	if ok, _ := adapter.Acquire(ctx, "Immich", "install:2"); ok {
		t.Fatal("second install took a held lock")
	}

	if err := adapter.Release(ctx, "Immich", "install:1"); err != nil {
		t.Fatal(err)
	}
	if holder, _ := adapter.Holder(ctx, "Immich"); holder != "" {
		t.Fatalf("holder after release = %q", holder)
	}

	// A lock left by a stopped engine still expires.
	if ok, _ := client.SetNX(ctx, LockKeyPrefix+"Gitea", "remove:3", 600*time.Millisecond).Result(); !ok {
		t.Fatal("seed stale lock")
	}
	time.Sleep(time.Second)
	if holder, _ := adapter.Holder(ctx, "Gitea"); holder != "" {
		t.Errorf("stale holder = %q", holder)
	}
}
