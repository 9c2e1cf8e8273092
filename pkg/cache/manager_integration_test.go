//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		container.Terminate(ctx)
	})
	return client
}

func TestManager_Integration(t *testing.T) {
	mirrorContract(t, NewManager(setupRedisContainer(t), time.Minute))
}

func TestManager_Integration_SharedBetweenManagers(t *testing.T) {
	client := setupRedisContainer(t)
	ctx := context.Background()
	key := SnapshotKey("https://shop.example.com")

	writer := NewManager(client, time.Minute)
	reader := NewManager(client, time.Minute)

	if err := writer.Store(ctx, key, NewSnapshot(map[string]int{"Shoes": 5})); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := writer.Put(ctx, key, "Hats", 6); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	snap, err := reader.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Categories["Hats"] != 6 || snap.Categories["Shoes"] != 5 {
		t.Errorf("Categories = %v", snap.Categories)
	}
}
