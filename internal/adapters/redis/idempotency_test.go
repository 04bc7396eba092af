package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	redisadapter "github.com/eventloom/ticketpay/internal/adapters/redis"
)

func startRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redisclient.NewClient(&redisclient.Options{Addr: endpoint})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestReplayCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := startRedis(t)
	ctx := context.Background()

	cache := redisadapter.NewReplayCache(client, time.Minute)

	got, err := cache.Get(ctx, "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	stored := redisadapter.CachedResponse{Status: 201, Body: []byte(`{"pidx":"abc"}`)}
	if err := cache.Set(ctx, "key-1", stored); err != nil {
		t.Fatal(err)
	}
	got, err = cache.Get(ctx, "key-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected hit")
	}
	if got.Status != stored.Status || string(got.Body) != string(stored.Body) {
		t.Errorf("got %+v, want %+v", got, stored)
	}
}

func TestReplayCache_Expires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := startRedis(t)
	ctx := context.Background()

	cache := redisadapter.NewReplayCache(client, 100*time.Millisecond)
	if err := cache.Set(ctx, "short-lived", redisadapter.CachedResponse{Status: 200}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)

	got, err := cache.Get(ctx, "short-lived")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected entry to expire, got %+v", got)
	}
}

func TestCheckoutLock(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := startRedis(t)
	ctx := context.Background()

	cache := redisadapter.NewCache(client)
	eventID, userID := uuid.New(), uuid.New()

	ok, err := cache.AcquireCheckout(ctx, eventID, userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	ok, err = cache.AcquireCheckout(ctx, eventID, userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("second acquire should be refused while held")
	}

	if err := cache.ReleaseCheckout(ctx, eventID, userID); err != nil {
		t.Fatal(err)
	}
	ok, err = cache.AcquireCheckout(ctx, eventID, userID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
}
