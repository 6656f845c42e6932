package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestRedis is a disposable Redis container with a connected client
type TestRedis struct {
	Container *tcredis.RedisContainer
	Client    *redis.Client
}

// SetupTestRedis starts a Redis container and registers its cleanup
func SetupTestRedis(t *testing.T) *TestRedis {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithLabels(map[string]string{
			"test":      "stakehouse-redis",
			"test-name": t.Name(),
			"cleanup":   "auto",
		}),
	)
	require.NoError(t, err)

	tr := &TestRedis{Container: container}
	t.Cleanup(func() {
		if tr.Client != nil {
			_ = tr.Client.Close()
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("Warning: Failed to terminate redis container: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)

	tr.Client = redis.NewClient(opts)
	require.NoError(t, tr.Client.Ping(ctx).Err())
	return tr
}
