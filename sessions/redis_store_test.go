package sessions_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-habit-session/sessions"
)

// TestRedisStore needs a live server: set TEST_REDIS_ADDR (and optionally TEST_REDIS_DB).
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	db, _ := strconv.Atoi(os.Getenv("TEST_REDIS_DB"))

	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "habits-test-" + uuid.NewString()
	backendContract(t, sessions.NewRedisStore(client, prefix))

	t.Run("keys are prefixed", func(t *testing.T) {
		ctx := context.Background()
		store := sessions.NewRedisStore(client, prefix)
		require.NoError(t, store.Set(ctx, "auth-storage", []byte("x")))
		defer client.Del(ctx, prefix+":auth-storage")

		val, err := client.Get(ctx, prefix+":auth-storage").Result()
		require.NoError(t, err)
		require.Equal(t, "x", val)
	})
}
