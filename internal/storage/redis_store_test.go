package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)

	_, err := store.Get(ctx, "user:1:weeklyMenu")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "user:1:weeklyMenu", []byte(`[]`)))

	got, err := store.Get(ctx, "user:1:weeklyMenu")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))

	assert.Zero(t, mr.TTL("user:1:weeklyMenu"), "values should not expire")

	mr.SetError("server down")
	_, err = store.Get(ctx, "user:1:weeklyMenu")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
