//go:build integration

package ban

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/clanregistry/internal/config"
	"github.com/udisondev/clanregistry/internal/testutil"
)

func TestRedisList(t *testing.T) {
	ctx := context.Background()
	url := testutil.SetupTestRedis(t)

	client, err := NewClient(ctx, config.RedisConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisList(client, WithKey("test:banned"))
	require.NoError(t, l.Health(ctx))

	banned, err := l.IsBanned(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, banned)

	require.NoError(t, l.Ban(ctx, "alice"))
	banned, err = l.IsBanned(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, banned)

	members, err := client.SMembers(ctx, "test:banned").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	require.NoError(t, l.Unban(ctx, "alice"))
	banned, err = l.IsBanned(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, banned)
}
