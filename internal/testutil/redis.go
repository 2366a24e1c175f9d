package testutil

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// SetupTestRedis запускает Redis testcontainer и возвращает redis:// URL.
func SetupTestRedis(tb testing.TB) string {
	tb.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		tb.Fatalf("starting redis container: %v", err)
	}
	tb.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			tb.Logf("terminating redis container: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	if err != nil {
		tb.Fatalf("getting redis connection string: %v", err)
	}
	return url
}
