//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"visit-recorder/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "visits",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://testuser:testpass@%s:%s/visits?sslmode=disable", host, port.Port())
}

func TestVisitRepository_Postgres(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t)

	pool, err := InitDB(ctx, dsn, 10, 1, time.Hour)
	require.NoError(t, err)
	repo := NewVisitRepository(pool)
	t.Cleanup(repo.Close)

	require.NoError(t, repo.EnsureSchema(ctx))
	require.NoError(t, repo.EnsureSchema(ctx))

	for i := 1; i <= 3; i++ {
		v := &domain.Visit{
			IP:         fmt.Sprintf("192.0.2.%d", i),
			Language:   "en-US",
			UserAgent:  "Mozilla/5.0",
			Platform:   "MacIntel",
			Timezone:   "America/New_York",
			DateAccess: "2025-03-14T09:26:53Z",
		}
		require.NoError(t, repo.Create(ctx, v))
		assert.Equal(t, int64(i), v.ID)
	}

	visits, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, "192.0.2.3", visits[0].IP)

	rest, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "192.0.2.1", rest[0].IP)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
