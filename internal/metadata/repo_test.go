package metadata

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/draftsync/pkg/config"
	"github.com/angelmondragon/draftsync/pkg/db"
	"github.com/angelmondragon/draftsync/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	client, err := db.New(ctx, config.DBConfig{DSN: dsn, MaxOpenConns: 1, MaxIdleConns: 1}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.NoError(t, migrate.Ensure(ctx, sqlDB, nil))
	return NewRepository(client.DB())
}

func TestRepository_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, ok, err := repo.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Set(ctx, "legacy_migration_done", "1"))
	require.NoError(t, repo.Set(ctx, "legacy_migration_done", "2"))

	value, ok, err := repo.Get(ctx, "legacy_migration_done")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", value)

	require.NoError(t, repo.Set(ctx, "other", "x"))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"legacy_migration_done": "2", "other": "x"}, all)

	require.NoError(t, repo.Delete(ctx, "other"))
	require.NoError(t, repo.Delete(ctx, "other"))
	_, ok, err = repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, ok)
}
