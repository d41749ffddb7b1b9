package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/cinelog/internal/store"
	_ "github.com/dropDatabas3/cinelog/internal/store/adapters/dal"
)

func TestAdaptersRegistered(t *testing.T) {
	assert.Equal(t, []string{"memory", "postgres", "sqlite"}, store.ListAdapters())
}

func TestOpenAdapter_Unknown(t *testing.T) {
	_, err := store.OpenAdapter(context.Background(), store.AdapterConfig{Name: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mongo" not registered`)
}

func TestOpenMemoryAndMigrate(t *testing.T) {
	ctx := context.Background()
	conn, err := store.OpenAdapter(ctx, store.AdapterConfig{Name: "memory"})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, store.Migrate(ctx, conn))
	require.NoError(t, conn.Ping(ctx))
	assert.NotNil(t, conn.Users())
	assert.NotNil(t, conn.Audit())
}

func TestOpenSQLiteAndMigrate(t *testing.T) {
	ctx := context.Background()
	conn, err := store.OpenAdapter(ctx, store.AdapterConfig{
		Name: "sqlite",
		DSN:  "file:registry_test?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, store.Migrate(ctx, conn))
	// idempotente
	require.NoError(t, store.Migrate(ctx, conn))
}
