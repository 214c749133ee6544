//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/store/postgres"
)

func TestWatermarkRepo_Integration(t *testing.T) {
	db := setupTestContainer(t)
	repo := postgres.NewWatermarkRepo(db)
	ctx := context.Background()

	r, err := repo.Get(ctx, "dex-monitor")
	require.NoError(t, err)
	assert.Equal(t, model.Round(0), r)

	require.NoError(t, repo.Set(ctx, "dex-monitor", 36_000_050))
	r, err = repo.Get(ctx, "dex-monitor")
	require.NoError(t, err)
	assert.Equal(t, model.Round(36_000_050), r)

	// GREATEST guard.
	require.NoError(t, repo.Set(ctx, "dex-monitor", 36_000_000))
	r, err = repo.Get(ctx, "dex-monitor")
	require.NoError(t, err)
	assert.Equal(t, model.Round(36_000_050), r)

	require.NoError(t, repo.Set(ctx, "other", 7))
	r, err = repo.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, model.Round(7), r)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestContainer(t)
	ctx := context.Background()

	require.NoError(t, db.RunMigrations(ctx, postgres.Migrations()))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}
