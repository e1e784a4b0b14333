package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// TestRunRepository_Lifecycle stores, reads back and deletes a run against a live database.
func TestRunRepository_Lifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	pool := setupTestDB(t)
	truncateTables(t, pool, "runs", "strategies")

	repos := NewRepositories(pool)

	strategy, err := repos.Strategy.GetOrCreate(ctx, "MagicLinesScalper")
	require.NoError(t, err)

	again, err := repos.Strategy.GetOrCreate(ctx, "MagicLinesScalper")
	require.NoError(t, err)
	assert.Equal(t, strategy.ID, again.ID)

	parsed := testParsedRun()
	run := domain.NewRun(strategy, parsed, "integration")
	require.NoError(t, repos.Run.Create(ctx, run, parsed))

	t.Run("GetDetail", func(t *testing.T) {
		detail, err := repos.Run.GetDetail(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "MagicLinesScalper", detail.Run.StrategyName)
		assert.Equal(t, parsed.DailyPnl, detail.DailyPnl)
		assert.Equal(t, parsed.Parameters, detail.Parameters)
		assert.Len(t, detail.DetailedTrades, 2)
		assert.Len(t, detail.DetailedEvents.SLAdjustments, 1)
	})

	t.Run("StrategyStats", func(t *testing.T) {
		list, err := repos.Strategy.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, 1, list[0].RunCount)
		require.NotNil(t, list[0].BestNetPnl)
		assert.Equal(t, 15.0, *list[0].BestNetPnl)
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		require.NoError(t, repos.Run.Delete(ctx, run.ID))
		_, err := repos.Run.GetByID(ctx, run.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		trades, err := repos.Run.GetTrades(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, trades)
	})
}

// TestPool_ConfigHealthCheck connects the way the server does.
func TestPool_ConfigHealthCheck(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := setupTestPoolFromConfig(t)
	assert.NoError(t, pool.HealthCheck(context.Background()))
}
