package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

func newMockStrategyRepo(t *testing.T) (pgxmock.PgxPoolIface, StrategyRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewStrategyRepository(mock)
}

func strategyRows(id uuid.UUID, name string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "created_at"}).
		AddRow(id, name, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestStrategyRepository_GetOrCreateExisting(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM strategies WHERE name = \\$1").
		WithArgs("MagicLinesScalper").
		WillReturnRows(strategyRows(id, "MagicLinesScalper"))

	s, err := repo.GetOrCreate(context.Background(), "  MagicLinesScalper ")
	require.NoError(t, err)
	assert.Equal(t, id, s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetOrCreateNew(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)

	mock.ExpectQuery("FROM strategies WHERE name").
		WithArgs("Unknown").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO strategies").
		WithArgs(pgxmock.AnyArg(), "Unknown", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s, err := repo.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Unknown", s.Name)
	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetOrCreateConcurrentInsert(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)
	winner := uuid.New()

	mock.ExpectQuery("FROM strategies WHERE name").WithArgs("S1").WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("INSERT INTO strategies").
		WillReturnError(errors.New(`duplicate key value violates unique constraint "strategies_name_key"`))
	mock.ExpectQuery("FROM strategies WHERE name").WithArgs("S1").WillReturnRows(strategyRows(winner, "S1"))

	s, err := repo.GetOrCreate(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, winner, s.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetOrCreateQueryError(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)

	mock.ExpectQuery("FROM strategies").WillReturnError(errors.New("connection reset"))

	_, err := repo.GetOrCreate(context.Background(), "S1")
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStrategyRepository_GetByID(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)
	id := uuid.New()

	mock.ExpectQuery("FROM strategies WHERE id = \\$1").WithArgs(id).WillReturnRows(strategyRows(id, "S1"))
	s, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "S1", s.Name)

	missing := uuid.New()
	mock.ExpectQuery("FROM strategies WHERE id").WithArgs(missing).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(context.Background(), missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStrategyRepository_List(t *testing.T) {
	mock, repo := newMockStrategyRepo(t)
	best := 42.5
	last := time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("LEFT JOIN runs r ON r.strategy_id = s.id").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "created_at", "run_count", "best_net_pnl", "last_run_at"}).
			AddRow(uuid.New(), "Alpha", time.Now(), 3, &best, &last).
			AddRow(uuid.New(), "Beta", time.Now(), 0, nil, nil))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, 3, list[0].RunCount)
	require.NotNil(t, list[0].BestNetPnl)
	assert.Equal(t, 42.5, *list[0].BestNetPnl)
	require.NotNil(t, list[0].LastRunAt)
	assert.True(t, last.Equal(*list[0].LastRunAt))

	assert.Zero(t, list[1].RunCount)
	assert.Nil(t, list[1].BestNetPnl)
	assert.Nil(t, list[1].LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
