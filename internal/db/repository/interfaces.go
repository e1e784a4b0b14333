// Package repository provides data access layer implementations.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/mayura26/strategy-analyser-sub000/internal/db"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// StrategyRepository defines the interface for strategy data access.
type StrategyRepository interface {
	// GetOrCreate returns the strategy with the given name, creating it if needed.
	GetOrCreate(ctx context.Context, name string) (*domain.Strategy, error)

	// GetByID retrieves a strategy by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Strategy, error)

	// List lists strategies with their run statistics, ordered by name.
	List(ctx context.Context) ([]domain.StrategyWithStats, error)
}

// RunRepository defines the interface for run data access.
type RunRepository interface {
	// InsertRun inserts the run summary row.
	InsertRun(ctx context.Context, run *domain.Run) error

	// InsertDailyBuckets inserts the daily P&L buckets of a run.
	InsertDailyBuckets(ctx context.Context, runID uuid.UUID, buckets []domain.DailyBucket) error

	// InsertParameters inserts the strategy parameters of a run.
	InsertParameters(ctx context.Context, runID uuid.UUID, params []domain.Parameter) error

	// InsertMetrics inserts the custom metrics of a run.
	InsertMetrics(ctx context.Context, runID uuid.UUID, metrics []domain.Metric) error

	// InsertEvents inserts the auxiliary events of a run.
	InsertEvents(ctx context.Context, runID uuid.UUID, events domain.DetailedEvents) error

	// InsertTradeSummaries inserts the reconstructed trades of a run.
	InsertTradeSummaries(ctx context.Context, runID uuid.UUID, trades []domain.ReconstructedTrade) error

	// Create stores a run and all of its child records in one transaction.
	Create(ctx context.Context, run *domain.Run, parsed *domain.ParsedRun) error

	// GetByID retrieves a run summary by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)

	// GetDetail retrieves a run with all of its child records.
	GetDetail(ctx context.Context, id uuid.UUID) (*domain.RunDetail, error)

	// GetDailyBuckets retrieves the daily buckets of a run ordered by date.
	GetDailyBuckets(ctx context.Context, runID uuid.UUID) ([]domain.DailyBucket, error)

	// GetParameters retrieves the parameters of a run in log order.
	GetParameters(ctx context.Context, runID uuid.UUID) ([]domain.Parameter, error)

	// GetMetrics retrieves the custom metrics of a run.
	GetMetrics(ctx context.Context, runID uuid.UUID) ([]domain.Metric, error)

	// GetEvents retrieves the auxiliary events of a run.
	GetEvents(ctx context.Context, runID uuid.UUID) (domain.DetailedEvents, error)

	// GetTrades retrieves the reconstructed trades of a run in trade order.
	GetTrades(ctx context.Context, runID uuid.UUID) ([]domain.ReconstructedTrade, error)

	// GetRawLog retrieves the compressed raw log of a run.
	GetRawLog(ctx context.Context, runID uuid.UUID) ([]byte, error)

	// Query queries runs with filters and pagination.
	Query(ctx context.Context, query domain.RunQuery) ([]*domain.Run, int, error)

	// Delete deletes a run and its child records.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Repositories aggregates all repository interfaces.
type Repositories struct {
	Strategy StrategyRepository
	Run      RunRepository
}

// NewRepositories creates a new Repositories instance with all PostgreSQL implementations.
func NewRepositories(conn db.Conn) *Repositories {
	return &Repositories{
		Strategy: NewStrategyRepository(conn),
		Run:      NewRunRepository(conn),
	}
}
