package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mayura26/strategy-analyser-sub000/internal/db"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// strategyRepo implements StrategyRepository using PostgreSQL.
type strategyRepo struct {
	db db.Querier
}

// NewStrategyRepository creates a new PostgreSQL strategy repository.
func NewStrategyRepository(q db.Querier) StrategyRepository {
	return &strategyRepo{db: q}
}

const selectStrategyByName = `
	SELECT id, name, created_at
	FROM strategies
	WHERE name = $1
`

func (r *strategyRepo) getByName(ctx context.Context, name string) (*domain.Strategy, error) {
	s := &domain.Strategy{}
	err := r.db.QueryRow(ctx, selectStrategyByName, name).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("strategy", name)
		}
		return nil, fmt.Errorf("failed to get strategy by name: %w", err)
	}
	return s, nil
}

func (r *strategyRepo) GetOrCreate(ctx context.Context, name string) (*domain.Strategy, error) {
	name = domain.NormalizeStrategyName(name)

	existing, err := r.getByName(ctx, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	strategy := domain.NewStrategy(name)
	query := `
		INSERT INTO strategies (id, name, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.Exec(ctx, query, strategy.ID, strategy.Name, strategy.CreatedAt); err != nil {
		if isDuplicateKeyError(err) {
			// Created concurrently by another writer.
			return r.getByName(ctx, name)
		}
		return nil, fmt.Errorf("failed to create strategy: %w", err)
	}

	return strategy, nil
}

func (r *strategyRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Strategy, error) {
	query := `
		SELECT id, name, created_at
		FROM strategies
		WHERE id = $1
	`

	s := &domain.Strategy{}
	err := r.db.QueryRow(ctx, query, id).Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("strategy", id.String())
		}
		return nil, fmt.Errorf("failed to get strategy: %w", err)
	}

	return s, nil
}

func (r *strategyRepo) List(ctx context.Context) ([]domain.StrategyWithStats, error) {
	query := `
		SELECT
			s.id, s.name, s.created_at,
			COUNT(r.id) AS run_count,
			MAX(r.net_pnl) AS best_net_pnl,
			MAX(r.created_at) AS last_run_at
		FROM strategies s
		LEFT JOIN runs r ON r.strategy_id = s.id
		GROUP BY s.id, s.name, s.created_at
		ORDER BY s.name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	strategies := make([]domain.StrategyWithStats, 0)
	for rows.Next() {
		var s domain.StrategyWithStats
		if err := rows.Scan(
			&s.ID, &s.Name, &s.CreatedAt,
			&s.RunCount, &s.BestNetPnl, &s.LastRunAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		strategies = append(strategies, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate strategies: %w", err)
	}

	return strategies, nil
}

func isDuplicateKeyError(err error) bool {
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "unique constraint")
}
