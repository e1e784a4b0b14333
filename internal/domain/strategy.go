package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Strategy groups runs produced by the same strategy.
type Strategy struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewStrategy creates a new Strategy with generated UUID.
func NewStrategy(name string) *Strategy {
	return &Strategy{
		ID:        uuid.New(),
		Name:      NormalizeStrategyName(name),
		CreatedAt: time.Now(),
	}
}

// StrategyWithStats is a strategy with aggregate run figures.
type StrategyWithStats struct {
	Strategy
	RunCount   int        `json:"run_count"`
	BestNetPnl *float64   `json:"best_net_pnl,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
}

// NormalizeStrategyName trims and collapses whitespace in a strategy name.
// An empty name becomes "Unknown".
func NormalizeStrategyName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "Unknown"
	}
	return name
}
