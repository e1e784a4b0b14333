package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mayura26/strategy-analyser-sub000/internal/db"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// maxRowsPerInsert keeps multi-row inserts below the PostgreSQL parameter limit.
const maxRowsPerInsert = 1000

// runRepo implements RunRepository using PostgreSQL.
type runRepo struct {
	db db.Conn
}

// NewRunRepository creates a new PostgreSQL run repository.
func NewRunRepository(conn db.Conn) RunRepository {
	return &runRepo{db: conn}
}

const runColumns = `
	r.id, r.strategy_id, s.name, r.name, r.dialect, r.source, r.point_value,
	r.net_pnl, r.total_trades, r.winning_trades, r.losing_trades, r.win_rate,
	r.gross_profit, r.gross_loss, r.profit_factor, r.max_drawdown, r.sharpe_ratio,
	r.dropped_fills, r.line_stats, r.created_at
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	run := &domain.Run{}
	var lineStats []byte

	err := row.Scan(
		&run.ID, &run.StrategyID, &run.StrategyName, &run.Name, &run.Dialect, &run.Source, &run.PointValue,
		&run.NetPnl, &run.TotalTrades, &run.WinningTrades, &run.LosingTrades, &run.WinRate,
		&run.GrossProfit, &run.GrossLoss, &run.ProfitFactor, &run.MaxDrawdown, &run.SharpeRatio,
		&run.DroppedFills, &lineStats, &run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(lineStats) > 0 {
		if err := json.Unmarshal(lineStats, &run.LineStats); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line stats: %w", err)
		}
	}
	return run, nil
}

// bulkInsert inserts rows with multi-row INSERT statements.
func bulkInsert(ctx context.Context, q db.Querier, table string, columns []string, rows [][]any) error {
	for start := 0; start < len(rows); start += maxRowsPerInsert {
		end := start + maxRowsPerInsert
		if end > len(rows) {
			end = len(rows)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

		args := make([]any, 0, (end-start)*len(columns))
		for i, row := range rows[start:end] {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteByte('(')
			for j, v := range row {
				if j > 0 {
					sb.WriteString(", ")
				}
				args = append(args, v)
				fmt.Fprintf(&sb, "$%d", len(args))
			}
			sb.WriteByte(')')
		}

		if _, err := q.Exec(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}

func insertRun(ctx context.Context, q db.Querier, run *domain.Run) error {
	lineStats := []byte("[]")
	if run.LineStats != nil {
		var err error
		if lineStats, err = json.Marshal(run.LineStats); err != nil {
			return fmt.Errorf("failed to marshal line stats: %w", err)
		}
	}

	query := `
		INSERT INTO runs (
			id, strategy_id, name, dialect, source, point_value,
			net_pnl, total_trades, winning_trades, losing_trades, win_rate,
			gross_profit, gross_loss, profit_factor, max_drawdown, sharpe_ratio,
			dropped_fills, line_stats, raw_log, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20
		)
	`

	_, err := q.Exec(ctx, query,
		run.ID, run.StrategyID, run.Name, run.Dialect, run.Source, run.PointValue,
		run.NetPnl, run.TotalTrades, run.WinningTrades, run.LosingTrades, run.WinRate,
		run.GrossProfit, run.GrossLoss, run.ProfitFactor, run.MaxDrawdown, run.SharpeRatio,
		run.DroppedFills, lineStats, run.RawLog, run.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return domain.NewDuplicateError("run", "id", run.ID.String())
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func insertDailyBuckets(ctx context.Context, q db.Querier, runID uuid.UUID, buckets []domain.DailyBucket) error {
	rows := make([][]any, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, []any{runID, b.Date, b.NetPnl, b.TradeCount, b.HighestIntradayPnl, b.LowestIntradayPnl})
	}
	return bulkInsert(ctx, q, "run_daily_pnl",
		[]string{"run_id", "trade_date", "net_pnl", "trade_count", "highest_intraday_pnl", "lowest_intraday_pnl"},
		rows)
}

func insertParameters(ctx context.Context, q db.Querier, runID uuid.UUID, params []domain.Parameter) error {
	rows := make([][]any, 0, len(params))
	for i, p := range params {
		rows = append(rows, []any{runID, i, p.Name, p.Value, string(p.Type)})
	}
	return bulkInsert(ctx, q, "run_parameters",
		[]string{"run_id", "position", "name", "value", "value_type"},
		rows)
}

func insertMetrics(ctx context.Context, q db.Querier, runID uuid.UUID, metrics []domain.Metric) error {
	rows := make([][]any, 0, len(metrics))
	for i, m := range metrics {
		rows = append(rows, []any{runID, i, m.Name, m.Value, m.Description})
	}
	return bulkInsert(ctx, q, "run_metrics",
		[]string{"run_id", "position", "name", "value", "description"},
		rows)
}

func insertEvents(ctx context.Context, q db.Querier, runID uuid.UUID, events domain.DetailedEvents) error {
	rows := make([][]any, 0, events.Count())
	add := func(kind domain.EventKind, i int, date, tm string, tradeID int, v any) error {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", kind, err)
		}
		rows = append(rows, []any{runID, i, string(kind), date, tm, tradeID, payload})
		return nil
	}
	for i, e := range events.TPNearMisses {
		if err := add(domain.EventKindTPNearMiss, i, e.Date, e.Time, e.TradeID, e); err != nil {
			return err
		}
	}
	for i, e := range events.FillNearMisses {
		if err := add(domain.EventKindFillNearMiss, i, e.Date, e.Time, e.TradeID, e); err != nil {
			return err
		}
	}
	for i, e := range events.SLAdjustments {
		if err := add(domain.EventKindSLAdjustment, i, e.Date, e.Time, e.TradeID, e); err != nil {
			return err
		}
	}
	return bulkInsert(ctx, q, "run_events",
		[]string{"run_id", "position", "kind", "trade_date", "trade_time", "trade_id", "payload"},
		rows)
}

func insertTrades(ctx context.Context, q db.Querier, runID uuid.UUID, trades []domain.ReconstructedTrade) error {
	rows := make([][]any, 0, len(trades))
	for i, t := range trades {
		rows = append(rows, []any{
			runID, i, t.Date, t.Time, t.TradeID, string(t.Direction),
			t.EntryPrice, t.ExitPrice, t.RealizedPnl, t.MaxProfitDollars, t.MaxLossDollars,
			t.BarsHeld, t.LineLabel, t.SLAdjustmentCount, t.NearMissCount,
		})
	}
	return bulkInsert(ctx, q, "run_trades",
		[]string{
			"run_id", "position", "trade_date", "trade_time", "trade_id", "direction",
			"entry_price", "exit_price", "realized_pnl", "max_profit_dollars", "max_loss_dollars",
			"bars_held", "line_label", "sl_adjustment_count", "near_miss_count",
		},
		rows)
}

func (r *runRepo) InsertRun(ctx context.Context, run *domain.Run) error {
	return insertRun(ctx, r.db, run)
}

func (r *runRepo) InsertDailyBuckets(ctx context.Context, runID uuid.UUID, buckets []domain.DailyBucket) error {
	return insertDailyBuckets(ctx, r.db, runID, buckets)
}

func (r *runRepo) InsertParameters(ctx context.Context, runID uuid.UUID, params []domain.Parameter) error {
	return insertParameters(ctx, r.db, runID, params)
}

func (r *runRepo) InsertMetrics(ctx context.Context, runID uuid.UUID, metrics []domain.Metric) error {
	return insertMetrics(ctx, r.db, runID, metrics)
}

func (r *runRepo) InsertEvents(ctx context.Context, runID uuid.UUID, events domain.DetailedEvents) error {
	return insertEvents(ctx, r.db, runID, events)
}

func (r *runRepo) InsertTradeSummaries(ctx context.Context, runID uuid.UUID, trades []domain.ReconstructedTrade) error {
	return insertTrades(ctx, r.db, runID, trades)
}

func (r *runRepo) Create(ctx context.Context, run *domain.Run, parsed *domain.ParsedRun) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		if err := insertDailyBuckets(ctx, tx, run.ID, parsed.DailyPnl); err != nil {
			return err
		}
		if err := insertParameters(ctx, tx, run.ID, parsed.Parameters); err != nil {
			return err
		}
		if err := insertMetrics(ctx, tx, run.ID, parsed.CustomMetrics); err != nil {
			return err
		}
		if err := insertEvents(ctx, tx, run.ID, parsed.DetailedEvents); err != nil {
			return err
		}
		return insertTrades(ctx, tx, run.ID, parsed.DetailedTrades)
	})
}

func (r *runRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM runs r
		JOIN strategies s ON s.id = r.strategy_id
		WHERE r.id = $1
	`

	run, err := scanRun(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", id.String())
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

func (r *runRepo) GetDetail(ctx context.Context, id uuid.UUID) (*domain.RunDetail, error) {
	run, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.RunDetail{Run: run}
	if detail.DailyPnl, err = r.GetDailyBuckets(ctx, id); err != nil {
		return nil, err
	}
	if detail.Parameters, err = r.GetParameters(ctx, id); err != nil {
		return nil, err
	}
	if detail.CustomMetrics, err = r.GetMetrics(ctx, id); err != nil {
		return nil, err
	}
	if detail.DetailedEvents, err = r.GetEvents(ctx, id); err != nil {
		return nil, err
	}
	if detail.DetailedTrades, err = r.GetTrades(ctx, id); err != nil {
		return nil, err
	}

	return detail, nil
}

func (r *runRepo) GetDailyBuckets(ctx context.Context, runID uuid.UUID) ([]domain.DailyBucket, error) {
	query := `
		SELECT trade_date, net_pnl, trade_count, highest_intraday_pnl, lowest_intraday_pnl
		FROM run_daily_pnl
		WHERE run_id = $1
		ORDER BY trade_date
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily buckets: %w", err)
	}
	defer rows.Close()

	buckets := make([]domain.DailyBucket, 0)
	for rows.Next() {
		var b domain.DailyBucket
		if err := rows.Scan(&b.Date, &b.NetPnl, &b.TradeCount, &b.HighestIntradayPnl, &b.LowestIntradayPnl); err != nil {
			return nil, fmt.Errorf("failed to scan daily bucket: %w", err)
		}
		buckets = append(buckets, b)
	}

	return buckets, rows.Err()
}

func (r *runRepo) GetParameters(ctx context.Context, runID uuid.UUID) ([]domain.Parameter, error) {
	query := `
		SELECT name, value, value_type
		FROM run_parameters
		WHERE run_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get parameters: %w", err)
	}
	defer rows.Close()

	params := make([]domain.Parameter, 0)
	for rows.Next() {
		var p domain.Parameter
		var typ string
		if err := rows.Scan(&p.Name, &p.Value, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan parameter: %w", err)
		}
		p.Type = domain.ParamType(typ)
		params = append(params, p)
	}

	return params, rows.Err()
}

func (r *runRepo) GetMetrics(ctx context.Context, runID uuid.UUID) ([]domain.Metric, error) {
	query := `
		SELECT name, value, description
		FROM run_metrics
		WHERE run_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]domain.Metric, 0)
	for rows.Next() {
		var m domain.Metric
		if err := rows.Scan(&m.Name, &m.Value, &m.Description); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	return metrics, rows.Err()
}

func (r *runRepo) GetEvents(ctx context.Context, runID uuid.UUID) (domain.DetailedEvents, error) {
	events := domain.DetailedEvents{
		TPNearMisses:   make([]domain.TPNearMiss, 0),
		FillNearMisses: make([]domain.FillNearMiss, 0),
		SLAdjustments:  make([]domain.SLAdjustment, 0),
	}

	query := `
		SELECT kind, payload
		FROM run_events
		WHERE run_id = $1
		ORDER BY kind, position
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return events, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var payload []byte
		if err := rows.Scan(&kind, &payload); err != nil {
			return events, fmt.Errorf("failed to scan event: %w", err)
		}

		var err error
		switch domain.EventKind(kind) {
		case domain.EventKindTPNearMiss:
			var e domain.TPNearMiss
			if err = json.Unmarshal(payload, &e); err == nil {
				events.TPNearMisses = append(events.TPNearMisses, e)
			}
		case domain.EventKindFillNearMiss:
			var e domain.FillNearMiss
			if err = json.Unmarshal(payload, &e); err == nil {
				events.FillNearMisses = append(events.FillNearMisses, e)
			}
		case domain.EventKindSLAdjustment:
			var e domain.SLAdjustment
			if err = json.Unmarshal(payload, &e); err == nil {
				events.SLAdjustments = append(events.SLAdjustments, e)
			}
		}
		if err != nil {
			return events, fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
		}
	}

	return events, rows.Err()
}

func (r *runRepo) GetTrades(ctx context.Context, runID uuid.UUID) ([]domain.ReconstructedTrade, error) {
	query := `
		SELECT
			trade_date, trade_time, trade_id, direction,
			entry_price, exit_price, realized_pnl, max_profit_dollars, max_loss_dollars,
			bars_held, line_label, sl_adjustment_count, near_miss_count
		FROM run_trades
		WHERE run_id = $1
		ORDER BY position
	`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get trades: %w", err)
	}
	defer rows.Close()

	trades := make([]domain.ReconstructedTrade, 0)
	for rows.Next() {
		var t domain.ReconstructedTrade
		var direction string
		if err := rows.Scan(
			&t.Date, &t.Time, &t.TradeID, &direction,
			&t.EntryPrice, &t.ExitPrice, &t.RealizedPnl, &t.MaxProfitDollars, &t.MaxLossDollars,
			&t.BarsHeld, &t.LineLabel, &t.SLAdjustmentCount, &t.NearMissCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Direction = domain.DirectionFromString(direction)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

func (r *runRepo) GetRawLog(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT raw_log FROM runs WHERE id = $1`, runID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("run", runID.String())
		}
		return nil, fmt.Errorf("failed to get raw log: %w", err)
	}
	return raw, nil
}

func (r *runRepo) Query(ctx context.Context, query domain.RunQuery) ([]*domain.Run, int, error) {
	query.SetDefaults()

	var conditions []string
	var args []interface{}
	argNum := 1

	if query.StrategyID != nil {
		conditions = append(conditions, fmt.Sprintf("r.strategy_id = $%d", argNum))
		args = append(args, *query.StrategyID)
		argNum++
	}

	if query.Dialect != nil {
		conditions = append(conditions, fmt.Sprintf("r.dialect = $%d", argNum))
		args = append(args, *query.Dialect)
		argNum++
	}

	if query.MinTrades != nil {
		conditions = append(conditions, fmt.Sprintf("r.total_trades >= $%d", argNum))
		args = append(args, *query.MinTrades)
		argNum++
	}

	if query.MinNetPnl != nil {
		conditions = append(conditions, fmt.Sprintf("r.net_pnl >= $%d", argNum))
		args = append(args, *query.MinNetPnl)
		argNum++
	}

	if query.TimeRange != nil {
		conditions = append(conditions, fmt.Sprintf("r.created_at >= $%d", argNum))
		args = append(args, query.TimeRange.Start)
		argNum++
		conditions = append(conditions, fmt.Sprintf("r.created_at <= $%d", argNum))
		args = append(args, query.TimeRange.End)
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// OrderBy is whitelisted by SetDefaults.
	orderColumn := "r." + query.OrderBy
	orderDir := "DESC"
	if query.Ascending {
		orderDir = "ASC"
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM runs r
		%s
	`, whereClause)

	var totalCount int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count runs: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM runs r
		JOIN strategies s ON s.id = r.strategy_id
		%s
		ORDER BY %s %s, r.id
		LIMIT $%d OFFSET $%d
	`, runColumns, whereClause, orderColumn, orderDir, argNum, argNum+1)

	args = append(args, query.PageSize, query.Offset())

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, totalCount, nil
}

func (r *runRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, "DELETE FROM runs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("run", id.String())
	}

	return nil
}
