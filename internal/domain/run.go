package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReconstructedTrade is a completed trade joined from its fill, summary and
// optional P&L update.
type ReconstructedTrade struct {
	Date              string    `json:"date"`
	Time              string    `json:"time"`
	TradeID           int       `json:"trade_id"`
	Direction         Direction `json:"direction"`
	EntryPrice        float64   `json:"entry_price"`
	ExitPrice         float64   `json:"exit_price"`
	RealizedPnl       float64   `json:"realized_pnl"`
	MaxProfitDollars  float64   `json:"max_profit_dollars"`
	MaxLossDollars    float64   `json:"max_loss_dollars"`
	BarsHeld          int       `json:"bars_held"`
	LineLabel         string    `json:"line_label"`
	SLAdjustmentCount int       `json:"sl_adjustment_count"`
	NearMissCount     int       `json:"near_miss_count"`
}

// DailyBucket aggregates the trades of one trading day.
// The intraday extremes are taken over the running P&L of that day,
// starting from zero.
type DailyBucket struct {
	Date               string  `json:"date"`
	NetPnl             float64 `json:"net_pnl"`
	TradeCount         int     `json:"trade_count"`
	HighestIntradayPnl float64 `json:"highest_intraday_pnl"`
	LowestIntradayPnl  float64 `json:"lowest_intraday_pnl"`
}

// LineStatistics holds the performance of the trades triggered by one line.
type LineStatistics struct {
	LineLabel     string   `json:"line_label"`
	TotalTrades   int      `json:"total_trades"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	WinRate       float64  `json:"win_rate"`
	NetPnl        float64  `json:"net_pnl"`
	AvgPnl        float64  `json:"avg_pnl"`
	GrossProfit   float64  `json:"gross_profit"`
	GrossLoss     float64  `json:"gross_loss"`
	ProfitFactor  *float64 `json:"profit_factor"`
}

// Parameter is a strategy setting reported in the log.
type Parameter struct {
	Name  string    `json:"name"`
	Value string    `json:"value"`
	Type  ParamType `json:"type"`
}

// Metric is a named derived figure with a human description.
type Metric struct {
	Name        string  `json:"name"`
	Value       float64 `json:"value"`
	Description string  `json:"description"`
}

// TPNearMiss is logged when price came close to a take-profit without reaching it.
type TPNearMiss struct {
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	TradeID   int       `json:"trade_id"`
	Direction Direction `json:"direction"`
	Target    float64   `json:"target"`
	Closest   float64   `json:"closest"`
	Distance  float64   `json:"distance"`
}

// FillNearMiss is logged when price came close to an entry limit without filling.
type FillNearMiss struct {
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	TradeID   int       `json:"trade_id"`
	Direction Direction `json:"direction"`
	LineLabel string    `json:"line_label"`
	Limit     float64   `json:"limit"`
	Closest   float64   `json:"closest"`
	Distance  float64   `json:"distance"`
}

// SLAdjustment is logged when the stop of an open trade is moved.
type SLAdjustment struct {
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	TradeID   int       `json:"trade_id"`
	Direction Direction `json:"direction"`
	OldStop   float64   `json:"old_stop"`
	NewStop   float64   `json:"new_stop"`
	Reason    string    `json:"reason,omitempty"`
}

// DetailedEvents groups the auxiliary events of a run.
type DetailedEvents struct {
	TPNearMisses   []TPNearMiss   `json:"tp_near_misses"`
	FillNearMisses []FillNearMiss `json:"fill_near_misses"`
	SLAdjustments  []SLAdjustment `json:"sl_adjustments"`
}

// Count returns the total number of events.
func (e DetailedEvents) Count() int {
	return len(e.TPNearMisses) + len(e.FillNearMisses) + len(e.SLAdjustments)
}

// ParsedRun is the output of the extraction pipeline. It is a pure value:
// it carries no identifiers or timestamps of its own.
type ParsedRun struct {
	StrategyName string  `json:"strategy_name"`
	RunName      string  `json:"run_name,omitempty"`
	Dialect      string  `json:"dialect"`
	PointValue   float64 `json:"point_value"`

	NetPnl        float64 `json:"net_pnl"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	GrossProfit   float64 `json:"gross_profit"`
	GrossLoss     float64 `json:"gross_loss"`

	// ProfitFactor and SharpeRatio are nil when undefined.
	ProfitFactor *float64 `json:"profit_factor"`
	MaxDrawdown  float64  `json:"max_drawdown"`
	SharpeRatio  *float64 `json:"sharpe_ratio"`

	// DroppedFills counts fills that never got a matching summary.
	DroppedFills int `json:"dropped_fills"`

	DailyPnl       []DailyBucket        `json:"daily_pnl"`
	Parameters     []Parameter          `json:"parameters"`
	CustomMetrics  []Metric             `json:"custom_metrics"`
	DetailedEvents DetailedEvents       `json:"detailed_events"`
	DetailedTrades []ReconstructedTrade `json:"detailed_trades"`
	LineStats      []LineStatistics     `json:"line_stats"`
}

// Run is a persisted ParsedRun summary.
type Run struct {
	ID           uuid.UUID `json:"id"`
	StrategyID   uuid.UUID `json:"strategy_id"`
	StrategyName string    `json:"strategy_name"`
	Name         string    `json:"name"`
	Dialect      string    `json:"dialect"`
	Source       string    `json:"source"`
	PointValue   float64   `json:"point_value"`

	NetPnl        float64  `json:"net_pnl"`
	TotalTrades   int      `json:"total_trades"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	WinRate       float64  `json:"win_rate"`
	GrossProfit   float64  `json:"gross_profit"`
	GrossLoss     float64  `json:"gross_loss"`
	ProfitFactor  *float64 `json:"profit_factor"`
	MaxDrawdown   float64  `json:"max_drawdown"`
	SharpeRatio   *float64 `json:"sharpe_ratio"`
	DroppedFills  int      `json:"dropped_fills"`

	LineStats []LineStatistics `json:"line_stats,omitempty"`
	RawLog    []byte           `json:"-"` // gzip compressed, not serialized to JSON

	CreatedAt time.Time `json:"created_at"`
}

// NewRun creates a new Run with generated UUID from a parsed run.
func NewRun(strategy *Strategy, parsed *ParsedRun, source string) *Run {
	name := parsed.RunName
	if name == "" {
		name = parsed.StrategyName + " " + time.Now().UTC().Format("2006-01-02 15:04")
	}
	return &Run{
		ID:            uuid.New(),
		StrategyID:    strategy.ID,
		StrategyName:  strategy.Name,
		Name:          name,
		Dialect:       parsed.Dialect,
		Source:        source,
		PointValue:    parsed.PointValue,
		NetPnl:        parsed.NetPnl,
		TotalTrades:   parsed.TotalTrades,
		WinningTrades: parsed.WinningTrades,
		LosingTrades:  parsed.LosingTrades,
		WinRate:       parsed.WinRate,
		GrossProfit:   parsed.GrossProfit,
		GrossLoss:     parsed.GrossLoss,
		ProfitFactor:  parsed.ProfitFactor,
		MaxDrawdown:   parsed.MaxDrawdown,
		SharpeRatio:   parsed.SharpeRatio,
		DroppedFills:  parsed.DroppedFills,
		LineStats:     parsed.LineStats,
		CreatedAt:     time.Now(),
	}
}

// RunDetail is a run together with all of its child records.
type RunDetail struct {
	Run            *Run                 `json:"run"`
	DailyPnl       []DailyBucket        `json:"daily_pnl"`
	Parameters     []Parameter          `json:"parameters"`
	CustomMetrics  []Metric             `json:"custom_metrics"`
	DetailedEvents DetailedEvents       `json:"detailed_events"`
	DetailedTrades []ReconstructedTrade `json:"detailed_trades"`
}

// ToParsedRun rebuilds the pipeline value from stored records.
func (d *RunDetail) ToParsedRun() *ParsedRun {
	r := d.Run
	return &ParsedRun{
		StrategyName:   r.StrategyName,
		RunName:        r.Name,
		Dialect:        r.Dialect,
		PointValue:     r.PointValue,
		NetPnl:         r.NetPnl,
		TotalTrades:    r.TotalTrades,
		WinningTrades:  r.WinningTrades,
		LosingTrades:   r.LosingTrades,
		WinRate:        r.WinRate,
		GrossProfit:    r.GrossProfit,
		GrossLoss:      r.GrossLoss,
		ProfitFactor:   r.ProfitFactor,
		MaxDrawdown:    r.MaxDrawdown,
		SharpeRatio:    r.SharpeRatio,
		DroppedFills:   r.DroppedFills,
		DailyPnl:       d.DailyPnl,
		Parameters:     d.Parameters,
		CustomMetrics:  d.CustomMetrics,
		DetailedEvents: d.DetailedEvents,
		DetailedTrades: d.DetailedTrades,
		LineStats:      r.LineStats,
	}
}

// RunQuery represents query parameters for runs.
type RunQuery struct {
	StrategyID *uuid.UUID `json:"strategy_id,omitempty"`
	Dialect    *string    `json:"dialect,omitempty"`
	MinTrades  *int       `json:"min_trades,omitempty"`
	MinNetPnl  *float64   `json:"min_net_pnl,omitempty"`
	TimeRange  *TimeRange `json:"time_range,omitempty"`
	OrderBy    string     `json:"order_by,omitempty"` // "net_pnl", "win_rate", "max_drawdown", "created_at"
	Ascending  bool       `json:"ascending,omitempty"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}

// SetDefaults sets default values for the query.
func (q *RunQuery) SetDefaults() {
	switch q.OrderBy {
	case "net_pnl", "win_rate", "max_drawdown", "total_trades", "created_at":
	default:
		q.OrderBy = "created_at"
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = 20
	}
	if q.PageSize > 100 {
		q.PageSize = 100
	}
}

// Offset returns the offset for pagination.
func (q *RunQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// TimeRange represents a time range for queries.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
