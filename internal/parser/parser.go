// Package parser turns strategy run logs into structured run records.
//
// A Registry picks the dialect of a log by cheap substring checks. The
// dialect's extractors scan the text once per event shape, Correlate joins
// the records of each trade by its date and ID, and Aggregate derives the
// run metrics.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// DefaultPointValue is the currency value of one instrument point.
const DefaultPointValue = 5.0

var (
	// ErrUnrecognizedDialect is returned when no registered dialect accepts the log.
	ErrUnrecognizedDialect = errors.New("unrecognized log dialect")

	// ErrExtractionFailed is returned when the selected dialect fails on the log.
	ErrExtractionFailed = errors.New("log extraction failed")
)

// Options control a single parse.
type Options struct {
	// PointValue converts points to currency. Zero or negative uses the parser default.
	PointValue float64
}

// Parser dispatches logs to the dialect that recognizes them.
// It is safe for concurrent use.
type Parser struct {
	registry   *Registry
	logger     *zap.Logger
	pointValue float64
}

// Option configures a Parser.
type Option func(*Parser)

// WithPointValue sets the default point value.
func WithPointValue(v float64) Option {
	return func(p *Parser) {
		if v > 0 {
			p.pointValue = v
		}
	}
}

// NewParser creates a new Parser. A nil registry uses DefaultRegistry.
func NewParser(registry *Registry, logger *zap.Logger, opts ...Option) *Parser {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Parser{
		registry:   registry,
		logger:     logger,
		pointValue: DefaultPointValue,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry returns the dialect registry used by the parser.
func (p *Parser) Registry() *Registry {
	return p.registry
}

// PointValue returns the default point value.
func (p *Parser) PointValue() float64 {
	return p.pointValue
}

// Parse parses a log with the default options.
func (p *Parser) Parse(text string) (*domain.ParsedRun, error) {
	return p.ParseWithOptions(text, Options{})
}

// ParseWithOptions parses a log. It returns a complete run or an error, never
// a partial run.
func (p *Parser) ParseWithOptions(text string, opts Options) (*domain.ParsedRun, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	dialect, ok := p.registry.Select(text)
	if !ok {
		p.logger.Debug("No dialect recognized log", zap.Int("length", len(text)))
		return nil, ErrUnrecognizedDialect
	}

	pointValue := opts.PointValue
	if pointValue <= 0 {
		pointValue = p.pointValue
	}

	run, err := p.run(dialect, text, pointValue)
	if err != nil {
		p.logger.Error("Failed to extract log",
			zap.String("dialect", dialect.Name),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, dialect.Name, err)
	}

	p.logger.Debug("Parsed log",
		zap.String("dialect", dialect.Name),
		zap.String("strategy", run.StrategyName),
		zap.Int("total_trades", run.TotalTrades),
		zap.Int("dropped_fills", run.DroppedFills),
	)

	return run, nil
}

// run executes the full pipeline for one dialect, turning panics into errors.
func (p *Parser) run(dialect Dialect, text string, pointValue float64) (run *domain.ParsedRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			run = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	x, err := dialect.Extract(text)
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, errors.New("dialect returned no records")
	}

	correlated := Correlate(x, pointValue)
	summary := Aggregate(correlated.Trades)

	return buildParsedRun(dialect, x, correlated, summary, pointValue), nil
}

func buildParsedRun(dialect Dialect, x *Extraction, c CorrelationResult, s Summary, pointValue float64) *domain.ParsedRun {
	name := x.StrategyName
	if name == "" {
		name = dialect.Name
	}

	return &domain.ParsedRun{
		StrategyName:   domain.NormalizeStrategyName(name),
		RunName:        x.RunName,
		Dialect:        dialect.Name,
		PointValue:     pointValue,
		NetPnl:         s.NetPnl,
		TotalTrades:    s.TotalTrades,
		WinningTrades:  s.WinningTrades,
		LosingTrades:   s.LosingTrades,
		WinRate:        s.WinRate,
		GrossProfit:    s.GrossProfit,
		GrossLoss:      s.GrossLoss,
		ProfitFactor:   s.ProfitFactor,
		MaxDrawdown:    s.MaxDrawdown,
		SharpeRatio:    s.SharpeRatio,
		DroppedFills:   c.DroppedFills,
		DailyPnl:       s.DailyPnl,
		Parameters:     x.Parameters,
		CustomMetrics:  buildMetrics(s, x.Events, c.DroppedFills, x.MalformedFields),
		DetailedEvents: x.Events,
		DetailedTrades: c.Trades,
		LineStats:      s.LineStats,
	}
}

// buildMetrics lists the derived figures stored alongside a run.
func buildMetrics(s Summary, events domain.DetailedEvents, dropped, malformed int) []domain.Metric {
	return []domain.Metric{
		{Name: "gross_profit", Value: s.GrossProfit, Description: "Sum of winning trade P&L"},
		{Name: "gross_loss", Value: s.GrossLoss, Description: "Absolute sum of losing trade P&L"},
		{Name: "avg_trade_pnl", Value: s.AvgTradePnl, Description: "Average realized P&L per trade"},
		{Name: "largest_win", Value: s.LargestWin, Description: "Largest single winning trade"},
		{Name: "largest_loss", Value: s.LargestLoss, Description: "Largest single losing trade"},
		{Name: "avg_bars_held", Value: s.AvgBarsHeld, Description: "Average number of bars a trade was held"},
		{Name: "winning_trades", Value: float64(s.WinningTrades), Description: "Trades with positive P&L"},
		{Name: "losing_trades", Value: float64(s.LosingTrades), Description: "Trades with negative P&L"},
		{Name: "sl_adjustments", Value: float64(len(events.SLAdjustments)), Description: "Stop loss adjustments logged"},
		{Name: "tp_near_misses", Value: float64(len(events.TPNearMisses)), Description: "Take profit near misses logged"},
		{Name: "fill_near_misses", Value: float64(len(events.FillNearMisses)), Description: "Entry fill near misses logged"},
		{Name: "dropped_fills", Value: float64(dropped), Description: "Fills without a matching trade summary"},
		{Name: "malformed_fields", Value: float64(malformed), Description: "Numeric fields that could not be read and were set to zero"},
	}
}
