package parser

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

const twoTradeLog = `2024-05-15 09:00:00 [RUN START] Strategy: MagicLinesScalper | Run: May test
[PARAMETER] Contracts: 1
[PARAMETER] TakeProfit: 10.5
[PARAMETER] UseTrailing: true
2024-05-15 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: 100.00 | Bars Since Last Trade: 3
2024-05-15 09:35:00 [SL ADJUSTMENT (ID: 1)] Direction: LONG | Old SL: 98.00 | New SL: 100.00 | Reason: Breakeven
2024-05-15 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 105.00 | Low: 99.50 | Max Profit: 5.00 pts | Max Loss: 0.50 pts | Bars: 9
2024-05-15 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: $25.00 | Total PnL: $25.00
2024-05-15 10:02:00 [TRADE FILL (ID: 2)] Direction: SHORT | Entry: 102.00 | Bars Since Last Trade: 22
2024-05-15 10:05:00 [TP NEAR MISS (ID: 2)] Direction: SHORT | Target: 100.00 | Closest: 100.25 | Distance: 0.25 pts
2024-05-15 10:10:00 [TRADE SUMMARY (ID: 2)] Direction: SHORT | Line: L2 | Entry: 102.00 | High: 104.00 | Low: 101.00 | Max Profit: 1.00 pts | Max Loss: 2.00 pts | Bars: 8
2024-05-15 10:10:00 [PNL UPDATE (ID: 2)] Completed Trade PnL: -$10.00 | Total PnL: $15.00
`

const sampleLog = `SampleStrategy backtest
[SETTING] StopLoss = 8
[SETTING] Session = RTH
2024-06-03 09:30:00 [ENTRY (ID: 1)] Direction: LONG | Price: 5000.00 | Signal: Breakout
2024-06-03 09:32:00 [STOP MOVED (ID: 1)] Direction: LONG | From: 4992.00 | To: 5000.00
2024-06-03 09:45:00 [EXIT (ID: 1)] Direction: LONG | Price: 5004.00 | PnL: $20.00 | Bars: 15 | Reason: Target
2024-06-03 10:00:00 [ENTRY (ID: 2)] Direction: SHORT | Price: 5010.00
2024-06-03 10:20:00 [EXIT (ID: 2)] Direction: SHORT | Price: 5012.00 | PnL: ($10.00) | Bars: 20
`

func newTestParser(t *testing.T) *Parser {
	return NewParser(DefaultRegistry(), zaptest.NewLogger(t))
}

func metric(t *testing.T, run *domain.ParsedRun, name string) float64 {
	t.Helper()
	for _, m := range run.CustomMetrics {
		if m.Name == name {
			return m.Value
		}
	}
	t.Fatalf("metric %q not found", name)
	return 0
}

func TestParser_TwoTradeScenario(t *testing.T) {
	run, err := newTestParser(t).Parse(twoTradeLog)
	require.NoError(t, err)
	require.NotNil(t, run)

	assert.Equal(t, MagicLinesDialect, run.Dialect)
	assert.Equal(t, "MagicLinesScalper", run.StrategyName)
	assert.Equal(t, "May test", run.RunName)
	assert.Equal(t, DefaultPointValue, run.PointValue)

	assert.Equal(t, 15.0, run.NetPnl)
	assert.Equal(t, 2, run.TotalTrades)
	assert.Equal(t, 1, run.WinningTrades)
	assert.Equal(t, 1, run.LosingTrades)
	assert.Equal(t, 0.5, run.WinRate)
	assert.Equal(t, 25.0, run.GrossProfit)
	assert.Equal(t, 10.0, run.GrossLoss)
	require.NotNil(t, run.ProfitFactor)
	assert.Equal(t, 2.5, *run.ProfitFactor)
	assert.Equal(t, 10.0, run.MaxDrawdown)
	require.NotNil(t, run.SharpeRatio)
	assert.Equal(t, 0.4286, *run.SharpeRatio)
	assert.Equal(t, 0, run.DroppedFills)

	require.Len(t, run.DailyPnl, 1)
	assert.Equal(t, domain.DailyBucket{
		Date:               "2024-05-15",
		NetPnl:             15,
		TradeCount:         2,
		HighestIntradayPnl: 25,
		LowestIntradayPnl:  0,
	}, run.DailyPnl[0])

	require.Len(t, run.DetailedTrades, 2)
	long := run.DetailedTrades[0]
	assert.Equal(t, domain.DirectionLong, long.Direction)
	assert.Equal(t, "09:31:00", long.Time)
	assert.Equal(t, 100.0, long.EntryPrice)
	assert.InDelta(t, 105.0, long.ExitPrice, 1e-9)
	assert.Equal(t, 25.0, long.RealizedPnl)
	assert.Equal(t, 25.0, long.MaxProfitDollars)
	assert.Equal(t, 2.5, long.MaxLossDollars)
	assert.Equal(t, 9, long.BarsHeld)
	assert.Equal(t, "L1", long.LineLabel)
	assert.Equal(t, 1, long.SLAdjustmentCount)
	assert.Equal(t, 0, long.NearMissCount)

	short := run.DetailedTrades[1]
	assert.Equal(t, domain.DirectionShort, short.Direction)
	assert.InDelta(t, 104.0, short.ExitPrice, 1e-9)
	assert.Equal(t, -10.0, short.RealizedPnl)
	assert.Equal(t, 0, short.SLAdjustmentCount)
	assert.Equal(t, 1, short.NearMissCount)

	require.Len(t, run.LineStats, 2)
	assert.Equal(t, "L1", run.LineStats[0].LineLabel)
	assert.Nil(t, run.LineStats[0].ProfitFactor)
	assert.Equal(t, 1.0, run.LineStats[0].WinRate)
	assert.Equal(t, "L2", run.LineStats[1].LineLabel)
	require.NotNil(t, run.LineStats[1].ProfitFactor)
	assert.Equal(t, 0.0, *run.LineStats[1].ProfitFactor)

	assert.Equal(t, []domain.Parameter{
		{Name: "Contracts", Value: "1", Type: domain.ParamTypeInt},
		{Name: "TakeProfit", Value: "10.5", Type: domain.ParamTypeFloat},
		{Name: "UseTrailing", Value: "true", Type: domain.ParamTypeBool},
	}, run.Parameters)

	require.Len(t, run.DetailedEvents.SLAdjustments, 1)
	assert.Equal(t, "Breakeven", run.DetailedEvents.SLAdjustments[0].Reason)
	require.Len(t, run.DetailedEvents.TPNearMisses, 1)
	assert.Equal(t, 0.25, run.DetailedEvents.TPNearMisses[0].Distance)
	assert.Empty(t, run.DetailedEvents.FillNearMisses)

	assert.Equal(t, 1.0, metric(t, run, "sl_adjustments"))
	assert.Equal(t, 1.0, metric(t, run, "tp_near_misses"))
	assert.Equal(t, 0.0, metric(t, run, "malformed_fields"))
	assert.Equal(t, 7.5, metric(t, run, "avg_trade_pnl"))
	assert.Equal(t, 25.0, metric(t, run, "largest_win"))
	assert.Equal(t, -10.0, metric(t, run, "largest_loss"))
	assert.Equal(t, 8.5, metric(t, run, "avg_bars_held"))
}

func TestParser_FillWithoutSummaryIsDropped(t *testing.T) {
	log := twoTradeLog +
		"2024-05-15 11:00:00 [TRADE FILL (ID: 3)] Direction: LONG | Entry: 103.00 | Bars Since Last Trade: 5\n"

	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)

	assert.Equal(t, 2, run.TotalTrades)
	assert.Equal(t, 15.0, run.NetPnl)
	assert.Equal(t, 1, run.DroppedFills)
	assert.Equal(t, 1.0, metric(t, run, "dropped_fills"))
	for _, trade := range run.DetailedTrades {
		assert.NotEqual(t, 3, trade.TradeID)
	}
}

func TestParser_MissingPnlUpdateDefaultsToZero(t *testing.T) {
	log := `MagicLinesScalper
2024-05-15 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: 100.00 | Bars Since Last Trade: 3
2024-05-15 09:36:00 [CURRENT TRADE (ID: 1)] Direction: LONG | Price: 101.00 | Open PnL: $5.00
2024-05-15 09:38:00 [CURRENT TRADE (ID: 1)] Direction: LONG | Price: 101.50 | Open PnL: $7.50
2024-05-15 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 99.50 | Max Profit: 2.00 pts | Max Loss: 0.50 pts | Bars: 9
`
	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)

	require.Len(t, run.DetailedTrades, 1)
	assert.Equal(t, 0.0, run.DetailedTrades[0].RealizedPnl)
	assert.Equal(t, 101.5, run.DetailedTrades[0].ExitPrice)
	assert.Equal(t, 0.0, run.WinRate)
	assert.Nil(t, run.ProfitFactor)
	assert.Nil(t, run.SharpeRatio)
}

func TestParser_DateFormatsShareTradingDay(t *testing.T) {
	log := `MagicLinesScalper
5/3/2024 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: 100.00 | Bars Since Last Trade: 3
2024-05-03 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 99.50 | Max Profit: 2.00 pts | Max Loss: 0.50 pts | Bars: 9
5/3/2024 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: $10.00 | Total PnL: $10.00
2024-05-03 10:31:00 [TRADE FILL (ID: 2)] Direction: SHORT | Entry: 100.00 | Bars Since Last Trade: 3
5/3/2024 10:40:00 [TRADE SUMMARY (ID: 2)] Direction: SHORT | Line: L1 | Entry: 100.00 | High: 101.00 | Low: 99.00 | Max Profit: 1.00 pts | Max Loss: 1.00 pts | Bars: 9
2024-05-03 10:40:00 [PNL UPDATE (ID: 2)] Completed Trade PnL: $5.00 | Total PnL: $15.00
`
	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)

	require.Len(t, run.DailyPnl, 1)
	assert.Equal(t, "2024-05-03", run.DailyPnl[0].Date)
	assert.Equal(t, 2, run.DailyPnl[0].TradeCount)
	assert.Equal(t, 15.0, run.DailyPnl[0].NetPnl)
}

func TestParser_SameIDOnDifferentDays(t *testing.T) {
	log := `MagicLinesScalper
2024-05-15 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: 100.00 | Bars Since Last Trade: 3
2024-05-15 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 99.50 | Max Profit: 2.00 pts | Max Loss: 0.50 pts | Bars: 9
2024-05-15 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: $10.00 | Total PnL: $10.00
2024-05-16 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: 100.00 | Bars Since Last Trade: 3
2024-05-16 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 98.00 | Max Profit: 2.00 pts | Max Loss: 2.00 pts | Bars: 9
2024-05-16 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: -$20.00 | Total PnL: -$10.00
`
	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)

	require.Len(t, run.DetailedTrades, 2)
	assert.Equal(t, 10.0, run.DetailedTrades[0].RealizedPnl)
	assert.Equal(t, -20.0, run.DetailedTrades[1].RealizedPnl)
	require.Len(t, run.DailyPnl, 2)
	assert.Equal(t, "2024-05-15", run.DailyPnl[0].Date)
	assert.Equal(t, "2024-05-16", run.DailyPnl[1].Date)
	assert.Equal(t, -20.0, run.DailyPnl[1].LowestIntradayPnl)
	assert.Equal(t, 20.0, run.MaxDrawdown)
}

func TestParser_MalformedNumbersBecomeZero(t *testing.T) {
	log := `MagicLinesScalper
2024-05-15 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: n/a | Bars Since Last Trade: 3
2024-05-15 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 99.50 | Max Profit: 2.00 pts | Max Loss: 0.50 pts | Bars: 9
2024-05-15 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: $1,250.50 | Total PnL: $1,250.50
`
	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)

	require.Len(t, run.DetailedTrades, 1)
	assert.Equal(t, 0.0, run.DetailedTrades[0].EntryPrice)
	assert.Equal(t, 1250.5, run.DetailedTrades[0].RealizedPnl)
	assert.Equal(t, 1.0, metric(t, run, "malformed_fields"))
}

func TestParser_NonFiniteNumbersBecomeZero(t *testing.T) {
	log := `MagicLinesScalper
2024-05-15 09:31:00 [TRADE FILL (ID: 1)] Direction: LONG | Entry: NaN | Bars Since Last Trade: 3
2024-05-15 09:40:00 [TRADE SUMMARY (ID: 1)] Direction: LONG | Line: L1 | Entry: 100.00 | High: 102.00 | Low: 99.50 | Max Profit: Infinity pts | Max Loss: 0.50 pts | Bars: 9
2024-05-15 09:40:00 [PNL UPDATE (ID: 1)] Completed Trade PnL: NaN | Total PnL: $0.00
2024-05-15 10:02:00 [TRADE FILL (ID: 2)] Direction: SHORT | Entry: 102.00 | Bars Since Last Trade: 22
2024-05-15 10:10:00 [TRADE SUMMARY (ID: 2)] Direction: SHORT | Line: L2 | Entry: 102.00 | High: 104.00 | Low: 101.00 | Max Profit: 1.00 pts | Max Loss: 2.00 pts | Bars: 8
2024-05-15 10:10:00 [PNL UPDATE (ID: 2)] Completed Trade PnL: -$10.00 | Total PnL: -$10.00
`
	run, err := newTestParser(t).Parse(log)
	require.NoError(t, err)
	require.NotNil(t, run)

	require.Len(t, run.DetailedTrades, 2)
	first := run.DetailedTrades[0]
	assert.Equal(t, 0.0, first.EntryPrice)
	assert.Equal(t, 0.0, first.RealizedPnl)
	assert.Equal(t, 0.0, first.MaxProfitDollars)
	assert.Equal(t, -10.0, run.NetPnl)
	assert.Equal(t, 3.0, metric(t, run, "malformed_fields"))

	_, err = json.Marshal(run)
	assert.NoError(t, err)
}

func TestParser_SampleStrategy(t *testing.T) {
	run, err := newTestParser(t).Parse(sampleLog)
	require.NoError(t, err)

	assert.Equal(t, SampleDialect, run.Dialect)
	assert.Equal(t, "SampleStrategy", run.StrategyName)
	assert.Equal(t, 10.0, run.NetPnl)
	assert.Equal(t, 2, run.TotalTrades)

	require.Len(t, run.DetailedTrades, 2)
	first := run.DetailedTrades[0]
	assert.Equal(t, "Breakout", first.LineLabel)
	assert.InDelta(t, 5004.0, first.ExitPrice, 1e-9)
	assert.Equal(t, 20.0, first.MaxProfitDollars)
	assert.Equal(t, 0.0, first.MaxLossDollars)
	assert.Equal(t, 15, first.BarsHeld)
	assert.Equal(t, 1, first.SLAdjustmentCount)

	second := run.DetailedTrades[1]
	assert.Equal(t, "default", second.LineLabel)
	assert.Equal(t, -10.0, second.RealizedPnl)
	assert.InDelta(t, 5012.0, second.ExitPrice, 1e-9)
	assert.Equal(t, 10.0, second.MaxLossDollars)

	assert.Equal(t, []domain.Parameter{
		{Name: "StopLoss", Value: "8", Type: domain.ParamTypeInt},
		{Name: "Session", Value: "RTH", Type: domain.ParamTypeString},
	}, run.Parameters)
}

func TestParser_UnrecognizedDialect(t *testing.T) {
	p := newTestParser(t)

	for _, text := range []string{"", "hello world", "2024-05-15 09:31:00 [ORDER (ID: 1)] Direction: LONG"} {
		run, err := p.Parse(text)
		assert.ErrorIs(t, err, ErrUnrecognizedDialect)
		assert.Nil(t, run)
	}
}

func TestParser_ExtractionFailures(t *testing.T) {
	always := func(string) bool { return true }

	tests := []struct {
		name    string
		extract func(string) (*Extraction, error)
	}{
		{"error", func(string) (*Extraction, error) { return nil, errors.New("boom") }},
		{"panic", func(string) (*Extraction, error) { panic("index out of range") }},
		{"nil extraction", func(string) (*Extraction, error) { return nil, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry(Dialect{Name: "broken", CanHandle: always, Extract: tt.extract})
			run, err := NewParser(registry, zap.NewNop()).Parse("anything")
			assert.ErrorIs(t, err, ErrExtractionFailed)
			assert.Nil(t, run)
		})
	}
}

func TestParser_Idempotent(t *testing.T) {
	p := newTestParser(t)

	first, err := p.Parse(twoTradeLog)
	require.NoError(t, err)
	second, err := p.Parse(twoTradeLog)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParser_CRLFLineEndings(t *testing.T) {
	p := newTestParser(t)

	unix, err := p.Parse(twoTradeLog)
	require.NoError(t, err)
	windows, err := p.Parse(strings.ReplaceAll(twoTradeLog, "\n", "\r\n"))
	require.NoError(t, err)

	assert.Equal(t, unix, windows)
}

func TestParser_PointValue(t *testing.T) {
	p := NewParser(nil, nil, WithPointValue(50))
	assert.Equal(t, 50.0, p.PointValue())

	run, err := p.Parse(twoTradeLog)
	require.NoError(t, err)
	assert.Equal(t, 250.0, run.DetailedTrades[0].MaxProfitDollars)
	assert.InDelta(t, 100.5, run.DetailedTrades[0].ExitPrice, 1e-9)

	run, err = p.ParseWithOptions(twoTradeLog, Options{PointValue: 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, run.PointValue)
	assert.Equal(t, 10.0, run.DetailedTrades[0].MaxProfitDollars)

	// Non-positive values are ignored.
	assert.Equal(t, DefaultPointValue, NewParser(nil, nil, WithPointValue(-1)).PointValue())
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	always := func(string) bool { return true }
	extract := func(string) (*Extraction, error) { return newExtraction(), nil }

	r := NewRegistry(
		Dialect{Name: "first", CanHandle: always, Extract: extract},
		Dialect{Name: "second", CanHandle: always, Extract: extract},
		Dialect{Name: "incomplete"},
	)

	d, ok := r.Select("x")
	require.True(t, ok)
	assert.Equal(t, "first", d.Name)
	assert.Equal(t, []string{"first", "second"}, r.Names())
}

func TestDefaultRegistry_Detection(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{MagicLinesDialect, SampleDialect}, r.Names())

	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"MagicLinesScalper v2", MagicLinesDialect, true},
		{"[TRADE FILL (ID: 1)] ... [TRADE SUMMARY (ID: 1)]", MagicLinesDialect, true},
		{"[TRADE FILL (ID: 1)] only", "", false},
		{"SampleStrategy", SampleDialect, true},
		{"[ENTRY (ID: 1)] [EXIT (ID: 1)]", SampleDialect, true},
		{"MagicLinesScalper SampleStrategy", MagicLinesDialect, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, ok := r.Select(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, d.Name)
		})
	}
}
