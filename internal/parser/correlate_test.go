package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

func TestCorrelate_RoundTrip(t *testing.T) {
	x := newExtraction()
	const n = 25
	for i := 1; i <= n; i++ {
		key := TradeKey{Date: "2024-02-01", ID: i}
		x.Fills = append(x.Fills, TradeFillEvent{Key: key, Date: key.Date, Direction: domain.DirectionLong, EntryPrice: 100})
		x.Summaries = append(x.Summaries, TradeSummaryEvent{Key: key, Date: key.Date, LineLabel: "L1"})
		x.PnlUpdates = append(x.PnlUpdates, PnlUpdateEvent{Key: key, Date: key.Date, CompletedTradePnl: float64(i)})
	}

	result := Correlate(x, 5)

	require.Len(t, result.Trades, n)
	assert.Equal(t, 0, result.DroppedFills)
	for i, trade := range result.Trades {
		assert.Equal(t, i+1, trade.TradeID)
		assert.Equal(t, float64(i+1), trade.RealizedPnl)
	}
}

func TestCorrelate_FirstSummaryAndUpdateWin(t *testing.T) {
	key := TradeKey{Date: "2024-02-01", ID: 7}
	x := newExtraction()
	x.Fills = []TradeFillEvent{
		{Key: key, Date: key.Date, Direction: domain.DirectionShort, EntryPrice: 200},
		{Key: key, Date: key.Date, Direction: domain.DirectionShort, EntryPrice: 201},
	}
	x.Summaries = []TradeSummaryEvent{
		{Key: key, LineLabel: "first", MaxProfitPts: 2, MaxLossPts: 1, BarsHeld: 4},
		{Key: key, LineLabel: "second"},
	}
	x.PnlUpdates = []PnlUpdateEvent{
		{Key: key, CompletedTradePnl: 10},
		{Key: key, CompletedTradePnl: 99},
	}

	result := Correlate(x, 5)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 1, result.DroppedFills)
	trade := result.Trades[0]
	assert.Equal(t, "first", trade.LineLabel)
	assert.Equal(t, 10.0, trade.RealizedPnl)
	assert.Equal(t, 198.0, trade.ExitPrice)
	assert.Equal(t, 10.0, trade.MaxProfitDollars)
	assert.Equal(t, 5.0, trade.MaxLossDollars)
}

func TestCorrelate_ExitPriceFallbacks(t *testing.T) {
	key := TradeKey{Date: "2024-02-01", ID: 1}
	base := func() *Extraction {
		x := newExtraction()
		x.Fills = []TradeFillEvent{{Key: key, Date: key.Date, Direction: domain.DirectionLong, EntryPrice: 50}}
		x.Summaries = []TradeSummaryEvent{{Key: key}}
		return x
	}

	// Without a P&L update or snapshot the exit equals the entry.
	result := Correlate(base(), 5)
	assert.Equal(t, 50.0, result.Trades[0].ExitPrice)

	// A zero point value cannot convert P&L to price, so the snapshot is used.
	x := base()
	x.PnlUpdates = []PnlUpdateEvent{{Key: key, CompletedTradePnl: 10}}
	x.CurrentTrades = []CurrentTradeEvent{{Key: key, Price: 51}, {Key: key, Price: 52}}
	result = Correlate(x, 0)
	assert.Equal(t, 52.0, result.Trades[0].ExitPrice)
	assert.Equal(t, 10.0, result.Trades[0].RealizedPnl)
}

func TestCorrelate_AuxiliaryCountsByKey(t *testing.T) {
	k1 := TradeKey{Date: "2024-02-01", ID: 1}
	k2 := TradeKey{Date: "2024-02-02", ID: 1}
	x := newExtraction()
	for _, k := range []TradeKey{k1, k2} {
		x.Fills = append(x.Fills, TradeFillEvent{Key: k, Date: k.Date})
		x.Summaries = append(x.Summaries, TradeSummaryEvent{Key: k})
	}
	x.Events.SLAdjustments = []domain.SLAdjustment{
		{Date: k1.Date, TradeID: 1},
		{Date: k1.Date, TradeID: 1},
		{Date: k2.Date, TradeID: 1},
		{Date: k1.Date, TradeID: 11},
	}
	x.Events.TPNearMisses = []domain.TPNearMiss{{Date: k2.Date, TradeID: 1}}
	x.Events.FillNearMisses = []domain.FillNearMiss{{Date: k2.Date, TradeID: 1}}

	result := Correlate(x, 5)

	require.Len(t, result.Trades, 2)
	assert.Equal(t, 2, result.Trades[0].SLAdjustmentCount)
	assert.Equal(t, 0, result.Trades[0].NearMissCount)
	assert.Equal(t, 1, result.Trades[1].SLAdjustmentCount)
	assert.Equal(t, 2, result.Trades[1].NearMissCount)
}
