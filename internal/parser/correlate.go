package parser

import (
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// CorrelationResult is the output of Correlate.
type CorrelationResult struct {
	Trades []domain.ReconstructedTrade
	// DroppedFills counts fills with no matching summary, plus repeated fills
	// for a key that already produced a trade.
	DroppedFills int
}

// Correlate joins fills with their summaries, P&L updates and open-position
// snapshots by trade key. Fills are visited in log order. A fill without a
// summary is dropped. A trade without a P&L update has a realized P&L of 0.
func Correlate(x *Extraction, pointValue float64) CorrelationResult {
	summaries := make(map[TradeKey]TradeSummaryEvent, len(x.Summaries))
	for _, s := range x.Summaries {
		if _, ok := summaries[s.Key]; !ok {
			summaries[s.Key] = s
		}
	}

	pnls := make(map[TradeKey]PnlUpdateEvent, len(x.PnlUpdates))
	for _, p := range x.PnlUpdates {
		if _, ok := pnls[p.Key]; !ok {
			pnls[p.Key] = p
		}
	}

	// The last snapshot of an open position is the closest to its exit.
	current := make(map[TradeKey]CurrentTradeEvent, len(x.CurrentTrades))
	for _, c := range x.CurrentTrades {
		current[c.Key] = c
	}

	slCounts := make(map[TradeKey]int)
	for _, e := range x.Events.SLAdjustments {
		slCounts[TradeKey{Date: e.Date, ID: e.TradeID}]++
	}
	nearMissCounts := make(map[TradeKey]int)
	for _, e := range x.Events.TPNearMisses {
		nearMissCounts[TradeKey{Date: e.Date, ID: e.TradeID}]++
	}
	for _, e := range x.Events.FillNearMisses {
		nearMissCounts[TradeKey{Date: e.Date, ID: e.TradeID}]++
	}

	result := CorrelationResult{Trades: make([]domain.ReconstructedTrade, 0, len(x.Fills))}
	used := make(map[TradeKey]bool, len(x.Fills))

	for _, fill := range x.Fills {
		summary, ok := summaries[fill.Key]
		if !ok || used[fill.Key] {
			result.DroppedFills++
			continue
		}
		used[fill.Key] = true

		trade := domain.ReconstructedTrade{
			Date:              fill.Date,
			Time:              fill.Time,
			TradeID:           fill.Key.ID,
			Direction:         fill.Direction,
			EntryPrice:        fill.EntryPrice,
			ExitPrice:         fill.EntryPrice,
			MaxProfitDollars:  summary.MaxProfitPts * pointValue,
			MaxLossDollars:    summary.MaxLossPts * pointValue,
			BarsHeld:          summary.BarsHeld,
			LineLabel:         summary.LineLabel,
			SLAdjustmentCount: slCounts[fill.Key],
			NearMissCount:     nearMissCounts[fill.Key],
		}

		pnl, hasPnl := pnls[fill.Key]
		trade.RealizedPnl = pnl.CompletedTradePnl
		if hasPnl && pointValue > 0 {
			trade.ExitPrice = fill.EntryPrice + fill.Direction.Sign()*pnl.CompletedTradePnl/pointValue
		} else if c, ok := current[fill.Key]; ok {
			trade.ExitPrice = c.Price
		}

		result.Trades = append(result.Trades, trade)
	}

	return result
}
