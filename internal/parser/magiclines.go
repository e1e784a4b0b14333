package parser

import (
	"regexp"
	"strings"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// MagicLinesDialect is the dialect name of the MagicLinesScalper strategy.
const MagicLinesDialect = "MagicLinesScalper"

// Regular expressions for the MagicLinesScalper log dialect.
var (
	mlFillRe = taggedLine(`TRADE FILL`, directionField+sep+
		`Entry:`+ws+num("entry")+sep+
		`Bars Since Last Trade:`+ws+num("bars"))

	mlSummaryRe = taggedLine(`TRADE SUMMARY`, directionField+sep+
		`Line:`+ws+`(?P<line>[^|\n]*?)`+sep+
		`Entry:`+ws+num("entry")+sep+
		`High:`+ws+num("high")+sep+
		`Low:`+ws+num("low")+sep+
		`Max Profit:`+ws+num("maxprofit")+ws+`pts`+sep+
		`Max Loss:`+ws+num("maxloss")+ws+`pts`+sep+
		`Bars:`+ws+num("bars"))

	mlPnlRe = taggedLine(`PNL UPDATE`,
		`Completed Trade PnL:`+ws+num("pnl")+sep+
			`Total PnL:`+ws+num("total"))

	mlCurrentRe = taggedLine(`CURRENT TRADE`, directionField+sep+
		`Price:`+ws+num("price")+sep+
		`Open PnL:`+ws+num("open"))

	mlSLRe = taggedLine(`SL ADJUSTMENT`, directionField+sep+
		`Old SL:`+ws+num("old")+sep+
		`New SL:`+ws+num("new")+
		`(?:`+sep+`Reason:`+ws+`(?P<reason>[^|\n]*))?`)

	mlTPNearMissRe = taggedLine(`TP NEAR MISS`, directionField+sep+
		`Target:`+ws+num("target")+sep+
		`Closest:`+ws+num("closest")+sep+
		`Distance:`+ws+num("distance"))

	mlFillNearMissRe = taggedLine(`FILL NEAR MISS`, directionField+sep+
		`Line:`+ws+`(?P<line>[^|\n]*?)`+sep+
		`Limit:`+ws+num("limit")+sep+
		`Closest:`+ws+num("closest")+sep+
		`Distance:`+ws+num("distance"))

	mlParameterRe = regexp.MustCompile(`(?m)\[PARAMETER\]` + ws + `(?P<name>[^:\n]+?)` + ws + `:` + ws + `(?P<value>[^\n]*?)` + ws + `$`)
)

// MagicLinesScalper returns the dialect for MagicLinesScalper logs.
func MagicLinesScalper() Dialect {
	return Dialect{
		Name:      MagicLinesDialect,
		CanHandle: canHandleMagicLines,
		Extract:   extractMagicLines,
	}
}

func canHandleMagicLines(text string) bool {
	if strings.Contains(text, "MagicLinesScalper") {
		return true
	}
	return strings.Contains(text, "[TRADE FILL (ID:") && strings.Contains(text, "[TRADE SUMMARY (ID:")
}

func extractMagicLines(text string) (*Extraction, error) {
	x := newExtraction()
	f := &fieldReader{}

	x.StrategyName, x.RunName = extractRunHeader(text)
	x.Parameters = extractMLParameters(text)
	x.Fills = extractMLFills(text, f)
	x.Summaries = extractMLSummaries(text, f)
	x.PnlUpdates = extractMLPnlUpdates(text, f)
	x.CurrentTrades = extractMLCurrentTrades(text, f)
	x.Events.SLAdjustments = extractMLSLAdjustments(text, f)
	x.Events.TPNearMisses = extractMLTPNearMisses(text, f)
	x.Events.FillNearMisses = extractMLFillNearMisses(text, f)

	x.MalformedFields = f.malformed
	return x, nil
}

func extractMLParameters(text string) []domain.Parameter {
	params := make([]domain.Parameter, 0)
	seen := make(map[string]bool)
	for _, m := range scan(mlParameterRe, text) {
		params = appendParameter(params, seen, m.get("name"), m.get("value"))
	}
	return params
}

func extractMLFills(text string, f *fieldReader) []TradeFillEvent {
	fills := make([]TradeFillEvent, 0)
	for _, m := range scan(mlFillRe, text) {
		key, date, tm := keyOf(m, f)
		fills = append(fills, TradeFillEvent{
			Key:                key,
			Date:               date,
			Time:               tm,
			Direction:          domain.DirectionFromString(m.get("dir")),
			EntryPrice:         f.float(m.get("entry")),
			BarsSinceLastTrade: f.int(m.get("bars")),
		})
	}
	return fills
}

func extractMLSummaries(text string, f *fieldReader) []TradeSummaryEvent {
	summaries := make([]TradeSummaryEvent, 0)
	for _, m := range scan(mlSummaryRe, text) {
		key, date, tm := keyOf(m, f)
		summaries = append(summaries, TradeSummaryEvent{
			Key:          key,
			Date:         date,
			Time:         tm,
			Direction:    domain.DirectionFromString(m.get("dir")),
			LineLabel:    m.get("line"),
			EntryPrice:   f.float(m.get("entry")),
			HighPrice:    f.float(m.get("high")),
			LowPrice:     f.float(m.get("low")),
			MaxProfitPts: f.float(m.get("maxprofit")),
			MaxLossPts:   f.float(m.get("maxloss")),
			BarsHeld:     f.int(m.get("bars")),
		})
	}
	return summaries
}

func extractMLPnlUpdates(text string, f *fieldReader) []PnlUpdateEvent {
	updates := make([]PnlUpdateEvent, 0)
	for _, m := range scan(mlPnlRe, text) {
		key, date, tm := keyOf(m, f)
		updates = append(updates, PnlUpdateEvent{
			Key:                key,
			Date:               date,
			Time:               tm,
			CompletedTradePnl:  f.money(m.get("pnl")),
			CumulativeTotalPnl: f.money(m.get("total")),
		})
	}
	return updates
}

func extractMLCurrentTrades(text string, f *fieldReader) []CurrentTradeEvent {
	current := make([]CurrentTradeEvent, 0)
	for _, m := range scan(mlCurrentRe, text) {
		key, date, tm := keyOf(m, f)
		current = append(current, CurrentTradeEvent{
			Key:       key,
			Date:      date,
			Time:      tm,
			Direction: domain.DirectionFromString(m.get("dir")),
			Price:     f.float(m.get("price")),
			OpenPnl:   f.money(m.get("open")),
		})
	}
	return current
}

func extractMLSLAdjustments(text string, f *fieldReader) []domain.SLAdjustment {
	adjustments := make([]domain.SLAdjustment, 0)
	for _, m := range scan(mlSLRe, text) {
		key, date, tm := keyOf(m, f)
		adjustments = append(adjustments, domain.SLAdjustment{
			Date:      date,
			Time:      tm,
			TradeID:   key.ID,
			Direction: domain.DirectionFromString(m.get("dir")),
			OldStop:   f.float(m.get("old")),
			NewStop:   f.float(m.get("new")),
			Reason:    m.get("reason"),
		})
	}
	return adjustments
}

func extractMLTPNearMisses(text string, f *fieldReader) []domain.TPNearMiss {
	misses := make([]domain.TPNearMiss, 0)
	for _, m := range scan(mlTPNearMissRe, text) {
		key, date, tm := keyOf(m, f)
		misses = append(misses, domain.TPNearMiss{
			Date:      date,
			Time:      tm,
			TradeID:   key.ID,
			Direction: domain.DirectionFromString(m.get("dir")),
			Target:    f.float(m.get("target")),
			Closest:   f.float(m.get("closest")),
			Distance:  f.float(strings.TrimSuffix(m.get("distance"), "pts")),
		})
	}
	return misses
}

func extractMLFillNearMisses(text string, f *fieldReader) []domain.FillNearMiss {
	misses := make([]domain.FillNearMiss, 0)
	for _, m := range scan(mlFillNearMissRe, text) {
		key, date, tm := keyOf(m, f)
		misses = append(misses, domain.FillNearMiss{
			Date:      date,
			Time:      tm,
			TradeID:   key.ID,
			Direction: domain.DirectionFromString(m.get("dir")),
			LineLabel: m.get("line"),
			Limit:     f.float(m.get("limit")),
			Closest:   f.float(m.get("closest")),
			Distance:  f.float(strings.TrimSuffix(m.get("distance"), "pts")),
		})
	}
	return misses
}
