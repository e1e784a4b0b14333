package parser

import (
	"math"
	"regexp"
	"strings"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// SampleDialect is the dialect name of the SampleStrategy logs.
const SampleDialect = "SampleStrategy"

// defaultLineLabel labels trades whose entry carried no signal.
const defaultLineLabel = "default"

var (
	ssEntryRe = taggedLine(`ENTRY`, directionField+sep+
		`Price:`+ws+num("price")+
		`(?:`+sep+`Signal:`+ws+`(?P<signal>[^|\n]*))?`)

	ssExitRe = taggedLine(`EXIT`, directionField+sep+
		`Price:`+ws+num("price")+sep+
		`PnL:`+ws+num("pnl")+sep+
		`Bars:`+ws+num("bars")+
		`(?:`+sep+`Reason:`+ws+`(?P<reason>[^|\n]*))?`)

	ssStopRe = taggedLine(`STOP MOVED`, directionField+sep+
		`From:`+ws+num("from")+sep+
		`To:`+ws+num("to"))

	ssSettingRe = regexp.MustCompile(`(?m)\[SETTING\]` + ws + `(?P<name>[^=\n]+?)` + ws + `=` + ws + `(?P<value>[^\n]*?)` + ws + `$`)
)

// SampleStrategy returns the dialect for SampleStrategy logs.
func SampleStrategy() Dialect {
	return Dialect{
		Name:      SampleDialect,
		CanHandle: canHandleSample,
		Extract:   extractSample,
	}
}

func canHandleSample(text string) bool {
	if strings.Contains(text, "SampleStrategy") {
		return true
	}
	return strings.Contains(text, "[ENTRY (ID:") && strings.Contains(text, "[EXIT (ID:")
}

type sampleEntry struct {
	price  float64
	signal string
}

func extractSample(text string) (*Extraction, error) {
	x := newExtraction()
	f := &fieldReader{}

	x.StrategyName, x.RunName = extractRunHeader(text)

	seen := make(map[string]bool)
	for _, m := range scan(ssSettingRe, text) {
		x.Parameters = appendParameter(x.Parameters, seen, m.get("name"), m.get("value"))
	}

	entries := make(map[TradeKey]sampleEntry)
	for _, m := range scan(ssEntryRe, text) {
		key, date, tm := keyOf(m, f)
		price := f.float(m.get("price"))
		x.Fills = append(x.Fills, TradeFillEvent{
			Key:        key,
			Date:       date,
			Time:       tm,
			Direction:  domain.DirectionFromString(m.get("dir")),
			EntryPrice: price,
		})
		if _, ok := entries[key]; !ok {
			entries[key] = sampleEntry{price: price, signal: m.get("signal")}
		}
	}

	var total float64
	for _, m := range scan(ssExitRe, text) {
		key, date, tm := keyOf(m, f)
		dir := domain.DirectionFromString(m.get("dir"))
		exit := f.float(m.get("price"))
		pnl := f.money(m.get("pnl"))

		entry, ok := entries[key]
		if !ok {
			entry = sampleEntry{price: exit}
		}
		label := entry.signal
		if label == "" {
			label = defaultLineLabel
		}
		move := (exit - entry.price) * dir.Sign()

		x.Summaries = append(x.Summaries, TradeSummaryEvent{
			Key:          key,
			Date:         date,
			Time:         tm,
			Direction:    dir,
			LineLabel:    label,
			EntryPrice:   entry.price,
			HighPrice:    math.Max(entry.price, exit),
			LowPrice:     math.Min(entry.price, exit),
			MaxProfitPts: math.Max(move, 0),
			MaxLossPts:   math.Max(-move, 0),
			BarsHeld:     f.int(m.get("bars")),
		})

		total += pnl
		x.PnlUpdates = append(x.PnlUpdates, PnlUpdateEvent{
			Key:                key,
			Date:               date,
			Time:               tm,
			CompletedTradePnl:  pnl,
			CumulativeTotalPnl: total,
		})
	}

	for _, m := range scan(ssStopRe, text) {
		key, date, tm := keyOf(m, f)
		x.Events.SLAdjustments = append(x.Events.SLAdjustments, domain.SLAdjustment{
			Date:      date,
			Time:      tm,
			TradeID:   key.ID,
			Direction: domain.DirectionFromString(m.get("dir")),
			OldStop:   f.float(m.get("from")),
			NewStop:   f.float(m.get("to")),
		})
	}

	x.MalformedFields = f.malformed
	return x, nil
}
