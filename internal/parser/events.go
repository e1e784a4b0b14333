package parser

import (
	"fmt"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// TradeKey joins the records of one trade. IDs are unique within a run and
// trading day, not globally.
type TradeKey struct {
	Date string
	ID   int
}

func (k TradeKey) String() string {
	return fmt.Sprintf("%s#%d", k.Date, k.ID)
}

// TradeFillEvent is an entry fill.
type TradeFillEvent struct {
	Key                TradeKey
	Date               string
	Time               string
	Direction          domain.Direction
	EntryPrice         float64
	BarsSinceLastTrade int
}

// TradeSummaryEvent is emitted once per completed trade.
type TradeSummaryEvent struct {
	Key          TradeKey
	Date         string
	Time         string
	Direction    domain.Direction
	LineLabel    string
	EntryPrice   float64
	HighPrice    float64
	LowPrice     float64
	MaxProfitPts float64
	MaxLossPts   float64
	BarsHeld     int
}

// PnlUpdateEvent reports the realized P&L of a closed trade.
type PnlUpdateEvent struct {
	Key                TradeKey
	Date               string
	Time               string
	CompletedTradePnl  float64
	CumulativeTotalPnl float64
}

// CurrentTradeEvent is a snapshot of an open position.
type CurrentTradeEvent struct {
	Key       TradeKey
	Date      string
	Time      string
	Direction domain.Direction
	Price     float64
	OpenPnl   float64
}

// Extraction holds every record a dialect found in one log, in source order.
type Extraction struct {
	StrategyName string
	RunName      string

	Parameters    []domain.Parameter
	Fills         []TradeFillEvent
	Summaries     []TradeSummaryEvent
	PnlUpdates    []PnlUpdateEvent
	CurrentTrades []CurrentTradeEvent
	Events        domain.DetailedEvents

	// MalformedFields counts numeric fields that were replaced by zero.
	MalformedFields int
}

func newExtraction() *Extraction {
	return &Extraction{
		Parameters:    make([]domain.Parameter, 0),
		Fills:         make([]TradeFillEvent, 0),
		Summaries:     make([]TradeSummaryEvent, 0),
		PnlUpdates:    make([]PnlUpdateEvent, 0),
		CurrentTrades: make([]CurrentTradeEvent, 0),
		Events: domain.DetailedEvents{
			TPNearMisses:   make([]domain.TPNearMiss, 0),
			FillNearMisses: make([]domain.FillNearMiss, 0),
			SLAdjustments:  make([]domain.SLAdjustment, 0),
		},
	}
}

// keyOf builds the trade key of a match from its date and id groups.
func keyOf(m match, f *fieldReader) (TradeKey, string, string) {
	date := NormalizeDate(m.get("date"))
	return TradeKey{Date: date, ID: f.int(m.get("id"))}, date, NormalizeTime(m.get("time"))
}

// extractRunHeader reads the optional [RUN START] header.
func extractRunHeader(text string) (strategy, run string) {
	if m := runStartRe.FindStringSubmatch(text); m != nil {
		hdr := match{re: runStartRe, groups: m}
		return hdr.get("strategy"), hdr.get("run")
	}
	return "", ""
}

// appendParameter adds a parameter unless one with the same name is already present.
func appendParameter(params []domain.Parameter, seen map[string]bool, name, value string) []domain.Parameter {
	if name == "" || seen[name] {
		return params
	}
	seen[name] = true
	return append(params, domain.Parameter{
		Name:  name,
		Value: value,
		Type:  domain.InferParamType(value),
	})
}
