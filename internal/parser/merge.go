package parser

import (
	"errors"
	"sort"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// MixedDialect is the dialect of a merged run whose inputs differ in dialect.
const MixedDialect = "mixed"

// ErrNothingToMerge is returned by Merge without input runs.
var ErrNothingToMerge = errors.New("no runs to merge")

// Merge combines runs into a single run. Trades and events are ordered by
// date and time, parameters keep their first occurrence, and all metrics are
// recomputed with Aggregate.
func Merge(name string, runs ...*domain.ParsedRun) (*domain.ParsedRun, error) {
	inputs := make([]*domain.ParsedRun, 0, len(runs))
	for _, r := range runs {
		if r != nil {
			inputs = append(inputs, r)
		}
	}
	if len(inputs) == 0 {
		return nil, ErrNothingToMerge
	}

	first := inputs[0]
	dialect := first.Dialect
	trades := make([]domain.ReconstructedTrade, 0)
	params := make([]domain.Parameter, 0)
	seen := make(map[string]bool)
	events := domain.DetailedEvents{
		TPNearMisses:   make([]domain.TPNearMiss, 0),
		FillNearMisses: make([]domain.FillNearMiss, 0),
		SLAdjustments:  make([]domain.SLAdjustment, 0),
	}
	var dropped, malformed int

	for _, r := range inputs {
		if r.Dialect != dialect {
			dialect = MixedDialect
		}
		trades = append(trades, r.DetailedTrades...)
		for _, p := range r.Parameters {
			if !seen[p.Name] {
				seen[p.Name] = true
				params = append(params, p)
			}
		}
		events.TPNearMisses = append(events.TPNearMisses, r.DetailedEvents.TPNearMisses...)
		events.FillNearMisses = append(events.FillNearMisses, r.DetailedEvents.FillNearMisses...)
		events.SLAdjustments = append(events.SLAdjustments, r.DetailedEvents.SLAdjustments...)
		dropped += r.DroppedFills
		malformed += int(metricValue(r.CustomMetrics, "malformed_fields"))
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return chronological(trades[i].Date, trades[i].Time, trades[j].Date, trades[j].Time)
	})
	sort.SliceStable(events.TPNearMisses, func(i, j int) bool {
		a, b := events.TPNearMisses[i], events.TPNearMisses[j]
		return chronological(a.Date, a.Time, b.Date, b.Time)
	})
	sort.SliceStable(events.FillNearMisses, func(i, j int) bool {
		a, b := events.FillNearMisses[i], events.FillNearMisses[j]
		return chronological(a.Date, a.Time, b.Date, b.Time)
	})
	sort.SliceStable(events.SLAdjustments, func(i, j int) bool {
		a, b := events.SLAdjustments[i], events.SLAdjustments[j]
		return chronological(a.Date, a.Time, b.Date, b.Time)
	})

	s := Aggregate(trades)

	// Runs of one strategy stay under it; a cross-strategy merge is filed under its own name.
	strategy := first.StrategyName
	runName := name
	if name != "" && mixedStrategies(inputs) {
		strategy = name
	}
	if runName == "" {
		runName = first.StrategyName + " merged"
	}

	return &domain.ParsedRun{
		StrategyName:   domain.NormalizeStrategyName(strategy),
		RunName:        runName,
		Dialect:        dialect,
		PointValue:     first.PointValue,
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
		DroppedFills:   dropped,
		DailyPnl:       s.DailyPnl,
		Parameters:     params,
		CustomMetrics:  buildMetrics(s, events, dropped, malformed),
		DetailedEvents: events,
		DetailedTrades: trades,
		LineStats:      s.LineStats,
	}, nil
}

func mixedStrategies(runs []*domain.ParsedRun) bool {
	for _, r := range runs[1:] {
		if r.StrategyName != runs[0].StrategyName {
			return true
		}
	}
	return false
}

// chronological reports whether (d1, t1) sorts before (d2, t2). Both dates and
// times are in their canonical zero-padded form.
func chronological(d1, t1, d2, t2 string) bool {
	if d1 != d2 {
		return d1 < d2
	}
	return t1 < t2
}

func metricValue(metrics []domain.Metric, name string) float64 {
	for _, m := range metrics {
		if m.Name == name {
			return m.Value
		}
	}
	return 0
}
