package parser

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// Summary holds the metrics derived from an ordered list of trades.
// All values are rounded: currency to 2 places, win rate and Sharpe ratio
// to 4 places, profit factor to 2 places.
type Summary struct {
	DailyPnl      []domain.DailyBucket
	NetPnl        float64
	TotalTrades   int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	GrossProfit   float64
	GrossLoss     float64
	ProfitFactor  *float64
	MaxDrawdown   float64
	SharpeRatio   *float64
	AvgTradePnl   float64
	LargestWin    float64
	LargestLoss   float64
	AvgBarsHeld   float64
	LineStats     []domain.LineStatistics
}

// tally accumulates realized P&L exactly.
type tally struct {
	count  int
	wins   int
	losses int
	net    decimal.Decimal
	profit decimal.Decimal
	loss   decimal.Decimal
}

func (t *tally) add(pnl float64) {
	d := decimal.NewFromFloat(pnl)
	t.count++
	t.net = t.net.Add(d)
	switch d.Sign() {
	case 1:
		t.wins++
		t.profit = t.profit.Add(d)
	case -1:
		t.losses++
		t.loss = t.loss.Add(d.Abs())
	}
}

func (t *tally) winRate() float64 {
	if t.count == 0 {
		return 0
	}
	return round(decimal.NewFromInt(int64(t.wins)).Div(decimal.NewFromInt(int64(t.count))), 4)
}

// profitFactor is nil when there are no losing trades.
func (t *tally) profitFactor() *float64 {
	if t.loss.IsZero() {
		return nil
	}
	pf := round(t.profit.Div(t.loss), 2)
	return &pf
}

func (t *tally) avg() float64 {
	if t.count == 0 {
		return 0
	}
	return round(t.net.Div(decimal.NewFromInt(int64(t.count))), 2)
}

// Aggregate derives run metrics from trades in chronological order.
func Aggregate(trades []domain.ReconstructedTrade) Summary {
	var (
		all       tally
		barsTotal int
		peak      decimal.Decimal
		running   decimal.Decimal
		drawdown  decimal.Decimal
		largestW  float64
		largestL  float64
	)

	for _, t := range trades {
		all.add(t.RealizedPnl)
		barsTotal += t.BarsHeld

		running = running.Add(decimal.NewFromFloat(t.RealizedPnl))
		if running.GreaterThan(peak) {
			peak = running
		}
		if dd := peak.Sub(running); dd.GreaterThan(drawdown) {
			drawdown = dd
		}

		if t.RealizedPnl > largestW {
			largestW = t.RealizedPnl
		}
		if t.RealizedPnl < largestL {
			largestL = t.RealizedPnl
		}
	}

	s := Summary{
		DailyPnl:      dailyBuckets(trades),
		NetPnl:        round(all.net, 2),
		TotalTrades:   all.count,
		WinningTrades: all.wins,
		LosingTrades:  all.losses,
		WinRate:       all.winRate(),
		GrossProfit:   round(all.profit, 2),
		GrossLoss:     round(all.loss, 2),
		ProfitFactor:  all.profitFactor(),
		MaxDrawdown:   round(drawdown, 2),
		SharpeRatio:   sharpeRatio(trades),
		AvgTradePnl:   all.avg(),
		LargestWin:    roundFloat(largestW, 2),
		LargestLoss:   roundFloat(largestL, 2),
		LineStats:     lineStats(trades),
	}
	if all.count > 0 {
		s.AvgBarsHeld = roundFloat(float64(barsTotal)/float64(all.count), 2)
	}
	return s
}

// dailyBuckets groups trades by date. The intraday extremes track a running
// P&L that starts from zero on each day.
func dailyBuckets(trades []domain.ReconstructedTrade) []domain.DailyBucket {
	type day struct {
		net     decimal.Decimal
		count   int
		high    decimal.Decimal
		low     decimal.Decimal
		running decimal.Decimal
	}

	days := make(map[string]*day)
	order := make([]string, 0)
	for _, t := range trades {
		d, ok := days[t.Date]
		if !ok {
			d = &day{}
			days[t.Date] = d
			order = append(order, t.Date)
		}
		pnl := decimal.NewFromFloat(t.RealizedPnl)
		d.net = d.net.Add(pnl)
		d.count++
		d.running = d.running.Add(pnl)
		if d.running.GreaterThan(d.high) {
			d.high = d.running
		}
		if d.running.LessThan(d.low) {
			d.low = d.running
		}
	}

	sort.Strings(order)
	buckets := make([]domain.DailyBucket, 0, len(order))
	for _, date := range order {
		d := days[date]
		buckets = append(buckets, domain.DailyBucket{
			Date:               date,
			NetPnl:             round(d.net, 2),
			TradeCount:         d.count,
			HighestIntradayPnl: round(d.high, 2),
			LowestIntradayPnl:  round(d.low, 2),
		})
	}
	return buckets
}

func lineStats(trades []domain.ReconstructedTrade) []domain.LineStatistics {
	lines := make(map[string]*tally)
	for _, t := range trades {
		l, ok := lines[t.LineLabel]
		if !ok {
			l = &tally{}
			lines[t.LineLabel] = l
		}
		l.add(t.RealizedPnl)
	}

	labels := make([]string, 0, len(lines))
	for label := range lines {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	stats := make([]domain.LineStatistics, 0, len(labels))
	for _, label := range labels {
		l := lines[label]
		stats = append(stats, domain.LineStatistics{
			LineLabel:     label,
			TotalTrades:   l.count,
			WinningTrades: l.wins,
			LosingTrades:  l.losses,
			WinRate:       l.winRate(),
			NetPnl:        round(l.net, 2),
			AvgPnl:        l.avg(),
			GrossProfit:   round(l.profit, 2),
			GrossLoss:     round(l.loss, 2),
			ProfitFactor:  l.profitFactor(),
		})
	}
	return stats
}

// sharpeRatio is mean / standard deviation of per-trade P&L using the
// population variance. It is nil without trades or when the variance is zero.
func sharpeRatio(trades []domain.ReconstructedTrade) *float64 {
	n := float64(len(trades))
	if n == 0 {
		return nil
	}
	var sum float64
	for _, t := range trades {
		sum += t.RealizedPnl
	}
	mean := sum / n

	var sq float64
	for _, t := range trades {
		diff := t.RealizedPnl - mean
		sq += diff * diff
	}
	std := math.Sqrt(sq / n)
	if std == 0 || math.IsNaN(std) {
		return nil
	}
	sr := roundFloat(mean/std, 4)
	return &sr
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}

func roundFloat(f float64, places int32) float64 {
	return round(decimal.NewFromFloat(f), places)
}
