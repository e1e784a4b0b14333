// Package ingest turns submitted logs into stored runs and announces them.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/cache"
	"github.com/mayura26/strategy-analyser-sub000/internal/db/repository"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
	"github.com/mayura26/strategy-analyser-sub000/internal/events"
	"github.com/mayura26/strategy-analyser-sub000/internal/parser"
)

const tracerName = "github.com/mayura26/strategy-analyser-sub000/internal/ingest"

// MaxCompareRuns bounds Compare and Merge inputs.
const MaxCompareRuns = 20

// Notifier pushes events to connected dashboard clients.
type Notifier interface {
	BroadcastEvent(eventType string, data interface{})
}

type noopNotifier struct{}

func (noopNotifier) BroadcastEvent(string, interface{}) {}

// Request is one log submission.
type Request struct {
	Text string
	// Strategy overrides the strategy name found in the log.
	Strategy string
	// RunName overrides the run name found in the log.
	RunName string
	// DefaultRunName names the run when neither RunName nor the log does.
	DefaultRunName string
	// Source records where the log came from ("api", "inbox", "rabbitmq", ...).
	Source string
	// PointValue overrides the parser default when positive.
	PointValue float64
}

// Service orchestrates parsing and persistence of runs.
type Service struct {
	parser     *parser.Parser
	strategies repository.StrategyRepository
	runs       repository.RunRepository
	cache      *cache.RunCache
	publisher  events.Publisher
	notifier   Notifier
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewService creates a new ingest service. A nil cache disables caching and
// nil publisher or notifier disable event delivery.
func NewService(
	p *parser.Parser,
	repos *repository.Repositories,
	runCache *cache.RunCache,
	publisher events.Publisher,
	notifier Notifier,
	logger *zap.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NewNoOpPublisher()
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		parser:     p,
		strategies: repos.Strategy,
		runs:       repos.Run,
		cache:      runCache,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
	}
}

// Dialects lists the recognized log dialects in detection order.
func (s *Service) Dialects() []string {
	return s.parser.Registry().Names()
}

// Preview parses a log without storing it.
func (s *Service) Preview(ctx context.Context, text string, pointValue float64) (*domain.ParsedRun, error) {
	_, span := s.tracer.Start(ctx, "ingest.Preview")
	defer span.End()

	parsed, err := s.parse(span, text, pointValue)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

// parse runs the parser and maps its failures onto domain errors.
func (s *Service) parse(span trace.Span, text string, pointValue float64) (*domain.ParsedRun, error) {
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%w: log text is empty", domain.ErrInvalidInput)
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("log.bytes", len(text)))

	parsed, err := s.parser.ParseWithOptions(text, parser.Options{PointValue: pointValue})
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrUnparseable, err)
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("run.dialect", parsed.Dialect),
		attribute.Int("run.total_trades", parsed.TotalTrades),
		attribute.Int("run.dropped_fills", parsed.DroppedFills),
	)
	return parsed, nil
}

// Ingest parses and stores a log, returning the stored run.
func (s *Service) Ingest(ctx context.Context, req Request) (*domain.Run, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Ingest")
	defer span.End()

	if req.Source == "" {
		req.Source = "api"
	}
	span.SetAttributes(attribute.String("ingest.source", req.Source))

	parsed, err := s.parse(span, req.Text, req.PointValue)
	if err != nil {
		s.reportFailure(ctx, req, err)
		return nil, err
	}

	if req.Strategy != "" {
		parsed.StrategyName = domain.NormalizeStrategyName(req.Strategy)
	}
	if req.RunName != "" {
		parsed.RunName = req.RunName
	}
	if parsed.RunName == "" {
		parsed.RunName = req.DefaultRunName
	}

	raw, truncated, err := parser.CompressLog(req.Text)
	if err != nil {
		s.logger.Warn("Failed to compress raw log, storing run without it", zap.Error(err))
	}
	if truncated {
		s.logger.Info("Raw log truncated before storage",
			zap.String("strategy", parsed.StrategyName),
			zap.Int("log_bytes", len(req.Text)),
		)
	}

	run, err := s.store(ctx, parsed, req.Source, raw)
	if err != nil {
		recordError(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("run.id", run.ID.String()))
	s.logger.Info("Run ingested",
		zap.String("run_id", run.ID.String()),
		zap.String("strategy", run.StrategyName),
		zap.String("dialect", run.Dialect),
		zap.String("source", run.Source),
		zap.Int("total_trades", run.TotalTrades),
		zap.Float64("net_pnl", run.NetPnl),
	)

	return run, nil
}

// store persists a parsed run and announces it.
func (s *Service) store(ctx context.Context, parsed *domain.ParsedRun, source string, raw []byte) (*domain.Run, error) {
	strategy, err := s.strategies.GetOrCreate(ctx, parsed.StrategyName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve strategy: %w", err)
	}

	run := domain.NewRun(strategy, parsed, source)
	run.RawLog = raw

	if err := s.runs.Create(ctx, run, parsed); err != nil {
		return nil, fmt.Errorf("failed to store run: %w", err)
	}

	s.cache.Invalidate(ctx, run.ID)

	if err := s.publisher.PublishRunIngested(ctx, run); err != nil {
		s.logger.Warn("Failed to publish run.ingested", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	s.notifier.BroadcastEvent(events.EventTypeRunIngested, events.NewRunIngestedEvent(run))

	return run, nil
}

// reportFailure announces a log that could not be parsed.
func (s *Service) reportFailure(ctx context.Context, req Request, err error) {
	s.logger.Warn("Log rejected",
		zap.String("source", req.Source),
		zap.Int("log_bytes", len(req.Text)),
		zap.Error(err),
	)

	event := events.NewIngestFailedEvent(req.Strategy, req.Source, err.Error(), len(req.Text))
	if pubErr := s.publisher.PublishIngestFailed(ctx, event); pubErr != nil {
		s.logger.Warn("Failed to publish ingest.failed", zap.Error(pubErr))
	}
	s.notifier.BroadcastEvent(events.EventTypeIngestFailed, event)
}

// HandleSubmission ingests a log.submitted message.
func (s *Service) HandleSubmission(ctx context.Context, msg *events.LogSubmittedMessage) error {
	_, err := s.Ingest(ctx, Request{
		Text:       msg.Text,
		Strategy:   msg.Strategy,
		RunName:    msg.RunName,
		Source:     msg.Source,
		PointValue: msg.PointValue,
	})
	return err
}

// GetDetail returns a stored run with all its records, served from cache when possible.
func (s *Service) GetDetail(ctx context.Context, id uuid.UUID) (*domain.RunDetail, error) {
	if detail, ok := s.cache.Get(ctx, id); ok {
		return detail, nil
	}

	detail, err := s.runs.GetDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, detail)
	return detail, nil
}

// Query lists stored runs matching q.
func (s *Service) Query(ctx context.Context, q domain.RunQuery) ([]*domain.Run, int, error) {
	q.SetDefaults()
	return s.runs.Query(ctx, q)
}

// Strategies lists known strategies with their run statistics.
func (s *Service) Strategies(ctx context.Context) ([]domain.StrategyWithStats, error) {
	return s.strategies.List(ctx)
}

// RawLog returns the stored log text of a run.
func (s *Service) RawLog(ctx context.Context, id uuid.UUID) (string, error) {
	raw, err := s.runs.GetRawLog(ctx, id)
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", domain.NewNotFoundError("raw log", id.String())
	}
	return parser.DecompressLog(raw)
}

// Delete removes a stored run.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.runs.Delete(ctx, id); err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id)

	if err := s.publisher.PublishRunDeleted(ctx, id); err != nil {
		s.logger.Warn("Failed to publish run.deleted", zap.String("run_id", id.String()), zap.Error(err))
	}
	s.notifier.BroadcastEvent(events.EventTypeRunDeleted, events.NewRunDeletedEvent(id))

	s.logger.Info("Run deleted", zap.String("run_id", id.String()))
	return nil
}

// MergeResult is the outcome of merging stored runs.
type MergeResult struct {
	Parsed *domain.ParsedRun `json:"parsed"`
	// Run is set when the merged run was stored.
	Run *domain.Run `json:"run,omitempty"`
}

// Merge combines stored runs into one and, if save is set, stores the result.
func (s *Service) Merge(ctx context.Context, name string, ids []uuid.UUID, save bool) (*MergeResult, error) {
	ctx, span := s.tracer.Start(ctx, "ingest.Merge")
	defer span.End()
	span.SetAttributes(attribute.Int("merge.inputs", len(ids)))

	if err := checkIDs(ids, 1); err != nil {
		recordError(span, err)
		return nil, err
	}

	inputs := make([]*domain.ParsedRun, 0, len(ids))
	for _, id := range ids {
		detail, err := s.GetDetail(ctx, id)
		if err != nil {
			recordError(span, err)
			return nil, err
		}
		inputs = append(inputs, detail.ToParsedRun())
	}

	merged, err := parser.Merge(name, inputs...)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		recordError(span, err)
		return nil, err
	}

	result := &MergeResult{Parsed: merged}
	if !save {
		return result, nil
	}

	run, err := s.store(ctx, merged, "merge", nil)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	result.Run = run

	s.logger.Info("Merged runs stored",
		zap.String("run_id", run.ID.String()),
		zap.Int("inputs", len(ids)),
		zap.Int("total_trades", run.TotalTrades),
	)
	return result, nil
}

// Comparison lists run summaries side by side with the best run per metric.
type Comparison struct {
	Runs []*domain.Run        `json:"runs"`
	Best map[string]uuid.UUID `json:"best"`
}

// Compare loads run summaries and ranks them per headline metric.
func (s *Service) Compare(ctx context.Context, ids []uuid.UUID) (*Comparison, error) {
	if err := checkIDs(ids, 2); err != nil {
		return nil, err
	}

	runs := make([]*domain.Run, 0, len(ids))
	for _, id := range ids {
		run, err := s.runs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return &Comparison{Runs: runs, Best: bestRuns(runs)}, nil
}

func checkIDs(ids []uuid.UUID, min int) error {
	if len(ids) < min {
		return fmt.Errorf("%w: at least %d run ids are required", domain.ErrInvalidInput, min)
	}
	if len(ids) > MaxCompareRuns {
		return fmt.Errorf("%w: at most %d run ids are allowed", domain.ErrInvalidInput, MaxCompareRuns)
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return fmt.Errorf("%w: duplicate run id %s", domain.ErrInvalidInput, id)
		}
		seen[id] = true
	}
	return nil
}

// bestRuns picks the leading run for each metric. Ties keep the earlier run
// and undefined ratios never lead.
func bestRuns(runs []*domain.Run) map[string]uuid.UUID {
	type metric struct {
		name   string
		value  func(*domain.Run) (float64, bool)
		better func(a, b float64) bool
	}
	higher := func(a, b float64) bool { return a > b }
	lower := func(a, b float64) bool { return a < b }
	ptr := func(v *float64) (float64, bool) {
		if v == nil {
			return 0, false
		}
		return *v, true
	}

	metrics := []metric{
		{"net_pnl", func(r *domain.Run) (float64, bool) { return r.NetPnl, true }, higher},
		{"win_rate", func(r *domain.Run) (float64, bool) { return r.WinRate, r.TotalTrades > 0 }, higher},
		{"profit_factor", func(r *domain.Run) (float64, bool) { return ptr(r.ProfitFactor) }, higher},
		{"sharpe_ratio", func(r *domain.Run) (float64, bool) { return ptr(r.SharpeRatio) }, higher},
		{"max_drawdown", func(r *domain.Run) (float64, bool) { return r.MaxDrawdown, true }, lower},
	}

	best := make(map[string]uuid.UUID, len(metrics))
	for _, m := range metrics {
		var (
			bestID  uuid.UUID
			bestVal float64
			found   bool
		)
		for _, r := range runs {
			v, ok := m.value(r)
			if !ok {
				continue
			}
			if !found || m.better(v, bestVal) {
				bestID, bestVal, found = r.ID, v, true
			}
		}
		if found {
			best[m.name] = bestID
		}
	}
	return best
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// IsRetryable reports whether a failed ingest may succeed if attempted again.
func IsRetryable(err error) bool {
	return err != nil &&
		!errors.Is(err, domain.ErrUnparseable) &&
		!errors.Is(err, domain.ErrInvalidInput) &&
		!errors.Is(err, domain.ErrDuplicate)
}
