package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
	"github.com/mayura26/strategy-analyser-sub000/internal/ingest"
)

// RunService is the run workflow the handlers expose.
type RunService interface {
	Dialects() []string
	Preview(ctx context.Context, text string, pointValue float64) (*domain.ParsedRun, error)
	Ingest(ctx context.Context, req ingest.Request) (*domain.Run, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*domain.RunDetail, error)
	Query(ctx context.Context, q domain.RunQuery) ([]*domain.Run, int, error)
	Strategies(ctx context.Context) ([]domain.StrategyWithStats, error)
	RawLog(ctx context.Context, id uuid.UUID) (string, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Merge(ctx context.Context, name string, ids []uuid.UUID, save bool) (*ingest.MergeResult, error)
	Compare(ctx context.Context, ids []uuid.UUID) (*ingest.Comparison, error)
}

// Handler provides REST API handlers.
type Handler struct {
	service      RunService
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandler creates a new Handler. maxBodyBytes bounds uploaded logs; zero means 10 MiB.
func NewHandler(service RunService, maxBodyBytes int64, logger *zap.Logger) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:      service,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: message,
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnparseable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status it maps to, logging server-side failures.
func (h *Handler) fail(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, err, message)
}

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, errors.New("empty UUID")
	}
	return uuid.Parse(s)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := parseUUID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid run id")
		return uuid.Nil, false
	}
	return id, true
}

// parseIDList parses a comma separated list of UUIDs.
func parseIDList(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, fmt.Errorf("invalid run id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// LogRequest is the JSON body accepted by the parse and ingest endpoints.
type LogRequest struct {
	Text       string  `json:"text"`
	Strategy   string  `json:"strategy,omitempty"`
	RunName    string  `json:"run_name,omitempty"`
	PointValue float64 `json:"point_value,omitempty"`
}

// readLogRequest accepts either a JSON LogRequest or the raw log as the body.
// For raw bodies the other fields come from the query string.
func (h *Handler) readLogRequest(w http.ResponseWriter, r *http.Request) (*LogRequest, error) {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req LogRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: invalid request body: %w", domain.ErrInvalidInput, err)
		}
		return &req, nil
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	q := r.URL.Query()
	req := &LogRequest{
		Text:     string(data),
		Strategy: q.Get("strategy"),
		RunName:  q.Get("run_name"),
	}
	if raw := q.Get("point_value"); raw != "" {
		pv, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid point_value", domain.ErrInvalidInput)
		}
		req.PointValue = pv
	}
	return req, nil
}

func (req *LogRequest) validate() error {
	if req.PointValue < 0 {
		return fmt.Errorf("%w: point_value must not be negative", domain.ErrInvalidInput)
	}
	return nil
}

// ========================================
// Parsing
// ========================================

// HandleDialects lists the recognized log dialects.
// GET /api/v1/dialects
func (h *Handler) HandleDialects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"dialects": h.service.Dialects()})
}

// HandleParse parses a log without storing it.
// POST /api/v1/parse
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	req, err := h.readLogRequest(w, r)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		h.fail(w, err, "invalid request")
		return
	}

	parsed, err := h.service.Preview(r.Context(), req.Text, req.PointValue)
	if err != nil {
		h.fail(w, err, "failed to parse log")
		return
	}

	writeJSON(w, http.StatusOK, parsed)
}

// ========================================
// Runs
// ========================================

// HandleIngestRun parses and stores a log.
// POST /api/v1/runs
func (h *Handler) HandleIngestRun(w http.ResponseWriter, r *http.Request) {
	req, err := h.readLogRequest(w, r)
	if err == nil {
		err = req.validate()
	}
	if err != nil {
		h.fail(w, err, "invalid request")
		return
	}

	run, err := h.service.Ingest(r.Context(), ingest.Request{
		Text:       req.Text,
		Strategy:   req.Strategy,
		RunName:    req.RunName,
		Source:     "api",
		PointValue: req.PointValue,
	})
	if err != nil {
		h.fail(w, err, "failed to ingest log")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]*domain.Run{"run": run})
}

// QueryRunsResponse is one page of runs.
type QueryRunsResponse struct {
	Runs     []*domain.Run `json:"runs"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
}

// HandleQueryRuns lists runs.
// GET /api/v1/runs?strategy_id=&dialect=&min_trades=&min_net_pnl=&from=&to=&order_by=&ascending=&page=&page_size=
func (h *Handler) HandleQueryRuns(w http.ResponseWriter, r *http.Request) {
	query, err := parseRunQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid query")
		return
	}

	runs, total, err := h.service.Query(r.Context(), query)
	if err != nil {
		h.fail(w, err, "failed to query runs")
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}

	query.SetDefaults()
	writeJSON(w, http.StatusOK, QueryRunsResponse{
		Runs:     runs,
		Total:    total,
		Page:     query.Page,
		PageSize: query.PageSize,
	})
}

func parseRunQuery(r *http.Request) (domain.RunQuery, error) {
	q := r.URL.Query()
	query := domain.RunQuery{
		OrderBy:   q.Get("order_by"),
		Ascending: q.Get("ascending") == "true",
	}

	if v := q.Get("strategy_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return query, fmt.Errorf("invalid strategy_id: %w", err)
		}
		query.StrategyID = &id
	}
	if v := q.Get("dialect"); v != "" {
		query.Dialect = &v
	}
	if v := q.Get("min_trades"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return query, fmt.Errorf("invalid min_trades: %w", err)
		}
		query.MinTrades = &n
	}
	if v := q.Get("min_net_pnl"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return query, fmt.Errorf("invalid min_net_pnl: %w", err)
		}
		query.MinNetPnl = &f
	}

	from, to := q.Get("from"), q.Get("to")
	if from != "" || to != "" {
		tr := &domain.TimeRange{End: time.Now()}
		var err error
		if from != "" {
			if tr.Start, err = time.Parse(time.RFC3339, from); err != nil {
				return query, fmt.Errorf("invalid from: %w", err)
			}
		}
		if to != "" {
			if tr.End, err = time.Parse(time.RFC3339, to); err != nil {
				return query, fmt.Errorf("invalid to: %w", err)
			}
		}
		query.TimeRange = tr
	}

	query.Page, _ = strconv.Atoi(q.Get("page"))
	query.PageSize, _ = strconv.Atoi(q.Get("page_size"))
	return query, nil
}

// HandleGetRun returns a run with all its records.
// GET /api/v1/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	detail, ok := h.detail(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) detail(w http.ResponseWriter, r *http.Request) (*domain.RunDetail, bool) {
	id, ok := h.pathID(w, r)
	if !ok {
		return nil, false
	}

	detail, err := h.service.GetDetail(r.Context(), id)
	if err != nil {
		h.fail(w, err, "failed to get run")
		return nil, false
	}
	return detail, true
}

// HandleRunSection serves one slice of a run's records.
// GET /api/v1/runs/{id}/{section}
func (h *Handler) HandleRunSection(w http.ResponseWriter, r *http.Request) {
	section := r.PathValue("section")
	if section == "log" {
		h.handleRawLog(w, r)
		return
	}

	detail, ok := h.detail(w, r)
	if !ok {
		return
	}

	var body interface{}
	switch section {
	case "daily":
		body = detail.DailyPnl
	case "trades":
		body = detail.DetailedTrades
	case "events":
		body = detail.DetailedEvents
	case "parameters":
		body = detail.Parameters
	case "metrics":
		body = detail.CustomMetrics
	case "lines":
		body = detail.Run.LineStats
	default:
		writeError(w, http.StatusNotFound, domain.ErrNotFound, "unknown run section "+section)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{section: body})
}

func (h *Handler) handleRawLog(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	text, err := h.service.RawLog(r.Context(), id)
	if err != nil {
		h.fail(w, err, "failed to get raw log")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

// HandleDeleteRun deletes a run.
// DELETE /api/v1/runs/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, err, "failed to delete run")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCompareRuns compares run summaries side by side.
// GET /api/v1/runs/compare?ids=a,b
func (h *Handler) HandleCompareRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(r.URL.Query().Get("ids"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid ids")
		return
	}

	comparison, err := h.service.Compare(r.Context(), ids)
	if err != nil {
		h.fail(w, err, "failed to compare runs")
		return
	}

	writeJSON(w, http.StatusOK, comparison)
}

// MergeRunsRequest is the body of a merge request.
type MergeRunsRequest struct {
	Name   string   `json:"name"`
	RunIDs []string `json:"run_ids"`
	Save   bool     `json:"save"`
}

// HandleMergeRuns merges stored runs into one.
// POST /api/v1/runs/merge
func (h *Handler) HandleMergeRuns(w http.ResponseWriter, r *http.Request) {
	var req MergeRunsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid request body")
		return
	}

	ids, err := parseIDList(strings.Join(req.RunIDs, ","))
	if err != nil {
		writeError(w, http.StatusBadRequest, err, "invalid run_ids")
		return
	}

	result, err := h.service.Merge(r.Context(), req.Name, ids, req.Save)
	if err != nil {
		h.fail(w, err, "failed to merge runs")
		return
	}

	status := http.StatusOK
	if result.Run != nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

// ========================================
// Strategies
// ========================================

// HandleListStrategies lists strategies with run statistics.
// GET /api/v1/strategies
func (h *Handler) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	strategies, err := h.service.Strategies(r.Context())
	if err != nil {
		h.fail(w, err, "failed to list strategies")
		return
	}
	if strategies == nil {
		strategies = []domain.StrategyWithStats{}
	}

	writeJSON(w, http.StatusOK, map[string][]domain.StrategyWithStats{"strategies": strategies})
}
