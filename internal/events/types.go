// Package events provides RabbitMQ run lifecycle publishing and log submission consumption.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// Routing keys for events.
const (
	RoutingKeyRunIngested  = "run.ingested"
	RoutingKeyRunDeleted   = "run.deleted"
	RoutingKeyIngestFailed = "ingest.failed"

	// Inbound: remote runners submitting raw logs.
	RoutingKeyLogSubmitted = "log.submitted"
)

// Event types.
const (
	EventTypeRunIngested  = "run.ingested"
	EventTypeRunDeleted   = "run.deleted"
	EventTypeIngestFailed = "ingest.failed"
)

// ErrInvalidSubmission marks a log submission that can never be processed.
var ErrInvalidSubmission = errors.New("invalid log submission")

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with auto-generated event_id.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Source:    "strategy-analyser",
	}
}

// RunIngestedEvent is published when a run has been parsed and stored.
type RunIngestedEvent struct {
	BaseEvent
	RunID        uuid.UUID `json:"run_id"`
	StrategyID   uuid.UUID `json:"strategy_id"`
	StrategyName string    `json:"strategy_name"`
	RunName      string    `json:"run_name"`
	Dialect      string    `json:"dialect"`
	IngestSource string    `json:"ingest_source"`
	NetPnl       float64   `json:"net_pnl"`
	TotalTrades  int       `json:"total_trades"`
	WinRate      float64   `json:"win_rate"`
	ProfitFactor *float64  `json:"profit_factor,omitempty"`
	MaxDrawdown  float64   `json:"max_drawdown"`
	SharpeRatio  *float64  `json:"sharpe_ratio,omitempty"`
	DroppedFills int       `json:"dropped_fills"`
}

// NewRunIngestedEvent creates a RunIngestedEvent from a stored run.
func NewRunIngestedEvent(run *domain.Run) *RunIngestedEvent {
	return &RunIngestedEvent{
		BaseEvent:    NewBaseEvent(EventTypeRunIngested),
		RunID:        run.ID,
		StrategyID:   run.StrategyID,
		StrategyName: run.StrategyName,
		RunName:      run.Name,
		Dialect:      run.Dialect,
		IngestSource: run.Source,
		NetPnl:       run.NetPnl,
		TotalTrades:  run.TotalTrades,
		WinRate:      run.WinRate,
		ProfitFactor: run.ProfitFactor,
		MaxDrawdown:  run.MaxDrawdown,
		SharpeRatio:  run.SharpeRatio,
		DroppedFills: run.DroppedFills,
	}
}

// RunDeletedEvent is published when a run is removed.
type RunDeletedEvent struct {
	BaseEvent
	RunID uuid.UUID `json:"run_id"`
}

// NewRunDeletedEvent creates a new RunDeletedEvent.
func NewRunDeletedEvent(runID uuid.UUID) *RunDeletedEvent {
	return &RunDeletedEvent{
		BaseEvent: NewBaseEvent(EventTypeRunDeleted),
		RunID:     runID,
	}
}

// IngestFailedEvent is published when a submitted log could not be turned into a run.
type IngestFailedEvent struct {
	BaseEvent
	StrategyName string `json:"strategy_name,omitempty"`
	IngestSource string `json:"ingest_source"`
	Reason       string `json:"reason"`
	LogBytes     int    `json:"log_bytes"`
}

// NewIngestFailedEvent creates a new IngestFailedEvent.
func NewIngestFailedEvent(strategyName, source, reason string, logBytes int) *IngestFailedEvent {
	return &IngestFailedEvent{
		BaseEvent:    NewBaseEvent(EventTypeIngestFailed),
		StrategyName: strategyName,
		IngestSource: source,
		Reason:       reason,
		LogBytes:     logBytes,
	}
}

// LogSubmittedMessage is the body of a log.submitted message.
type LogSubmittedMessage struct {
	Strategy   string  `json:"strategy,omitempty"`
	RunName    string  `json:"run_name,omitempty"`
	Source     string  `json:"source,omitempty"`
	PointValue float64 `json:"point_value,omitempty"`
	Text       string  `json:"text"`
}

// DecodeLogSubmitted decodes and validates a log.submitted body.
// The returned error wraps ErrInvalidSubmission when the body is unusable.
func DecodeLogSubmitted(body []byte) (*LogSubmittedMessage, error) {
	var msg LogSubmittedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSubmission, err)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidSubmission)
	}
	if msg.PointValue < 0 {
		return nil, fmt.Errorf("%w: point_value must not be negative", ErrInvalidSubmission)
	}
	if msg.Source == "" {
		msg.Source = "rabbitmq"
	}
	return &msg, nil
}
