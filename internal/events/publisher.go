package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// Publisher provides event publishing to RabbitMQ.
type Publisher interface {
	// Publish publishes an event with the given routing key.
	Publish(ctx context.Context, routingKey string, event interface{}) error

	// PublishRunIngested publishes a run ingested event.
	PublishRunIngested(ctx context.Context, run *domain.Run) error

	// PublishRunDeleted publishes a run deleted event.
	PublishRunDeleted(ctx context.Context, runID uuid.UUID) error

	// PublishIngestFailed publishes an ingest failed event.
	PublishIngestFailed(ctx context.Context, event *IngestFailedEvent) error

	// Close closes the publisher connection.
	Close() error
}

// reconnectDelays parses the configured backoff bounds.
func reconnectDelays(cfg *config.RabbitMQConfig) (time.Duration, time.Duration) {
	reconnectDelay := 5 * time.Second
	maxReconnectWait := 30 * time.Second

	if d, err := time.ParseDuration(cfg.ReconnectDelay); err == nil && d > 0 {
		reconnectDelay = d
	}
	if d, err := time.ParseDuration(cfg.MaxReconnectWait); err == nil && d > 0 {
		maxReconnectWait = d
	}
	return reconnectDelay, maxReconnectWait
}

// nextDelay doubles delay up to max.
func nextDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		return max
	}
	return delay
}

// declareExchange declares the durable topic exchange shared by publisher and subscriber.
func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
}

// RabbitMQPublisher implements Publisher using RabbitMQ.
type RabbitMQPublisher struct {
	config   *config.RabbitMQConfig
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger

	mu           sync.RWMutex
	closed       bool
	reconnecting bool
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher.
func NewRabbitMQPublisher(cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{
		config:   cfg,
		exchange: cfg.Exchange,
		logger:   logger,
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

// connect establishes connection to RabbitMQ.
func (p *RabbitMQPublisher) connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	conn, err := amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareExchange(channel, p.exchange); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	p.conn = conn
	p.channel = channel

	closeChan := make(chan *amqp.Error, 1)
	p.conn.NotifyClose(closeChan)
	go p.handleClose(closeChan)

	p.logger.Info("Connected to RabbitMQ",
		zap.String("exchange", p.exchange),
	)

	return nil
}

// handleClose handles connection close events and triggers reconnection.
func (p *RabbitMQPublisher) handleClose(closeChan chan *amqp.Error) {
	err := <-closeChan
	if err == nil {
		return // Graceful close
	}

	p.logger.Warn("RabbitMQ connection closed", zap.Error(err))
	p.reconnect()
}

// reconnect attempts to reconnect to RabbitMQ with exponential backoff.
func (p *RabbitMQPublisher) reconnect() {
	p.mu.Lock()
	if p.closed || p.reconnecting {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.channel = nil
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	delay, maxWait := reconnectDelays(p.config)

	for {
		p.mu.RLock()
		closed := p.closed
		p.mu.RUnlock()
		if closed {
			return
		}

		p.logger.Info("Attempting to reconnect to RabbitMQ",
			zap.Duration("delay", delay),
		)

		time.Sleep(delay)

		if err := p.connect(); err != nil {
			delay = nextDelay(delay, maxWait)
			p.logger.Warn("Reconnection failed",
				zap.Error(err),
				zap.Duration("next_attempt", delay),
			)
			continue
		}

		p.logger.Info("Reconnected to RabbitMQ")
		return
	}
}

// Publish publishes an event with the given routing key.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	if p.channel == nil {
		p.mu.RUnlock()
		return fmt.Errorf("channel not available")
	}
	channel := p.channel
	p.mu.RUnlock()

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = channel.PublishWithContext(
		ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Published event",
		zap.String("routing_key", routingKey),
		zap.Int("body_size", len(body)),
	)

	return nil
}

// PublishRunIngested publishes a run ingested event.
func (p *RabbitMQPublisher) PublishRunIngested(ctx context.Context, run *domain.Run) error {
	return p.Publish(ctx, RoutingKeyRunIngested, NewRunIngestedEvent(run))
}

// PublishRunDeleted publishes a run deleted event.
func (p *RabbitMQPublisher) PublishRunDeleted(ctx context.Context, runID uuid.UUID) error {
	return p.Publish(ctx, RoutingKeyRunDeleted, NewRunDeletedEvent(runID))
}

// PublishIngestFailed publishes an ingest failed event.
func (p *RabbitMQPublisher) PublishIngestFailed(ctx context.Context, event *IngestFailedEvent) error {
	err := p.Publish(ctx, RoutingKeyIngestFailed, event)
	if err != nil {
		p.logger.Error("Failed to publish ingest.failed event",
			zap.String("source", event.IngestSource),
			zap.Error(err))
	}
	return err
}

// Close closes the publisher connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Info("RabbitMQ publisher closed")

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publisher: %v", errs)
	}
	return nil
}

// NoOpPublisher is a publisher that does nothing (for testing or when events disabled).
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Publish(ctx context.Context, routingKey string, event interface{}) error {
	return nil
}

func (p *NoOpPublisher) PublishRunIngested(ctx context.Context, run *domain.Run) error {
	return nil
}

func (p *NoOpPublisher) PublishRunDeleted(ctx context.Context, runID uuid.UUID) error {
	return nil
}

func (p *NoOpPublisher) PublishIngestFailed(ctx context.Context, event *IngestFailedEvent) error {
	return nil
}

func (p *NoOpPublisher) Close() error {
	return nil
}

// Ensure interface compliance
var _ Publisher = (*RabbitMQPublisher)(nil)
var _ Publisher = (*NoOpPublisher)(nil)
