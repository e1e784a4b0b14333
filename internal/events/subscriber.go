package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/config"
	"github.com/mayura26/strategy-analyser-sub000/internal/domain"
)

// EventHandler is a function that processes received events.
type EventHandler func(ctx context.Context, routingKey string, body []byte) error

// Subscriber provides event subscription from RabbitMQ.
type Subscriber interface {
	// Subscribe starts consuming messages from RabbitMQ.
	Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error

	// Close closes the subscriber connection.
	Close() error
}

// SubmitFunc ingests one submitted log.
type SubmitFunc func(ctx context.Context, msg *LogSubmittedMessage) error

// NewSubmissionHandler adapts a SubmitFunc to an EventHandler for log.submitted messages.
func NewSubmissionHandler(submit SubmitFunc, logger *zap.Logger) EventHandler {
	return func(ctx context.Context, routingKey string, body []byte) error {
		if routingKey != RoutingKeyLogSubmitted {
			logger.Debug("Ignoring message", zap.String("routing_key", routingKey))
			return nil
		}
		msg, err := DecodeLogSubmitted(body)
		if err != nil {
			return err
		}
		return submit(ctx, msg)
	}
}

// shouldRequeue reports whether a failed message can succeed on redelivery.
func shouldRequeue(err error) bool {
	return !errors.Is(err, ErrInvalidSubmission) &&
		!errors.Is(err, domain.ErrUnparseable) &&
		!errors.Is(err, domain.ErrInvalidInput)
}

// RabbitMQSubscriber implements Subscriber using RabbitMQ.
type RabbitMQSubscriber struct {
	config   *config.RabbitMQConfig
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	logger   *zap.Logger

	mu           sync.RWMutex
	closed       bool
	reconnecting bool
	handler      EventHandler
	routingKeys  []string
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewRabbitMQSubscriber creates a new RabbitMQ subscriber on a durable queue.
func NewRabbitMQSubscriber(cfg *config.RabbitMQConfig, queueName string, logger *zap.Logger) (*RabbitMQSubscriber, error) {
	s := &RabbitMQSubscriber{
		config:   cfg,
		exchange: cfg.Exchange,
		queue:    queueName,
		logger:   logger,
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	return s, nil
}

// connect establishes connection to RabbitMQ.
func (s *RabbitMQSubscriber) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber is closed")
	}

	conn, err := amqp.Dial(s.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	fail := func(format string, err error) error {
		channel.Close()
		conn.Close()
		return fmt.Errorf(format, err)
	}

	if err := declareExchange(channel, s.exchange); err != nil {
		return fail("failed to declare exchange: %w", err)
	}

	// Submissions must survive broker restarts.
	_, err = channel.QueueDeclare(
		s.queue, // name
		true,    // durable
		false,   // auto-delete
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	for _, routingKey := range s.routingKeys {
		if err := channel.QueueBind(s.queue, routingKey, s.exchange, false, nil); err != nil {
			return fail("failed to bind queue: %w", err)
		}
	}

	prefetch := s.config.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := channel.Qos(prefetch, 0, false); err != nil {
		return fail("failed to set QoS: %w", err)
	}

	s.conn = conn
	s.channel = channel

	closeChan := make(chan *amqp.Error, 1)
	s.conn.NotifyClose(closeChan)
	go s.handleClose(closeChan)

	s.logger.Info("Connected to RabbitMQ for subscription",
		zap.String("exchange", s.exchange),
		zap.String("queue", s.queue),
		zap.Int("prefetch", prefetch),
	)

	return nil
}

// handleClose handles connection close events and triggers reconnection.
func (s *RabbitMQSubscriber) handleClose(closeChan chan *amqp.Error) {
	err := <-closeChan
	if err == nil {
		return // Graceful close
	}

	s.logger.Warn("RabbitMQ subscriber connection closed", zap.Error(err))
	s.reconnect()
}

// reconnect attempts to reconnect to RabbitMQ with exponential backoff.
func (s *RabbitMQSubscriber) reconnect() {
	s.mu.Lock()
	if s.closed || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.channel = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	delay, maxWait := reconnectDelays(s.config)

	for {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()
		if closed {
			return
		}

		s.logger.Info("Attempting to reconnect subscriber to RabbitMQ",
			zap.Duration("delay", delay),
		)

		time.Sleep(delay)

		if err := s.connect(); err != nil {
			delay = nextDelay(delay, maxWait)
			s.logger.Warn("Subscriber reconnection failed",
				zap.Error(err),
				zap.Duration("next_attempt", delay),
			)
			continue
		}

		s.mu.RLock()
		handler := s.handler
		ctx := s.ctx
		s.mu.RUnlock()

		if handler != nil && ctx != nil {
			go s.consume(ctx, handler)
		}

		s.logger.Info("Subscriber reconnected to RabbitMQ")
		return
	}
}

// Subscribe starts consuming messages from RabbitMQ.
func (s *RabbitMQSubscriber) Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("subscriber is closed")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.handler = handler
	s.routingKeys = routingKeys

	for _, routingKey := range routingKeys {
		if err := s.channel.QueueBind(s.queue, routingKey, s.exchange, false, nil); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to bind queue to routing key %s: %w", routingKey, err)
		}
	}
	consumeCtx := s.ctx
	s.mu.Unlock()

	s.logger.Info("Subscribed to routing keys",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", s.queue),
	)

	go s.consume(consumeCtx, handler)

	return nil
}

// consume consumes messages from the queue.
func (s *RabbitMQSubscriber) consume(ctx context.Context, handler EventHandler) {
	s.mu.RLock()
	if s.closed || s.channel == nil {
		s.mu.RUnlock()
		return
	}
	channel := s.channel
	s.mu.RUnlock()

	msgs, err := channel.Consume(
		s.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		s.logger.Error("Failed to start consuming", zap.Error(err))
		return
	}

	s.logger.Info("Started consuming messages from queue", zap.String("queue", s.queue))

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("Message channel closed")
				return
			}
			s.deliver(ctx, msg, handler)

		case <-ctx.Done():
			s.logger.Info("Subscriber context cancelled, stopping consumption")
			return
		}
	}
}

// deliver runs handler on one message and settles it.
func (s *RabbitMQSubscriber) deliver(ctx context.Context, msg amqp.Delivery, handler EventHandler) {
	s.logger.Debug("Received message",
		zap.String("routing_key", msg.RoutingKey),
		zap.Int("body_size", len(msg.Body)),
	)

	err := handler(ctx, msg.RoutingKey, msg.Body)
	if err == nil {
		msg.Ack(false)
		return
	}

	requeue := shouldRequeue(err) && !msg.Redelivered
	s.logger.Error("Failed to process message",
		zap.Error(err),
		zap.String("routing_key", msg.RoutingKey),
		zap.Bool("requeue", requeue),
	)
	msg.Nack(false, requeue)
}

// Close closes the subscriber connection.
func (s *RabbitMQSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cancel != nil {
		s.cancel()
	}

	var errs []error

	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("RabbitMQ subscriber closed")

	if len(errs) > 0 {
		return fmt.Errorf("errors closing subscriber: %v", errs)
	}
	return nil
}

// NoOpSubscriber is a subscriber that does nothing (for testing or when events disabled).
type NoOpSubscriber struct{}

// NewNoOpSubscriber creates a new no-op subscriber.
func NewNoOpSubscriber() *NoOpSubscriber {
	return &NoOpSubscriber{}
}

func (s *NoOpSubscriber) Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error {
	return nil
}

func (s *NoOpSubscriber) Close() error {
	return nil
}

// Ensure interface compliance
var _ Subscriber = (*RabbitMQSubscriber)(nil)
var _ Subscriber = (*NoOpSubscriber)(nil)
