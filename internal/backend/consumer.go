package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/pkg/logger"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq"
	"procodus.dev/nettest/pkg/result"
)

const defaultResubscribeDelay = time.Second

var errNotConsuming = errors.New("not consuming from queue")

// Ingestor commits a submitted result.
type Ingestor interface {
	Ingest(ctx context.Context, env *result.Envelope) error
}

// ResultConsumer consumes submitted results from RabbitMQ and hands them to
// the Ingestor.
type ResultConsumer struct {
	logger   *slog.Logger
	ingestor Ingestor
	mqClient mq.ClientInterface
	queue    string
	metrics  *metrics.MQMetrics
	delay    time.Duration

	consuming atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// ConsumerConfig holds the configuration for the ResultConsumer.
type ConsumerConfig struct {
	Logger   *slog.Logger
	Ingestor Ingestor
	Client   mq.ClientInterface
	// QueueName labels metrics and log lines.
	QueueName string
	// Metrics is optional.
	Metrics *metrics.MQMetrics
	// ResubscribeDelay is the pause before consuming again after the
	// deliveries channel closed. Defaults to one second.
	ResubscribeDelay time.Duration
}

// NewResultConsumer creates a new ResultConsumer instance.
func NewResultConsumer(cfg *ConsumerConfig) (*ResultConsumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Ingestor == nil {
		return nil, errors.New("ingestor cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	delay := cfg.ResubscribeDelay
	if delay <= 0 {
		delay = defaultResubscribeDelay
	}

	return &ResultConsumer{
		logger:   cfg.Logger.With("queue", cfg.QueueName),
		ingestor: cfg.Ingestor,
		mqClient: cfg.Client,
		queue:    cfg.QueueName,
		metrics:  cfg.Metrics,
		delay:    delay,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start waits for the queue connection and begins consuming results.
func (c *ResultConsumer) Start(ctx context.Context) error {
	c.logger.Info("starting result consumer")

	if err := c.mqClient.WaitReady(ctx); err != nil {
		return fmt.Errorf("failed to wait for mq connection: %w", err)
	}

	deliveries, err := c.mqClient.Consume()
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.consuming.Store(true)
	c.logger.Info("result consumer started, waiting for messages")

	go c.processMessages(ctx, deliveries)

	return nil
}

// processMessages handles deliveries until ctx ends or Stop is called. A
// closed deliveries channel means the broker connection dropped; consuming
// resumes once the client has reconnected.
func (c *ResultConsumer) processMessages(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)
	defer c.consuming.Store(false)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context canceled, stopping message processing")
			return

		case <-c.stop:
			return

		case delivery, ok := <-deliveries:
			if !ok {
				c.consuming.Store(false)
				c.logger.Warn("deliveries channel closed, resubscribing")

				var resumed bool
				deliveries, resumed = c.resubscribe(ctx)
				if !resumed {
					return
				}
				c.consuming.Store(true)
				c.logger.Info("result consumer resubscribed")
				continue
			}

			c.handleDelivery(ctx, delivery)
		}
	}
}

// resubscribe waits for the client to reconnect and starts consuming again.
// It reports false when ctx ended or the consumer was stopped first.
func (c *ResultConsumer) resubscribe(ctx context.Context) (<-chan amqp.Delivery, bool) {
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-c.stop:
			return nil, false
		case <-time.After(c.delay):
		}

		if err := c.mqClient.WaitReady(ctx); err != nil {
			c.logger.Warn("mq connection not ready", "error", err)
			continue
		}

		deliveries, err := c.mqClient.Consume()
		if err != nil {
			c.logger.Warn("failed to resume consuming", "error", err)
			continue
		}
		return deliveries, true
	}
}

// handleDelivery ingests a single result. Undecodable messages and rejected
// results are acked and dropped; infrastructure failures are requeued.
func (c *ResultConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	env := &result.Envelope{}
	if err := json.Unmarshal(delivery.Body, env); err != nil {
		c.logger.Error("failed to decode result envelope", "error", err)
		c.ack(delivery)
		c.rejected("decode_error")
		return
	}

	log := c.logger
	if env.Result != nil {
		log = logger.ForResult(c.logger, env.Result.TestToken, "")
	}

	err := c.ingestor.Ingest(ctx, env)
	switch {
	case err == nil:
		if c.ack(delivery) && c.metrics != nil {
			c.metrics.MessagesConsumed.WithLabelValues(c.queue).Inc()
		}

	case ingest.IsPermanent(err):
		log.Warn("result rejected", "kind", ingest.Kind(err), "error", err)
		c.ack(delivery)
		c.rejected(ingest.Kind(err))

	default:
		log.Error("failed to ingest result", "error", err)
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
			return
		}
		if c.metrics != nil {
			c.metrics.MessagesRequeued.WithLabelValues(c.queue).Inc()
		}
	}
}

func (c *ResultConsumer) ack(delivery amqp.Delivery) bool {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		return false
	}
	return true
}

func (c *ResultConsumer) rejected(reason string) {
	if c.metrics != nil {
		c.metrics.MessagesRejected.WithLabelValues(c.queue, reason).Inc()
	}
}

// Check reports whether the consumer is subscribed to its queue.
func (c *ResultConsumer) Check(context.Context) error {
	if !c.consuming.Load() {
		return errNotConsuming
	}
	return nil
}

// Stop closes the MQ client and waits for in-flight processing to finish.
// It must only be called after a successful Start.
func (c *ResultConsumer) Stop() error {
	c.logger.Info("stopping result consumer")

	c.stopOnce.Do(func() { close(c.stop) })

	var err error
	if closeErr := c.mqClient.Close(); closeErr != nil {
		err = fmt.Errorf("failed to close mq client: %w", closeErr)
	}

	<-c.done

	c.logger.Info("result consumer stopped")
	return err
}
