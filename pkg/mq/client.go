// Package mq provides a RabbitMQ client with automatic reconnection and error handling.
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/nettest/pkg/metrics"
)

// Client is a RabbitMQ client bound to a single queue. It reconnects in the
// background and publishes with confirmations.
type Client struct {
	m               *sync.Mutex
	logger          *slog.Logger
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan struct{}
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	metrics         *metrics.MQMetrics
	queueName       string
	contentType     string
	prefetch        int
	durable         bool
	isReady         bool
	closed          bool
}

const (
	// When reconnecting to the server after connection failure.
	reconnectDelay = 5 * time.Second

	// When setting up the channel after a channel exception.
	reInitDelay = 2 * time.Second

	// Initial backoff delay for Push retries.
	initialBackoff = 100 * time.Millisecond

	// Maximum backoff delay for Push retries.
	maxBackoff = 10 * time.Second

	// Backoff multiplier for exponential backoff.
	backoffMultiplier = 2

	// Maximum number of retry attempts before giving up.
	maxRetryAttempts = 5

	// Poll interval of WaitReady.
	readyPollInterval = 100 * time.Millisecond
)

var (
	errNotConnected       = errors.New("not connected to a server")
	errAlreadyClosed      = errors.New("already closed: not connected to the server")
	errShutdown           = errors.New("client is shutting down")
	errMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")
)

// Option configures a Client.
type Option func(*Client)

// WithMetrics records publish, connection and consume metrics in m.
func WithMetrics(m *metrics.MQMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPrefetch sets how many unacknowledged deliveries Consume keeps in
// flight. Defaults to 1.
func WithPrefetch(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.prefetch = n
		}
	}
}

// WithDurableQueue controls whether the queue survives a broker restart.
// Queues are durable by default.
func WithDurableQueue(durable bool) Option {
	return func(c *Client) { c.durable = durable }
}

// WithContentType sets the content type of published messages. Defaults to
// application/json.
func WithContentType(contentType string) Option {
	return func(c *Client) { c.contentType = contentType }
}

// New creates a client for queueName and starts connecting to addr in the
// background.
func New(queueName, addr string, l *slog.Logger, opts ...Option) *Client {
	client := &Client{
		m:           &sync.Mutex{},
		logger:      l.With("queue", queueName),
		queueName:   queueName,
		contentType: "application/json",
		prefetch:    1,
		durable:     true,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(client)
	}
	go client.handleReconnect(addr)
	return client
}

// QueueName returns the queue the client is bound to.
func (client *Client) QueueName() string {
	return client.queueName
}

// handleReconnect will wait for a connection error on
// notifyConnClose, and then continuously attempt to reconnect.
func (client *Client) handleReconnect(addr string) {
	for {
		client.setReady(false)
		client.logger.Info("attempting to connect")

		if client.metrics != nil {
			client.metrics.ReconnectAttempts.Inc()
		}

		conn, err := client.connect(addr)
		if err != nil {
			client.logger.Error("failed to connect. Retrying...", "error", err)

			select {
			case <-client.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := client.handleReInit(conn); done {
			return
		}
	}
}

// connect will create a new AMQP connection.
func (client *Client) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		if client.metrics != nil {
			client.metrics.ConnectionStatus.Set(0)
		}
		return nil, err
	}

	client.changeConnection(conn)
	client.logger.Info("connected")

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(1)
	}

	return conn, nil
}

// handleReInit will wait for a channel error
// and then continuously attempt to re-initialize both channels.
func (client *Client) handleReInit(conn *amqp.Connection) bool {
	for {
		client.setReady(false)

		err := client.init(conn)
		if err != nil {
			client.logger.Error("failed to initialize channel, retrying...", "error", err)

			select {
			case <-client.done:
				return true
			case <-client.notifyConnClose:
				client.logger.Info("connection closed, reconnecting...")
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-client.done:
			return true
		case <-client.notifyConnClose:
			client.logger.Info("connection closed, reconnecting...")
			return false
		case <-client.notifyChanClose:
			client.logger.Info("channel closed, re-running init...")
		}
	}
}

// init will initialize channel & declare queue.
func (client *Client) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	if err := ch.Confirm(false); err != nil {
		return err
	}
	_, err = ch.QueueDeclare(
		client.queueName,
		client.durable, // Durable
		false,          // Delete when unused
		false,          // Exclusive
		false,          // No-wait
		nil,            // Arguments
	)
	if err != nil {
		return err
	}

	client.changeChannel(ch)
	client.setReady(true)
	client.logger.Info("client init done", "durable", client.durable)

	return nil
}

func (client *Client) setReady(ready bool) {
	client.m.Lock()
	client.isReady = ready
	client.m.Unlock()
}

func (client *Client) ready() bool {
	client.m.Lock()
	defer client.m.Unlock()
	return client.isReady
}

// changeConnection takes a new connection to the queue,
// and updates the close listener to reflect this.
func (client *Client) changeConnection(connection *amqp.Connection) {
	client.connection = connection
	client.notifyConnClose = make(chan *amqp.Error, 1)
	client.connection.NotifyClose(client.notifyConnClose)
}

// changeChannel takes a new channel to the queue,
// and updates the channel listeners to reflect this.
func (client *Client) changeChannel(channel *amqp.Channel) {
	client.channel = channel
	client.notifyChanClose = make(chan *amqp.Error, 1)
	client.notifyConfirm = make(chan amqp.Confirmation, 1)
	client.channel.NotifyClose(client.notifyChanClose)
	client.channel.NotifyPublish(client.notifyConfirm)
}

// WaitReady blocks until the client is connected, ctx ends or the client is
// closed.
func (client *Client) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for !client.ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-client.done:
			return errShutdown
		case <-ticker.C:
		}
	}
	return nil
}

// backoff sleeps for *delay and grows it for the next attempt.
func (client *Client) backoff(ctx context.Context, delay *time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-client.done:
		return errShutdown
	case <-time.After(*delay):
		*delay = min(*delay*backoffMultiplier, maxBackoff)
		return nil
	}
}

func (client *Client) pushFailed(reason string) {
	if client.metrics != nil {
		client.metrics.PushFailures.WithLabelValues(client.queueName, reason).Inc()
	}
}

// Push will push data onto the queue, and wait for a confirmation.
// This will block until the server sends a confirmation. While the client
// is disconnected, or when a publish is rejected, Push retries with
// exponential backoff and gives up after maxRetryAttempts attempts.
func (client *Client) Push(ctx context.Context, data []byte) error {
	if client.metrics != nil {
		timer := prometheus.NewTimer(client.metrics.PushDuration.WithLabelValues(client.queueName))
		defer timer.ObserveDuration()
	}

	delay := initialBackoff
	for attempt := 0; ; attempt++ {
		if attempt >= maxRetryAttempts {
			client.logger.Error("maximum retry attempts exceeded",
				"retry_count", attempt,
				"max_attempts", maxRetryAttempts)
			client.pushFailed("max_retries_exceeded")
			return errMaxRetriesExceeded
		}

		if !client.ready() {
			client.logger.Info("not connected, waiting for reconnection",
				"backoff", delay,
				"retry_count", attempt)
			if err := client.backoff(ctx, &delay); err != nil {
				return err
			}
			continue
		}

		if err := client.UnsafePush(ctx, data); err != nil {
			client.logger.Error("push failed, retrying with backoff",
				"error", err,
				"backoff", delay,
				"retry_count", attempt)
			if err := client.backoff(ctx, &delay); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			client.pushFailed("context_canceled")
			return ctx.Err()
		case confirm := <-client.notifyConfirm:
			if confirm.Ack {
				if client.metrics != nil {
					client.metrics.MessagesPushed.WithLabelValues(client.queueName).Inc()
				}
				client.logger.Debug("push confirmed",
					"delivery_tag", confirm.DeliveryTag,
					"retry_count", attempt)
				return nil
			}
			client.logger.Warn("push not acknowledged, retrying",
				"delivery_tag", confirm.DeliveryTag,
				"backoff", delay)
			if err := client.backoff(ctx, &delay); err != nil {
				return err
			}
		}
	}
}

// UnsafePush will push to the queue without checking for
// confirmation. It returns an error if it fails to connect.
// No guarantees are provided for whether the server will
// receive the message.
func (client *Client) UnsafePush(ctx context.Context, data []byte) error {
	if !client.ready() {
		return errNotConnected
	}

	deliveryMode := amqp.Transient
	if client.durable {
		deliveryMode = amqp.Persistent
	}

	return client.channel.PublishWithContext(
		ctx,
		"",               // Exchange
		client.queueName, // Routing key
		false,            // Mandatory
		false,            // Immediate
		amqp.Publishing{
			ContentType:  client.contentType,
			DeliveryMode: deliveryMode,
			Timestamp:    time.Now().UTC(),
			Body:         data,
		},
	)
}

// Consume will continuously put queue items on the channel.
// It is required to call delivery.Ack when it has been
// successfully processed, or delivery.Nack when it fails.
// Ignoring this will cause data to build up on the server.
func (client *Client) Consume() (<-chan amqp.Delivery, error) {
	if !client.ready() {
		return nil, errNotConnected
	}

	if err := client.channel.Qos(
		client.prefetch, // prefetchCount
		0,               // prefetchSize
		false,           // global
	); err != nil {
		return nil, err
	}

	return client.channel.Consume(
		client.queueName,
		"",    // Consumer
		false, // Auto-Ack
		false, // Exclusive
		false, // No-local
		false, // No-Wait
		nil,   // Args
	)
}

// Close stops reconnecting and shuts down the channel and connection.
func (client *Client) Close() error {
	client.m.Lock()
	defer client.m.Unlock()

	if client.closed {
		return errAlreadyClosed
	}
	client.closed = true
	close(client.done)

	if !client.isReady {
		return nil
	}
	client.isReady = false

	if err := client.channel.Close(); err != nil {
		return err
	}
	if err := client.connection.Close(); err != nil {
		return err
	}

	if client.metrics != nil {
		client.metrics.ConnectionStatus.Set(0)
	}

	return nil
}

// PushJSON encodes v as JSON and pushes it with confirmation.
func PushJSON(ctx context.Context, c ClientInterface, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return c.Push(ctx, body)
}
