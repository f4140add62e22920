package producer

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"procodus.dev/nettest/pkg/generator"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq"
)

// ServerConfig holds the configuration for the producer server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// Registrar stores the synthetic tests before their results are published
	Registrar Registrar
	// NewClient creates the MQ client of a producer. Defaults to mq.New.
	NewClient func(id int) mq.ClientInterface
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the name of the result queue
	QueueName string
	// Generator configures the synthetic results. Producer i uses Seed+i
	// when Seed is set.
	Generator generator.Options
	// Interval is the time between two submissions of a producer
	Interval time.Duration
	// ProducerCount is the number of concurrent producers
	ProducerCount int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.ProducerMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server manages multiple producer instances.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	producers []*Producer
	clients   []mq.ClientInterface
	wg        sync.WaitGroup
	closeOnce sync.Once
	metrics   *metrics.ProducerMetrics
}

var (
	errInvalidProducerCount = errors.New("producer count must be greater than 0")
	errInvalidInterval      = errors.New("interval must be greater than 0")
	errLoggerRequired       = errors.New("logger is required")
	errRegistrarRequired    = errors.New("registrar is required")
)

// NewServer creates a new producer server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.ProducerCount <= 0 {
		return nil, errInvalidProducerCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.Registrar == nil {
		return nil, errRegistrarRequired
	}

	s := &Server{
		config:    cfg,
		producers: make([]*Producer, 0, cfg.ProducerCount),
		clients:   make([]mq.ClientInterface, 0, cfg.ProducerCount),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}

	for i := range cfg.ProducerCount {
		client := s.newClient(i)
		s.clients = append(s.clients, client)

		opts := cfg.Generator
		if opts.Seed != 0 {
			opts.Seed += uint64(i)
		}

		producer, err := NewProducer(&Config{
			Client:    client,
			Registrar: cfg.Registrar,
			Generator: generator.New(opts),
			Metrics:   cfg.Metrics,
		})
		if err != nil {
			s.closeClients()
			return nil, err
		}

		s.producers = append(s.producers, producer)

		s.logger.Info("created producer instance",
			"producer_id", i,
			"queue", cfg.QueueName,
		)
	}

	return s, nil
}

func (s *Server) newClient(id int) mq.ClientInterface {
	if s.config.NewClient != nil {
		return s.config.NewClient(id)
	}

	opts := []mq.Option{}
	if s.config.MQMetrics != nil {
		opts = append(opts, mq.WithMetrics(s.config.MQMetrics))
	}
	return mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger.With(
		slog.String("component", "mq-client"),
		slog.Int("producer_id", id),
	), opts...)
}

// Run starts all producers and blocks until shutdown signal is received.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for i, producer := range s.producers {
		s.wg.Add(1)
		go s.runProducer(ctx, i, producer)
	}

	s.logger.Info("producer server started",
		"producer_count", len(s.producers),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for producers to shut down...")
	s.wg.Wait()

	s.logger.Info("closing MQ clients...")
	s.closeClients()

	s.logger.Info("producer server stopped")
	return nil
}

// runProducer submits a synthetic result at every tick of the interval.
func (s *Server) runProducer(ctx context.Context, id int, producer *Producer) {
	defer s.wg.Done()

	if s.metrics != nil {
		s.metrics.ActiveProducers.Inc()
		defer s.metrics.ActiveProducers.Dec()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	producerLogger := s.logger.With(slog.Int("producer_id", id))
	producerLogger.Info("producer started")

	for {
		select {
		case <-ctx.Done():
			producerLogger.Info("producer shutting down")
			return

		case <-ticker.C:
			reg, err := producer.Submit(ctx)
			if err != nil {
				producerLogger.Error("failed to submit synthetic result",
					"error", err,
				)
				continue
			}

			producerLogger.Debug("synthetic result submitted",
				"uuid", reg.Test.UUID,
				"network_types", reg.NetworkTypes,
			)
		}
	}
}

// closeClients closes all MQ clients once.
func (s *Server) closeClients() {
	s.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for i, client := range s.clients {
			if client == nil {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()

				if err := client.Close(); err != nil {
					s.logger.Error("failed to close MQ client",
						"producer_id", i,
						"error", err,
					)
					return
				}

				s.logger.Info("MQ client closed", "producer_id", i)
			}()
		}
		wg.Wait()
	})
}

// Shutdown closes the MQ clients without waiting for a signal.
func (s *Server) Shutdown() error {
	s.logger.Info("shutdown requested")
	s.closeClients()
	return nil
}
