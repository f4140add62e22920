// Package backend runs the ingestion service: it consumes submitted results
// from RabbitMQ and commits them to PostgreSQL.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/store"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq"
)

// Server represents the ingestion server that manages the database, the
// result consumer and the status endpoint.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	consumer   *ResultConsumer
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost         string
	DBUser         string
	DBPassword     string
	DBName         string
	DBSSLMode      string
	DBMaxOpenConns int

	// RabbitMQ configuration
	RabbitMQURL string
	QueueName   string
	Prefetch    int

	// MetricsPort serves /metrics and /health.
	MetricsPort int

	// Database port
	DBPort int

	// Ingest holds the validation settings; nil uses the defaults.
	Ingest *ingest.Config
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.MetricsPort <= 0 {
		return nil, errors.New("metrics port must be positive")
	}

	if cfg.Prefetch < 0 {
		return nil, errors.New("prefetch cannot be negative")
	}

	if cfg.Ingest != nil {
		if err := cfg.Ingest.Validate(); err != nil {
			return nil, fmt.Errorf("invalid ingest config: %w", err)
		}
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the ingestion server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting ingest server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	dbCfg := &store.DBConfig{
		Host:         s.config.DBHost,
		Port:         s.config.DBPort,
		User:         s.config.DBUser,
		Password:     s.config.DBPassword,
		DBName:       s.config.DBName,
		SSLMode:      s.config.DBSSLMode,
		MaxOpenConns: s.config.DBMaxOpenConns,
		Logger:       s.logger,
	}

	db, err := store.NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	st, err := store.New(db, s.logger)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize store: %w", err), s.Shutdown())
	}

	ingestor, err := ingest.NewIngestor(&ingest.IngestorConfig{
		Logger:     s.logger,
		Transactor: st,
		Config:     s.config.Ingest,
		Metrics:    metrics.RegisterIngestMetrics(metrics.Namespace),
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize ingestor: %w", err), s.Shutdown())
	}

	mqMetrics := metrics.RegisterMQMetrics(metrics.Namespace)
	opts := []mq.Option{mq.WithMetrics(mqMetrics)}
	if s.config.Prefetch > 0 {
		opts = append(opts, mq.WithPrefetch(s.config.Prefetch))
	}
	client := mq.New(s.config.QueueName, s.config.RabbitMQURL, s.logger, opts...)

	consumer, err := NewResultConsumer(&ConsumerConfig{
		Logger:    s.logger,
		Ingestor:  ingestor,
		Client:    client,
		QueueName: s.config.QueueName,
		Metrics:   mqMetrics,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize consumer: %w", err), client.Close(), s.Shutdown())
	}

	if err := consumer.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start consumer: %w", err), client.Close(), s.Shutdown())
	}
	s.consumer = consumer

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
		Handler:           NewStatusRouter(s.logger, metrics.Handler(), s.healthChecks(consumer)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("starting status server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("status server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("ingest server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("status server error", "error", err)
			cancel()
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

func (s *Server) healthChecks(consumer *ResultConsumer) map[string]HealthCheck {
	return map[string]HealthCheck{
		"rabbitmq": consumer.Check,
		"database": func(ctx context.Context) error {
			sqlDB, err := s.db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down ingest server")

	var shutdownErr error

	if s.httpServer != nil {
		s.logger.Info("stopping status server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to stop status server", "error", err)
			shutdownErr = fmt.Errorf("status server shutdown error: %w", err)
		}
		cancel()
		s.httpServer = nil
	}

	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("consumer shutdown error: %w", err))
		}
		s.consumer = nil
	}

	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := store.CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("database close error: %w", err))
		}
		s.db = nil
	}

	if shutdownErr != nil {
		s.logger.Error("ingest server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("ingest server shutdown completed successfully")
	return nil
}
