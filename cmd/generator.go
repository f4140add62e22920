package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/nettest/internal/producer"
	"procodus.dev/nettest/internal/store"
	"procodus.dev/nettest/pkg/generator"
	"procodus.dev/nettest/pkg/metrics"
)

var generatorCmd = &cobra.Command{
	Use:   "generator",
	Short: "Run the synthetic result generator",
	Long: `Run the synthetic result generator that:
- Registers synthetic tests in PostgreSQL
- Publishes their results to RabbitMQ
- Supports multiple concurrent producers`,
	RunE: runGenerator,
}

func init() {
	rootCmd.AddCommand(generatorCmd)

	defaults := generator.DefaultOptions()

	generatorCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	generatorCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	generatorCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	generatorCmd.Flags().String("db-password", "", "PostgreSQL password")
	generatorCmd.Flags().String("db-name", "nettest", "PostgreSQL database name")
	generatorCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	generatorCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	generatorCmd.Flags().String("queue-name", "results", "RabbitMQ queue name for submitted results")
	generatorCmd.Flags().Int("producer-count", 5, "Number of concurrent producers")
	generatorCmd.Flags().Duration("interval", 5*time.Second, "Interval between submissions")
	generatorCmd.Flags().Uint64("seed", 0, "Seed of the synthetic data (0 picks a random seed)")
	generatorCmd.Flags().String("client-name", defaults.ClientName, "Client name of the synthetic results")
	generatorCmd.Flags().String("client-version", defaults.ClientVersion, "Client version of the synthetic results")
	generatorCmd.Flags().Int("metrics-port", 0, "Port serving /metrics (0 disables it)")

	_ = viper.BindPFlag("generator.db.host", generatorCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("generator.db.port", generatorCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("generator.db.user", generatorCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("generator.db.password", generatorCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("generator.db.name", generatorCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("generator.db.sslmode", generatorCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("generator.rabbitmq.url", generatorCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("generator.rabbitmq.queue_name", generatorCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("generator.producer_count", generatorCmd.Flags().Lookup("producer-count"))
	_ = viper.BindPFlag("generator.interval", generatorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("generator.seed", generatorCmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("generator.client.name", generatorCmd.Flags().Lookup("client-name"))
	_ = viper.BindPFlag("generator.client.version", generatorCmd.Flags().Lookup("client-version"))
	_ = viper.BindPFlag("generator.metrics.port", generatorCmd.Flags().Lookup("metrics-port"))
}

func runGenerator(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting generator service")

	db, err := store.NewDB(dbConfig("generator", logger))
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		return err
	}
	defer func() {
		if err := store.CloseDB(db, logger); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	registrar, err := store.New(db, logger)
	if err != nil {
		return err
	}

	config := &producer.ServerConfig{
		Logger:      logger,
		Registrar:   registrar,
		RabbitMQURL: viper.GetString("generator.rabbitmq.url"),
		QueueName:   viper.GetString("generator.rabbitmq.queue_name"),
		Generator: generator.Options{
			Seed:          viper.GetUint64("generator.seed"),
			ClientName:    viper.GetString("generator.client.name"),
			ClientVersion: viper.GetString("generator.client.version"),
		},
		ProducerCount: viper.GetInt("generator.producer_count"),
		Interval:      viper.GetDuration("generator.interval"),
		Metrics:       metrics.RegisterProducerMetrics(metrics.Namespace),
		MQMetrics:     metrics.RegisterMQMetrics(metrics.Namespace),
	}

	server, err := producer.NewServer(config)
	if err != nil {
		logger.Error("failed to create generator server", "error", err)
		return err
	}

	if port := viper.GetInt("generator.metrics.port"); port > 0 {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Close(); err != nil {
				logger.Error("failed to close metrics server", "error", err)
			}
		}()
	}

	logger.Info("generator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"queue", config.QueueName,
		"producer_count", config.ProducerCount,
		"interval", config.Interval,
		"seed", config.Generator.Seed,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("generator server error", "error", err)
		return err
	}

	logger.Info("generator server stopped")
	return nil
}
