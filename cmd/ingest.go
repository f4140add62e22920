package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/nettest/internal/backend"
	"procodus.dev/nettest/internal/ingest"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run the result ingestion service",
	Long: `Run the result ingestion service that:
- Consumes submitted test results from RabbitMQ
- Validates them against the registered tests
- Commits results and sub-measurements to PostgreSQL
- Serves /metrics and /health`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	defaults := ingest.DefaultConfig()

	ingestCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	ingestCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	ingestCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	ingestCmd.Flags().String("db-password", "", "PostgreSQL password")
	ingestCmd.Flags().String("db-name", "nettest", "PostgreSQL database name")
	ingestCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	ingestCmd.Flags().Int("db-max-open-conns", 0, "PostgreSQL connection pool size (0 keeps the default)")
	ingestCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	ingestCmd.Flags().String("queue-name", "results", "RabbitMQ queue name for submitted results")
	ingestCmd.Flags().Int("prefetch", 1, "Unacknowledged results a consumer may hold")
	ingestCmd.Flags().Int("metrics-port", 9100, "Port serving /metrics and /health")
	ingestCmd.Flags().String("min-client-version", defaults.MinClientVersion, "Oldest accepted client version")
	ingestCmd.Flags().StringSlice("client-names", defaults.ClientNames, "Accepted client names")
	ingestCmd.Flags().Int64("min-speed", defaults.Limits.Speed.Min, "Exclusive lower speed bound in kbit/s")
	ingestCmd.Flags().Int64("max-speed", defaults.Limits.Speed.Max, "Exclusive upper speed bound in kbit/s")
	ingestCmd.Flags().Int64("min-ping", defaults.Limits.Ping.Min, "Exclusive lower ping bound in ns")
	ingestCmd.Flags().Int64("max-ping", defaults.Limits.Ping.Max, "Exclusive upper ping bound in ns")

	_ = viper.BindPFlag("ingest.db.host", ingestCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("ingest.db.port", ingestCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("ingest.db.user", ingestCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("ingest.db.password", ingestCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("ingest.db.name", ingestCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("ingest.db.sslmode", ingestCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("ingest.db.max_open_conns", ingestCmd.Flags().Lookup("db-max-open-conns"))
	_ = viper.BindPFlag("ingest.rabbitmq.url", ingestCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("ingest.rabbitmq.queue_name", ingestCmd.Flags().Lookup("queue-name"))
	_ = viper.BindPFlag("ingest.rabbitmq.prefetch", ingestCmd.Flags().Lookup("prefetch"))
	_ = viper.BindPFlag("ingest.metrics.port", ingestCmd.Flags().Lookup("metrics-port"))
	_ = viper.BindPFlag("ingest.client.min_version", ingestCmd.Flags().Lookup("min-client-version"))
	_ = viper.BindPFlag("ingest.client.names", ingestCmd.Flags().Lookup("client-names"))
	_ = viper.BindPFlag("ingest.limits.min_speed", ingestCmd.Flags().Lookup("min-speed"))
	_ = viper.BindPFlag("ingest.limits.max_speed", ingestCmd.Flags().Lookup("max-speed"))
	_ = viper.BindPFlag("ingest.limits.min_ping", ingestCmd.Flags().Lookup("min-ping"))
	_ = viper.BindPFlag("ingest.limits.max_ping", ingestCmd.Flags().Lookup("max-ping"))

	viper.SetDefault("ingest.operator_pattern", defaults.OperatorPattern)
	viper.SetDefault("ingest.anonymize.ipv4_prefix", defaults.IPv4Prefix)
	viper.SetDefault("ingest.anonymize.ipv6_prefix", defaults.IPv6Prefix)
}

func runIngest(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting ingest service")

	db := dbConfig("ingest", logger)
	config := &backend.ServerConfig{
		Logger:         logger,
		DBHost:         db.Host,
		DBPort:         db.Port,
		DBUser:         db.User,
		DBPassword:     db.Password,
		DBName:         db.DBName,
		DBSSLMode:      db.SSLMode,
		DBMaxOpenConns: db.MaxOpenConns,
		RabbitMQURL:    viper.GetString("ingest.rabbitmq.url"),
		QueueName:      viper.GetString("ingest.rabbitmq.queue_name"),
		Prefetch:       viper.GetInt("ingest.rabbitmq.prefetch"),
		MetricsPort:    viper.GetInt("ingest.metrics.port"),
		Ingest:         ingestConfig(),
	}

	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create ingest server", "error", err)
		return err
	}

	logger.Info("ingest server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"queue", config.QueueName,
		"metrics_port", config.MetricsPort,
		"min_client_version", config.Ingest.MinClientVersion,
		"client_names", config.Ingest.ClientNames,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("ingest server error", "error", err)
		return err
	}

	logger.Info("ingest server stopped")
	return nil
}
