package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/store"
	"procodus.dev/nettest/pkg/logger"
)

// InitConfig initializes Viper configuration.
// It supports reading from config files (config.yaml) and environment variables.
func InitConfig(cfgFile string) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/nettest/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// NETTEST_INGEST_DB_HOST overrides ingest.db.host
	viper.SetEnvPrefix("NETTEST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger() *slog.Logger {
	return logger.NewWithLevel(logger.ParseLevel(viper.GetString("log.level")))
}

// dbConfig reads the database settings stored under prefix.
func dbConfig(prefix string, l *slog.Logger) *store.DBConfig {
	return &store.DBConfig{
		Logger:       l,
		Host:         viper.GetString(prefix + ".db.host"),
		Port:         viper.GetInt(prefix + ".db.port"),
		User:         viper.GetString(prefix + ".db.user"),
		Password:     viper.GetString(prefix + ".db.password"),
		DBName:       viper.GetString(prefix + ".db.name"),
		SSLMode:      viper.GetString(prefix + ".db.sslmode"),
		MaxOpenConns: viper.GetInt(prefix + ".db.max_open_conns"),
	}
}

// ingestConfig reads the validation settings of the ingest service.
func ingestConfig() *ingest.Config {
	cfg := ingest.DefaultConfig()
	if v := viper.GetString("ingest.client.min_version"); v != "" {
		cfg.MinClientVersion = v
	}
	if names := viper.GetStringSlice("ingest.client.names"); len(names) > 0 {
		cfg.ClientNames = names
	}
	if p := viper.GetString("ingest.operator_pattern"); p != "" {
		cfg.OperatorPattern = p
	}
	cfg.Limits = ingest.Limits{
		Speed: ingest.Bounds{Min: viper.GetInt64("ingest.limits.min_speed"), Max: viper.GetInt64("ingest.limits.max_speed")},
		Ping:  ingest.Bounds{Min: viper.GetInt64("ingest.limits.min_ping"), Max: viper.GetInt64("ingest.limits.max_ping")},
	}
	cfg.IPv4Prefix = viper.GetInt("ingest.anonymize.ipv4_prefix")
	cfg.IPv6Prefix = viper.GetInt("ingest.anonymize.ipv6_prefix")
	return cfg
}
