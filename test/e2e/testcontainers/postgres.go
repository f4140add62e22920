package testcontainers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"procodus.dev/nettest/internal/store"
)

// PostgresConfig holds configuration for PostgreSQL test container.
type PostgresConfig struct {
	// User is the PostgreSQL username (default: postgres)
	User string
	// Password is the PostgreSQL password (default: postgres)
	Password string
	// Database is the database name (default: nettest)
	Database string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// Postgres is a running PostgreSQL container.
type Postgres struct {
	Container testcontainers.Container
	Host      string
	Port      int
	config    PostgresConfig
}

// StartPostgres starts a PostgreSQL container for testing.
func StartPostgres(ctx context.Context, config *PostgresConfig) (*Postgres, error) {
	cfg := PostgresConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}
	if cfg.Password == "" {
		cfg.Password = "postgres"
	}
	if cfg.Database == "" {
		cfg.Database = "nettest"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5432/tcp"),
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			),
			Env: map[string]string{
				"POSTGRES_USER":     cfg.User,
				"POSTGRES_PASSWORD": cfg.Password,
				"POSTGRES_DB":       cfg.Database,
			},
			Name: cfg.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PostgreSQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get container host: %w", err), container.Terminate(ctx))
	}

	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get container port: %w", err), container.Terminate(ctx))
	}

	return &Postgres{
		Container: container,
		Host:      host,
		Port:      port.Int(),
		config:    cfg,
	}, nil
}

// DBConfig returns the store configuration that connects to the container.
func (p *Postgres) DBConfig(logger *slog.Logger) *store.DBConfig {
	return &store.DBConfig{
		Logger:   logger,
		Host:     p.Host,
		Port:     p.Port,
		User:     p.config.User,
		Password: p.config.Password,
		DBName:   p.config.Database,
		SSLMode:  "disable",
	}
}

// Terminate stops the container. It is safe to call on a nil Postgres.
func (p *Postgres) Terminate(ctx context.Context) error {
	if p == nil || p.Container == nil {
		return nil
	}
	return p.Container.Terminate(ctx)
}
