// Package testcontainers provides helper functions for managing test containers across e2e tests.
package testcontainers

import (
	"context"
	"errors"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RabbitMQConfig holds configuration for RabbitMQ test container.
type RabbitMQConfig struct {
	// User is the RabbitMQ username (default: guest)
	User string
	// Password is the RabbitMQ password (default: guest)
	Password string
	// ContainerName is the name of the container (optional)
	ContainerName string
}

// RabbitMQ is a running RabbitMQ container.
type RabbitMQ struct {
	Container testcontainers.Container
	// URL is the AMQP connection string of the broker.
	URL string
}

// StartRabbitMQ starts a RabbitMQ container for testing.
func StartRabbitMQ(ctx context.Context, config *RabbitMQConfig) (*RabbitMQ, error) {
	cfg := RabbitMQConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.User == "" {
		cfg.User = "guest"
	}
	if cfg.Password == "" {
		cfg.Password = "guest"
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3-management-alpine",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5672/tcp"),
				wait.ForLog("Server startup complete"),
			),
			Env: map[string]string{
				"RABBITMQ_DEFAULT_USER": cfg.User,
				"RABBITMQ_DEFAULT_PASS": cfg.Password,
			},
			Name: cfg.ContainerName,
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start RabbitMQ container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get container host: %w", err), container.Terminate(ctx))
	}

	port, err := container.MappedPort(ctx, "5672")
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to get container port: %w", err), container.Terminate(ctx))
	}

	return &RabbitMQ{
		Container: container,
		URL:       fmt.Sprintf("amqp://%s:%s@%s:%s/", cfg.User, cfg.Password, host, port.Port()),
	}, nil
}

// Terminate stops the container. It is safe to call on a nil RabbitMQ.
func (r *RabbitMQ) Terminate(ctx context.Context) error {
	if r == nil || r.Container == nil {
		return nil
	}
	return r.Container.Terminate(ctx)
}
