// Package producer registers synthetic speed tests and publishes their
// results to the result queue.
package producer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/generator"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/mq"
)

// Registrar stores a test that awaits its result, together with the
// technologies observed while it was set up.
type Registrar interface {
	Register(ctx context.Context, test *model.Test, codes ...int) error
}

// Config holds the configuration for a Producer.
type Config struct {
	Client    mq.ClientInterface
	Registrar Registrar
	Generator *generator.Generator
	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Metrics is optional.
	Metrics *metrics.ProducerMetrics
}

// Producer submits synthetic results. It is not safe for concurrent use.
type Producer struct {
	client    mq.ClientInterface
	registrar Registrar
	gen       *generator.Generator
	clock     clockwork.Clock
	metrics   *metrics.ProducerMetrics
}

// NewProducer creates a new Producer instance.
func NewProducer(cfg *Config) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("producer config cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.Registrar == nil {
		return nil, errors.New("registrar cannot be nil")
	}

	gen := cfg.Generator
	if gen == nil {
		gen = generator.New(generator.DefaultOptions())
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Producer{
		client:    cfg.Client,
		registrar: cfg.Registrar,
		gen:       gen,
		clock:     clock,
		metrics:   cfg.Metrics,
	}, nil
}

// Submit registers one synthetic test and publishes the result its client
// would send.
func (p *Producer) Submit(ctx context.Context) (*generator.Registration, error) {
	reg, err := p.register(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.publish(ctx, reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (p *Producer) register(ctx context.Context) (generator.Registration, error) {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.GenerationDuration.WithLabelValues("register"))
		defer timer.ObserveDuration()
	}

	reg, err := p.gen.Registration(p.clock.Now())
	if err != nil {
		p.failed("register", "generate_error")
		return generator.Registration{}, err
	}

	if err := p.registrar.Register(ctx, reg.Test, reg.NetworkTypes...); err != nil {
		p.failed("register", "store_error")
		return generator.Registration{}, fmt.Errorf("failed to register test: %w", err)
	}

	if p.metrics != nil {
		p.metrics.TestsRegistered.Inc()
	}
	return reg, nil
}

func (p *Producer) publish(ctx context.Context, reg generator.Registration) error {
	if p.metrics != nil {
		timer := prometheus.NewTimer(p.metrics.GenerationDuration.WithLabelValues("publish"))
		defer timer.ObserveDuration()
	}

	env := p.gen.Result(reg, p.clock.Now())
	if err := mq.PushJSON(ctx, p.client, env); err != nil {
		p.failed("publish", "push_error")
		return fmt.Errorf("failed to publish result: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ResultsPublished.Inc()
	}
	return nil
}

func (p *Producer) failed(stage, reason string) {
	if p.metrics != nil {
		p.metrics.GenerationFailures.WithLabelValues(stage, reason).Inc()
	}
}
