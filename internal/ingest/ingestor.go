// Package ingest validates submitted speed test results and commits them onto
// the test they belong to.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/logger"
	"procodus.dev/nettest/pkg/metrics"
	"procodus.dev/nettest/pkg/result"
)

// IngestorConfig holds the configuration for the Ingestor.
type IngestorConfig struct {
	Logger     *slog.Logger
	Transactor Transactor
	Config     *Config
	// Clock stamps finalized tests. Defaults to the real clock.
	Clock clockwork.Clock
	// Metrics is optional.
	Metrics *metrics.IngestMetrics
}

// Ingestor turns a submitted result into a finalized Test.
type Ingestor struct {
	logger    *slog.Logger
	tx        Transactor
	gate      *ClientVersionGate
	operators *OperatorCodeValidator
	samples   *SpeedPingValidator
	ips       *IPClassifier
	resolver  NetworkTypeResolver
	clock     clockwork.Clock
	metrics   *metrics.IngestMetrics
}

// NewIngestor creates a new Ingestor instance.
func NewIngestor(cfg *IngestorConfig) (*Ingestor, error) {
	if cfg == nil {
		return nil, errors.New("ingestor config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Transactor == nil {
		return nil, errors.New("transactor cannot be nil")
	}

	settings := cfg.Config
	if settings == nil {
		settings = DefaultConfig()
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ingest config: %w", err)
	}

	gate, err := NewClientVersionGate(settings.MinClientVersion, settings.ClientNames)
	if err != nil {
		return nil, err
	}
	operators, err := NewOperatorCodeValidator(settings.OperatorPattern)
	if err != nil {
		return nil, err
	}
	samples, err := NewSpeedPingValidator(settings.Limits)
	if err != nil {
		return nil, err
	}
	ips, err := NewIPClassifier(settings.IPv4Prefix, settings.IPv6Prefix)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Ingestor{
		logger:    cfg.Logger,
		tx:        cfg.Transactor,
		gate:      gate,
		operators: operators,
		samples:   samples,
		ips:       ips,
		clock:     clock,
		metrics:   cfg.Metrics,
	}, nil
}

// Ingest validates the result carried by env and commits it, together with
// its sub-measurements, in one transaction. Nothing is written on error.
func (i *Ingestor) Ingest(ctx context.Context, env *result.Envelope) error {
	if i.metrics != nil {
		i.metrics.ResultsInFlight.Inc()
		defer i.metrics.ResultsInFlight.Dec()
	}

	start := i.clock.Now()
	err := i.ingest(ctx, env)

	if i.metrics != nil {
		i.metrics.ResultsTotal.WithLabelValues(Kind(err)).Inc()
		i.metrics.IngestDuration.Observe(i.clock.Since(start).Seconds())
	}
	return err
}

func (i *Ingestor) ingest(ctx context.Context, env *result.Envelope) error {
	if env == nil || env.Result == nil {
		return fmt.Errorf("%w: empty submission", ErrMalformedToken)
	}
	req := env.Result

	id, err := ParseToken(req.TestToken)
	if err != nil {
		return err
	}

	return i.tx.InTransaction(ctx, func(ctx context.Context, s Session) error {
		test, err := s.Tests.FindByIdentityOrGroup(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to find test: %w", err)
		}
		if test == nil {
			return fmt.Errorf("%w: %s", ErrTestNotFound, id)
		}
		if test.Status.IsTerminal() {
			return fmt.Errorf("%w: %s is %s", ErrAlreadyFinalized, test.UUID, test.Status)
		}
		log := logger.ForResult(i.logger, req.TestToken, test.OpenTestUUID.String())

		if err := i.gate.Check(req.ClientVersion, req.ClientName); err != nil {
			return err
		}

		copyScalars(req, test)
		test.NetworkOperator = i.operatorCode("network_operator", req.TelephonyNetworkOperator)
		test.NetworkSimOperator = i.operatorCode("network_sim_operator", req.TelephonyNetworkSimOperator)

		if err := i.applyAddresses(env, test); err != nil {
			return err
		}

		if err := forwardBatches(ctx, s.Processors, req, test); err != nil {
			return err
		}

		resolution, err := i.resolver.Resolve(ctx, s.NetworkTypes, test.OpenTestUUID)
		if err != nil {
			return err
		}
		if i.metrics != nil {
			i.metrics.NetworkTypeSource.WithLabelValues(resolution.Source).Inc()
		}
		if resolution.Code <= 0 {
			return fmt.Errorf("%w: no observation for %s", ErrInvalidNetworkType, test.OpenTestUUID)
		}
		test.NetworkType = resolution.Code

		if req.AndroidPermissionStatuses != nil {
			encoded, err := json.Marshal(req.AndroidPermissionStatuses)
			if err != nil {
				return fmt.Errorf("failed to encode android permissions: %w", err)
			}
			test.AndroidPermissions = ptr(string(encoded))
		}

		samples, err := i.samples.Validate(req.DownloadSpeed, req.UploadSpeed, req.PingShortest)
		if err != nil {
			var insane *InsaneValueError
			if i.metrics != nil && errors.As(err, &insane) {
				i.metrics.InsaneValues.WithLabelValues(string(insane.Metric)).Inc()
			}
			return err
		}
		test.DownloadSpeed = samples.DownloadSpeed
		test.UploadSpeed = samples.UploadSpeed
		test.ShortestPing = samples.ShortestPing

		test.Status = ResolveStatus(req.TestStatus)
		test.FinishedAt = ptr(i.clock.Now().UTC())

		if err := s.Tests.Save(ctx, test); err != nil {
			return fmt.Errorf("failed to save test: %w", err)
		}

		log.Info("result committed",
			"status", test.Status,
			"network_type", test.NetworkType,
			"network_type_source", resolution.Source,
		)
		return nil
	})
}

// operatorCode returns code if it is a valid operator identifier. Invalid
// codes are dropped without failing the submission.
func (i *Ingestor) operatorCode(field string, code *string) *string {
	value, state := i.operators.Check(code)
	switch state {
	case FieldValid:
		return &value
	case FieldInvalid:
		i.logger.Debug("dropping malformed operator code", "field", field, "code", *code)
		if i.metrics != nil {
			i.metrics.DroppedOperatorCodes.WithLabelValues(field).Inc()
		}
	}
	return nil
}

func (i *Ingestor) applyAddresses(env *result.Envelope, test *model.Test) error {
	source, err := i.ips.Parse(env.SourceIP)
	if err != nil {
		return fmt.Errorf("source address: %w", err)
	}
	anonymized, err := i.ips.Anonymize(source)
	if err != nil {
		return fmt.Errorf("source address: %w", err)
	}
	test.SourceIP = source.String()
	test.SourceIPAnonymized = anonymized.String()

	if raw := env.Result.TestIPLocal; raw != nil {
		local, err := i.ips.Parse(*raw)
		if err != nil {
			return fmt.Errorf("local address: %w", err)
		}
		anonymized, err := i.ips.Anonymize(local)
		if err != nil {
			return fmt.Errorf("local address: %w", err)
		}
		test.ClientIPLocal = ptr(local.String())
		test.ClientIPLocalAnonymized = ptr(anonymized.String())
		test.ClientIPLocalType = ptr(string(i.ips.ClassifyType(local)))

		if test.ClientPublicIP != nil {
			public, err := i.ips.Parse(*test.ClientPublicIP)
			if err != nil {
				return fmt.Errorf("public address: %w", err)
			}
			test.NatType = ptr(string(i.ips.ClassifyNat(local, public)))
		}
	}

	if raw := env.Result.TestIPServer; raw != nil {
		server, err := i.ips.Parse(*raw)
		if err != nil {
			return fmt.Errorf("server address: %w", err)
		}
		test.ServerIP = ptr(server.String())
	}

	return nil
}

func forwardBatches(ctx context.Context, p Processors, req *result.Request, test *model.Test) error {
	if err := forward(ctx, "speed", p.Speed, req.SpeedDetails, test); err != nil {
		return err
	}
	if err := forward(ctx, "ping", p.Ping, req.Pings, test); err != nil {
		return err
	}
	if err := forward(ctx, "geolocation", p.GeoLocation, req.GeoLocations, test); err != nil {
		return err
	}
	if req.RadioInfo != nil {
		if err := forward(ctx, "radio cell", p.RadioCell, req.RadioInfo.Cells, test); err != nil {
			return err
		}
		if err := forward(ctx, "radio signal", p.RadioSignal, req.RadioInfo.Signals, test); err != nil {
			return err
		}
	}
	if err := forward(ctx, "cell location", p.CellLocation, req.CellLocations, test); err != nil {
		return err
	}
	return forward(ctx, "signal", p.Signal, req.Signals, test)
}

// forward hands a present batch to its processor. A nil batch was not
// submitted and is skipped.
func forward[T any](ctx context.Context, name string, p Processor[T], batch []T, test *model.Test) error {
	if batch == nil {
		return nil
	}
	if p == nil {
		return fmt.Errorf("no %s processor configured", name)
	}
	if err := p.Process(ctx, batch, test); err != nil {
		return fmt.Errorf("failed to process %s batch: %w", name, err)
	}
	return nil
}

func copyScalars(req *result.Request, test *model.Test) {
	test.ClientName = req.ClientName
	test.ClientVersion = req.ClientVersion
	test.ClientSoftwareVersion = req.ClientSoftwareVersion
	test.ClientLanguage = req.ClientLanguage
	if req.ClientTime != nil {
		test.ClientTime = ptr(time.UnixMilli(*req.ClientTime).UTC())
	}

	test.Model = req.Model
	test.Device = req.Device
	test.Product = req.Product
	test.OSVersion = req.OSVersion
	test.APILevel = req.APILevel
	test.Platform = req.Platform
	test.Timezone = req.Timezone

	test.NetworkOperatorName = req.TelephonyNetworkOperatorName
	test.NetworkSimOperatorName = req.TelephonyNetworkSimOperatorName
	test.NetworkCountry = req.TelephonyNetworkCountry
	test.NetworkSimCountry = req.TelephonyNetworkSimCountry
	test.NetworkIsRoaming = req.TelephonyNetworkIsRoaming
	test.WifiSSID = req.WifiSSID
	test.WifiBSSID = req.WifiBSSID
	test.WifiNetworkID = req.WifiNetworkID
	test.Encryption = req.Encryption

	test.BytesDownload = req.BytesDownload
	test.BytesUpload = req.BytesUpload
	test.NSecDownload = req.NSecDownload
	test.NSecUpload = req.NSecUpload
	test.TotalBytesDownload = req.TotalBytesDownload
	test.TotalBytesUpload = req.TotalBytesUpload
	test.NumThreads = req.NumThreads
	test.NumThreadsUl = req.NumThreadsUl
}

func ptr[T any](v T) *T {
	return &v
}
