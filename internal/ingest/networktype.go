package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Sources of a resolved network type.
const (
	SourceBaseline  = "baseline"
	SourceAggregate = "aggregate"
	SourceNone      = "none"
)

// NetworkTypeResolution is the authoritative technology of a test run.
type NetworkTypeResolution struct {
	Source string
	Code   int
}

// NetworkTypeResolver picks one network type from the observations of a run.
type NetworkTypeResolver struct{}

// Resolve takes the highest ranked observation as the baseline and lets an
// aggregate observation override it. Code is zero when neither exists.
func (NetworkTypeResolver) Resolve(ctx context.Context, store NetworkTypeStore, openTestUUID uuid.UUID) (NetworkTypeResolution, error) {
	res := NetworkTypeResolution{Source: SourceNone}

	top, err := store.TopByGroupOrderedByTechnology(ctx, openTestUUID)
	if err != nil {
		return res, fmt.Errorf("failed to query top network type: %w", err)
	}
	if top != nil {
		res = NetworkTypeResolution{Source: SourceBaseline, Code: top.TypeUID}
	}

	aggregate, err := store.AggregateByGroup(ctx, openTestUUID)
	if err != nil {
		return res, fmt.Errorf("failed to query aggregate network type: %w", err)
	}
	if aggregate != nil {
		res = NetworkTypeResolution{Source: SourceAggregate, Code: aggregate.TypeUID}
	}

	return res, nil
}
