package ingest

import (
	"context"

	"github.com/google/uuid"

	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/result"
)

// TestStore finds and saves tests.
type TestStore interface {
	// FindByIdentityOrGroup returns the test whose uuid or open test uuid is
	// id, or nil when there is none. Implementations lock the returned row
	// until the surrounding transaction ends.
	FindByIdentityOrGroup(ctx context.Context, id uuid.UUID) (*model.Test, error)
	Save(ctx context.Context, test *model.Test) error
}

// NetworkTypeStore queries the technologies observed during a test run.
// Both methods return nil when nothing matches.
type NetworkTypeStore interface {
	TopByGroupOrderedByTechnology(ctx context.Context, openTestUUID uuid.UUID) (*model.NetworkTypeObservation, error)
	AggregateByGroup(ctx context.Context, openTestUUID uuid.UUID) (*model.NetworkTypeObservation, error)
}

// Processor persists one kind of sub-measurement batch for a test.
type Processor[T any] interface {
	Process(ctx context.Context, batch []T, test *model.Test) error
}

// Processors are the sub-measurement processors of a session.
type Processors struct {
	Speed        Processor[result.SpeedDetail]
	Ping         Processor[result.Ping]
	GeoLocation  Processor[result.GeoLocation]
	RadioCell    Processor[result.RadioCell]
	RadioSignal  Processor[result.RadioSignal]
	CellLocation Processor[result.CellLocation]
	Signal       Processor[result.Signal]
}

// Session bundles the collaborators bound to one transaction.
type Session struct {
	Tests        TestStore
	NetworkTypes NetworkTypeStore
	Processors   Processors
}

// Transactor runs fn inside a single atomic transaction. The transaction
// commits if fn returns nil and rolls back otherwise.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, s Session) error) error
}
