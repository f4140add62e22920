// Package store persists tests and their sub-measurements in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"procodus.dev/nettest/internal/ingest"
	"procodus.dev/nettest/internal/model"
	"procodus.dev/nettest/pkg/result"
)

// DefaultBatchSize is the number of sub-measurement rows per INSERT.
const DefaultBatchSize = 100

// Store runs ingestion sessions against the database.
type Store struct {
	db        *gorm.DB
	logger    *slog.Logger
	batchSize int
}

// New creates a Store on db.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &Store{db: db, logger: logger, batchSize: DefaultBatchSize}, nil
}

// InTransaction runs fn in a database transaction. Every collaborator of the
// session writes through that transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, sess ingest.Session) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, s.session(tx))
	})
}

func (s *Store) session(tx *gorm.DB) ingest.Session {
	return ingest.Session{
		Tests:        &testStore{tx: tx},
		NetworkTypes: &networkTypeStore{tx: tx},
		Processors: ingest.Processors{
			Speed:        newProcessor(tx, s.batchSize, speedRow, nil),
			Ping:         newProcessor(tx, s.batchSize, pingRow, nil),
			GeoLocation:  newProcessor(tx, s.batchSize, geoLocationRow, nil),
			RadioCell:    newProcessor(tx, s.batchSize, radioCellRow, nil),
			RadioSignal:  newProcessor(tx, s.batchSize, radioSignalRow, func(r result.RadioSignal) int { return r.NetworkTypeID }),
			CellLocation: newProcessor(tx, s.batchSize, cellLocationRow, nil),
			Signal:       newProcessor(tx, s.batchSize, signalRow, func(r result.Signal) int { return r.NetworkTypeID }),
		},
	}
}

// Register inserts a test that awaits its result, together with the
// technologies the registration step observed for it.
func (s *Store) Register(ctx context.Context, test *model.Test, codes ...int) error {
	if test == nil {
		return errors.New("test cannot be nil")
	}
	if test.Status == "" {
		test.Status = model.StatusStarted
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(test).Error; err != nil {
			return fmt.Errorf("failed to create test: %w", err)
		}
		return recordObservations(ctx, tx, test, codes)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("test registered",
		"uuid", test.UUID,
		"open_test_uuid", test.OpenTestUUID,
		"network_types", codes,
	)
	return nil
}

// FindTest returns the test identified by uuid or open test uuid without
// locking it, or nil when there is none.
func (s *Store) FindTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	var test model.Test
	err := s.db.WithContext(ctx).
		Where("uuid = ? OR open_test_uuid = ?", id, id).
		Take(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find test: %w", err)
	}
	return &test, nil
}
