package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procodus.dev/nettest/internal/model"
)

type testStore struct {
	tx *gorm.DB
}

// FindByIdentityOrGroup locks the matching row until the transaction ends, so
// concurrent submissions for the same test run are applied one at a time.
func (s *testStore) FindByIdentityOrGroup(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	var test model.Test
	err := s.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("uuid = ? OR open_test_uuid = ?", id, id).
		Order("uid").
		Take(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select test %s: %w", id, err)
	}
	return &test, nil
}

func (s *testStore) Save(ctx context.Context, test *model.Test) error {
	if test.UID == 0 {
		return errors.New("cannot save a test that was never registered")
	}
	if err := s.tx.WithContext(ctx).Save(test).Error; err != nil {
		return fmt.Errorf("failed to update test %s: %w", test.UUID, err)
	}
	return nil
}
