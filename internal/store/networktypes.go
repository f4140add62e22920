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

type networkTypeStore struct {
	tx *gorm.DB
}

func (s *networkTypeStore) TopByGroupOrderedByTechnology(ctx context.Context, openTestUUID uuid.UUID) (*model.NetworkTypeObservation, error) {
	return s.first(ctx, "open_test_uuid = ?", openTestUUID)
}

func (s *networkTypeStore) AggregateByGroup(ctx context.Context, openTestUUID uuid.UUID) (*model.NetworkTypeObservation, error) {
	return s.first(ctx, "open_test_uuid = ? AND aggregate = ?", openTestUUID, true)
}

func (s *networkTypeStore) first(ctx context.Context, query string, args ...any) (*model.NetworkTypeObservation, error) {
	var obs model.NetworkTypeObservation
	err := s.tx.WithContext(ctx).
		Where(query, args...).
		Order("technology_order DESC").
		Take(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query network type observations: %w", err)
	}
	return &obs, nil
}

// recordObservations stores the technologies in codes for the run of test and
// refreshes its aggregate observation. Codes missing from the catalog are
// ignored.
func recordObservations(ctx context.Context, tx *gorm.DB, test *model.Test, codes []int) error {
	var rows []model.NetworkTypeObservation
	seen := make(map[int]bool, len(codes))
	for _, code := range codes {
		tech, ok := model.LookupTechnology(code)
		if !ok || tech.Aggregate || seen[code] {
			continue
		}
		seen[code] = true
		rows = append(rows, tech.Observation(test))
	}
	if len(rows) == 0 {
		return nil
	}

	db := tx.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert network type observations: %w", err)
	}

	var observed []int
	if err := db.Model(&model.NetworkTypeObservation{}).
		Where("open_test_uuid = ? AND aggregate = ?", test.OpenTestUUID, false).
		Pluck("type_uid", &observed).Error; err != nil {
		return fmt.Errorf("failed to list network type observations: %w", err)
	}

	groups := make([]string, 0, len(observed))
	for _, code := range observed {
		if tech, ok := model.LookupTechnology(code); ok {
			groups = append(groups, tech.Group)
		}
	}
	aggregate, ok := model.AggregateTechnology(groups)
	if !ok {
		return nil
	}

	if err := db.Where("open_test_uuid = ? AND aggregate = ?", test.OpenTestUUID, true).
		Delete(&model.NetworkTypeObservation{}).Error; err != nil {
		return fmt.Errorf("failed to clear aggregate observation: %w", err)
	}
	obs := aggregate.Observation(test)
	if err := db.Create(&obs).Error; err != nil {
		return fmt.Errorf("failed to insert aggregate observation: %w", err)
	}
	return nil
}
