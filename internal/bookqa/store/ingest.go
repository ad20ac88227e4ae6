package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/bookqa/internal/model"
)

type ingestUnits struct {
	db *gorm.DB
}

func newIngestUnits(db *gorm.DB) *ingestUnits {
	return &ingestUnits{db}
}

// Save upserts the stage record for one unit.
func (s *ingestUnits) Save(ctx context.Context, unit *model.IngestUnit) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "unit_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_locator", "sequence_index", "content_hash", "stage", "fail_reason", "updated_at"}),
	}).Create(unit).Error
}

// Get retrieves the stage record for one unit.
// Returns (nil, nil) when the unit has never been seen.
func (s *ingestUnits) Get(ctx context.Context, unitID string) (*model.IngestUnit, error) {
	var unit model.IngestUnit
	err := s.db.WithContext(ctx).Where("unit_id = ?", unitID).First(&unit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &unit, nil
}

// ListBySource lists all stage records of one source in sequence order.
func (s *ingestUnits) ListBySource(ctx context.Context, sourceLocator string) ([]*model.IngestUnit, error) {
	var units []*model.IngestUnit
	err := s.db.WithContext(ctx).
		Where("source_locator = ?", sourceLocator).
		Order("sequence_index ASC").
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	return units, nil
}

// DeleteBySource removes all stage records of one source.
func (s *ingestUnits) DeleteBySource(ctx context.Context, sourceLocator string) error {
	return s.db.WithContext(ctx).
		Where("source_locator = ?", sourceLocator).
		Delete(&model.IngestUnit{}).Error
}
