package postgres

import (
	"context"
	"errors"
	"fmt"

	"splitEngine/business/identity"
	"splitEngine/business/targeting"
	"splitEngine/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubjectRepository reads targeting attributes from the "subjects" table and
// rewrites subject identity across the engine tables.
type SubjectRepository struct {
	DB *gorm.DB
}

// Compile-time check that the struct implements the interface.
var (
	_ targeting.SubjectRepository = (*SubjectRepository)(nil)
	_ identity.MergeRepository    = (*SubjectRepository)(nil)
)

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{DB: db}
}

func (r *SubjectRepository) GetAttributes(ctx context.Context, subjectID string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var row domain.Subject
	err := r.DB.WithContext(ctx).First(&row, "subject_id = ?", subjectID).Error
	if err != nil {
		// unknown subjects resolve to request context only
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("failed to query subject: %w", err)
	}

	if row.Attributes == nil {
		return map[string]any{}, nil
	}
	return map[string]any(row.Attributes), nil
}

func (r *SubjectRepository) PutAttributes(ctx context.Context, subjectID string, attrs map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	row := domain.Subject{
		SubjectID:  subjectID,
		Attributes: datatypes.JSONMap(attrs),
	}
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"attributes", "updated_at"}),
		}).
		Create(&row).Error
}

// MergeSubject runs in one transaction: colliding fromID assignments are
// deleted, the rest re-keyed, then every exposure and conversion row moved.
func (r *SubjectRepository) MergeSubject(ctx context.Context, fromID, toID string) (domain.MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MergeResult{}, fmt.Errorf("context error: %w", err)
	}

	result := domain.MergeResult{FromID: fromID, ToID: toID}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dropped := tx.
			Where("subject_id = ? AND campaign_key IN (?)", fromID,
				tx.Model(&domain.Assignment{}).Select("campaign_key").Where("subject_id = ?", toID)).
			Delete(&domain.Assignment{})
		if dropped.Error != nil {
			return fmt.Errorf("failed to drop colliding assignments: %w", dropped.Error)
		}
		result.AssignmentsDropped = dropped.RowsAffected

		moved := tx.Model(&domain.Assignment{}).
			Where("subject_id = ?", fromID).
			Update("subject_id", toID)
		if moved.Error != nil {
			return fmt.Errorf("failed to move assignments: %w", moved.Error)
		}
		result.AssignmentsMoved = moved.RowsAffected

		exposures := tx.Model(&domain.ExposureEvent{}).
			Where("subject_id = ?", fromID).
			Update("subject_id", toID)
		if exposures.Error != nil {
			return fmt.Errorf("failed to move exposures: %w", exposures.Error)
		}
		result.ExposuresMoved = exposures.RowsAffected

		conversions := tx.Model(&domain.ConversionEvent{}).
			Where("subject_id = ?", fromID).
			Update("subject_id", toID)
		if conversions.Error != nil {
			return fmt.Errorf("failed to move conversions: %w", conversions.Error)
		}
		result.ConversionsMoved = conversions.RowsAffected

		return nil
	})
	if err != nil {
		return domain.MergeResult{}, err
	}
	return result, nil
}
