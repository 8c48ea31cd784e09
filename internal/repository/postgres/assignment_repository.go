package postgres

import (
	"context"
	"errors"
	"fmt"

	"splitEngine/business/assignment"
	"splitEngine/business/recorder"
	"splitEngine/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssignmentRepository struct {
	DB *gorm.DB
}

var (
	_ assignment.AssignmentRepository = (*AssignmentRepository)(nil)
	_ recorder.AssignmentFinder       = (*AssignmentRepository)(nil)
)

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{DB: db}
}

func (r *AssignmentRepository) Find(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	return findAssignment(r.DB.WithContext(ctx), campaignKey, subjectID)
}

// CreateIfAbsent relies on the unique (campaign_key, subject_id) index; a
// conflicting insert affects no rows.
func (r *AssignmentRepository) CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_key"}, {Name: "subject_id"}},
			DoNothing: true,
		}).
		Create(a)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert assignment: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *domain.Assignment) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var previous *domain.Assignment
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		previous, err = findAssignment(tx.Clauses(clause.Locking{Strength: "UPDATE"}), a.CampaignKey, a.SubjectID)
		if err != nil {
			return err
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "campaign_key"}, {Name: "subject_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"variant_key",
				"assigned_at",
				"exposed_at",
				"source",
				"override_reason",
			}),
		}).Create(a).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return previous, nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, campaignKey, subjectID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	res := r.DB.WithContext(ctx).
		Where("campaign_key = ? AND subject_id = ?", campaignKey, subjectID).
		Delete(&domain.Assignment{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete assignment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func findAssignment(db *gorm.DB, campaignKey, subjectID string) (*domain.Assignment, error) {
	var a domain.Assignment
	err := db.Where("campaign_key = ? AND subject_id = ?", campaignKey, subjectID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assignment: %w", err)
	}
	return &a, nil
}
