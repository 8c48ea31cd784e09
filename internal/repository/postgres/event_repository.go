package postgres

import (
	"context"
	"errors"
	"fmt"

	"splitEngine/business/recorder"
	"splitEngine/domain"

	"gorm.io/gorm"
)

type EventRepository struct {
	DB *gorm.DB
}

var _ recorder.EventRepository = (*EventRepository)(nil)

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{DB: db}
}

// ---- Exposures ----

// RecordExposure claims the assignment's exposed_at with a conditional update
// and appends the event in the same transaction. Losing the claim is not an error.
func (r *EventRepository) RecordExposure(ctx context.Context, event *domain.ExposureEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	recorded := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Assignment{}).
			Where("campaign_key = ? AND subject_id = ? AND exposed_at IS NULL", event.CampaignKey, event.SubjectID).
			Update("exposed_at", event.Timestamp)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&domain.Assignment{}).
				Where("campaign_key = ? AND subject_id = ?", event.CampaignKey, event.SubjectID).
				Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return errors.Join(domain.ErrNotAssigned,
					fmt.Errorf("subject %q has no assignment in %q", event.SubjectID, event.CampaignKey))
			}
			return nil
		}

		if err := tx.Create(event).Error; err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to record exposure: %w", err)
	}
	return recorded, nil
}

func (r *EventRepository) CountExposures(ctx context.Context, campaignKey string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []struct {
		VariantKey string `gorm:"column:variant_key"`
		Exposures  int64  `gorm:"column:exposures"`
	}
	err := r.DB.WithContext(ctx).
		Model(&domain.ExposureEvent{}).
		Select("variant_key, COUNT(*) AS exposures").
		Where("campaign_key = ?", campaignKey).
		Group("variant_key").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count exposures: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.VariantKey] = row.Exposures
	}
	return out, nil
}

// ---- Conversions ----

func (r *EventRepository) SaveConversion(ctx context.Context, event *domain.ConversionEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if err := r.DB.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

func (r *EventRepository) CountConversions(ctx context.Context, campaignKey, metricKey string) (map[string]domain.ConversionCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []struct {
		VariantKey string  `gorm:"column:variant_key"`
		Events     int64   `gorm:"column:events"`
		Converters int64   `gorm:"column:converters"`
		Value      float64 `gorm:"column:total_value"`
	}
	q := r.DB.WithContext(ctx).
		Model(&domain.ConversionEvent{}).
		Select("variant_key, COUNT(*) AS events, COUNT(DISTINCT subject_id) AS converters, COALESCE(SUM(value), 0) AS total_value").
		Where("campaign_key = ?", campaignKey)
	if metricKey != "" {
		q = q.Where("metric_key = ?", metricKey)
	}
	if err := q.Group("variant_key").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count conversions: %w", err)
	}

	out := make(map[string]domain.ConversionCount, len(rows))
	for _, row := range rows {
		out[row.VariantKey] = domain.ConversionCount{
			Events:     row.Events,
			Converters: row.Converters,
			Value:      row.Value,
		}
	}
	return out, nil
}
