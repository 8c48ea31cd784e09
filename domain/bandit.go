package domain

import (
	"time"

	"gorm.io/datatypes"
)

// ExposureEvent is appended at most once per assignment.
type ExposureEvent struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	CampaignKey string            `gorm:"column:campaign_key;not null;index:idx_exposures_campaign_variant" json:"campaignKey"`
	SubjectID   string            `gorm:"column:subject_id;not null;index" json:"subjectId"`
	VariantKey  string            `gorm:"column:variant_key;not null;index:idx_exposures_campaign_variant" json:"variantKey"`
	Timestamp   time.Time         `gorm:"column:timestamp;not null" json:"timestamp"`
	Context     datatypes.JSONMap `gorm:"column:context;type:jsonb" json:"context,omitempty"`
}

func (ExposureEvent) TableName() string {
	return "exposures"
}

// ConversionEvent is append-only; many per subject are allowed.
type ConversionEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CampaignKey string    `gorm:"column:campaign_key;not null;index:idx_conversions_campaign_metric" json:"campaignKey"`
	SubjectID   string    `gorm:"column:subject_id;not null;index" json:"subjectId"`
	VariantKey  string    `gorm:"column:variant_key;not null" json:"variantKey"`
	MetricKey   string    `gorm:"column:metric_key;not null;index:idx_conversions_campaign_metric" json:"metricKey"`
	Value       float64   `gorm:"column:value" json:"value"`
	Timestamp   time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
}

func (ConversionEvent) TableName() string {
	return "conversions"
}

// VariantResult is the per-variant aggregate used for reporting and reallocation.
type VariantResult struct {
	VariantKey string `json:"variantKey"`
	Exposures  int64  `json:"exposures"`
	// Conversions counts events; Converters counts distinct subjects.
	Conversions     int64   `json:"conversions"`
	Converters      int64   `json:"converters"`
	ConversionValue float64 `json:"conversionValue"`
	ConversionRate  float64 `json:"conversionRate"`
}

// ConversionCount is the per-variant conversion aggregate read from storage.
type ConversionCount struct {
	Events     int64
	Converters int64
	Value      float64
}

// AllocationHistory records one reallocation run for auditability.
type AllocationHistory struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	RunID       string    `gorm:"column:run_id;not null;index" json:"runId"`
	CampaignKey string    `gorm:"column:campaign_key;not null;index" json:"campaignKey"`
	Phase       string    `gorm:"column:phase;not null" json:"phase"`
	Weights     []Variant `gorm:"column:weights;type:jsonb;serializer:json" json:"weights"`
	Stats       []ArmStat `gorm:"column:stats;type:jsonb;serializer:json" json:"stats"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"createdAt"`
}

func (AllocationHistory) TableName() string {
	return "allocation_history"
}

// ArmStat is the snapshot one reallocation was computed from.
type ArmStat struct {
	VariantKey string  `json:"variantKey"`
	Pulls      int64   `json:"pulls"`
	Successes  int64   `json:"successes"`
	Rate       float64 `json:"rate"`
	Score      float64 `json:"score"`
}
