package domain

import (
	"time"
)

// CREATE TABLE public.campaigns (
//     id                     BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//     key                    TEXT NOT NULL UNIQUE,
//     kind                   TEXT NOT NULL,
//     status                 TEXT NOT NULL,
//     seed                   TEXT NOT NULL UNIQUE,
//     variants               JSONB NOT NULL,
//     targeting              JSONB NOT NULL DEFAULT '{}',
//     rollout_percent        DOUBLE PRECISION NOT NULL DEFAULT 100,
//     dependencies           JSONB NOT NULL DEFAULT '[]',
//     enable_at              TIMESTAMPTZ,
//     disable_at             TIMESTAMPTZ,
//     min_sample_per_variant INT NOT NULL DEFAULT 0,
//     primary_metric         TEXT NOT NULL DEFAULT '',
//     created_at             TIMESTAMPTZ DEFAULT NOW(),
//     updated_at             TIMESTAMPTZ DEFAULT NOW()
// );

type CampaignKind string

const (
	KindExperiment CampaignKind = "experiment"
	KindFlag       CampaignKind = "flag"
)

type CampaignStatus string

const (
	StatusDraft     CampaignStatus = "draft"
	StatusActive    CampaignStatus = "active"
	StatusPaused    CampaignStatus = "paused"
	StatusCompleted CampaignStatus = "completed"
	StatusArchived  CampaignStatus = "archived"
)

// Variant is one arm of an experiment or one enabled-state payload of a flag.
// Weights are relative; they are normalized by their running sum at selection time.
type Variant struct {
	Key     string  `json:"key"`
	Weight  float64 `json:"weight"`
	Payload any     `json:"payload,omitempty"`
}

// Dependency requires another flag to evaluate to RequiredState.
// RequiredState is "enabled", "disabled" or a variant key of the dependency flag.
type Dependency struct {
	FlagKey       string `json:"flagKey"`
	RequiredState string `json:"requiredState"`
}

const (
	DependencyEnabled  = "enabled"
	DependencyDisabled = "disabled"
)

// Schedule bounds the window in which a flag evaluates enabled.
type Schedule struct {
	EnableAt  *time.Time `json:"enableAt,omitempty"`
	DisableAt *time.Time `json:"disableAt,omitempty"`
}

// Campaign unifies experiments and feature flags behind one entity.
type Campaign struct {
	ID       uint           `gorm:"primaryKey" json:"id"`
	Key      string         `gorm:"column:key;uniqueIndex;not null" json:"key"`
	Kind     CampaignKind   `gorm:"column:kind;not null" json:"kind"`
	Status   CampaignStatus `gorm:"column:status;not null" json:"status"`
	Seed     string         `gorm:"column:seed;uniqueIndex;not null" json:"seed"`
	Variants []Variant      `gorm:"column:variants;type:jsonb;serializer:json;not null" json:"variants"`

	Targeting    Targeting    `gorm:"column:targeting;type:jsonb;serializer:json" json:"targeting"`
	Dependencies []Dependency `gorm:"column:dependencies;type:jsonb;serializer:json" json:"dependencies,omitempty"`

	// flags only
	RolloutPercent float64 `gorm:"column:rollout_percent;not null" json:"rolloutPercent"`

	EnableAt  *time.Time `gorm:"column:enable_at" json:"enableAt,omitempty"`
	DisableAt *time.Time `gorm:"column:disable_at" json:"disableAt,omitempty"`

	// experiments only
	MinSamplePerVariant int    `gorm:"column:min_sample_per_variant;not null;default:0" json:"minSamplePerVariant"`
	PrimaryMetric       string `gorm:"column:primary_metric;not null;default:''" json:"primaryMetric,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

func (c *Campaign) Schedule() Schedule {
	return Schedule{EnableAt: c.EnableAt, DisableAt: c.DisableAt}
}

// Evaluable reports whether the campaign may produce new computed assignments.
func (c *Campaign) Evaluable() bool {
	return c.Status == StatusActive
}

// VariantByKey returns the declared variant with the given key.
func (c *Campaign) VariantByKey(key string) (Variant, bool) {
	for _, v := range c.Variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}

// Clone returns a deep enough copy for caches to hand out safely.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	out := *c
	out.Variants = append([]Variant(nil), c.Variants...)
	out.Dependencies = append([]Dependency(nil), c.Dependencies...)
	out.Targeting = c.Targeting.Clone()
	return &out
}
