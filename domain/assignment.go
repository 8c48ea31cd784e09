package domain

import "time"

// CREATE TABLE public.assignments (
//     id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
//     campaign_key    TEXT NOT NULL,
//     subject_id      TEXT NOT NULL,
//     variant_key     TEXT NOT NULL,
//     assigned_at     TIMESTAMPTZ NOT NULL,
//     exposed_at      TIMESTAMPTZ,
//     source          TEXT NOT NULL,
//     override_reason TEXT,
//     UNIQUE (campaign_key, subject_id)
// );

type AssignmentSource string

const (
	SourceComputed AssignmentSource = "computed"
	SourceOverride AssignmentSource = "override"
)

type Assignment struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	CampaignKey    string           `gorm:"column:campaign_key;not null;uniqueIndex:idx_assignments_campaign_subject" json:"campaignKey"`
	SubjectID      string           `gorm:"column:subject_id;not null;uniqueIndex:idx_assignments_campaign_subject;index" json:"subjectId"`
	VariantKey     string           `gorm:"column:variant_key;not null" json:"variantKey"`
	AssignedAt     time.Time        `gorm:"column:assigned_at;not null" json:"assignedAt"`
	ExposedAt      *time.Time       `gorm:"column:exposed_at" json:"exposedAt,omitempty"`
	Source         AssignmentSource `gorm:"column:source;not null" json:"source"`
	OverrideReason string           `gorm:"column:override_reason" json:"overrideReason,omitempty"`
}

func (Assignment) TableName() string {
	return "assignments"
}

type AssignmentReason string

const (
	ReasonNewAssignment       AssignmentReason = "new_assignment"
	ReasonExistingAssignment  AssignmentReason = "existing_assignment"
	ReasonOverride            AssignmentReason = "override"
	ReasonNotTargeted         AssignmentReason = "not_targeted"
	ReasonCampaignUnavailable AssignmentReason = "campaign_unavailable"
	ReasonCampaignInactive    AssignmentReason = "campaign_inactive"
	ReasonAssignmentError     AssignmentReason = "error"
)

// AssignmentDecision is the evaluation-path answer for an experiment.
// VariantKey is empty whenever no variant applies.
type AssignmentDecision struct {
	VariantKey string           `json:"variantKey,omitempty"`
	Payload    any              `json:"payload,omitempty"`
	Reason     AssignmentReason `json:"reason"`
}
