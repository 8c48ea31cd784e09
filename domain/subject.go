package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Subject holds attributes resolvable for targeting. The engine only reads it.
type Subject struct {
	SubjectID  string            `gorm:"column:subject_id;primaryKey" json:"subjectId"`
	Attributes datatypes.JSONMap `gorm:"column:attributes;type:jsonb" json:"attributes"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Subject) TableName() string {
	return "subjects"
}

// MergeResult counts rows adjusted by an identity merge.
type MergeResult struct {
	FromID             string `json:"fromId"`
	ToID               string `json:"toId"`
	AssignmentsMoved   int64  `json:"assignmentsMoved"`
	AssignmentsDropped int64  `json:"assignmentsDropped"`
	ExposuresMoved     int64  `json:"exposuresMoved"`
	ConversionsMoved   int64  `json:"conversionsMoved"`
}
