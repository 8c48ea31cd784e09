package memory

import (
	"context"
	"fmt"
	"maps"
	"time"

	"splitEngine/domain"
)

type SubjectRepository struct {
	db *DB
}

func NewSubjectRepository(db *DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

// GetAttributes returns an empty map for unknown subjects.
func (r *SubjectRepository) GetAttributes(ctx context.Context, subjectID string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.subjects[subjectID]
	if !ok {
		return map[string]any{}, nil
	}
	return maps.Clone(map[string]any(s.Attributes)), nil
}

func (r *SubjectRepository) PutAttributes(ctx context.Context, subjectID string, attrs map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.subjects[subjectID] = domain.Subject{
		SubjectID:  subjectID,
		Attributes: maps.Clone(attrs),
		UpdatedAt:  time.Now(),
	}
	return nil
}

// MergeSubject moves fromID rows onto toID. Assignments that collide with an
// existing toID row are dropped; every event row is moved.
func (r *SubjectRepository) MergeSubject(ctx context.Context, fromID, toID string) (domain.MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MergeResult{}, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	result := domain.MergeResult{FromID: fromID, ToID: toID}

	for k, a := range r.db.assignments {
		if k.subject != fromID {
			continue
		}
		delete(r.db.assignments, k)

		target := assignmentKey{k.campaign, toID}
		if _, exists := r.db.assignments[target]; exists {
			result.AssignmentsDropped++
			continue
		}
		a.SubjectID = toID
		r.db.assignments[target] = a
		result.AssignmentsMoved++
	}

	for i := range r.db.exposures {
		if r.db.exposures[i].SubjectID == fromID {
			r.db.exposures[i].SubjectID = toID
			result.ExposuresMoved++
		}
	}
	for i := range r.db.conversions {
		if r.db.conversions[i].SubjectID == fromID {
			r.db.conversions[i].SubjectID = toID
			result.ConversionsMoved++
		}
	}

	return result, nil
}
