package memory

import (
	"context"
	"fmt"

	"splitEngine/domain"
)

type AssignmentRepository struct {
	db *DB
}

func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Find(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return copyAssignment(r.db.assignments[assignmentKey{campaignKey, subjectID}]), nil
}

func (r *AssignmentRepository) CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	k := assignmentKey{a.CampaignKey, a.SubjectID}
	if _, ok := r.db.assignments[k]; ok {
		return false, nil
	}
	a.ID = r.db.id()
	r.db.assignments[k] = copyAssignment(a)
	return true, nil
}

func (r *AssignmentRepository) Upsert(ctx context.Context, a *domain.Assignment) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	k := assignmentKey{a.CampaignKey, a.SubjectID}
	previous := r.db.assignments[k]
	if previous != nil {
		a.ID = previous.ID
	} else {
		a.ID = r.db.id()
	}
	r.db.assignments[k] = copyAssignment(a)
	return copyAssignment(previous), nil
}

func (r *AssignmentRepository) Delete(ctx context.Context, campaignKey, subjectID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	k := assignmentKey{campaignKey, subjectID}
	if _, ok := r.db.assignments[k]; !ok {
		return false, nil
	}
	delete(r.db.assignments, k)
	return true, nil
}

// Count reports the number of assignment rows for a campaign.
func (r *AssignmentRepository) Count(ctx context.Context, campaignKey string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n := 0
	for k := range r.db.assignments {
		if k.campaign == campaignKey {
			n++
		}
	}
	return n, nil
}
