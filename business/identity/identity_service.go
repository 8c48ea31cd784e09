package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"splitEngine/domain"
	"splitEngine/pkg/logger"
)

// MergeRepository rewrites subject rows in one unit of work.
type MergeRepository interface {
	// MergeSubject moves assignment, exposure and conversion rows from fromID
	// to toID. Where both own an assignment for the same campaign the toID row
	// is kept and the fromID row is dropped.
	MergeSubject(ctx context.Context, fromID, toID string) (domain.MergeResult, error)
}

type identityService struct {
	mergeRepo MergeRepository
}

func NewIdentityService(mergeRepo MergeRepository) *identityService {
	return &identityService{mergeRepo: mergeRepo}
}

func (s *identityService) Merge(ctx context.Context, fromID, toID string) (domain.MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.MergeResult{}, fmt.Errorf("context error: %w", err)
	}

	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	if fromID == "" || toID == "" {
		return domain.MergeResult{}, errors.Join(domain.ErrInvalidSubject, errors.New("fromId and toId are required"))
	}
	if fromID == toID {
		return domain.MergeResult{}, errors.Join(domain.ErrInvalidSubject, errors.New("fromId and toId must differ"))
	}

	result, err := s.mergeRepo.MergeSubject(ctx, fromID, toID)
	if err != nil {
		return domain.MergeResult{}, fmt.Errorf("failed to merge %q into %q: %w", fromID, toID, err)
	}

	logger.Info("identity_merged",
		"trace_id", logger.TraceIDFromContext(ctx),
		"from_id", fromID,
		"to_id", toID,
		"assignments_moved", result.AssignmentsMoved,
		"assignments_dropped", result.AssignmentsDropped,
		"exposures_moved", result.ExposuresMoved,
		"conversions_moved", result.ConversionsMoved,
	)

	return result, nil
}
