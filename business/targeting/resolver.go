package targeting

import (
	"context"
	"maps"

	"splitEngine/pkg/logger"
)

// SubjectRepository resolves stored attributes of a subject. A subject with
// no row yields an empty map and no error.
type SubjectRepository interface {
	GetAttributes(ctx context.Context, subjectID string) (map[string]any, error)
}

// Resolver builds the attribute map rules are evaluated against: stored
// subject attributes, overlaid by the request context.
type Resolver struct {
	subjectRepo SubjectRepository
}

func NewResolver(subjectRepo SubjectRepository) *Resolver {
	return &Resolver{subjectRepo: subjectRepo}
}

// Resolve never fails; a subject store outage degrades to request context only.
func (r *Resolver) Resolve(ctx context.Context, subjectID string, reqCtx map[string]any) map[string]any {
	out := map[string]any{"subjectId": subjectID}

	if r != nil && r.subjectRepo != nil {
		attrs, err := r.subjectRepo.GetAttributes(ctx, subjectID)
		if err != nil {
			logger.Warn("subject_attributes_unavailable",
				"subject_id", subjectID,
				"error", err,
			)
		} else {
			maps.Copy(out, attrs)
		}
	}

	maps.Copy(out, reqCtx)
	return out
}
