package assignment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"splitEngine/business/bucketing"
	"splitEngine/business/targeting"
	"splitEngine/domain"
	"splitEngine/pkg/logger"
	"splitEngine/pkg/metrics"
)

// ---- Repository interfaces ----

type CampaignReader interface {
	GetCampaign(ctx context.Context, key string) (*domain.Campaign, error)
}

// AssignmentRepository is the only shared mutable state on the evaluation path.
type AssignmentRepository interface {
	// Find returns nil and no error when the subject has no assignment.
	Find(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error)
	// CreateIfAbsent inserts a only if no row exists for its campaign and
	// subject. Returns false when another writer got there first.
	CreateIfAbsent(ctx context.Context, a *domain.Assignment) (bool, error)
	// Upsert replaces the row and returns the previous one, if any.
	Upsert(ctx context.Context, a *domain.Assignment) (*domain.Assignment, error)
	Delete(ctx context.Context, campaignKey, subjectID string) (bool, error)
}

type AttributeResolver interface {
	Resolve(ctx context.Context, subjectID string, reqCtx map[string]any) map[string]any
}

type ExposureRecorder interface {
	RecordExposure(ctx context.Context, a *domain.Assignment, reqCtx map[string]any) (bool, error)
}

// ---- Usecase / Service ----

type AssignmentService struct {
	campaigns      CampaignReader
	assignmentRepo AssignmentRepository
	resolver       AttributeResolver
	exposures      ExposureRecorder
	now            func() time.Time
}

func NewAssignmentService(
	campaigns CampaignReader,
	assignmentRepo AssignmentRepository,
	resolver AttributeResolver,
	exposures ExposureRecorder,
) *AssignmentService {
	return &AssignmentService{
		campaigns:      campaigns,
		assignmentRepo: assignmentRepo,
		resolver:       resolver,
		exposures:      exposures,
		now:            time.Now,
	}
}

// GetOrAssign returns the subject's variant for an experiment, creating the
// assignment on first evaluation. It never returns an error; failures surface
// as a decision with no variant and reason "error".
func (s *AssignmentService) GetOrAssign(ctx context.Context, campaignKey, subjectID string, reqCtx map[string]any) domain.AssignmentDecision {
	decision, err := s.getOrAssign(ctx, campaignKey, subjectID, reqCtx)
	if err != nil {
		logger.Error("assignment_failed",
			"trace_id", logger.TraceIDFromContext(ctx),
			"campaign", campaignKey,
			"subject_id", subjectID,
			"error", err,
		)
		decision = domain.AssignmentDecision{Reason: domain.ReasonAssignmentError}
	}

	label := campaignKey
	if decision.Reason == domain.ReasonCampaignUnavailable {
		label = metrics.UnknownKey
	}
	metrics.AssignmentDecisions.WithLabelValues(label, string(decision.Reason)).Inc()
	return decision
}

func (s *AssignmentService) getOrAssign(ctx context.Context, campaignKey, subjectID string, reqCtx map[string]any) (domain.AssignmentDecision, error) {
	if err := ctx.Err(); err != nil {
		return domain.AssignmentDecision{}, fmt.Errorf("context error: %w", err)
	}
	if strings.TrimSpace(subjectID) == "" {
		return domain.AssignmentDecision{}, domain.ErrInvalidSubject
	}

	c, err := s.campaigns.GetCampaign(ctx, campaignKey)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return unavailable(), nil
	}
	if err != nil {
		return domain.AssignmentDecision{}, fmt.Errorf("failed to load campaign: %w", err)
	}
	if c.Kind != domain.KindExperiment {
		return unavailable(), nil
	}

	switch c.Status {
	case domain.StatusActive, domain.StatusPaused:
	default:
		return unavailable(), nil
	}

	existing, err := s.assignmentRepo.Find(ctx, campaignKey, subjectID)
	if err != nil {
		return domain.AssignmentDecision{}, fmt.Errorf("failed to load assignment: %w", err)
	}
	if existing != nil {
		reason := domain.ReasonExistingAssignment
		if existing.Source == domain.SourceOverride {
			reason = domain.ReasonOverride
		}
		return s.expose(ctx, c, existing, reqCtx, reason), nil
	}

	// paused experiments keep serving existing rows but stop enrolling
	if c.Status == domain.StatusPaused {
		return domain.AssignmentDecision{Reason: domain.ReasonCampaignInactive}, nil
	}

	attrs := s.resolver.Resolve(ctx, subjectID, reqCtx)
	if !targeting.Matches(c.Targeting, c.Key, subjectID, attrs) {
		return domain.AssignmentDecision{Reason: domain.ReasonNotTargeted}, nil
	}

	variant, err := bucketing.SelectVariant(c.Variants, c.Seed, subjectID)
	if err != nil {
		return domain.AssignmentDecision{}, err
	}

	a := &domain.Assignment{
		CampaignKey: campaignKey,
		SubjectID:   subjectID,
		VariantKey:  variant.Key,
		AssignedAt:  s.now(),
		Source:      domain.SourceComputed,
	}

	created, err := s.assignmentRepo.CreateIfAbsent(ctx, a)
	if err != nil {
		return domain.AssignmentDecision{}, fmt.Errorf("failed to create assignment: %w", err)
	}
	if !created {
		// lost the insert race; the stored row is authoritative
		winner, err := s.assignmentRepo.Find(ctx, campaignKey, subjectID)
		if err != nil {
			return domain.AssignmentDecision{}, fmt.Errorf("failed to reload assignment: %w", err)
		}
		if winner == nil {
			return domain.AssignmentDecision{}, fmt.Errorf("assignment for %q vanished after conflict", subjectID)
		}
		reason := domain.ReasonExistingAssignment
		if winner.Source == domain.SourceOverride {
			reason = domain.ReasonOverride
		}
		return s.expose(ctx, c, winner, reqCtx, reason), nil
	}

	logger.Debug("assignment_created",
		"trace_id", logger.TraceIDFromContext(ctx),
		"campaign", campaignKey,
		"subject_id", subjectID,
		"variant", variant.Key,
	)

	return s.expose(ctx, c, a, reqCtx, domain.ReasonNewAssignment), nil
}

// expose records the first exposure for a and builds the decision. A failed
// exposure write is logged and does not change the answer.
func (s *AssignmentService) expose(ctx context.Context, c *domain.Campaign, a *domain.Assignment, reqCtx map[string]any, reason domain.AssignmentReason) domain.AssignmentDecision {
	if s.exposures != nil {
		if _, err := s.exposures.RecordExposure(ctx, a, reqCtx); err != nil {
			logger.Warn("exposure_record_failed",
				"trace_id", logger.TraceIDFromContext(ctx),
				"campaign", a.CampaignKey,
				"subject_id", a.SubjectID,
				"error", err,
			)
		}
	}

	decision := domain.AssignmentDecision{VariantKey: a.VariantKey, Reason: reason}
	if v, ok := c.VariantByKey(a.VariantKey); ok {
		decision.Payload = v.Payload
	}
	return decision
}

// Override pins subjectID to variantKey regardless of bucketing. The pin
// survives weight edits and reallocation. A previous override to a different
// variant is replaced and reported as a conflict.
func (s *AssignmentService) Override(ctx context.Context, campaignKey, subjectID, variantKey, reason string) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}
	if strings.TrimSpace(subjectID) == "" {
		return nil, domain.ErrInvalidSubject
	}

	c, err := s.campaigns.GetCampaign(ctx, campaignKey)
	if err != nil {
		return nil, err
	}
	if c.Kind != domain.KindExperiment {
		return nil, errors.Join(domain.ErrInvalidConfiguration,
			fmt.Errorf("campaign %q is not an experiment", campaignKey))
	}
	if c.Status == domain.StatusCompleted || c.Status == domain.StatusArchived {
		return nil, errors.Join(domain.ErrCampaignInactive,
			fmt.Errorf("campaign %q is %s", campaignKey, c.Status))
	}
	if _, ok := c.VariantByKey(variantKey); !ok {
		return nil, errors.Join(domain.ErrVariantNotFound,
			fmt.Errorf("variant %q is not declared on %q", variantKey, campaignKey))
	}

	a := &domain.Assignment{
		CampaignKey:    campaignKey,
		SubjectID:      subjectID,
		VariantKey:     variantKey,
		AssignedAt:     s.now(),
		Source:         domain.SourceOverride,
		OverrideReason: reason,
	}

	previous, err := s.assignmentRepo.Upsert(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("failed to write override: %w", err)
	}

	conflict := previous != nil &&
		previous.Source == domain.SourceOverride &&
		previous.VariantKey != variantKey
	metrics.OverridesWritten.WithLabelValues(campaignKey, strconv.FormatBool(conflict)).Inc()

	if conflict {
		logger.Warn("override_replaced",
			"trace_id", logger.TraceIDFromContext(ctx),
			"campaign", campaignKey,
			"subject_id", subjectID,
			"previous_variant", previous.VariantKey,
			"variant", variantKey,
			"error", domain.ErrConflictingOverride,
		)
	} else {
		logger.Info("override_written",
			"trace_id", logger.TraceIDFromContext(ctx),
			"campaign", campaignKey,
			"subject_id", subjectID,
			"variant", variantKey,
		)
	}

	return a, nil
}

// ClearOverride removes an override row so the subject is bucketed again on
// next evaluation. Computed assignments are left alone.
func (s *AssignmentService) ClearOverride(ctx context.Context, campaignKey, subjectID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	if _, err := s.campaigns.GetCampaign(ctx, campaignKey); err != nil {
		return err
	}

	existing, err := s.assignmentRepo.Find(ctx, campaignKey, subjectID)
	if err != nil {
		return fmt.Errorf("failed to load assignment: %w", err)
	}
	if existing == nil || existing.Source != domain.SourceOverride {
		return errors.Join(domain.ErrNotAssigned,
			fmt.Errorf("subject %q has no override in %q", subjectID, campaignKey))
	}

	if _, err := s.assignmentRepo.Delete(ctx, campaignKey, subjectID); err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	logger.Info("override_cleared",
		"trace_id", logger.TraceIDFromContext(ctx),
		"campaign", campaignKey,
		"subject_id", subjectID,
	)
	return nil
}

// Get returns the stored assignment without evaluating or exposing.
func (s *AssignmentService) Get(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	if _, err := s.campaigns.GetCampaign(ctx, campaignKey); err != nil {
		return nil, err
	}

	a, err := s.assignmentRepo.Find(ctx, campaignKey, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if a == nil {
		return nil, errors.Join(domain.ErrNotAssigned,
			fmt.Errorf("subject %q has no assignment in %q", subjectID, campaignKey))
	}
	return a, nil
}

func unavailable() domain.AssignmentDecision {
	return domain.AssignmentDecision{Reason: domain.ReasonCampaignUnavailable}
}
