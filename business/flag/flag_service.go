package flag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"splitEngine/business/bucketing"
	"splitEngine/business/targeting"
	"splitEngine/domain"
	"splitEngine/pkg/logger"
	"splitEngine/pkg/metrics"
)

type CampaignReader interface {
	GetCampaign(ctx context.Context, key string) (*domain.Campaign, error)
}

type AttributeResolver interface {
	Resolve(ctx context.Context, subjectID string, reqCtx map[string]any) map[string]any
}

const defaultMaxDepth = 8

var errDepthExceeded = errors.New("dependency depth exceeded")

type FlagService struct {
	campaigns CampaignReader
	resolver  AttributeResolver
	maxDepth  int
	now       func() time.Time
}

func NewFlagService(campaigns CampaignReader, resolver AttributeResolver, maxDepth int) *FlagService {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &FlagService{
		campaigns: campaigns,
		resolver:  resolver,
		maxDepth:  maxDepth,
		now:       time.Now,
	}
}

// Evaluate answers whether flagKey is on for subjectID. It never fails; an
// outage or bad config degrades to a disabled decision with its reason.
func (s *FlagService) Evaluate(ctx context.Context, flagKey, subjectID string, reqCtx map[string]any) domain.FlagDecision {
	attrs := s.resolver.Resolve(ctx, subjectID, reqCtx)

	decision, err := s.evaluate(ctx, flagKey, subjectID, attrs, s.now(), 0)
	if err != nil {
		logger.Error("flag_evaluation_failed",
			"trace_id", logger.TraceIDFromContext(ctx),
			"flag", flagKey,
			"subject_id", subjectID,
			"error", err,
		)
		decision = domain.FlagDecision{Reason: domain.FlagReasonError}
	}

	logger.Debug("flag_evaluated",
		"trace_id", logger.TraceIDFromContext(ctx),
		"flag", flagKey,
		"subject_id", subjectID,
		"enabled", decision.Enabled,
		"reason", decision.Reason,
	)
	countEvaluation(flagKey, decision)
	return decision
}

func countEvaluation(flagKey string, d domain.FlagDecision) {
	if d.Reason == domain.FlagReasonNotFound {
		flagKey = metrics.UnknownKey
	}
	metrics.FlagEvaluations.WithLabelValues(flagKey, string(d.Reason)).Inc()
}

// EvaluateAll evaluates several flags against one resolved attribute map.
func (s *FlagService) EvaluateAll(ctx context.Context, flagKeys []string, subjectID string, reqCtx map[string]any) map[string]domain.FlagDecision {
	attrs := s.resolver.Resolve(ctx, subjectID, reqCtx)
	now := s.now()

	out := make(map[string]domain.FlagDecision, len(flagKeys))
	for _, key := range flagKeys {
		decision, err := s.evaluate(ctx, key, subjectID, attrs, now, 0)
		if err != nil {
			logger.Error("flag_evaluation_failed",
				"trace_id", logger.TraceIDFromContext(ctx),
				"flag", key,
				"subject_id", subjectID,
				"error", err,
			)
			decision = domain.FlagDecision{Reason: domain.FlagReasonError}
		}
		countEvaluation(key, decision)
		out[key] = decision
	}
	return out
}

func (s *FlagService) evaluate(ctx context.Context, flagKey, subjectID string, attrs map[string]any, now time.Time, depth int) (domain.FlagDecision, error) {
	if err := ctx.Err(); err != nil {
		return domain.FlagDecision{}, fmt.Errorf("context error: %w", err)
	}

	f, err := s.campaigns.GetCampaign(ctx, flagKey)
	if errors.Is(err, domain.ErrCampaignNotFound) {
		return off(domain.FlagReasonNotFound), nil
	}
	if err != nil {
		return domain.FlagDecision{}, fmt.Errorf("failed to load flag %q: %w", flagKey, err)
	}
	if f.Kind != domain.KindFlag {
		return off(domain.FlagReasonNotFound), nil
	}

	if f.Status != domain.StatusActive {
		return off(domain.FlagReasonDisabled), nil
	}
	if f.EnableAt != nil && now.Before(*f.EnableAt) {
		return off(domain.FlagReasonNotYetActive), nil
	}
	if f.DisableAt != nil && !now.Before(*f.DisableAt) {
		return off(domain.FlagReasonExpired), nil
	}

	for _, dep := range f.Dependencies {
		ok, err := s.dependencyHolds(ctx, dep, subjectID, attrs, now, depth)
		if errors.Is(err, errDepthExceeded) {
			logger.Warn("flag_dependency_depth_exceeded",
				"flag", flagKey,
				"dependency", dep.FlagKey,
				"max_depth", s.maxDepth,
			)
			return off(domain.FlagReasonDependencyNotMet), nil
		}
		if err != nil {
			return domain.FlagDecision{}, err
		}
		if !ok {
			return off(domain.FlagReasonDependencyNotMet), nil
		}
	}

	if !targeting.Matches(f.Targeting, f.Key, subjectID, attrs) {
		return off(domain.FlagReasonNotTargeted), nil
	}

	if bucketing.Bucket(bucketing.RolloutSeed(f.Key), subjectID)*100 >= f.RolloutPercent {
		return off(domain.FlagReasonNotInRollout), nil
	}

	decision := domain.FlagDecision{Enabled: true, Reason: domain.FlagReasonEnabled}
	switch len(f.Variants) {
	case 0:
	case 1:
		decision.Variant = f.Variants[0].Key
		decision.Payload = f.Variants[0].Payload
	default:
		v, err := bucketing.SelectVariant(f.Variants, f.Seed, subjectID)
		if err != nil {
			return domain.FlagDecision{}, err
		}
		decision.Variant = v.Key
		decision.Payload = v.Payload
	}

	return decision, nil
}

// dependencyHolds evaluates the dependency flag and compares it with the
// required state: "enabled", "disabled" or one of its variant keys.
func (s *FlagService) dependencyHolds(ctx context.Context, dep domain.Dependency, subjectID string, attrs map[string]any, now time.Time, depth int) (bool, error) {
	if depth+1 > s.maxDepth {
		return false, errDepthExceeded
	}

	d, err := s.evaluate(ctx, dep.FlagKey, subjectID, attrs, now, depth+1)
	if err != nil {
		return false, err
	}

	switch dep.RequiredState {
	case domain.DependencyEnabled:
		return d.Enabled, nil
	case domain.DependencyDisabled:
		return !d.Enabled, nil
	default:
		return d.Enabled && d.Variant == dep.RequiredState, nil
	}
}

func off(reason domain.FlagReason) domain.FlagDecision {
	return domain.FlagDecision{Reason: reason}
}
