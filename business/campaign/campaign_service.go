package campaign

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"splitEngine/domain"
	"splitEngine/pkg/logger"

	"github.com/google/uuid"
)

// CampaignRepository contract interface
type CampaignRepository interface {
	Create(ctx context.Context, campaign *domain.Campaign) error
	FindByKey(ctx context.Context, key string) (domain.Campaign, error)
	FindAll(ctx context.Context, kind domain.CampaignKind) ([]domain.Campaign, error)
	Update(ctx context.Context, campaign *domain.Campaign) error
	UpdateStatus(ctx context.Context, key string, status domain.CampaignStatus) error
	UpdateSeed(ctx context.Context, key string, seed string) error
}

// Invalidator drops cached config after an administrative write.
type Invalidator interface {
	Invalidate(ctx context.Context, key string)
}

type campaignService struct {
	campaignRepo CampaignRepository
	cache        Invalidator
}

func NewCampaignService(campaignRepo CampaignRepository, cache Invalidator) *campaignService {
	return &campaignService{
		campaignRepo: campaignRepo,
		cache:        cache,
	}
}

func (s *campaignService) GetCampaign(ctx context.Context, key string) (domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return domain.Campaign{}, fmt.Errorf("context error: %w", err)
	}

	return s.campaignRepo.FindByKey(ctx, key)
}

func (s *campaignService) ListCampaigns(ctx context.Context, kind domain.CampaignKind) ([]domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	if kind != "" && kind != domain.KindExperiment && kind != domain.KindFlag {
		return nil, errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("unknown kind %q", kind))
	}

	return s.campaignRepo.FindAll(ctx, kind)
}

// CreateCampaign validates the config, generates a fresh seed and stores the
// campaign in draft.
func (s *campaignService) CreateCampaign(ctx context.Context, campaign *domain.Campaign) (*domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	campaign.Key = strings.TrimSpace(campaign.Key)
	if campaign.Kind == "" {
		campaign.Kind = domain.KindExperiment
	}
	if campaign.Kind == domain.KindFlag && len(campaign.Variants) == 0 {
		campaign.Variants = []domain.Variant{{Key: "on", Weight: 1}}
	}
	campaign.Status = domain.StatusDraft
	campaign.Seed = uuid.NewString()

	if err := Validate(campaign); err != nil {
		logger.Warn("campaign_rejected", "key", campaign.Key, "error", err)
		return nil, err
	}

	if err := s.checkDependencies(ctx, campaign); err != nil {
		logger.Warn("campaign_rejected", "key", campaign.Key, "error", err)
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, err
	}

	logger.Info("campaign_created", "key", campaign.Key, "kind", campaign.Kind)

	return campaign, nil
}

// UpdateCampaign replaces the mutable config of key. Key, kind, seed and
// status are never taken from the input.
func (s *campaignService) UpdateCampaign(ctx context.Context, key string, input *domain.Campaign) (*domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	current, err := s.campaignRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	if current.Status == domain.StatusCompleted || current.Status == domain.StatusArchived {
		return nil, errors.Join(domain.ErrInvalidTransition, fmt.Errorf("campaign %q is %s and read-only", key, current.Status))
	}

	updated := current
	updated.Variants = input.Variants
	updated.Targeting = input.Targeting
	updated.Dependencies = input.Dependencies
	updated.RolloutPercent = input.RolloutPercent
	updated.EnableAt = input.EnableAt
	updated.DisableAt = input.DisableAt
	updated.MinSamplePerVariant = input.MinSamplePerVariant
	updated.PrimaryMetric = input.PrimaryMetric

	if err := Validate(&updated); err != nil {
		logger.Warn("campaign_update_rejected", "key", key, "error", err)
		return nil, err
	}

	if err := s.checkDependencies(ctx, &updated); err != nil {
		logger.Warn("campaign_update_rejected", "key", key, "error", err)
		return nil, err
	}

	if err := s.campaignRepo.Update(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update campaign: %w", err)
	}
	s.invalidate(ctx, key)

	logger.Info("campaign_updated", "key", key)

	return &updated, nil
}

func (s *campaignService) StartCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	return s.transition(ctx, key, domain.StatusActive, domain.StatusDraft, domain.StatusPaused)
}

func (s *campaignService) StopCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	return s.transition(ctx, key, domain.StatusPaused, domain.StatusActive)
}

func (s *campaignService) CompleteCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	return s.transition(ctx, key, domain.StatusCompleted, domain.StatusActive, domain.StatusPaused)
}

func (s *campaignService) ArchiveCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	return s.transition(ctx, key, domain.StatusArchived,
		domain.StatusDraft, domain.StatusActive, domain.StatusPaused, domain.StatusCompleted)
}

// ReseedCampaign generates a new bucketing seed. Every subject without a
// stored assignment is re-randomized by this.
func (s *campaignService) ReseedCampaign(ctx context.Context, key string) (*domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	current, err := s.campaignRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusCompleted || current.Status == domain.StatusArchived {
		return nil, errors.Join(domain.ErrInvalidTransition, fmt.Errorf("campaign %q is %s and read-only", key, current.Status))
	}

	seed := uuid.NewString()
	if err := s.campaignRepo.UpdateSeed(ctx, key, seed); err != nil {
		return nil, fmt.Errorf("failed to reseed campaign: %w", err)
	}
	s.invalidate(ctx, key)

	logger.Warn("campaign_reseeded", "key", key, "previous_seed", current.Seed)

	current.Seed = seed
	return &current, nil
}

func (s *campaignService) transition(ctx context.Context, key string, to domain.CampaignStatus, from ...domain.CampaignStatus) (*domain.Campaign, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	current, err := s.campaignRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, st := range from {
		if current.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, errors.Join(domain.ErrInvalidTransition, fmt.Errorf("cannot move %q from %s to %s", key, current.Status, to))
	}

	if err := s.campaignRepo.UpdateStatus(ctx, key, to); err != nil {
		return nil, fmt.Errorf("failed to update campaign status: %w", err)
	}
	s.invalidate(ctx, key)

	logger.Info("campaign_status_changed", "key", key, "from", current.Status, "to", to)

	current.Status = to
	current.UpdatedAt = time.Now()
	return &current, nil
}

func (s *campaignService) invalidate(ctx context.Context, key string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, key)
	}
}

// checkDependencies rejects missing dependency flags and cycles in the flag
// dependency graph that would exist after the write.
func (s *campaignService) checkDependencies(ctx context.Context, candidate *domain.Campaign) error {
	if len(candidate.Dependencies) == 0 {
		return nil
	}

	flags, err := s.campaignRepo.FindAll(ctx, domain.KindFlag)
	if err != nil {
		return fmt.Errorf("failed to load flags: %w", err)
	}

	byKey := make(map[string]domain.Campaign, len(flags))
	graph := make(map[string][]string, len(flags)+1)
	for _, f := range flags {
		byKey[f.Key] = f
		for _, d := range f.Dependencies {
			graph[f.Key] = append(graph[f.Key], d.FlagKey)
		}
		if _, ok := graph[f.Key]; !ok {
			graph[f.Key] = nil
		}
	}

	deps := make([]string, 0, len(candidate.Dependencies))
	for _, d := range candidate.Dependencies {
		if d.FlagKey == candidate.Key {
			return errors.Join(domain.ErrDependencyCycle, domain.ErrInvalidConfiguration,
				fmt.Errorf("flag %q depends on itself", candidate.Key))
		}
		dep, ok := byKey[d.FlagKey]
		if !ok {
			return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("dependency flag %q not found", d.FlagKey))
		}
		if !validRequiredState(dep, d.RequiredState) {
			return errors.Join(domain.ErrInvalidConfiguration,
				fmt.Errorf("requiredState %q is not enabled, disabled or a variant of %q", d.RequiredState, d.FlagKey))
		}
		deps = append(deps, d.FlagKey)
	}
	graph[candidate.Key] = deps

	if path := FindCycle(graph, candidate.Key); path != nil {
		return errors.Join(domain.ErrDependencyCycle, domain.ErrInvalidConfiguration,
			fmt.Errorf("cycle: %s", strings.Join(path, " -> ")))
	}
	return nil
}

func validRequiredState(dep domain.Campaign, state string) bool {
	if state == domain.DependencyEnabled || state == domain.DependencyDisabled {
		return true
	}
	_, ok := dep.VariantByKey(state)
	return ok
}
