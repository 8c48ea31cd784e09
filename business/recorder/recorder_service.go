package recorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"splitEngine/domain"
	"splitEngine/pkg/logger"
	"splitEngine/pkg/metrics"

	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// EventRepository stores the append-only exposure and conversion logs.
type EventRepository interface {
	// RecordExposure sets exposed_at on the assignment only if it is unset and,
	// in the same unit of work, appends the event. Returns false when the
	// assignment was already exposed.
	RecordExposure(ctx context.Context, event *domain.ExposureEvent) (bool, error)
	SaveConversion(ctx context.Context, event *domain.ConversionEvent) error
	CountExposures(ctx context.Context, campaignKey string) (map[string]int64, error)
	CountConversions(ctx context.Context, campaignKey, metricKey string) (map[string]domain.ConversionCount, error)
}

type AssignmentFinder interface {
	Find(ctx context.Context, campaignKey, subjectID string) (*domain.Assignment, error)
}

type CampaignReader interface {
	GetCampaign(ctx context.Context, key string) (*domain.Campaign, error)
}

type RecorderService struct {
	eventRepo      EventRepository
	assignmentRepo AssignmentFinder
	campaigns      CampaignReader
	now            func() time.Time
}

func NewRecorderService(eventRepo EventRepository, assignmentRepo AssignmentFinder, campaigns CampaignReader) *RecorderService {
	return &RecorderService{
		eventRepo:      eventRepo,
		assignmentRepo: assignmentRepo,
		campaigns:      campaigns,
		now:            time.Now,
	}
}

// RecordExposure is a no-op for an assignment that already carries exposedAt.
func (s *RecorderService) RecordExposure(ctx context.Context, assignment *domain.Assignment, reqCtx map[string]any) (bool, error) {
	if assignment == nil || assignment.ExposedAt != nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	now := s.now()
	event := &domain.ExposureEvent{
		CampaignKey: assignment.CampaignKey,
		SubjectID:   assignment.SubjectID,
		VariantKey:  assignment.VariantKey,
		Timestamp:   now,
		Context:     datatypes.JSONMap(reqCtx),
	}

	recorded, err := s.eventRepo.RecordExposure(ctx, event)
	if err != nil {
		return false, fmt.Errorf("failed to record exposure: %w", err)
	}

	assignment.ExposedAt = &now
	if recorded {
		metrics.ExposuresRecorded.WithLabelValues(assignment.CampaignKey, assignment.VariantKey).Inc()
	}

	return recorded, nil
}

// RecordConversion attributes an outcome to the subject's current assignment.
func (s *RecorderService) RecordConversion(ctx context.Context, campaignKey, subjectID, metricKey string, value float64) (*domain.ConversionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	metricKey = strings.TrimSpace(metricKey)
	if metricKey == "" {
		return nil, errors.Join(domain.ErrInvalidConfiguration, errors.New("metricKey is required"))
	}

	assignment, err := s.assignmentRepo.Find(ctx, campaignKey, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	if assignment == nil {
		return nil, errors.Join(domain.ErrNotAssigned,
			fmt.Errorf("subject %q has no assignment in %q", subjectID, campaignKey))
	}

	event := &domain.ConversionEvent{
		CampaignKey: campaignKey,
		SubjectID:   subjectID,
		VariantKey:  assignment.VariantKey,
		MetricKey:   metricKey,
		Value:       value,
		Timestamp:   s.now(),
	}

	if err := s.eventRepo.SaveConversion(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to save conversion: %w", err)
	}

	metrics.ConversionsRecorded.WithLabelValues(campaignKey, metricKey).Inc()
	logger.Debug("conversion_recorded",
		"campaign", campaignKey,
		"subject_id", subjectID,
		"variant", assignment.VariantKey,
		"metric", metricKey,
		"value", value,
	)

	return event, nil
}

// Aggregate returns per-variant exposures and conversions in declared variant
// order. Variants no longer configured but present in the logs are appended.
// An empty metricKey counts conversions of every metric.
func (s *RecorderService) Aggregate(ctx context.Context, campaignKey, metricKey string) ([]domain.VariantResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	c, err := s.campaigns.GetCampaign(ctx, campaignKey)
	if err != nil {
		return nil, err
	}

	var (
		exposures   map[string]int64
		conversions map[string]domain.ConversionCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		exposures, err = s.eventRepo.CountExposures(gctx, campaignKey)
		return err
	})
	g.Go(func() error {
		var err error
		conversions, err = s.eventRepo.CountConversions(gctx, campaignKey, metricKey)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to aggregate %q: %w", campaignKey, err)
	}

	results := make([]domain.VariantResult, 0, len(c.Variants))
	seen := make(map[string]struct{}, len(c.Variants))
	for _, v := range c.Variants {
		seen[v.Key] = struct{}{}
		results = append(results, buildResult(v.Key, exposures[v.Key], conversions[v.Key]))
	}

	var extra []string
	for key := range exposures {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			extra = append(extra, key)
		}
	}
	for key := range conversions {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		results = append(results, buildResult(key, exposures[key], conversions[key]))
	}

	return results, nil
}

func buildResult(key string, exposures int64, conv domain.ConversionCount) domain.VariantResult {
	return domain.VariantResult{
		VariantKey:      key,
		Exposures:       exposures,
		Conversions:     conv.Events,
		Converters:      conv.Converters,
		ConversionValue: conv.Value,
		ConversionRate:  float64(conv.Converters) / float64(max(exposures, 1)),
	}
}
