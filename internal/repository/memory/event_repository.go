package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"splitEngine/domain"
)

type EventRepository struct {
	db *DB
}

func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// RecordExposure marks the assignment exposed and appends the event only if
// it had not been exposed yet.
func (r *EventRepository) RecordExposure(ctx context.Context, event *domain.ExposureEvent) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	a, ok := r.db.assignments[assignmentKey{event.CampaignKey, event.SubjectID}]
	if !ok {
		return false, errors.Join(domain.ErrNotAssigned,
			fmt.Errorf("subject %q has no assignment in %q", event.SubjectID, event.CampaignKey))
	}
	if a.ExposedAt != nil {
		return false, nil
	}

	ts := event.Timestamp
	a.ExposedAt = &ts

	event.ID = r.db.id()
	stored := *event
	stored.Context = maps.Clone(event.Context)
	r.db.exposures = append(r.db.exposures, stored)
	return true, nil
}

func (r *EventRepository) SaveConversion(ctx context.Context, event *domain.ConversionEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	event.ID = r.db.id()
	r.db.conversions = append(r.db.conversions, *event)
	return nil
}

func (r *EventRepository) CountExposures(ctx context.Context, campaignKey string) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make(map[string]int64)
	for _, e := range r.db.exposures {
		if e.CampaignKey == campaignKey {
			out[e.VariantKey]++
		}
	}
	return out, nil
}

// CountConversions aggregates per variant. An empty metricKey matches every metric.
func (r *EventRepository) CountConversions(ctx context.Context, campaignKey, metricKey string) (map[string]domain.ConversionCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	out := make(map[string]domain.ConversionCount)
	converters := make(map[string]map[string]struct{})
	for _, e := range r.db.conversions {
		if e.CampaignKey != campaignKey || (metricKey != "" && e.MetricKey != metricKey) {
			continue
		}

		c := out[e.VariantKey]
		c.Events++
		c.Value += e.Value

		seen, ok := converters[e.VariantKey]
		if !ok {
			seen = make(map[string]struct{})
			converters[e.VariantKey] = seen
		}
		if _, ok := seen[e.SubjectID]; !ok {
			seen[e.SubjectID] = struct{}{}
			c.Converters++
		}
		out[e.VariantKey] = c
	}
	return out, nil
}

// ExposuresFor lists a subject's exposure events in one campaign.
func (r *EventRepository) ExposuresFor(ctx context.Context, campaignKey, subjectID string) ([]domain.ExposureEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []domain.ExposureEvent
	for _, e := range r.db.exposures {
		if e.CampaignKey == campaignKey && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}
