package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"splitEngine/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCampaign(t *testing.T, db *DB, key string) {
	t.Helper()
	err := NewCampaignRepository(db).Create(context.Background(), &domain.Campaign{
		Key:    key,
		Kind:   domain.KindExperiment,
		Status: domain.StatusActive,
		Seed:   key + "-seed",
		Variants: []domain.Variant{
			{Key: "control", Weight: 50},
			{Key: "treatment", Weight: 50},
		},
	})
	require.NoError(t, err)
}

func TestCampaignRepository(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	repo := NewCampaignRepository(db)

	seedCampaign(t, db, "ab_checkout")

	t.Run("duplicate key", func(t *testing.T) {
		err := repo.Create(ctx, &domain.Campaign{Key: "ab_checkout", Seed: "other"})
		assert.ErrorIs(t, err, domain.ErrCampaignExists)
	})

	t.Run("duplicate seed", func(t *testing.T) {
		err := repo.Create(ctx, &domain.Campaign{Key: "other", Seed: "ab_checkout-seed"})
		assert.ErrorIs(t, err, domain.ErrCampaignExists)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.FindByKey(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	})

	t.Run("returned copies are detached", func(t *testing.T) {
		c, err := repo.FindByKey(ctx, "ab_checkout")
		require.NoError(t, err)
		c.Variants[0].Weight = 1

		again, err := repo.FindByKey(ctx, "ab_checkout")
		require.NoError(t, err)
		assert.Equal(t, 50.0, again.Variants[0].Weight)
	})

	t.Run("update keeps seed and status", func(t *testing.T) {
		c, err := repo.FindByKey(ctx, "ab_checkout")
		require.NoError(t, err)
		c.Seed = "hijack"
		c.Status = domain.StatusArchived
		c.Variants[1].Weight = 80
		require.NoError(t, repo.Update(ctx, &c))

		got, err := repo.FindByKey(ctx, "ab_checkout")
		require.NoError(t, err)
		assert.Equal(t, "ab_checkout-seed", got.Seed)
		assert.Equal(t, domain.StatusActive, got.Status)
		assert.Equal(t, 80.0, got.Variants[1].Weight)
	})

	t.Run("filter by kind", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &domain.Campaign{Key: "f1", Kind: domain.KindFlag, Seed: "f1-seed"}))

		flags, err := repo.FindAll(ctx, domain.KindFlag)
		require.NoError(t, err)
		require.Len(t, flags, 1)
		assert.Equal(t, "f1", flags[0].Key)

		all, err := repo.FindAll(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestAssignmentRepository_CreateIfAbsentRace(t *testing.T) {
	ctx := context.Background()
	repo := NewAssignmentRepository(NewDB())

	const writers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			created, err := repo.CreateIfAbsent(ctx, &domain.Assignment{
				CampaignKey: "c",
				SubjectID:   "u1",
				VariantKey:  fmt.Sprintf("v%d", i),
				Source:      domain.SourceComputed,
			})
			assert.NoError(t, err)
			if created {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	n, err := repo.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAssignmentRepository_UpsertReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	repo := NewAssignmentRepository(NewDB())

	prev, err := repo.Upsert(ctx, &domain.Assignment{CampaignKey: "c", SubjectID: "u1", VariantKey: "a", Source: domain.SourceOverride})
	require.NoError(t, err)
	assert.Nil(t, prev)

	prev, err = repo.Upsert(ctx, &domain.Assignment{CampaignKey: "c", SubjectID: "u1", VariantKey: "b", Source: domain.SourceOverride})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "a", prev.VariantKey)

	deleted, err := repo.Delete(ctx, "c", "u1")
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := repo.Find(ctx, "c", "u1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEventRepository_ExposureRecordedOnce(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	assignments := NewAssignmentRepository(db)
	events := NewEventRepository(db)

	_, err := assignments.CreateIfAbsent(ctx, &domain.Assignment{CampaignKey: "c", SubjectID: "u1", VariantKey: "control"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		recorded, err := events.RecordExposure(ctx, &domain.ExposureEvent{
			CampaignKey: "c", SubjectID: "u1", VariantKey: "control", Timestamp: time.Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, i == 0, recorded)
	}

	counts, err := events.CountExposures(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["control"])

	a, err := assignments.Find(ctx, "c", "u1")
	require.NoError(t, err)
	assert.NotNil(t, a.ExposedAt)

	_, err = events.RecordExposure(ctx, &domain.ExposureEvent{CampaignKey: "c", SubjectID: "nobody"})
	assert.ErrorIs(t, err, domain.ErrNotAssigned)
}

func TestEventRepository_CountConversions(t *testing.T) {
	ctx := context.Background()
	events := NewEventRepository(NewDB())

	for _, e := range []domain.ConversionEvent{
		{CampaignKey: "c", SubjectID: "u1", VariantKey: "a", MetricKey: "purchase", Value: 10},
		{CampaignKey: "c", SubjectID: "u1", VariantKey: "a", MetricKey: "purchase", Value: 5},
		{CampaignKey: "c", SubjectID: "u2", VariantKey: "a", MetricKey: "signup", Value: 1},
		{CampaignKey: "c", SubjectID: "u3", VariantKey: "b", MetricKey: "purchase", Value: 2},
		{CampaignKey: "other", SubjectID: "u4", VariantKey: "a", MetricKey: "purchase", Value: 100},
	} {
		require.NoError(t, events.SaveConversion(ctx, &e))
	}

	purchase, err := events.CountConversions(ctx, "c", "purchase")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionCount{Events: 2, Converters: 1, Value: 15}, purchase["a"])
	assert.Equal(t, domain.ConversionCount{Events: 1, Converters: 1, Value: 2}, purchase["b"])

	all, err := events.CountConversions(ctx, "c", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversionCount{Events: 3, Converters: 2, Value: 16}, all["a"])
}

func TestAllocationRepository(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	seedCampaign(t, db, "c")
	repo := NewAllocationRepository(db)

	for i := 0; i < 3; i++ {
		err := repo.ReplaceWeights(ctx, "c", map[string]float64{"control": float64(10 * i), "ghost": 1},
			&domain.AllocationHistory{RunID: fmt.Sprintf("run-%d", i), CampaignKey: "c"})
		require.NoError(t, err)
	}

	c, err := NewCampaignRepository(db).FindByKey(ctx, "c")
	require.NoError(t, err)
	require.Len(t, c.Variants, 2)
	assert.Equal(t, 20.0, c.Variants[0].Weight)
	assert.Equal(t, 50.0, c.Variants[1].Weight)

	history, err := repo.ListHistory(ctx, "c", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "run-2", history[0].RunID)
	assert.Equal(t, "run-1", history[1].RunID)

	err = repo.ReplaceWeights(ctx, "missing", nil, &domain.AllocationHistory{})
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
}

func TestSubjectRepository_MergeSubject(t *testing.T) {
	ctx := context.Background()
	db := NewDB()
	assignments := NewAssignmentRepository(db)
	events := NewEventRepository(db)
	subjects := NewSubjectRepository(db)

	mustAssign := func(campaign, subject, variant string) {
		_, err := assignments.CreateIfAbsent(ctx, &domain.Assignment{CampaignKey: campaign, SubjectID: subject, VariantKey: variant})
		require.NoError(t, err)
		_, err = events.RecordExposure(ctx, &domain.ExposureEvent{CampaignKey: campaign, SubjectID: subject, VariantKey: variant, Timestamp: time.Now()})
		require.NoError(t, err)
	}

	mustAssign("c1", "anon", "a")
	mustAssign("c2", "anon", "b")
	mustAssign("c1", "user", "b")
	require.NoError(t, events.SaveConversion(ctx, &domain.ConversionEvent{CampaignKey: "c2", SubjectID: "anon", VariantKey: "b", MetricKey: "m"}))

	result, err := subjects.MergeSubject(ctx, "anon", "user")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AssignmentsMoved)
	assert.Equal(t, int64(1), result.AssignmentsDropped)
	assert.Equal(t, int64(2), result.ExposuresMoved)
	assert.Equal(t, int64(1), result.ConversionsMoved)

	kept, err := assignments.Find(ctx, "c1", "user")
	require.NoError(t, err)
	assert.Equal(t, "b", kept.VariantKey)

	moved, err := assignments.Find(ctx, "c2", "user")
	require.NoError(t, err)
	require.NotNil(t, moved)
	assert.Equal(t, "user", moved.SubjectID)

	gone, err := assignments.Find(ctx, "c1", "anon")
	require.NoError(t, err)
	assert.Nil(t, gone)

	exposed, err := events.ExposuresFor(ctx, "c1", "user")
	require.NoError(t, err)
	assert.Len(t, exposed, 2)
}

func TestSubjectRepository_Attributes(t *testing.T) {
	ctx := context.Background()
	repo := NewSubjectRepository(NewDB())

	attrs, err := repo.GetAttributes(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, attrs)

	require.NoError(t, repo.PutAttributes(ctx, "u1", map[string]any{"country": "ID"}))
	attrs, err = repo.GetAttributes(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ID", attrs["country"])
}

func TestCampaignCache_Expiry(t *testing.T) {
	ctx := context.Background()
	cache := NewCampaignCache()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "c", &domain.Campaign{Key: "c"}, 30*time.Second))

	got, ok, err := cache.Get(ctx, "c")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", got.Key)

	now = now.Add(30 * time.Second)
	_, ok, err = cache.Get(ctx, "c")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "c", &domain.Campaign{Key: "c"}, time.Minute))
	require.NoError(t, cache.Delete(ctx, "c"))
	_, ok, _ = cache.Get(ctx, "c")
	assert.False(t, ok)
}
