package flag_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"splitEngine/business/campaign"
	"splitEngine/business/flag"
	"splitEngine/business/targeting"
	"splitEngine/domain"
	"splitEngine/internal/repository/memory"
	"splitEngine/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo *memory.CampaignRepository
	svc  *flag.FlagService
}

func newFixture(t *testing.T, maxDepth int) *fixture {
	t.Helper()
	db := memory.NewDB()
	repo := memory.NewCampaignRepository(db)
	return &fixture{
		repo: repo,
		svc: flag.NewFlagService(
			campaign.NewCachedReader(repo, nil, 0),
			targeting.NewResolver(memory.NewSubjectRepository(db)),
			maxDepth,
		),
	}
}

func (f *fixture) flag(t *testing.T, key string, mutate ...func(c *domain.Campaign)) {
	t.Helper()
	c := &domain.Campaign{
		Key:            key,
		Kind:           domain.KindFlag,
		Status:         domain.StatusActive,
		Seed:           key + "-seed",
		RolloutPercent: 100,
		Variants:       []domain.Variant{{Key: "on", Weight: 1, Payload: "v1"}},
	}
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, f.repo.Create(context.Background(), c))
}

func (f *fixture) setRollout(t *testing.T, key string, pct float64) {
	t.Helper()
	c, err := f.repo.FindByKey(context.Background(), key)
	require.NoError(t, err)
	c.RolloutPercent = pct
	require.NoError(t, f.repo.Update(context.Background(), &c))
}

func TestEvaluate_Reasons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	f.flag(t, "enabled")
	f.flag(t, "paused", func(c *domain.Campaign) { c.Status = domain.StatusPaused })
	f.flag(t, "draft", func(c *domain.Campaign) { c.Status = domain.StatusDraft })
	f.flag(t, "scheduled", func(c *domain.Campaign) { c.EnableAt = &future })
	f.flag(t, "expired", func(c *domain.Campaign) { c.DisableAt = &past })
	f.flag(t, "in_window", func(c *domain.Campaign) { c.EnableAt = &past; c.DisableAt = &future })
	f.flag(t, "zero_rollout", func(c *domain.Campaign) { c.RolloutPercent = 0 })
	f.flag(t, "excluded", func(c *domain.Campaign) { c.Targeting.ExcludeIDs = []string{"u1"} })
	f.flag(t, "needs_enabled", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "enabled", RequiredState: domain.DependencyEnabled}}
	})
	f.flag(t, "needs_paused_on", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "paused", RequiredState: domain.DependencyEnabled}}
	})
	f.flag(t, "needs_paused_off", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "paused", RequiredState: domain.DependencyDisabled}}
	})
	f.flag(t, "needs_variant", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "enabled", RequiredState: "on"}}
	})
	f.flag(t, "needs_other_variant", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "enabled", RequiredState: "off"}}
	})
	f.flag(t, "needs_missing", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "ghost", RequiredState: domain.DependencyEnabled}}
	})
	require.NoError(t, f.repo.Create(ctx, &domain.Campaign{
		Key: "an_experiment", Kind: domain.KindExperiment, Status: domain.StatusActive, Seed: "x",
		Variants: []domain.Variant{{Key: "a", Weight: 1}},
	}))

	tests := []struct {
		flag    string
		enabled bool
		reason  domain.FlagReason
	}{
		{"enabled", true, domain.FlagReasonEnabled},
		{"paused", false, domain.FlagReasonDisabled},
		{"draft", false, domain.FlagReasonDisabled},
		{"scheduled", false, domain.FlagReasonNotYetActive},
		{"expired", false, domain.FlagReasonExpired},
		{"in_window", true, domain.FlagReasonEnabled},
		{"zero_rollout", false, domain.FlagReasonNotInRollout},
		{"excluded", false, domain.FlagReasonNotTargeted},
		{"needs_enabled", true, domain.FlagReasonEnabled},
		{"needs_paused_on", false, domain.FlagReasonDependencyNotMet},
		{"needs_paused_off", true, domain.FlagReasonEnabled},
		{"needs_variant", true, domain.FlagReasonEnabled},
		{"needs_other_variant", false, domain.FlagReasonDependencyNotMet},
		{"needs_missing", false, domain.FlagReasonDependencyNotMet},
		{"missing", false, domain.FlagReasonNotFound},
		{"an_experiment", false, domain.FlagReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			d := f.svc.Evaluate(ctx, tt.flag, "u1", nil)
			assert.Equal(t, tt.enabled, d.Enabled)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestEvaluate_CheckOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	past := time.Now().Add(-time.Hour)

	// disabled status wins over every later check
	f.flag(t, "all_bad", func(c *domain.Campaign) {
		c.Status = domain.StatusPaused
		c.DisableAt = &past
		c.RolloutPercent = 0
		c.Targeting.ExcludeIDs = []string{"u1"}
	})
	// schedule before targeting
	f.flag(t, "expired_excluded", func(c *domain.Campaign) {
		c.DisableAt = &past
		c.Targeting.ExcludeIDs = []string{"u1"}
	})
	// targeting before rollout
	f.flag(t, "excluded_no_rollout", func(c *domain.Campaign) {
		c.RolloutPercent = 0
		c.Targeting.ExcludeIDs = []string{"u1"}
	})

	assert.Equal(t, domain.FlagReasonDisabled, f.svc.Evaluate(ctx, "all_bad", "u1", nil).Reason)
	assert.Equal(t, domain.FlagReasonExpired, f.svc.Evaluate(ctx, "expired_excluded", "u1", nil).Reason)
	assert.Equal(t, domain.FlagReasonNotTargeted, f.svc.Evaluate(ctx, "excluded_no_rollout", "u1", nil).Reason)
}

func TestEvaluate_PayloadAndVariants(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)

	f.flag(t, "single")
	f.flag(t, "multi", func(c *domain.Campaign) {
		c.Variants = []domain.Variant{
			{Key: "small", Weight: 1, Payload: map[string]any{"size": 1}},
			{Key: "large", Weight: 1, Payload: map[string]any{"size": 2}},
		}
	})

	d := f.svc.Evaluate(ctx, "single", "u1", nil)
	assert.Equal(t, "on", d.Variant)
	assert.Equal(t, "v1", d.Payload)

	seen := map[string]int{}
	for i := 0; i < 500; i++ {
		d := f.svc.Evaluate(ctx, "multi", fmt.Sprintf("user-%d", i), nil)
		require.True(t, d.Enabled)
		seen[d.Variant]++
		require.NotNil(t, d.Payload)
	}
	assert.Len(t, seen, 2)
}

func TestEvaluate_TargetingContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.flag(t, "beta", func(c *domain.Campaign) {
		c.Targeting.Rules = []domain.Predicate{
			{Attribute: "appVersion", Operator: domain.OpGreaterThan, Value: 41},
			{Attribute: "platform", Operator: domain.OpIn, Value: []any{"ios", "android"}},
		}
	})

	assert.True(t, f.svc.Evaluate(ctx, "beta", "u1", map[string]any{"appVersion": 42, "platform": "ios"}).Enabled)
	assert.Equal(t, domain.FlagReasonNotTargeted,
		f.svc.Evaluate(ctx, "beta", "u1", map[string]any{"appVersion": 40, "platform": "ios"}).Reason)
	assert.Equal(t, domain.FlagReasonNotTargeted,
		f.svc.Evaluate(ctx, "beta", "u1", map[string]any{"platform": "ios"}).Reason)
}

func TestEvaluate_MonotonicRollout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.flag(t, "ramp", func(c *domain.Campaign) { c.RolloutPercent = 10 })

	const subjects = 5000
	enabledAt := func() map[string]bool {
		out := make(map[string]bool, subjects)
		for i := 0; i < subjects; i++ {
			s := fmt.Sprintf("subject-%d", i)
			out[s] = f.svc.Evaluate(ctx, "ramp", s, nil).Enabled
		}
		return out
	}

	previous := enabledAt()
	for _, pct := range []float64{25, 50, 75, 100} {
		f.setRollout(t, "ramp", pct)
		current := enabledAt()

		count := 0
		for s, on := range previous {
			if on {
				require.True(t, current[s], "subject %s dropped out when rollout rose to %v", s, pct)
			}
		}
		for _, on := range current {
			if on {
				count++
			}
		}
		assert.InDelta(t, pct/100, float64(count)/subjects, 0.03)
		previous = current
	}
}

func TestEvaluate_DependencyDepthBound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 2)

	f.flag(t, "base")
	f.flag(t, "level1", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "base", RequiredState: domain.DependencyEnabled}}
	})
	f.flag(t, "level2", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "level1", RequiredState: domain.DependencyEnabled}}
	})
	f.flag(t, "level3", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "level2", RequiredState: domain.DependencyEnabled}}
	})

	assert.True(t, f.svc.Evaluate(ctx, "level2", "u1", nil).Enabled)
	assert.Equal(t, domain.FlagReasonDependencyNotMet, f.svc.Evaluate(ctx, "level3", "u1", nil).Reason)
}

func TestEvaluate_CyclicStoredConfigTerminates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 4)

	// written directly to the store, bypassing write-time cycle detection
	f.flag(t, "ping", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "pong", RequiredState: domain.DependencyEnabled}}
	})
	f.flag(t, "pong", func(c *domain.Campaign) {
		c.Dependencies = []domain.Dependency{{FlagKey: "ping", RequiredState: domain.DependencyEnabled}}
	})

	d := f.svc.Evaluate(ctx, "ping", "u1", nil)
	assert.False(t, d.Enabled)
	assert.Equal(t, domain.FlagReasonDependencyNotMet, d.Reason)
}

type brokenReader struct{}

func (brokenReader) GetCampaign(context.Context, string) (*domain.Campaign, error) {
	return nil, errors.New("store unavailable")
}

func TestEvaluate_FailsOpen(t *testing.T) {
	svc := flag.NewFlagService(brokenReader{}, targeting.NewResolver(nil), 0)
	d := svc.Evaluate(context.Background(), "anything", "u1", nil)
	assert.False(t, d.Enabled)
	assert.Equal(t, domain.FlagReasonError, d.Reason)
}

func TestEvaluateAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.flag(t, "a")
	f.flag(t, "b", func(c *domain.Campaign) { c.Status = domain.StatusPaused })

	got := f.svc.EvaluateAll(ctx, []string{"a", "b", "c"}, "u1", nil)
	require.Len(t, got, 3)
	assert.True(t, got["a"].Enabled)
	assert.Equal(t, domain.FlagReasonDisabled, got["b"].Reason)
	assert.Equal(t, domain.FlagReasonNotFound, got["c"].Reason)
}

func TestEvaluate_UnknownFlagSharesOneSeries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.flag(t, "known")

	unknown := metrics.FlagEvaluations.WithLabelValues(metrics.UnknownKey, string(domain.FlagReasonNotFound))
	known := metrics.FlagEvaluations.WithLabelValues("known", string(domain.FlagReasonEnabled))
	before, knownBefore := testutil.ToFloat64(unknown), testutil.ToFloat64(known)

	f.svc.Evaluate(ctx, "ghost-1", "u1", nil)
	f.svc.EvaluateAll(ctx, []string{"ghost-2", "known"}, "u1", nil)

	assert.Equal(t, before+2, testutil.ToFloat64(unknown))
	assert.Equal(t, float64(0), testutil.ToFloat64(
		metrics.FlagEvaluations.WithLabelValues("ghost-1", string(domain.FlagReasonNotFound))))
	assert.Equal(t, knownBefore+1, testutil.ToFloat64(known))
}
