package campaign_test

import (
	"context"
	"testing"
	"time"

	"splitEngine/business/campaign"
	"splitEngine/domain"
	"splitEngine/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type spyInvalidator struct {
	keys []string
}

func (s *spyInvalidator) Invalidate(_ context.Context, key string) {
	s.keys = append(s.keys, key)
}

func experiment(key string) *domain.Campaign {
	return &domain.Campaign{
		Key:  key,
		Kind: domain.KindExperiment,
		Variants: []domain.Variant{
			{Key: "control", Weight: 50},
			{Key: "treatment", Weight: 50},
		},
	}
}

func flagWithDeps(key string, deps ...string) *domain.Campaign {
	c := &domain.Campaign{Key: key, Kind: domain.KindFlag, RolloutPercent: 100}
	for _, d := range deps {
		c.Dependencies = append(c.Dependencies, domain.Dependency{FlagKey: d, RequiredState: domain.DependencyEnabled})
	}
	return c
}

func TestCreateCampaign(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	svc := campaign.NewCampaignService(repo, nil)

	t.Run("draft with generated seed", func(t *testing.T) {
		c, err := svc.CreateCampaign(ctx, experiment("ab_checkout"))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDraft, c.Status)
		assert.NotEmpty(t, c.Seed)

		stored, err := repo.FindByKey(ctx, "ab_checkout")
		require.NoError(t, err)
		assert.Equal(t, c.Seed, stored.Seed)
	})

	t.Run("seeds are unique", func(t *testing.T) {
		a, err := svc.CreateCampaign(ctx, experiment("seed_a"))
		require.NoError(t, err)
		b, err := svc.CreateCampaign(ctx, experiment("seed_b"))
		require.NoError(t, err)
		assert.NotEqual(t, a.Seed, b.Seed)
	})

	t.Run("caller supplied seed and status are ignored", func(t *testing.T) {
		in := experiment("pinned")
		in.Seed = "chosen"
		in.Status = domain.StatusActive
		c, err := svc.CreateCampaign(ctx, in)
		require.NoError(t, err)
		assert.NotEqual(t, "chosen", c.Seed)
		assert.Equal(t, domain.StatusDraft, c.Status)
	})

	t.Run("flag gets a default on variant", func(t *testing.T) {
		c, err := svc.CreateCampaign(ctx, flagWithDeps("new_nav"))
		require.NoError(t, err)
		require.Len(t, c.Variants, 1)
		assert.Equal(t, "on", c.Variants[0].Key)
	})

	t.Run("duplicate key", func(t *testing.T) {
		_, err := svc.CreateCampaign(ctx, experiment("ab_checkout"))
		assert.ErrorIs(t, err, domain.ErrCampaignExists)
	})

	t.Run("non-positive weight sum", func(t *testing.T) {
		in := experiment("zero")
		in.Variants = []domain.Variant{{Key: "a", Weight: 0}, {Key: "b", Weight: 0}}
		_, err := svc.CreateCampaign(ctx, in)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

		_, err = repo.FindByKey(ctx, "zero")
		assert.ErrorIs(t, err, domain.ErrCampaignNotFound)
	})
}

func TestValidate(t *testing.T) {
	pct := func(v float64) *float64 { return &v }
	now := time.Now()
	later := now.Add(time.Hour)

	tests := []struct {
		name    string
		mutate  func(c *domain.Campaign)
		wantErr bool
	}{
		{"valid", func(c *domain.Campaign) {}, false},
		{"bad key", func(c *domain.Campaign) { c.Key = "has space" }, true},
		{"unknown kind", func(c *domain.Campaign) { c.Kind = "survey" }, true},
		{"no variants", func(c *domain.Campaign) { c.Variants = nil }, true},
		{"negative weight", func(c *domain.Campaign) { c.Variants[0].Weight = -1 }, true},
		{"duplicate variant", func(c *domain.Campaign) { c.Variants[1].Key = "control" }, true},
		{"empty variant key", func(c *domain.Campaign) { c.Variants[0].Key = "" }, true},
		{"percentage over 100", func(c *domain.Campaign) { c.Targeting.Percentage = pct(101) }, true},
		{"bad operator", func(c *domain.Campaign) {
			c.Targeting.Rules = []domain.Predicate{{Attribute: "country", Operator: "like", Value: "ID"}}
		}, true},
		{"window inverted", func(c *domain.Campaign) { c.EnableAt = &later; c.DisableAt = &now }, true},
		{"window ok", func(c *domain.Campaign) { c.EnableAt = &now; c.DisableAt = &later }, false},
		{"negative min sample", func(c *domain.Campaign) { c.MinSamplePerVariant = -1 }, true},
		{"experiment with dependency", func(c *domain.Campaign) {
			c.Dependencies = []domain.Dependency{{FlagKey: "f", RequiredState: "enabled"}}
		}, true},
		{"flag rollout out of range", func(c *domain.Campaign) { c.Kind = domain.KindFlag; c.RolloutPercent = 120 }, true},
		{"flag dependency without state", func(c *domain.Campaign) {
			c.Kind = domain.KindFlag
			c.Dependencies = []domain.Dependency{{FlagKey: "f"}}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := experiment("valid_key")
			tt.mutate(c)
			err := campaign.Validate(c)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDependencyCycleRejected(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	svc := campaign.NewCampaignService(repo, nil)

	_, err := svc.CreateCampaign(ctx, flagWithDeps("a"))
	require.NoError(t, err)
	_, err = svc.CreateCampaign(ctx, flagWithDeps("b", "a"))
	require.NoError(t, err)
	_, err = svc.CreateCampaign(ctx, flagWithDeps("c", "b"))
	require.NoError(t, err)

	t.Run("missing dependency", func(t *testing.T) {
		_, err := svc.CreateCampaign(ctx, flagWithDeps("d", "ghost"))
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		assert.NotErrorIs(t, err, domain.ErrDependencyCycle)
	})

	t.Run("self dependency", func(t *testing.T) {
		_, err := svc.CreateCampaign(ctx, flagWithDeps("self", "self"))
		assert.ErrorIs(t, err, domain.ErrDependencyCycle)
	})

	t.Run("update closing a cycle", func(t *testing.T) {
		in := flagWithDeps("a", "c")
		in.Variants = []domain.Variant{{Key: "on", Weight: 1}}
		_, err := svc.UpdateCampaign(ctx, "a", in)
		assert.ErrorIs(t, err, domain.ErrDependencyCycle)
		assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
		assert.Contains(t, err.Error(), "a -> c -> b -> a")

		stored, err := repo.FindByKey(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, stored.Dependencies)
	})
}

func TestFindCycle(t *testing.T) {
	assert.Nil(t, campaign.FindCycle(map[string][]string{"a": {"b"}, "b": {"c"}, "c": nil}, "a"))
	assert.Nil(t, campaign.FindCycle(map[string][]string{"a": {"b", "c"}, "b": {"d"}, "c": {"d"}, "d": nil}, "a"))
	assert.Equal(t, []string{"b", "c", "b"},
		campaign.FindCycle(map[string][]string{"a": {"b"}, "b": {"c"}, "c": {"b"}}, "a"))
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	spy := &spyInvalidator{}
	svc := campaign.NewCampaignService(repo, spy)

	_, err := svc.CreateCampaign(ctx, experiment("life"))
	require.NoError(t, err)

	_, err = svc.StopCampaign(ctx, "life")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	c, err := svc.StartCampaign(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, c.Status)

	c, err = svc.StopCampaign(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, c.Status)

	c, err = svc.StartCampaign(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, c.Status)

	c, err = svc.CompleteCampaign(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, c.Status)

	_, err = svc.StartCampaign(ctx, "life")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.UpdateCampaign(ctx, "life", experiment("life"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.ReseedCampaign(ctx, "life")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	c, err = svc.ArchiveCampaign(ctx, "life")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, c.Status)

	_, err = svc.ArchiveCampaign(ctx, "life")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = svc.StartCampaign(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	assert.Equal(t, []string{"life", "life", "life", "life", "life"}, spy.keys)
}

func TestUpdateCampaign_KeepsIdentity(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	spy := &spyInvalidator{}
	svc := campaign.NewCampaignService(repo, spy)

	created, err := svc.CreateCampaign(ctx, experiment("upd"))
	require.NoError(t, err)

	in := experiment("ignored")
	in.Seed = "new-seed"
	in.Variants[1].Weight = 80
	updated, err := svc.UpdateCampaign(ctx, "upd", in)
	require.NoError(t, err)
	assert.Equal(t, "upd", updated.Key)
	assert.Equal(t, created.Seed, updated.Seed)
	assert.Equal(t, 80.0, updated.Variants[1].Weight)
	assert.Equal(t, []string{"upd"}, spy.keys)
}

func TestReseedCampaign(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	svc := campaign.NewCampaignService(repo, nil)

	created, err := svc.CreateCampaign(ctx, experiment("reseed"))
	require.NoError(t, err)
	seed := created.Seed

	c, err := svc.ReseedCampaign(ctx, "reseed")
	require.NoError(t, err)
	assert.NotEqual(t, seed, c.Seed)

	stored, err := repo.FindByKey(ctx, "reseed")
	require.NoError(t, err)
	assert.Equal(t, c.Seed, stored.Seed)
}

func TestListCampaigns(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewCampaignRepository(memory.NewDB())
	svc := campaign.NewCampaignService(repo, nil)

	_, err := svc.CreateCampaign(ctx, experiment("e1"))
	require.NoError(t, err)
	_, err = svc.CreateCampaign(ctx, flagWithDeps("f1"))
	require.NoError(t, err)

	flags, err := svc.ListCampaigns(ctx, domain.KindFlag)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "f1", flags[0].Key)

	_, err = svc.ListCampaigns(ctx, "bogus")
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestDependencyRequiredState(t *testing.T) {
	ctx := context.Background()
	svc := campaign.NewCampaignService(memory.NewCampaignRepository(memory.NewDB()), nil)

	base := flagWithDeps("theme")
	base.Variants = []domain.Variant{{Key: "dark", Weight: 1}, {Key: "light", Weight: 1}}
	_, err := svc.CreateCampaign(ctx, base)
	require.NoError(t, err)

	tests := []struct {
		state   string
		wantErr bool
	}{
		{domain.DependencyEnabled, false},
		{domain.DependencyDisabled, false},
		{"dark", false},
		{"sepia", true},
		{"Enabled", true},
	}
	for i, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			c := &domain.Campaign{
				Key:            "dependent_" + string(rune('a'+i)),
				Kind:           domain.KindFlag,
				RolloutPercent: 100,
				Dependencies:   []domain.Dependency{{FlagKey: "theme", RequiredState: tt.state}},
			}
			_, err := svc.CreateCampaign(ctx, c)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
				assert.Contains(t, err.Error(), tt.state)
				return
			}
			assert.NoError(t, err)
		})
	}
}
