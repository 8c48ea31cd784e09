package campaign

import (
	"errors"
	"fmt"
	"regexp"

	"splitEngine/business/bucketing"
	"splitEngine/business/targeting"
	"splitEngine/domain"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]{0,127}$`)

// Validate checks a campaign config before it is persisted.
func Validate(c *domain.Campaign) error {
	if !keyPattern.MatchString(c.Key) {
		return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("invalid key %q", c.Key))
	}

	if c.Kind != domain.KindExperiment && c.Kind != domain.KindFlag {
		return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("unknown kind %q", c.Kind))
	}

	if _, err := bucketing.TotalWeight(c.Variants); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(c.Variants))
	for _, v := range c.Variants {
		if v.Key == "" {
			return errors.Join(domain.ErrInvalidConfiguration, errors.New("variant key is required"))
		}
		if _, dup := seen[v.Key]; dup {
			return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("duplicate variant key %q", v.Key))
		}
		seen[v.Key] = struct{}{}
	}

	if err := targeting.Validate(c.Targeting); err != nil {
		return err
	}

	if c.EnableAt != nil && c.DisableAt != nil && !c.DisableAt.After(*c.EnableAt) {
		return errors.Join(domain.ErrInvalidConfiguration, errors.New("disableAt must be after enableAt"))
	}

	if c.MinSamplePerVariant < 0 {
		return errors.Join(domain.ErrInvalidConfiguration, errors.New("minSamplePerVariant must not be negative"))
	}

	switch c.Kind {
	case domain.KindFlag:
		if c.RolloutPercent < 0 || c.RolloutPercent > 100 {
			return errors.Join(domain.ErrInvalidConfiguration, errors.New("rolloutPercent must be between 0 and 100"))
		}
		for _, d := range c.Dependencies {
			if d.FlagKey == "" {
				return errors.Join(domain.ErrInvalidConfiguration, errors.New("dependency flagKey is required"))
			}
			if d.RequiredState == "" {
				return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("dependency on %q needs a requiredState", d.FlagKey))
			}
		}
	case domain.KindExperiment:
		if len(c.Dependencies) > 0 {
			return errors.Join(domain.ErrInvalidConfiguration, errors.New("dependencies are only supported on flags"))
		}
	}

	return nil
}

// FindCycle returns the first dependency cycle reachable from start, as a path
// ending where it began, or nil.
func FindCycle(graph map[string][]string, start string) []string {
	const (
		unvisited = iota
		inStack
		done
	)
	state := make(map[string]int, len(graph))
	var stack []string

	var visit func(node string) []string
	visit = func(node string) []string {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range graph[node] {
			switch state[next] {
			case inStack:
				for i, n := range stack {
					if n == next {
						return append(append([]string(nil), stack[i:]...), next)
					}
				}
			case unvisited:
				if path := visit(next); path != nil {
					return path
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
		return nil
	}

	return visit(start)
}
