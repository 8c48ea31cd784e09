package domain

type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan, OpIn, OpNotIn:
		return true
	}
	return false
}

// Predicate is a leaf rule evaluated against one context attribute.
type Predicate struct {
	Attribute string   `json:"attribute"`
	Operator  Operator `json:"operator"`
	Value     any      `json:"value"`
}

// Targeting is an audience rule set. ExcludeIDs are checked first, then IncludeIDs,
// then all Rules (implicit AND), then Percentage sampling.
type Targeting struct {
	IncludeIDs []string    `json:"includeIds,omitempty"`
	ExcludeIDs []string    `json:"excludeIds,omitempty"`
	Rules      []Predicate `json:"rules,omitempty"`

	// nil means the whole matching audience (100)
	Percentage *float64 `json:"percentage,omitempty"`
}

func (t Targeting) Clone() Targeting {
	out := Targeting{
		IncludeIDs: append([]string(nil), t.IncludeIDs...),
		ExcludeIDs: append([]string(nil), t.ExcludeIDs...),
		Rules:      append([]Predicate(nil), t.Rules...),
	}
	if t.Percentage != nil {
		p := *t.Percentage
		out.Percentage = &p
	}
	return out
}
