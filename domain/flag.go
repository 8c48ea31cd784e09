package domain

type FlagReason string

const (
	FlagReasonDisabled         FlagReason = "disabled"
	FlagReasonNotYetActive     FlagReason = "not_yet_active"
	FlagReasonExpired          FlagReason = "expired"
	FlagReasonDependencyNotMet FlagReason = "dependency_not_met"
	FlagReasonNotTargeted      FlagReason = "not_targeted"
	FlagReasonNotInRollout     FlagReason = "not_in_rollout"
	FlagReasonEnabled          FlagReason = "enabled"
	FlagReasonNotFound         FlagReason = "flag_not_found"
	FlagReasonError            FlagReason = "error"
)

type FlagDecision struct {
	Enabled bool       `json:"enabled"`
	Variant string     `json:"variant,omitempty"`
	Payload any        `json:"payload,omitempty"`
	Reason  FlagReason `json:"reason"`
}
