package domain

import "errors"

var (
	ErrCampaignNotFound     = errors.New("campaign not found")
	ErrCampaignExists       = errors.New("campaign already exists")
	ErrCampaignInactive     = errors.New("campaign is not active")
	ErrInvalidConfiguration = errors.New("invalid campaign configuration")
	ErrDependencyCycle      = errors.New("flag dependency cycle")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrVariantNotFound      = errors.New("variant not found")
	ErrNotAssigned          = errors.New("subject is not assigned")
	ErrConflictingOverride  = errors.New("conflicting override")
	ErrInvalidSubject       = errors.New("invalid subject id")
)
