package memory

import (
	"splitEngine/business/assignment"
	"splitEngine/business/bandit"
	"splitEngine/business/campaign"
	"splitEngine/business/identity"
	"splitEngine/business/recorder"
	"splitEngine/business/targeting"
)

var (
	_ campaign.CampaignRepository     = (*CampaignRepository)(nil)
	_ campaign.Finder                 = (*CampaignRepository)(nil)
	_ campaign.Cache                  = (*CampaignCache)(nil)
	_ bandit.CampaignRepository       = (*CampaignRepository)(nil)
	_ bandit.AllocationRepository     = (*AllocationRepository)(nil)
	_ assignment.AssignmentRepository = (*AssignmentRepository)(nil)
	_ recorder.AssignmentFinder       = (*AssignmentRepository)(nil)
	_ recorder.EventRepository        = (*EventRepository)(nil)
	_ targeting.SubjectRepository     = (*SubjectRepository)(nil)
	_ identity.MergeRepository        = (*SubjectRepository)(nil)
)
