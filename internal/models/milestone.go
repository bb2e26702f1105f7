package models

// Milestone states
const (
	MilestoneStatePending      = "pending"
	MilestoneStateVotingActive = "voting_active"
	MilestoneStateApproved     = "approved"
	MilestoneStateCompleted    = "completed"
	MilestoneStateRejected     = "rejected"
)

var ValidMilestoneTransitions = map[string][]string{
	MilestoneStatePending:      {MilestoneStateVotingActive},
	MilestoneStateVotingActive: {MilestoneStateApproved, MilestoneStateRejected},
	MilestoneStateApproved:     {MilestoneStateCompleted},
	MilestoneStateCompleted:    {},
	MilestoneStateRejected:     {},
}

func IsValidMilestoneTransition(from, to string) bool {
	return allows(ValidMilestoneTransitions, from, to)
}
