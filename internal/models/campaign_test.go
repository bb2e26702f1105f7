package models

import (
	"testing"
	"time"
)

func TestIsValidCampaignTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{CampaignStateActive, CampaignStateSuccessful, true},
		{CampaignStateActive, CampaignStateFailed, true},

		// States are never revisited
		{CampaignStateSuccessful, CampaignStateActive, false},
		{CampaignStateFailed, CampaignStateActive, false},
		{CampaignStateSuccessful, CampaignStateFailed, false},
		{CampaignStateFailed, CampaignStateSuccessful, false},
		{CampaignStateActive, CampaignStateActive, false},
		{"nonexistent", CampaignStateFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidCampaignTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidCampaignTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestIsValidMilestoneTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		{MilestoneStatePending, MilestoneStateVotingActive, true},
		{MilestoneStateVotingActive, MilestoneStateApproved, true},
		{MilestoneStateVotingActive, MilestoneStateRejected, true},
		{MilestoneStateApproved, MilestoneStateCompleted, true},

		{MilestoneStatePending, MilestoneStateApproved, false},
		{MilestoneStatePending, MilestoneStateCompleted, false},
		{MilestoneStateVotingActive, MilestoneStateCompleted, false},
		{MilestoneStateApproved, MilestoneStateRejected, false},
		{MilestoneStateRejected, MilestoneStateVotingActive, false},
		{MilestoneStateCompleted, MilestoneStatePending, false},
		{MilestoneStatePending, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidMilestoneTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidMilestoneTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	for _, s := range []string{CampaignStateSuccessful, CampaignStateFailed} {
		if n := len(ValidCampaignTransitions[s]); n != 0 {
			t.Errorf("terminal campaign state %q should have no transitions, got %d", s, n)
		}
	}
	for _, s := range []string{MilestoneStateCompleted, MilestoneStateRejected} {
		if n := len(ValidMilestoneTransitions[s]); n != 0 {
			t.Errorf("terminal milestone state %q should have no transitions, got %d", s, n)
		}
	}
}

func TestEffectiveState(t *testing.T) {
	deadline := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		c        Campaign
		now      time.Time
		expected string
	}{
		{"before deadline", Campaign{State: CampaignStateActive, Goal: 100, Deadline: deadline}, deadline.Add(-time.Hour), CampaignStateActive},
		{"at deadline", Campaign{State: CampaignStateActive, Goal: 100, Deadline: deadline}, deadline, CampaignStateActive},
		{"after deadline short", Campaign{State: CampaignStateActive, Goal: 100, TotalContributed: 99, Deadline: deadline}, deadline.Add(time.Second), CampaignStateFailed},
		{"already successful", Campaign{State: CampaignStateSuccessful, Goal: 100, TotalContributed: 100, Deadline: deadline}, deadline.Add(time.Hour), CampaignStateSuccessful},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.EffectiveState(tt.now); got != tt.expected {
				t.Errorf("EffectiveState() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsValidMilestonePhase(t *testing.T) {
	for _, p := range []string{MilestonePhaseAny, MilestonePhaseActive, MilestonePhaseSuccessful} {
		if !IsValidMilestonePhase(p) {
			t.Errorf("phase %q should be valid", p)
		}
	}
	if IsValidMilestonePhase("failed") {
		t.Error("phase \"failed\" should be invalid")
	}
}
