package models

import "time"

// ActionStatus enumerates suggested action lifecycle states.
type ActionStatus string

const (
	ActionStatusPending    ActionStatus = "pending"
	ActionStatusInProgress ActionStatus = "in-progress"
	ActionStatusCompleted  ActionStatus = "completed"
)

var actionTransitions = map[ActionStatus]ActionStatus{
	ActionStatusPending:    ActionStatusInProgress,
	ActionStatusInProgress: ActionStatusCompleted,
}

// Valid reports whether s is a known action status.
func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusPending, ActionStatusInProgress, ActionStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is the single permitted successor of s.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	allowed, ok := actionTransitions[s]
	return ok && allowed == next
}

// ActionPriority ranks suggested actions.
type ActionPriority string

const (
	ActionPriorityLow    ActionPriority = "low"
	ActionPriorityMedium ActionPriority = "medium"
	ActionPriorityHigh   ActionPriority = "high"
)

// PriorityForRisk maps a risk score to an action priority.
func PriorityForRisk(score float64) ActionPriority {
	switch {
	case score >= 0.8:
		return ActionPriorityHigh
	case score >= 0.5:
		return ActionPriorityMedium
	default:
		return ActionPriorityLow
	}
}

// ActionSource records how an action was created.
type ActionSource string

const (
	ActionSourceManual  ActionSource = "manual"
	ActionSourceHotspot ActionSource = "hotspot"
)

// SuggestedAction is an administrator-facing remediation task.
type SuggestedAction struct {
	ID          string         `db:"id" json:"id"`
	Description string         `db:"description" json:"description"`
	LocationID  *string        `db:"location_id" json:"location,omitempty"`
	Priority    ActionPriority `db:"priority" json:"priority"`
	Source      ActionSource   `db:"source" json:"source"`
	Status      ActionStatus   `db:"status" json:"status"`
	CreatedBy   string         `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
	SnapshotID  *string        `db:"snapshot_id" json:"snapshotId,omitempty"`
	RiskScore   *float64       `db:"risk_score" json:"riskScore,omitempty"`
	HotspotRank *int           `db:"hotspot_rank" json:"hotspotRank,omitempty"`
}

// ActionFilter narrows action listings.
type ActionFilter struct {
	Status *ActionStatus
	Limit  int
}
