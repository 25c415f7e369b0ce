package models

import (
	"time"

	"github.com/lib/pq"
)

// MaxNoteLength bounds the free-text note attached to a report.
const MaxNoteLength = 1000

// ReportStatus enumerates the lifecycle states of a health report.
type ReportStatus string

const (
	ReportStatusPending       ReportStatus = "pending"
	ReportStatusInvestigating ReportStatus = "investigating"
	ReportStatusReviewed      ReportStatus = "reviewed"
	ReportStatusResolved      ReportStatus = "resolved"
)

// ReportStatuses lists every status in lifecycle order.
var ReportStatuses = []ReportStatus{
	ReportStatusPending,
	ReportStatusInvestigating,
	ReportStatusReviewed,
	ReportStatusResolved,
}

var reportTransitions = map[ReportStatus][]ReportStatus{
	ReportStatusPending:       {ReportStatusInvestigating, ReportStatusResolved},
	ReportStatusInvestigating: {ReportStatusReviewed},
	ReportStatusReviewed:      {ReportStatusResolved},
}

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	for _, st := range ReportStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusResolved
}

// CanTransitionTo reports whether next is a permitted edge from s.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	for _, allowed := range reportTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// HealthReport is a student's symptom report with its status history.
type HealthReport struct {
	ID            string               `db:"id" json:"id"`
	ReporterID    string               `db:"reporter_id" json:"reporterId"`
	Symptoms      pq.StringArray       `db:"symptoms" json:"symptoms"`
	LocationID    string               `db:"location_id" json:"location"`
	Note          *string              `db:"note" json:"note,omitempty"`
	Status        ReportStatus         `db:"status" json:"status"`
	CreatedAt     time.Time            `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time            `db:"updated_at" json:"updatedAt"`
	StatusHistory []StatusHistoryEntry `db:"-" json:"statusHistory"`
}

// StatusHistoryEntry records one status change.
type StatusHistoryEntry struct {
	ID        int64        `db:"id" json:"-"`
	ReportID  string       `db:"report_id" json:"-"`
	Status    ReportStatus `db:"status" json:"status"`
	ActorID   string       `db:"actor_id" json:"actorId"`
	ActorRole Role         `db:"actor_role" json:"actorRole"`
	ChangedAt time.Time    `db:"changed_at" json:"timestamp"`
}

// ReportFilter narrows administrative report listings.
type ReportFilter struct {
	Status     *ReportStatus
	LocationID string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
