package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionReportCreate     = "REPORT_CREATE"
	AuditActionReportTransition = "REPORT_TRANSITION"
	AuditActionReportExport     = "REPORT_EXPORT"
	AuditActionActionCreate     = "ACTION_CREATE"
	AuditActionActionTransition = "ACTION_TRANSITION"
	AuditActionRiskReset        = "RISK_RESET"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"userId,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resourceId,omitempty"`
	NewValues  []byte    `db:"new_values" json:"newValues,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ipAddress"`
	UserAgent  string    `db:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
