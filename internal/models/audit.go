package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionScheduleSyncRun       = "SCHEDULE_SYNC_RUN"
	AuditActionScheduleSyncRequested = "SCHEDULE_SYNC_REQUESTED"
	AuditActionSessionTimeCorrected  = "SESSION_TIME_CORRECTED"
	AuditActionSessionStateRepaired  = "SESSION_STATE_REPAIRED"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	UserID     *string        `db:"user_id" json:"user_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  types.JSONText `db:"old_values" json:"old_values,omitempty"`
	NewValues  types.JSONText `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// SessionTimeCorrection documents a held session whose times were realigned with its template.
type SessionTimeCorrection struct {
	ID           string    `db:"id" json:"id"`
	SessionID    string    `db:"session_id" json:"session_id"`
	ClassID      string    `db:"class_id" json:"class_id"`
	Date         string    `db:"session_date" json:"date"`
	OldStartTime string    `db:"old_start_time" json:"old_start_time"`
	OldEndTime   string    `db:"old_end_time" json:"old_end_time"`
	NewStartTime string    `db:"new_start_time" json:"new_start_time"`
	NewEndTime   string    `db:"new_end_time" json:"new_end_time"`
	Reason       string    `db:"reason" json:"reason"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
