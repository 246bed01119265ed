package dto

import "github.com/noah-isme/tutor-schedule-api/internal/models"

// Reconcile modes.
const (
	ReconcileModeFutureOnly  = "future-only"
	ReconcileModeIncludeHeld = "include-held"
)

// ReasonTeacherConflict is reported when a teacher is already booked for an overlapping slot.
const ReasonTeacherConflict = "Teacher time conflict"

// Review reasons.
const (
	ReasonHeldWithoutSlot     = "Held session no longer matches a template slot"
	ReasonChangedConcurrently = "Session changed concurrently, expected change not applied"
)

// ScheduleSyncRequest triggers a reconciliation run.
type ScheduleSyncRequest struct {
	Month   string `json:"month" form:"month" validate:"omitempty,datetime=2006-01"`
	Mode    string `json:"mode" form:"mode" validate:"omitempty,oneof=future-only include-held"`
	ClassID string `json:"classId" form:"classId" validate:"omitempty,max=64"`
	// Trigger records who asked for the run ("admin", "cron").
	Trigger string `json:"-"`
	ActorID string `json:"-"`
}

// SessionChangeList carries a count plus the affected rows.
type SessionChangeList struct {
	Count int              `json:"count"`
	Items []models.Session `json:"items"`
}

// FieldChange is one column rewritten by the reconciler.
type FieldChange struct {
	Field string `json:"field"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// SessionUpdate documents an in-place change applied by the reconciler.
type SessionUpdate struct {
	Session models.Session `json:"session"`
	Changes []FieldChange  `json:"changes"`
}

// SessionUpdateList carries a count plus the applied updates.
type SessionUpdateList struct {
	Count int             `json:"count"`
	Items []SessionUpdate `json:"items"`
}

// SkippedConflict is an expected session that was not created because the teacher is busy.
type SkippedConflict struct {
	Class     string `json:"class"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	TeacherID string `json:"teacherId"`
	Reason    string `json:"reason"`
}

// ReviewItem is a session the run could not settle on its own. Time is the
// slot the template expects.
type ReviewItem struct {
	SessionID string `json:"sessionId"`
	Class     string `json:"class"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Reason    string `json:"reason"`
}

// Attention lists items an administrator has to resolve by hand.
type Attention struct {
	NoTeacherExpected []models.ExpectedSession `json:"noTeacherExpected"`
	NoTeacherExisting []models.Session         `json:"noTeacherExisting"`
	InvalidTemplates  []models.TemplateIssue   `json:"invalidTemplates,omitempty"`
	HeldNeedsReview   []ReviewItem             `json:"heldNeedsReview,omitempty"`
	NotApplied        []ReviewItem             `json:"notApplied,omitempty"`
}

// ScheduleSyncResult is the body returned by a completed run.
type ScheduleSyncResult struct {
	Success          bool                   `json:"success"`
	Month            string                 `json:"month"`
	Mode             string                 `json:"mode"`
	ClassID          string                 `json:"classId,omitempty"`
	Normalized       int                    `json:"normalized"`
	NormalizedIDs    []string               `json:"normalizedIds"`
	Created          SessionChangeList      `json:"created"`
	Updated          SessionUpdateList      `json:"updated"`
	Removed          SessionChangeList      `json:"removed"`
	SkippedConflicts []SkippedConflict      `json:"skippedConflicts"`
	Attention        Attention              `json:"attention"`
	PerTeacher       []models.TeacherReport `json:"perTeacher"`
}

// ScheduleSyncFailure is the body returned for contention or failure.
type ScheduleSyncFailure struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WorkloadQuery selects persisted sessions for a workload summary.
type WorkloadQuery struct {
	Month   string `form:"month" validate:"omitempty,datetime=2006-01"`
	ClassID string `form:"classId" validate:"omitempty,max=64"`
	Format  string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// WorkloadResponse wraps the per-teacher report for a month.
type WorkloadResponse struct {
	Month      string                 `json:"month"`
	ClassID    string                 `json:"classId,omitempty"`
	PerTeacher []models.TeacherReport `json:"perTeacher"`
}

// JobLockQuery filters lock history.
type JobLockQuery struct {
	Job   string `form:"job" validate:"omitempty,max=64"`
	Limit int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

// JobLockView adds derived fields to a lock row.
type JobLockView struct {
	models.JobLock
	Running         bool    `json:"running"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RecalculationPayload is sent to payroll and tuition collaborators.
type RecalculationPayload struct {
	Month   string `json:"month"`
	ClassID string `json:"classId,omitempty"`
	RunID   string `json:"runId"`
}
