package models

import "time"

// JobScheduleSync is the lock name of the reconciler.
const JobScheduleSync = "schedule_sync"

// JobLock is one run of a batch job for a period. Rows are never deleted.
type JobLock struct {
	ID         string     `db:"id" json:"id"`
	JobName    string     `db:"job_name" json:"job_name"`
	Period     string     `db:"period" json:"period"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Running reports whether the lock row is still open.
func (l JobLock) Running() bool {
	return l.FinishedAt == nil
}
