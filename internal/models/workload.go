package models

// UnassignedTeacher is the report bucket for sessions without a teacher.
const UnassignedTeacher = "Unassigned"

// TeacherReport aggregates a teacher's sessions for a period.
type TeacherReport struct {
	TeacherID        string            `json:"teacher_id"`
	ScheduledMinutes int               `json:"scheduled_minutes"`
	HeldMinutes      int               `json:"held_minutes"`
	SessionCount     int               `json:"session_count"`
	Sessions         []WorkloadSession `json:"sessions"`
}

// WorkloadSession is the slim session view carried inside a report.
type WorkloadSession struct {
	ID        string        `json:"id"`
	ClassID   string        `json:"class_id"`
	Date      string        `json:"date"`
	StartTime string        `json:"start_time"`
	EndTime   string        `json:"end_time"`
	Status    SessionStatus `json:"status"`
	Minutes   int           `json:"minutes"`
}
