package models

import "time"

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionStatusScheduled SessionStatus = "Scheduled"
	SessionStatusHeld      SessionStatus = "Held"
	SessionStatusCanceled  SessionStatus = "Canceled"
)

// Session is a persisted, dated occurrence of a class.
type Session struct {
	ID        string        `db:"id" json:"id"`
	ClassID   string        `db:"class_id" json:"class_id"`
	Date      string        `db:"session_date" json:"date"`
	StartTime string        `db:"start_time" json:"start_time"`
	EndTime   string        `db:"end_time" json:"end_time"`
	TeacherID *string       `db:"teacher_id" json:"teacher_id"`
	Status    SessionStatus `db:"status" json:"status"`
	IsManual  bool          `db:"is_manual" json:"is_manual"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// Key returns the reconciliation identity of the session.
func (s Session) Key() SessionKey {
	return SessionKey{ClassID: s.ClassID, Date: s.Date, StartTime: s.StartTime}
}

// Teacher returns the assigned teacher id or "".
func (s Session) Teacher() string {
	if s.TeacherID == nil {
		return ""
	}
	return *s.TeacherID
}

// SessionKey identifies a logical slot independent of the row id.
type SessionKey struct {
	ClassID   string
	Date      string
	StartTime string
}

// String renders class/date/start for logs and map keys in JSON.
func (k SessionKey) String() string {
	return k.ClassID + "|" + k.Date + "|" + k.StartTime
}

// ExpectedSession is a session the weekly template says should exist.
type ExpectedSession struct {
	ClassID   string  `json:"class_id"`
	ClassName string  `json:"class_name,omitempty"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	TeacherID *string `json:"teacher_id"`
}

// Key returns the reconciliation identity of the expected session.
func (e ExpectedSession) Key() SessionKey {
	return SessionKey{ClassID: e.ClassID, Date: e.Date, StartTime: e.StartTime}
}

// Teacher returns the resolved teacher id or "".
func (e ExpectedSession) Teacher() string {
	if e.TeacherID == nil {
		return ""
	}
	return *e.TeacherID
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	ClassID  string
	DateFrom string
	DateTo   string
}
