package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ClassTemplateRow is the persisted shape of a class with its raw weekly template.
type ClassTemplateRow struct {
	ID               string         `db:"id"`
	Name             string         `db:"name"`
	DefaultTeacherID *string        `db:"default_teacher_id"`
	DefaultRate      float64        `db:"default_rate"`
	WeeklySlots      types.JSONText `db:"weekly_slots"`
	IsActive         bool           `db:"is_active"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// ClassTemplate is a class whose weekly slots were decoded and validated.
type ClassTemplate struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	DefaultTeacherID *string      `json:"default_teacher_id"`
	DefaultRate      float64      `json:"default_rate"`
	WeeklySlots      []WeeklySlot `json:"weekly_slots"`
}

// WeeklySlot is one recurring meeting of a class. DayOfWeek is a pointer so
// a missing key is rejected instead of reading as Sunday.
type WeeklySlot struct {
	DayOfWeek *int    `json:"dayOfWeek" validate:"required,min=0,max=6"`
	Start     string  `json:"start" validate:"required"`
	End       string  `json:"end" validate:"required"`
	TeacherID *string `json:"teacherId,omitempty"`
}

// Weekday returns the slot's day of week, 0 being Sunday.
func (s WeeklySlot) Weekday() int {
	if s.DayOfWeek == nil {
		return -1
	}
	return *s.DayOfWeek
}

// TemplateIssue records a class whose weekly template could not be used.
type TemplateIssue struct {
	Code      string `json:"code"`
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	Reason    string `json:"reason"`
}
