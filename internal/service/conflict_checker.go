package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type teacherDayReader interface {
	ListActiveByTeacherDate(ctx context.Context, teacherID, date string) ([]models.Session, error)
}

// ConflictChecker detects teacher double-booking against persisted sessions.
type ConflictChecker struct {
	sessions teacherDayReader
	logger   *zap.Logger
}

// NewConflictChecker constructs the checker.
func NewConflictChecker(sessions teacherDayReader, logger *zap.Logger) *ConflictChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictChecker{sessions: sessions, logger: logger}
}

// HasConflict reports whether the teacher already has a non-canceled session
// on date overlapping [start, end). The session identified by excludeID (the
// one being moved, if any) is ignored. Lookup or parse failures count as a
// conflict.
func (c *ConflictChecker) HasConflict(ctx context.Context, teacherID, date, start, end, excludeID string) bool {
	newStart, err := orgtime.ClockSeconds(start)
	if err != nil {
		c.logger.Warn("conflict check: invalid start", zap.String("start", start), zap.Error(err))
		return true
	}
	newEnd, err := orgtime.ClockSeconds(end)
	if err != nil {
		c.logger.Warn("conflict check: invalid end", zap.String("end", end), zap.Error(err))
		return true
	}

	sessions, err := c.sessions.ListActiveByTeacherDate(ctx, teacherID, date)
	if err != nil {
		c.logger.Warn("conflict lookup failed, refusing to schedule",
			zap.String("teacher_id", teacherID), zap.String("date", date), zap.Error(err))
		return true
	}

	for _, s := range sessions {
		if s.Status == models.SessionStatusCanceled || (excludeID != "" && s.ID == excludeID) {
			continue
		}
		existingStart, err := orgtime.ClockSeconds(s.StartTime)
		if err != nil {
			return true
		}
		existingEnd, err := orgtime.ClockSeconds(s.EndTime)
		if err != nil {
			return true
		}
		if overlaps(existingStart, existingEnd, newStart, newEnd) {
			return true
		}
	}
	return false
}

// overlaps is the half-open interval test; touching intervals do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && aEnd > bStart
}
