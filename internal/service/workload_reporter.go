package service

import (
	"sort"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

// BuildWorkloadReport groups sessions by teacher, with teacherless sessions
// under models.UnassignedTeacher. Scheduled and Held sessions count towards
// scheduled minutes, Held ones also towards held minutes; Canceled sessions
// are ignored. Teachers are ordered by id with the unassigned bucket last.
func BuildWorkloadReport(sessions []models.Session) []models.TeacherReport {
	byTeacher := make(map[string]*models.TeacherReport)
	for _, s := range sessions {
		if s.Status != models.SessionStatusScheduled && s.Status != models.SessionStatusHeld {
			continue
		}
		teacher := s.Teacher()
		if teacher == "" {
			teacher = models.UnassignedTeacher
		}
		report, ok := byTeacher[teacher]
		if !ok {
			report = &models.TeacherReport{TeacherID: teacher, Sessions: []models.WorkloadSession{}}
			byTeacher[teacher] = report
		}

		// Unparseable times contribute zero minutes but the session is still listed.
		minutes, _ := orgtime.MinutesBetween(s.StartTime, s.EndTime)
		report.ScheduledMinutes += minutes
		if s.Status == models.SessionStatusHeld {
			report.HeldMinutes += minutes
		}
		report.SessionCount++
		report.Sessions = append(report.Sessions, models.WorkloadSession{
			ID:        s.ID,
			ClassID:   s.ClassID,
			Date:      s.Date,
			StartTime: s.StartTime,
			EndTime:   s.EndTime,
			Status:    s.Status,
			Minutes:   minutes,
		})
	}

	reports := make([]models.TeacherReport, 0, len(byTeacher))
	for _, report := range byTeacher {
		sort.SliceStable(report.Sessions, func(i, j int) bool {
			a, b := report.Sessions[i], report.Sessions[j]
			if a.Date != b.Date {
				return a.Date < b.Date
			}
			if a.StartTime != b.StartTime {
				return a.StartTime < b.StartTime
			}
			return a.ClassID < b.ClassID
		})
		reports = append(reports, *report)
	}
	sort.Slice(reports, func(i, j int) bool {
		a, b := reports[i].TeacherID, reports[j].TeacherID
		if (a == models.UnassignedTeacher) != (b == models.UnassignedTeacher) {
			return b == models.UnassignedTeacher
		}
		return a < b
	})
	return reports
}
