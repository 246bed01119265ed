package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

func strPtr(s string) *string { return &s }

func dayPtr(d int) *int { return &d }

// memorySessionStore mimics SessionRepository, including the guards its SQL
// enforces, so reconciliation can be exercised end to end.
type memorySessionStore struct {
	mu          sync.Mutex
	rows        map[string]models.Session
	seq         int
	corrections []models.SessionTimeCorrection
	audits      []*models.AuditLog

	lookupErr error
	createErr error
	deleteErr error
	writes    int
}

func newMemorySessionStore(rows ...models.Session) *memorySessionStore {
	m := &memorySessionStore{rows: make(map[string]models.Session)}
	for _, r := range rows {
		m.put(r)
	}
	return m
}

func (m *memorySessionStore) put(s models.Session) {
	if s.ID == "" {
		m.seq++
		s.ID = fmt.Sprintf("gen-%03d", m.seq)
	}
	if s.Status == "" {
		s.Status = models.SessionStatusScheduled
	}
	m.rows[s.ID] = s
}

func (m *memorySessionStore) get(id string) (models.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	return s, ok
}

func (m *memorySessionStore) all() []models.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Session, 0, len(m.rows))
	for _, s := range m.rows {
		out = append(out, s)
	}
	sortSessions(out)
	return out
}

func (m *memorySessionStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func sortSessions(out []models.Session) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		if out[i].ClassID != out[j].ClassID {
			return out[i].ClassID < out[j].ClassID
		}
		return out[i].ID < out[j].ID
	})
}

func (m *memorySessionStore) ListByPeriod(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Session
	for _, s := range m.rows {
		if s.Date < filter.DateFrom || s.Date > filter.DateTo {
			continue
		}
		if filter.ClassID != "" && s.ClassID != filter.ClassID {
			continue
		}
		out = append(out, s)
	}
	sortSessions(out)
	return out, nil
}

func (m *memorySessionStore) ListActiveByTeacherDate(ctx context.Context, teacherID, date string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	var out []models.Session
	for _, s := range m.rows {
		if s.Teacher() == teacherID && s.Date == date && s.Status != models.SessionStatusCanceled {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *memorySessionStore) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.writes++
	m.seq++
	session.ID = fmt.Sprintf("new-%03d", m.seq)
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}
	m.rows[session.ID] = *session
	return nil
}

func (m *memorySessionStore) guarded(id, today string) (models.Session, bool) {
	s, ok := m.rows[id]
	if !ok || s.IsManual || s.Status != models.SessionStatusScheduled || s.Date < today {
		return models.Session{}, false
	}
	return s, true
}

func (m *memorySessionStore) UpdateTeacher(ctx context.Context, id, teacherID, today string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.guarded(id, today)
	if !ok {
		return false, nil
	}
	m.writes++
	s.TeacherID = strPtr(teacherID)
	m.rows[id] = s
	return true, nil
}

func (m *memorySessionStore) Reschedule(ctx context.Context, id, start, end string, teacherID *string, today string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.guarded(id, today)
	if !ok {
		return false, nil
	}
	m.writes++
	s.StartTime, s.EndTime, s.TeacherID = start, end, teacherID
	m.rows[id] = s
	return true, nil
}

func (m *memorySessionStore) Delete(ctx context.Context, id, today string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	if _, ok := m.guarded(id, today); !ok {
		return false, nil
	}
	m.writes++
	delete(m.rows, id)
	return true, nil
}

func (m *memorySessionStore) DemoteFutureHeld(ctx context.Context, today, dateFrom, dateTo, classID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := dateFrom
	if today > from {
		from = today
	}
	var ids []string
	for id, s := range m.rows {
		if s.Status != models.SessionStatusHeld || s.IsManual || s.Date < from || s.Date > dateTo {
			continue
		}
		if classID != "" && s.ClassID != classID {
			continue
		}
		m.writes++
		s.Status = models.SessionStatusScheduled
		m.rows[id] = s
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memorySessionStore) CorrectHeldTimes(ctx context.Context, session models.Session, newStart, newEnd, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[session.ID]
	if !ok || s.IsManual || s.Status != models.SessionStatusHeld {
		return false, nil
	}
	m.writes++
	m.corrections = append(m.corrections, models.SessionTimeCorrection{
		SessionID:    s.ID,
		ClassID:      s.ClassID,
		Date:         s.Date,
		OldStartTime: s.StartTime,
		OldEndTime:   s.EndTime,
		NewStartTime: newStart,
		NewEndTime:   newEnd,
		Reason:       reason,
	})
	m.audits = append(m.audits, &models.AuditLog{Action: models.AuditActionSessionTimeCorrected, ResourceID: strPtr(s.ID)})
	s.StartTime, s.EndTime = newStart, newEnd
	m.rows[s.ID] = s
	return true, nil
}

// memoryAudit collects audit entries.
type memoryAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	err     error
}

func (a *memoryAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

var errStorage = errors.New("storage unavailable")
