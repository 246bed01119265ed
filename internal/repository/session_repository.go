package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

const sessionColumns = `id, class_id, to_char(session_date, 'YYYY-MM-DD') AS session_date, to_char(start_time, 'HH24:MI:SS') AS start_time, to_char(end_time, 'HH24:MI:SS') AS end_time, teacher_id, status, is_manual, created_at, updated_at`

// SessionRepository persists class sessions. Every mutating statement repeats
// the reconciler's guards (non-manual, status, not in the past) in its WHERE
// clause so a row an administrator touched in the meantime is left alone.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository builds the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// ListByPeriod returns sessions between DateFrom and DateTo (inclusive), optionally for one class.
func (r *SessionRepository) ListByPeriod(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	conditions := []string{"session_date >= $1", "session_date <= $2"}
	args := []interface{}{filter.DateFrom, filter.DateTo}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE %s ORDER BY session_date ASC, start_time ASC, class_id ASC",
		sessionColumns, strings.Join(conditions, " AND "))

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions by period: %w", err)
	}
	return sessions, nil
}

// ListActiveByTeacherDate returns the teacher's non-canceled sessions on a date.
func (r *SessionRepository) ListActiveByTeacherDate(ctx context.Context, teacherID, date string) ([]models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM class_sessions WHERE teacher_id = $1 AND session_date = $2 AND status <> $3 ORDER BY start_time ASC", sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, teacherID, date, models.SessionStatusCanceled); err != nil {
		return nil, fmt.Errorf("list teacher sessions: %w", err)
	}
	return sessions, nil
}

// Create inserts a session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusScheduled
	}

	const query = `INSERT INTO class_sessions (id, class_id, session_date, start_time, end_time, teacher_id, status, is_manual, created_at, updated_at)
VALUES (:id, :class_id, :session_date, :start_time, :end_time, :teacher_id, :status, :is_manual, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateTeacher reassigns a future, scheduled, non-manual session. It reports
// false when the guards no longer match the row.
func (r *SessionRepository) UpdateTeacher(ctx context.Context, id, teacherID, today string) (bool, error) {
	const query = `UPDATE class_sessions SET teacher_id = $1, updated_at = $2
WHERE id = $3 AND is_manual = FALSE AND status = $4 AND session_date >= $5`
	res, err := r.db.ExecContext(ctx, query, teacherID, time.Now().UTC(), id, models.SessionStatusScheduled, today)
	if err != nil {
		return false, fmt.Errorf("update session teacher: %w", err)
	}
	return affected(res)
}

// Reschedule moves a future, scheduled, non-manual session to new times and
// teacher in one statement.
func (r *SessionRepository) Reschedule(ctx context.Context, id, start, end string, teacherID *string, today string) (bool, error) {
	const query = `UPDATE class_sessions SET start_time = $1, end_time = $2, teacher_id = $3, updated_at = $4
WHERE id = $5 AND is_manual = FALSE AND status = $6 AND session_date >= $7`
	res, err := r.db.ExecContext(ctx, query, start, end, teacherID, time.Now().UTC(), id, models.SessionStatusScheduled, today)
	if err != nil {
		return false, fmt.Errorf("reschedule session: %w", err)
	}
	return affected(res)
}

// Delete removes a future, scheduled, non-manual session.
func (r *SessionRepository) Delete(ctx context.Context, id, today string) (bool, error) {
	const query = `DELETE FROM class_sessions WHERE id = $1 AND is_manual = FALSE AND status = $2 AND session_date >= $3`
	res, err := r.db.ExecContext(ctx, query, id, models.SessionStatusScheduled, today)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return affected(res)
}

// DemoteFutureHeld flips non-manual Held sessions dated today or later back to
// Scheduled within [dateFrom, dateTo] and returns the repaired ids.
func (r *SessionRepository) DemoteFutureHeld(ctx context.Context, today, dateFrom, dateTo, classID string) ([]string, error) {
	from := dateFrom
	if today > from {
		from = today
	}
	args := []interface{}{models.SessionStatusScheduled, time.Now().UTC(), models.SessionStatusHeld, from, dateTo}
	query := `UPDATE class_sessions SET status = $1, updated_at = $2
WHERE status = $3 AND is_manual = FALSE AND session_date >= $4 AND session_date <= $5`
	if classID != "" {
		query += " AND class_id = $6"
		args = append(args, classID)
	}
	query += " RETURNING id"

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("demote future held sessions: %w", err)
	}
	return ids, nil
}

// CorrectHeldTimes realigns a non-manual Held session with its template times,
// keeping the Held status, and records the correction plus an audit entry in
// the same transaction.
func (r *SessionRepository) CorrectHeldTimes(ctx context.Context, session models.Session, newStart, newEnd, reason string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin held time correction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	const update = `UPDATE class_sessions SET start_time = $1, end_time = $2, updated_at = $3
WHERE id = $4 AND is_manual = FALSE AND status = $5`
	res, err := tx.ExecContext(ctx, update, newStart, newEnd, now, session.ID, models.SessionStatusHeld)
	if err != nil {
		return false, fmt.Errorf("update held session times: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}

	correction := models.SessionTimeCorrection{
		ID:           uuid.NewString(),
		SessionID:    session.ID,
		ClassID:      session.ClassID,
		Date:         session.Date,
		OldStartTime: session.StartTime,
		OldEndTime:   session.EndTime,
		NewStartTime: newStart,
		NewEndTime:   newEnd,
		Reason:       reason,
		CreatedAt:    now,
	}
	const insertCorrection = `INSERT INTO session_time_corrections (id, session_id, class_id, session_date, old_start_time, old_end_time, new_start_time, new_end_time, reason, created_at)
VALUES (:id, :session_id, :class_id, :session_date, :old_start_time, :old_end_time, :new_start_time, :new_end_time, :reason, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, tx, insertCorrection, correction); err != nil {
		return false, fmt.Errorf("insert time correction: %w", err)
	}

	oldValues, _ := json.Marshal(map[string]string{"start_time": session.StartTime, "end_time": session.EndTime})
	newValues, _ := json.Marshal(map[string]string{"start_time": newStart, "end_time": newEnd, "reason": reason})
	sessionID := session.ID
	audit := &models.AuditLog{
		Action:     models.AuditActionSessionTimeCorrected,
		Resource:   "class_session",
		ResourceID: &sessionID,
		OldValues:  oldValues,
		NewValues:  newValues,
		CreatedAt:  now,
	}
	if err := insertAuditLog(ctx, tx, audit); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit held time correction: %w", err)
	}
	committed = true
	return true, nil
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffecter) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
