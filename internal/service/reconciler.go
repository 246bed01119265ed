package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

// heldCorrectionReason is stored with every held-time correction.
const heldCorrectionReason = "weekly template time changed"

type sessionMutator interface {
	Create(ctx context.Context, session *models.Session) error
	UpdateTeacher(ctx context.Context, id, teacherID, today string) (bool, error)
	Reschedule(ctx context.Context, id, start, end string, teacherID *string, today string) (bool, error)
	Delete(ctx context.Context, id, today string) (bool, error)
	CorrectHeldTimes(ctx context.Context, session models.Session, newStart, newEnd, reason string) (bool, error)
}

type conflictDetector interface {
	HasConflict(ctx context.Context, teacherID, date, start, end, excludeID string) bool
}

// ReconcileInput is everything one reconciliation pass needs. Today is the
// organization-zone date computed once by the caller.
type ReconcileInput struct {
	Expected []models.ExpectedSession
	Existing []models.Session
	Mode     string
	Today    string
}

// ReconcileOutcome lists every change applied and every item left for a human.
type ReconcileOutcome struct {
	Created           []models.Session
	Updated           []dto.SessionUpdate
	Removed           []models.Session
	SkippedConflicts  []dto.SkippedConflict
	NoTeacherExpected []models.ExpectedSession
	NoTeacherExisting []models.Session
	HeldNeedsReview   []dto.ReviewItem
	NotApplied        []dto.ReviewItem
}

// Reconciler converges persisted sessions towards the expected set.
//
// Passes run in a fixed order: create, update, held-time correction (only in
// include-held mode), remove. Rows that are manual, past, or not Scheduled are
// never updated or removed; the repository repeats those guards in SQL.
type Reconciler struct {
	sessions  sessionMutator
	conflicts conflictDetector
	logger    *zap.Logger
}

// NewReconciler wires the reconciler.
func NewReconciler(sessions sessionMutator, conflicts conflictDetector, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{sessions: sessions, conflicts: conflicts, logger: logger}
}

// sessionMove pairs an orphaned existing row with an unmatched expected entry
// on the same class and date, so a slot whose time moved is rewritten in place
// instead of being deleted and recreated.
type sessionMove struct {
	expected models.ExpectedSession
	session  models.Session
	held     bool
}

// Reconcile applies the diff between in.Expected and in.Existing. On a storage
// error it returns the changes applied so far together with the error.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileOutcome, error) {
	mode := in.Mode
	if mode == "" {
		mode = dto.ReconcileModeFutureOnly
	}
	includeHeld := mode == dto.ReconcileModeIncludeHeld

	existingByKey := make(map[models.SessionKey][]int, len(in.Existing))
	for i, s := range in.Existing {
		existingByKey[s.Key()] = append(existingByKey[s.Key()], i)
	}
	expectedByKey := make(map[models.SessionKey]int, len(in.Expected))
	for i, e := range in.Expected {
		if _, dup := expectedByKey[e.Key()]; !dup {
			expectedByKey[e.Key()] = i
		}
	}

	moves, heldOrphans := planMoves(in, existingByKey, expectedByKey, includeHeld)
	movedByExpected := make(map[models.SessionKey]struct{}, len(moves))
	movedSessions := make(map[string]struct{}, len(moves))
	for _, mv := range moves {
		movedByExpected[mv.expected.Key()] = struct{}{}
		movedSessions[mv.session.ID] = struct{}{}
	}

	// Final state of every existing row, used for the attention lists.
	current := make(map[string]models.Session, len(in.Existing))
	for _, s := range in.Existing {
		current[s.ID] = s
	}

	out := &ReconcileOutcome{}
	for _, s := range heldOrphans {
		out.HeldNeedsReview = append(out.HeldNeedsReview, reviewItem(s, s.StartTime, s.EndTime, dto.ReasonHeldWithoutSlot))
	}

	// Create pass.
	for i, exp := range in.Expected {
		if expectedByKey[exp.Key()] != i {
			continue
		}
		if _, ok := existingByKey[exp.Key()]; ok {
			continue
		}
		if _, ok := movedByExpected[exp.Key()]; ok {
			continue
		}
		if exp.TeacherID == nil {
			out.NoTeacherExpected = append(out.NoTeacherExpected, exp)
			continue
		}
		if r.conflicts.HasConflict(ctx, exp.Teacher(), exp.Date, exp.StartTime, exp.EndTime, "") {
			out.SkippedConflicts = append(out.SkippedConflicts, skipped(exp.ClassID, exp.Date, exp.StartTime, exp.EndTime, exp.Teacher()))
			continue
		}
		teacher := exp.Teacher()
		session := &models.Session{
			ClassID:   exp.ClassID,
			Date:      exp.Date,
			StartTime: exp.StartTime,
			EndTime:   exp.EndTime,
			TeacherID: &teacher,
			Status:    models.SessionStatusScheduled,
			IsManual:  false,
		}
		if err := r.sessions.Create(ctx, session); err != nil {
			return out, fmt.Errorf("create session %s: %w", exp.Key(), err)
		}
		out.Created = append(out.Created, *session)
	}

	// Update pass: exact key matches first, then in-place moves.
	for i, exp := range in.Expected {
		if expectedByKey[exp.Key()] != i {
			continue
		}
		for _, idx := range existingByKey[exp.Key()] {
			s := in.Existing[idx]
			if !reconcilable(s, in.Today) {
				continue
			}
			updated, err := r.updateMatched(ctx, exp, s, in.Today, out)
			if err != nil {
				return out, err
			}
			if updated != nil {
				current[s.ID] = *updated
			}
		}
	}
	for _, mv := range moves {
		if mv.held {
			continue
		}
		updated, err := r.moveScheduled(ctx, mv, in.Today, out)
		if err != nil {
			return out, err
		}
		if updated != nil {
			current[mv.session.ID] = *updated
		}
	}

	// Held-time correction pass.
	if includeHeld {
		for i, exp := range in.Expected {
			if expectedByKey[exp.Key()] != i {
				continue
			}
			for _, idx := range existingByKey[exp.Key()] {
				s := in.Existing[idx]
				if s.IsManual || s.Status != models.SessionStatusHeld || s.EndTime == exp.EndTime {
					continue
				}
				if err := r.correctHeld(ctx, s, exp, out); err != nil {
					return out, err
				}
			}
		}
		for _, mv := range moves {
			if !mv.held {
				continue
			}
			if err := r.correctHeld(ctx, mv.session, mv.expected, out); err != nil {
				return out, err
			}
		}
	}

	// Removal pass.
	for _, s := range in.Existing {
		if _, ok := expectedByKey[s.Key()]; ok {
			continue
		}
		if _, ok := movedSessions[s.ID]; ok {
			continue
		}
		if !reconcilable(s, in.Today) {
			continue
		}
		ok, err := r.sessions.Delete(ctx, s.ID, in.Today)
		if err != nil {
			return out, fmt.Errorf("delete session %s: %w", s.ID, err)
		}
		if !ok {
			r.logger.Info("session changed concurrently, not removed", zap.String("session_id", s.ID))
			continue
		}
		out.Removed = append(out.Removed, s)
		delete(current, s.ID)
	}

	for _, s := range in.Existing {
		final, ok := current[s.ID]
		if !ok {
			continue
		}
		if final.Status == models.SessionStatusScheduled && final.Date >= in.Today && final.TeacherID == nil {
			out.NoTeacherExisting = append(out.NoTeacherExisting, final)
		}
	}
	return out, nil
}

// reconcilable reports whether the reconciler owns the row: Scheduled, not
// manual, dated today or later.
func reconcilable(s models.Session, today string) bool {
	return s.Status == models.SessionStatusScheduled && !s.IsManual && s.Date >= today
}

func (r *Reconciler) updateMatched(ctx context.Context, exp models.ExpectedSession, s models.Session, today string, out *ReconcileOutcome) (*models.Session, error) {
	var changes []dto.FieldChange
	teacher := s.TeacherID
	teacherChanged := exp.TeacherID != nil && exp.Teacher() != s.Teacher()
	if teacherChanged {
		teacher = exp.TeacherID
		changes = append(changes, dto.FieldChange{Field: "teacher_id", From: s.Teacher(), To: exp.Teacher()})
	}
	endChanged := exp.EndTime != s.EndTime
	if endChanged {
		changes = append(changes, dto.FieldChange{Field: "end_time", From: s.EndTime, To: exp.EndTime})
	}
	if len(changes) == 0 {
		return nil, nil
	}

	if teacher != nil && r.conflicts.HasConflict(ctx, *teacher, s.Date, s.StartTime, exp.EndTime, s.ID) {
		out.SkippedConflicts = append(out.SkippedConflicts, skipped(s.ClassID, s.Date, s.StartTime, exp.EndTime, *teacher))
		return nil, nil
	}

	var (
		ok  bool
		err error
	)
	if endChanged {
		ok, err = r.sessions.Reschedule(ctx, s.ID, s.StartTime, exp.EndTime, teacher, today)
	} else {
		ok, err = r.sessions.UpdateTeacher(ctx, s.ID, *teacher, today)
	}
	if err != nil {
		return nil, fmt.Errorf("update session %s: %w", s.ID, err)
	}
	if !ok {
		r.logger.Info("session changed concurrently, not updated", zap.String("session_id", s.ID))
		out.NotApplied = append(out.NotApplied, reviewItem(s, s.StartTime, exp.EndTime, dto.ReasonChangedConcurrently))
		return nil, nil
	}

	s.TeacherID = teacher
	s.EndTime = exp.EndTime
	out.Updated = append(out.Updated, dto.SessionUpdate{Session: s, Changes: changes})
	return &s, nil
}

func (r *Reconciler) moveScheduled(ctx context.Context, mv sessionMove, today string, out *ReconcileOutcome) (*models.Session, error) {
	s, exp := mv.session, mv.expected
	teacher := s.TeacherID
	changes := []dto.FieldChange{{Field: "time", From: timeRange(s.StartTime, s.EndTime), To: timeRange(exp.StartTime, exp.EndTime)}}
	if exp.TeacherID != nil && exp.Teacher() != s.Teacher() {
		teacher = exp.TeacherID
		changes = append(changes, dto.FieldChange{Field: "teacher_id", From: s.Teacher(), To: exp.Teacher()})
	}
	if teacher != nil && r.conflicts.HasConflict(ctx, *teacher, exp.Date, exp.StartTime, exp.EndTime, s.ID) {
		out.SkippedConflicts = append(out.SkippedConflicts, skipped(exp.ClassID, exp.Date, exp.StartTime, exp.EndTime, *teacher))
		return nil, nil
	}

	ok, err := r.sessions.Reschedule(ctx, s.ID, exp.StartTime, exp.EndTime, teacher, today)
	if err != nil {
		return nil, fmt.Errorf("reschedule session %s: %w", s.ID, err)
	}
	if !ok {
		r.logger.Info("session changed concurrently, not moved", zap.String("session_id", s.ID))
		out.NotApplied = append(out.NotApplied, reviewItem(s, exp.StartTime, exp.EndTime, dto.ReasonChangedConcurrently))
		return nil, nil
	}

	s.StartTime, s.EndTime, s.TeacherID = exp.StartTime, exp.EndTime, teacher
	out.Updated = append(out.Updated, dto.SessionUpdate{Session: s, Changes: changes})
	return &s, nil
}

func (r *Reconciler) correctHeld(ctx context.Context, s models.Session, exp models.ExpectedSession, out *ReconcileOutcome) error {
	ok, err := r.sessions.CorrectHeldTimes(ctx, s, exp.StartTime, exp.EndTime, heldCorrectionReason)
	if err != nil {
		return fmt.Errorf("correct held session %s: %w", s.ID, err)
	}
	if !ok {
		r.logger.Info("held session changed concurrently, not corrected", zap.String("session_id", s.ID))
		out.NotApplied = append(out.NotApplied, reviewItem(s, exp.StartTime, exp.EndTime, dto.ReasonChangedConcurrently))
		return nil
	}
	change := dto.FieldChange{Field: "time", From: timeRange(s.StartTime, s.EndTime), To: timeRange(exp.StartTime, exp.EndTime)}
	s.StartTime, s.EndTime = exp.StartTime, exp.EndTime
	out.Updated = append(out.Updated, dto.SessionUpdate{Session: s, Changes: []dto.FieldChange{change}})
	return nil
}

// planMoves pairs, per class and date, existing rows whose key vanished from
// the template with expected entries that have no row yet, in start order.
// Future Scheduled non-manual rows always take part. In include-held mode a
// non-manual Held row is paired only when its day holds exactly one session
// and the template expects exactly one slot, so the move is unambiguous. Held
// rows that cannot be paired that way are returned for review and left as
// they are.
func planMoves(in ReconcileInput, existingByKey map[models.SessionKey][]int, expectedByKey map[models.SessionKey]int, includeHeld bool) ([]sessionMove, []models.Session) {
	type dayKey struct{ classID, date string }

	orphans := make(map[dayKey][]models.Session)
	heldOrphans := make(map[dayKey][]models.Session)
	rowsPerDay := make(map[dayKey]int)
	for _, s := range in.Existing {
		k := dayKey{s.ClassID, s.Date}
		if s.Status != models.SessionStatusCanceled {
			rowsPerDay[k]++
		}
		if _, ok := expectedByKey[s.Key()]; ok {
			continue
		}
		switch {
		case reconcilable(s, in.Today):
			orphans[k] = append(orphans[k], s)
		case includeHeld && !s.IsManual && s.Status == models.SessionStatusHeld:
			heldOrphans[k] = append(heldOrphans[k], s)
		}
	}
	if len(orphans) == 0 && len(heldOrphans) == 0 {
		return nil, nil
	}
	for k := range orphans {
		rows := orphans[k]
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].StartTime < rows[j].StartTime })
	}

	slotsPerDay := make(map[dayKey]int)
	unmatched := make(map[dayKey][]models.ExpectedSession)
	var order []dayKey
	for i, exp := range in.Expected {
		if expectedByKey[exp.Key()] != i {
			continue
		}
		k := dayKey{exp.ClassID, exp.Date}
		slotsPerDay[k]++
		if _, ok := existingByKey[exp.Key()]; ok {
			continue
		}
		if _, seen := unmatched[k]; !seen {
			order = append(order, k)
		}
		unmatched[k] = append(unmatched[k], exp)
	}

	var (
		moves  []sessionMove
		review []models.Session
	)
	for _, k := range order {
		pending := unmatched[k]
		if held := heldOrphans[k]; len(held) == 1 && rowsPerDay[k] == 1 && slotsPerDay[k] == 1 && len(pending) == 1 {
			moves = append(moves, sessionMove{expected: pending[0], session: held[0], held: true})
			delete(heldOrphans, k)
			continue
		}
		rows := orphans[k]
		for i := 0; i < len(rows) && i < len(pending); i++ {
			moves = append(moves, sessionMove{expected: pending[i], session: rows[i]})
		}
	}
	for _, rows := range heldOrphans {
		review = append(review, rows...)
	}
	sort.SliceStable(review, func(i, j int) bool {
		if review[i].Date != review[j].Date {
			return review[i].Date < review[j].Date
		}
		if review[i].ClassID != review[j].ClassID {
			return review[i].ClassID < review[j].ClassID
		}
		return review[i].StartTime < review[j].StartTime
	})
	return moves, review
}

func reviewItem(s models.Session, start, end, reason string) dto.ReviewItem {
	return dto.ReviewItem{
		SessionID: s.ID,
		Class:     s.ClassID,
		Date:      s.Date,
		Time:      timeRange(start, end),
		Reason:    reason,
	}
}

func skipped(classID, date, start, end, teacherID string) dto.SkippedConflict {
	return dto.SkippedConflict{
		Class:     classID,
		Date:      date,
		Time:      timeRange(start, end),
		TeacherID: teacherID,
		Reason:    dto.ReasonTeacherConflict,
	}
}

func timeRange(start, end string) string {
	return start + "-" + end
}
