package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

const testToday = "2025-09-10"

func reconcileMonth(t *testing.T, store *memorySessionStore, mode string, classes ...models.ClassTemplate) *ReconcileOutcome {
	t.Helper()
	ctx := context.Background()
	month := september2025()
	existing, err := store.ListByPeriod(ctx, models.SessionFilter{DateFrom: month.FirstDay(), DateTo: month.LastDay()})
	require.NoError(t, err)

	reconciler := NewReconciler(store, NewConflictChecker(store, nil), nil)
	out, err := reconciler.Reconcile(ctx, ReconcileInput{
		Expected: ExpandTemplates(classes, month, bangkok(t)),
		Existing: existing,
		Mode:     mode,
		Today:    testToday,
	})
	require.NoError(t, err)
	return out
}

func assertNoChanges(t *testing.T, out *ReconcileOutcome) {
	t.Helper()
	assert.Empty(t, out.Created, "created")
	assert.Empty(t, out.Updated, "updated")
	assert.Empty(t, out.Removed, "removed")
}

func TestReconcileCreatesOneSessionPerMonday(t *testing.T) {
	store := newMemorySessionStore()

	out := reconcileMonth(t, store, "", mathClass("T1", mondayNine()))

	require.Len(t, out.Created, 5)
	for _, s := range out.Created {
		assert.Equal(t, models.SessionStatusScheduled, s.Status)
		assert.Equal(t, "T1", s.Teacher())
		assert.False(t, s.IsManual)
		assert.NotEmpty(t, s.ID)
	}
	assert.Empty(t, out.SkippedConflicts)
	assert.Len(t, store.all(), 5)
}

func TestReconcileSkipsTeacherConflict(t *testing.T) {
	store := newMemorySessionStore(models.Session{
		ID: "physics-15", ClassID: "physics", Date: "2025-09-15", StartTime: "09:30:00", EndTime: "10:30:00", TeacherID: strPtr("T1"), IsManual: true,
	})

	out := reconcileMonth(t, store, "", mathClass("T1", mondayNine()))

	require.Len(t, out.Created, 4)
	for _, s := range out.Created {
		assert.NotEqual(t, "2025-09-15", s.Date)
	}
	require.Len(t, out.SkippedConflicts, 1)
	skip := out.SkippedConflicts[0]
	assert.Equal(t, "math101", skip.Class)
	assert.Equal(t, "2025-09-15", skip.Date)
	assert.Equal(t, "09:00:00-10:00:00", skip.Time)
	assert.Equal(t, "T1", skip.TeacherID)
	assert.Equal(t, "Teacher time conflict", skip.Reason)
}

func TestReconcileRemovesSlotDroppedFromTemplate(t *testing.T) {
	store := newMemorySessionStore(models.Session{
		ID: "wed-17", ClassID: "math101", Date: "2025-09-17", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"),
	})

	out := reconcileMonth(t, store, "", mathClass("T1", mondayNine()))

	require.Len(t, out.Removed, 1)
	assert.Equal(t, "wed-17", out.Removed[0].ID)
	_, exists := store.get("wed-17")
	assert.False(t, exists)
	assert.Len(t, out.Created, 5)
}

func TestReconcileReassignsFutureSessionsOnly(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "m01", ClassID: "math101", Date: "2025-09-01", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusHeld},
		models.Session{ID: "m08", ClassID: "math101", Date: "2025-09-08", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1")},
		models.Session{ID: "m15", ClassID: "math101", Date: "2025-09-15", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1")},
		models.Session{ID: "m22", ClassID: "math101", Date: "2025-09-22", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), IsManual: true},
		models.Session{ID: "m29", ClassID: "math101", Date: "2025-09-29", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1")},
	)

	out := reconcileMonth(t, store, "", mathClass("T2", mondayNine()))

	require.Len(t, out.Updated, 2)
	updatedIDs := []string{out.Updated[0].Session.ID, out.Updated[1].Session.ID}
	assert.ElementsMatch(t, []string{"m15", "m29"}, updatedIDs)
	assert.Equal(t, []dto.FieldChange{{Field: "teacher_id", From: "T1", To: "T2"}}, out.Updated[0].Changes)

	for id, want := range map[string]string{"m01": "T1", "m08": "T1", "m15": "T2", "m22": "T1", "m29": "T2"} {
		s, ok := store.get(id)
		require.True(t, ok)
		assert.Equal(t, want, s.Teacher(), id)
	}
	assert.Empty(t, out.Created)
	assert.Empty(t, out.Removed)

	assertNoChanges(t, reconcileMonth(t, store, "", mathClass("T2", mondayNine())))
}

func TestReconcileCorrectsHeldTimesOnlyWhenIncluded(t *testing.T) {
	held := models.Session{ID: "held-01", ClassID: "math101", Date: "2025-09-01", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusHeld}
	longer := mathClass("T1", models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "09:00", End: "10:30"})

	t.Run("future-only leaves history alone", func(t *testing.T) {
		store := newMemorySessionStore(held)
		out := reconcileMonth(t, store, dto.ReconcileModeFutureOnly, longer)

		s, _ := store.get("held-01")
		assert.Equal(t, "10:00:00", s.EndTime)
		assert.Empty(t, store.corrections)
		for _, u := range out.Updated {
			assert.NotEqual(t, "held-01", u.Session.ID)
		}
	})

	t.Run("include-held rewrites times and keeps status", func(t *testing.T) {
		store := newMemorySessionStore(held)
		out := reconcileMonth(t, store, dto.ReconcileModeIncludeHeld, longer)

		s, _ := store.get("held-01")
		assert.Equal(t, "09:00:00", s.StartTime)
		assert.Equal(t, "10:30:00", s.EndTime)
		assert.Equal(t, models.SessionStatusHeld, s.Status)
		require.Len(t, store.corrections, 1)
		assert.Equal(t, "10:00:00", store.corrections[0].OldEndTime)
		assert.Equal(t, heldCorrectionReason, store.corrections[0].Reason)
		require.Len(t, store.audits, 1)
		assert.Equal(t, models.AuditActionSessionTimeCorrected, store.audits[0].Action)

		var corrected bool
		for _, u := range out.Updated {
			if u.Session.ID == "held-01" {
				corrected = true
				assert.Equal(t, "09:00:00-10:00:00", u.Changes[0].From)
				assert.Equal(t, "09:00:00-10:30:00", u.Changes[0].To)
			}
		}
		assert.True(t, corrected)
	})

	t.Run("include-held follows a moved start time", func(t *testing.T) {
		store := newMemorySessionStore(held)
		moved := mathClass("T1", models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "09:30", End: "10:30"})
		out := reconcileMonth(t, store, dto.ReconcileModeIncludeHeld, moved)

		s, _ := store.get("held-01")
		assert.Equal(t, "09:30:00", s.StartTime)
		assert.Equal(t, models.SessionStatusHeld, s.Status)
		for _, c := range out.Created {
			assert.NotEqual(t, "2025-09-01", c.Date, "held slot must not be duplicated")
		}
		assert.Len(t, out.Created, 4)
	})
}

func TestReconcileMovesRescheduledSlotInPlace(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "m15", ClassID: "math101", Date: "2025-09-15", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1")},
	)
	moved := mathClass("T1", models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "09:30", End: "10:30"})

	out := reconcileMonth(t, store, "", moved)

	s, ok := store.get("m15")
	require.True(t, ok, "moved row keeps its identity")
	assert.Equal(t, "09:30:00", s.StartTime)
	assert.Equal(t, "10:30:00", s.EndTime)
	assert.Empty(t, out.Removed)
	assert.Empty(t, out.SkippedConflicts)
	for _, c := range out.Created {
		assert.NotEqual(t, "2025-09-15", c.Date)
	}
	require.Len(t, out.Updated, 1)
	assert.Equal(t, "time", out.Updated[0].Changes[0].Field)

	assertNoChanges(t, reconcileMonth(t, store, "", moved))
}

func TestReconcileNeverTouchesManualOrPastRows(t *testing.T) {
	rows := []models.Session{
		{ID: "manual-wed", ClassID: "math101", Date: "2025-09-17", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusScheduled, IsManual: true},
		{ID: "manual-mon", ClassID: "math101", Date: "2025-09-15", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T7"), Status: models.SessionStatusScheduled, IsManual: true},
		{ID: "past-wed", ClassID: "math101", Date: "2025-09-03", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusScheduled},
		{ID: "past-mon", ClassID: "math101", Date: "2025-09-08", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T7"), Status: models.SessionStatusScheduled},
		{ID: "canceled", ClassID: "math101", Date: "2025-09-24", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusCanceled},
	}
	store := newMemorySessionStore(rows...)

	out := reconcileMonth(t, store, dto.ReconcileModeFutureOnly, mathClass("T1", mondayNine()))

	for _, original := range rows {
		current, ok := store.get(original.ID)
		require.True(t, ok, original.ID)
		assert.Equal(t, original, current, original.ID)
	}
	for _, u := range out.Updated {
		t.Errorf("unexpected update of %s", u.Session.ID)
	}
	assert.Empty(t, out.Removed)
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "stale", ClassID: "math101", Date: "2025-09-18", StartTime: "15:00:00", EndTime: "16:00:00", TeacherID: strPtr("T1")},
	)
	classes := []models.ClassTemplate{
		mathClass("T1", mondayNine(), models.WeeklySlot{DayOfWeek: dayPtr(4), Start: "16:00", End: "17:00", TeacherID: strPtr("T3")}),
		{ID: "art", WeeklySlots: []models.WeeklySlot{{DayOfWeek: dayPtr(2), Start: "13:00", End: "14:00"}}},
	}

	first := reconcileMonth(t, store, "", classes...)
	assert.NotEmpty(t, first.Created)
	before := store.all()
	writes := store.writeCount()

	second := reconcileMonth(t, store, "", classes...)
	assertNoChanges(t, second)
	assert.Equal(t, before, store.all())
	assert.Equal(t, writes, store.writeCount())
	assert.Equal(t, len(first.NoTeacherExpected), len(second.NoTeacherExpected))
}

func TestReconcileSurfacesEveryUncreatedSession(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "busy", ClassID: "other", Date: "2025-09-22", StartTime: "08:30:00", EndTime: "09:15:00", TeacherID: strPtr("T1"), IsManual: true},
	)
	classes := []models.ClassTemplate{
		mathClass("T1", mondayNine()),
		{ID: "art", WeeklySlots: []models.WeeklySlot{{DayOfWeek: dayPtr(2), Start: "13:00", End: "14:00"}}},
	}
	expected := ExpandTemplates(classes, september2025(), bangkok(t))

	out := reconcileMonth(t, store, "", classes...)

	created := make(map[models.SessionKey]bool)
	for _, s := range out.Created {
		created[s.Key()] = true
	}
	for _, e := range expected {
		if created[e.Key()] {
			continue
		}
		hits := 0
		for _, s := range out.SkippedConflicts {
			if s.Class == e.ClassID && s.Date == e.Date && s.Time == timeRange(e.StartTime, e.EndTime) {
				hits++
			}
		}
		for _, n := range out.NoTeacherExpected {
			if n.Key() == e.Key() {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "expected session %s must be reported exactly once", e.Key())
	}
	assert.Len(t, out.NoTeacherExpected, 5, "art meets on five Tuesdays in September 2025")
	assert.Len(t, out.SkippedConflicts, 1)
}

func TestReconcileListsTeacherlessExistingSessions(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "art-16", ClassID: "art", Date: "2025-09-16", StartTime: "13:00:00", EndTime: "14:00:00"},
		models.Session{ID: "art-02", ClassID: "art", Date: "2025-09-02", StartTime: "13:00:00", EndTime: "14:00:00"},
	)
	art := models.ClassTemplate{ID: "art", WeeklySlots: []models.WeeklySlot{{DayOfWeek: dayPtr(2), Start: "13:00", End: "14:00"}}}

	out := reconcileMonth(t, store, "", art)

	require.Len(t, out.NoTeacherExisting, 1)
	assert.Equal(t, "art-16", out.NoTeacherExisting[0].ID)
}

func TestReconcileStopsOnStorageFailure(t *testing.T) {
	store := newMemorySessionStore()
	store.createErr = errStorage
	month := september2025()

	reconciler := NewReconciler(store, NewConflictChecker(store, nil), nil)
	out, err := reconciler.Reconcile(context.Background(), ReconcileInput{
		Expected: ExpandTemplates([]models.ClassTemplate{mathClass("T1", mondayNine())}, month, bangkok(t)),
		Today:    testToday,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errStorage)
	require.NotNil(t, out)
	assert.Empty(t, out.Created)
}

func TestReconcileLeavesAmbiguousHeldRowsForReview(t *testing.T) {
	h09 := models.Session{ID: "h09", ClassID: "math101", Date: "2025-09-01", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusHeld}
	h14 := models.Session{ID: "h14", ClassID: "math101", Date: "2025-09-01", StartTime: "14:00:00", EndTime: "15:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusHeld}
	store := newMemorySessionStore(h09, h14)
	changed := mathClass("T1",
		models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "14:00", End: "15:00"},
		models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "16:00", End: "17:00"},
	)

	out := reconcileMonth(t, store, dto.ReconcileModeIncludeHeld, changed)

	for _, original := range []models.Session{h09, h14} {
		current, ok := store.get(original.ID)
		require.True(t, ok, original.ID)
		assert.Equal(t, original, current, original.ID)
	}
	assert.Empty(t, store.corrections)
	for _, u := range out.Updated {
		assert.NotEqual(t, "h09", u.Session.ID)
	}

	require.Len(t, out.HeldNeedsReview, 1)
	assert.Equal(t, "h09", out.HeldNeedsReview[0].SessionID)
	assert.Equal(t, "09:00:00-10:00:00", out.HeldNeedsReview[0].Time)
	assert.Equal(t, dto.ReasonHeldWithoutSlot, out.HeldNeedsReview[0].Reason)

	var createdSixteen bool
	for _, c := range out.Created {
		if c.Date == "2025-09-01" && c.StartTime == "16:00:00" {
			createdSixteen = true
		}
	}
	assert.True(t, createdSixteen, "the new slot is created next to the held history")
}

func TestReconcileHeldReviewOnlyInIncludeHeldMode(t *testing.T) {
	held := models.Session{ID: "h09", ClassID: "math101", Date: "2025-09-01", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1"), Status: models.SessionStatusHeld}
	store := newMemorySessionStore(held)

	out := reconcileMonth(t, store, dto.ReconcileModeFutureOnly, mathClass("T1", models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "16:00", End: "17:00"}))

	assert.Empty(t, out.HeldNeedsReview)
	current, _ := store.get("h09")
	assert.Equal(t, held, current)
}

func TestReconcileReportsMoveLostToConcurrentEdit(t *testing.T) {
	store := newMemorySessionStore(
		models.Session{ID: "m15", ClassID: "math101", Date: "2025-09-15", StartTime: "09:00:00", EndTime: "10:00:00", TeacherID: strPtr("T1")},
	)
	ctx := context.Background()
	month := september2025()
	existing, err := store.ListByPeriod(ctx, models.SessionFilter{DateFrom: month.FirstDay(), DateTo: month.LastDay()})
	require.NoError(t, err)

	// An administrator takes ownership of the row after it was read.
	store.mu.Lock()
	edited := store.rows["m15"]
	edited.IsManual = true
	store.rows["m15"] = edited
	store.mu.Unlock()

	moved := mathClass("T1", models.WeeklySlot{DayOfWeek: dayPtr(1), Start: "09:30", End: "10:30"})
	out, err := NewReconciler(store, NewConflictChecker(store, nil), nil).Reconcile(ctx, ReconcileInput{
		Expected: ExpandTemplates([]models.ClassTemplate{moved}, month, bangkok(t)),
		Existing: existing,
		Mode:     dto.ReconcileModeFutureOnly,
		Today:    testToday,
	})
	require.NoError(t, err)

	current, _ := store.get("m15")
	assert.Equal(t, "09:00:00", current.StartTime)
	for _, u := range out.Updated {
		assert.NotEqual(t, "m15", u.Session.ID)
	}
	require.Len(t, out.NotApplied, 1)
	assert.Equal(t, dto.ReviewItem{
		SessionID: "m15",
		Class:     "math101",
		Date:      "2025-09-15",
		Time:      "09:30:00-10:30:00",
		Reason:    dto.ReasonChangedConcurrently,
	}, out.NotApplied[0])
}
