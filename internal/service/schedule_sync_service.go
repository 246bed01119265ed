package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/cache"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type classTemplateReader interface {
	ListActive(ctx context.Context, classID string) ([]models.ClassTemplateRow, error)
}

type periodSessionReader interface {
	ListByPeriod(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
}

type runLocker interface {
	Acquire(ctx context.Context, job, period string) (bool, error)
	Release(job, period string) error
}

type futureHeldNormalizer interface {
	NormalizeFutureHeld(ctx context.Context, month orgtime.Month, today, classID string) ([]string, error)
}

type sessionReconciler interface {
	Reconcile(ctx context.Context, in ReconcileInput) (*ReconcileOutcome, error)
}

type downstreamFirer interface {
	Fire(payload dto.RecalculationPayload) int
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// ScheduleSyncConfig governs a reconciliation run.
type ScheduleSyncConfig struct {
	RunTimeout time.Duration
}

// ScheduleSyncService runs one reconciliation for a month: lock, normalize,
// expand, reconcile, report, trigger downstream recalculation, unlock.
type ScheduleSyncService struct {
	classes    classTemplateReader
	sessions   periodSessionReader
	locks      runLocker
	normalizer futureHeldNormalizer
	reconciler sessionReconciler
	downstream downstreamFirer
	cache      cacheInvalidator
	audit      auditWriter
	metrics    *MetricsService
	zone       *orgtime.Zone
	clock      orgtime.Clock
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ScheduleSyncConfig
}

// ScheduleSyncDeps groups the collaborators of ScheduleSyncService. Downstream,
// Cache, Audit and Metrics are optional.
type ScheduleSyncDeps struct {
	Classes    classTemplateReader
	Sessions   periodSessionReader
	Locks      runLocker
	Normalizer futureHeldNormalizer
	Reconciler sessionReconciler
	Downstream downstreamFirer
	Cache      cacheInvalidator
	Audit      auditWriter
	Metrics    *MetricsService
	Zone       *orgtime.Zone
	Clock      orgtime.Clock
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewScheduleSyncService wires the orchestrator.
func NewScheduleSyncService(deps ScheduleSyncDeps, cfg ScheduleSyncConfig) *ScheduleSyncService {
	if deps.Zone == nil {
		deps.Zone = orgtime.NewZone(time.UTC)
	}
	if deps.Clock == nil {
		deps.Clock = orgtime.SystemClock{}
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ScheduleSyncService{
		classes:    deps.Classes,
		sessions:   deps.Sessions,
		locks:      deps.Locks,
		normalizer: deps.Normalizer,
		reconciler: deps.Reconciler,
		downstream: deps.Downstream,
		cache:      deps.Cache,
		audit:      deps.Audit,
		metrics:    deps.Metrics,
		zone:       deps.Zone,
		clock:      deps.Clock,
		validator:  deps.Validator,
		logger:     deps.Logger,
		cfg:        cfg,
	}
}

// Zone returns the organization zone used for month and today.
func (s *ScheduleSyncService) Zone() *orgtime.Zone { return s.zone }

// Run reconciles sessions for req.Month. A run already open for the month
// yields ErrJobRunning without side effects.
func (s *ScheduleSyncService) Run(ctx context.Context, req dto.ScheduleSyncRequest) (*dto.ScheduleSyncResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	// "now" is read once; every date decision in the run derives from it.
	now := s.clock.Now()
	today := s.zone.Today(now)
	month := s.zone.CurrentMonth(now)
	if req.Month != "" {
		parsed, err := orgtime.ParseMonth(req.Month)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		month = parsed
	}
	mode := req.Mode
	if mode == "" {
		mode = dto.ReconcileModeFutureOnly
	}
	period := month.String()

	acquired, err := s.locks.Acquire(ctx, models.JobScheduleSync, period)
	if err != nil {
		s.metrics.RecordSyncRun(SyncOutcomeFailed, 0)
		return nil, err
	}
	if !acquired {
		s.metrics.RecordSyncRun(SyncOutcomeContended, 0)
		return nil, appErrors.ErrJobRunning
	}
	defer func() {
		_ = s.locks.Release(models.JobScheduleSync, period)
	}()

	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}

	logger := s.logger.With(
		zap.String("month", period), zap.String("mode", mode),
		zap.String("class_id", req.ClassID), zap.String("trigger", req.Trigger))
	logger.Info("schedule sync started", zap.String("today", today))

	started := time.Now()
	result, err := s.run(ctx, runParams{month: month, today: today, mode: mode, classID: req.ClassID})
	if err != nil {
		s.metrics.RecordSyncRun(SyncOutcomeFailed, time.Since(started))
		logger.Error("schedule sync failed", zap.Error(err))
		// Writes applied before the failure stay, so cached totals are stale.
		s.invalidateWorkload(ctx, month.String(), logger)
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, err.Error())
	}
	s.metrics.RecordSyncRun(SyncOutcomeSuccess, time.Since(started))

	logger.Info("schedule sync finished",
		zap.Int("normalized", result.Normalized),
		zap.Int("created", result.Created.Count),
		zap.Int("updated", result.Updated.Count),
		zap.Int("removed", result.Removed.Count),
		zap.Int("skipped_conflicts", len(result.SkippedConflicts)),
		zap.Int("no_teacher_expected", len(result.Attention.NoTeacherExpected)),
		zap.Int("invalid_templates", len(result.Attention.InvalidTemplates)),
		zap.Int("held_needs_review", len(result.Attention.HeldNeedsReview)),
		zap.Int("not_applied", len(result.Attention.NotApplied)),
		zap.Duration("elapsed", time.Since(started)))

	s.afterRun(ctx, req, result, logger)
	return result, nil
}

type runParams struct {
	month   orgtime.Month
	today   string
	mode    string
	classID string
}

func (s *ScheduleSyncService) run(ctx context.Context, p runParams) (*dto.ScheduleSyncResult, error) {
	normalized, err := s.normalizer.NormalizeFutureHeld(ctx, p.month, p.today, p.classID)
	if err != nil {
		return nil, err
	}

	filter := models.SessionFilter{ClassID: p.classID, DateFrom: p.month.FirstDay(), DateTo: p.month.LastDay()}

	// Both reads finish before any write.
	var (
		rows     []models.ClassTemplateRow
		existing []models.Session
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = s.classes.ListActive(gctx, p.classID)
		return err
	})
	g.Go(func() error {
		var err error
		existing, err = s.sessions.ListByPeriod(gctx, filter)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load reconciliation input: %w", err)
	}

	if p.classID != "" && len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("class %s not found or inactive", p.classID))
	}

	templates, issues := DecodeTemplates(rows, s.validator)
	for _, issue := range issues {
		s.logger.Warn("skipping class with invalid weekly template",
			zap.String("class_id", issue.ClassID), zap.String("reason", issue.Reason))
	}
	expected := ExpandTemplates(templates, p.month, s.zone)

	outcome, err := s.reconciler.Reconcile(ctx, ReconcileInput{
		Expected: expected,
		Existing: withoutClasses(existing, issues),
		Mode:     p.mode,
		Today:    p.today,
	})
	if err != nil {
		return nil, err
	}

	after, err := s.sessions.ListByPeriod(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load sessions for report: %w", err)
	}

	return &dto.ScheduleSyncResult{
		Success:          true,
		Month:            p.month.String(),
		Mode:             p.mode,
		ClassID:          p.classID,
		Normalized:       len(normalized),
		NormalizedIDs:    nonNil(normalized),
		Created:          dto.SessionChangeList{Count: len(outcome.Created), Items: nonNil(outcome.Created)},
		Updated:          dto.SessionUpdateList{Count: len(outcome.Updated), Items: nonNil(outcome.Updated)},
		Removed:          dto.SessionChangeList{Count: len(outcome.Removed), Items: nonNil(outcome.Removed)},
		SkippedConflicts: nonNil(outcome.SkippedConflicts),
		Attention: dto.Attention{
			NoTeacherExpected: nonNil(outcome.NoTeacherExpected),
			NoTeacherExisting: nonNil(outcome.NoTeacherExisting),
			InvalidTemplates:  issues,
			HeldNeedsReview:   outcome.HeldNeedsReview,
			NotApplied:        outcome.NotApplied,
		},
		PerTeacher: BuildWorkloadReport(after),
	}, nil
}

// withoutClasses drops the sessions of classes whose template was rejected,
// so an unreadable template never reads as "no slots" and empties the class.
func withoutClasses(sessions []models.Session, issues []models.TemplateIssue) []models.Session {
	if len(issues) == 0 {
		return sessions
	}
	skip := make(map[string]struct{}, len(issues))
	for _, issue := range issues {
		skip[issue.ClassID] = struct{}{}
	}
	kept := make([]models.Session, 0, len(sessions))
	for _, session := range sessions {
		if _, ok := skip[session.ClassID]; !ok {
			kept = append(kept, session)
		}
	}
	return kept
}

// invalidateWorkload drops cached workload summaries of month. It detaches
// from ctx so a run that failed on its deadline still clears the cache.
func (s *ScheduleSyncService) invalidateWorkload(ctx context.Context, month string, logger *zap.Logger) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, cache.WorkloadPattern(month)); err != nil {
		logger.Warn("failed to invalidate workload cache", zap.Error(err))
	}
}

// afterRun does the non-fatal follow-up work of a successful run.
func (s *ScheduleSyncService) afterRun(ctx context.Context, req dto.ScheduleSyncRequest, result *dto.ScheduleSyncResult, logger *zap.Logger) {
	s.metrics.RecordSyncChanges("normalized", result.Normalized)
	s.metrics.RecordSyncChanges("created", result.Created.Count)
	s.metrics.RecordSyncChanges("updated", result.Updated.Count)
	s.metrics.RecordSyncChanges("removed", result.Removed.Count)
	s.metrics.RecordSyncChanges("skipped_conflict", len(result.SkippedConflicts))
	s.metrics.RecordSyncChanges("no_teacher", len(result.Attention.NoTeacherExpected))

	s.invalidateWorkload(ctx, result.Month, logger)

	runID := uuid.NewString()
	if s.audit != nil {
		summary, _ := json.Marshal(map[string]interface{}{
			"run_id":            runID,
			"month":             result.Month,
			"mode":              result.Mode,
			"class_id":          result.ClassID,
			"trigger":           req.Trigger,
			"normalized":        result.Normalized,
			"created":           result.Created.Count,
			"updated":           result.Updated.Count,
			"removed":           result.Removed.Count,
			"skipped_conflicts": len(result.SkippedConflicts),
		})
		entry := &models.AuditLog{
			Action:    models.AuditActionScheduleSyncRun,
			Resource:  models.JobScheduleSync,
			NewValues: summary,
		}
		if req.ActorID != "" {
			actor := req.ActorID
			entry.UserID = &actor
		}
		if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
			logger.Warn("failed to audit schedule sync run", zap.Error(err))
		}
	}

	if s.downstream != nil {
		if failed := s.downstream.Fire(dto.RecalculationPayload{Month: result.Month, ClassID: result.ClassID, RunID: runID}); failed > 0 {
			logger.Warn("downstream recalculation not enqueued", zap.Int("failed", failed))
		}
	}
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
