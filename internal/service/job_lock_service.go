package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type jobLockStore interface {
	Acquire(ctx context.Context, job, period string) (bool, error)
	Release(ctx context.Context, job, period string) error
	List(ctx context.Context, job string, limit int) ([]models.JobLock, error)
}

// JobLockService serializes batch jobs per period and exposes run history.
type JobLockService struct {
	store     jobLockStore
	clock     orgtime.Clock
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewJobLockService constructs the service.
func NewJobLockService(store jobLockStore, clock orgtime.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *JobLockService {
	if clock == nil {
		clock = orgtime.SystemClock{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobLockService{store: store, clock: clock, metrics: metrics, validator: validate, logger: logger}
}

// Acquire opens a run for (job, period). false means another run is open,
// which callers treat as a normal outcome.
func (s *JobLockService) Acquire(ctx context.Context, job, period string) (bool, error) {
	ok, err := s.store.Acquire(ctx, job, period)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire job lock")
	}
	if !ok {
		s.metrics.RecordLockContention(job)
		s.logger.Info("job already running", zap.String("job", job), zap.String("period", period))
	}
	return ok, nil
}

// Release closes the open run for (job, period). It does not take the
// caller's context so a canceled request still frees the lock.
func (s *JobLockService) Release(job, period string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Release(ctx, job, period); err != nil {
		s.logger.Error("failed to release job lock", zap.String("job", job), zap.String("period", period), zap.Error(err))
		return err
	}
	return nil
}

// History lists lock rows newest first with their running duration.
func (s *JobLockService) History(ctx context.Context, query dto.JobLockQuery) ([]dto.JobLockView, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	locks, err := s.store.List(ctx, query.Job, query.Limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list job locks")
	}

	now := s.clock.Now()
	views := make([]dto.JobLockView, 0, len(locks))
	for _, lock := range locks {
		end := now
		if lock.FinishedAt != nil {
			end = *lock.FinishedAt
		}
		views = append(views, dto.JobLockView{
			JobLock:         lock,
			Running:         lock.Running(),
			DurationSeconds: end.Sub(lock.StartedAt).Seconds(),
		})
	}
	return views, nil
}
