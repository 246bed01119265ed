package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

// TriggerCron marks runs started by the timer.
const TriggerCron = "cron"

type scheduleSyncRunner interface {
	Run(ctx context.Context, req dto.ScheduleSyncRequest) (*dto.ScheduleSyncResult, error)
}

// SyncSchedulerConfig configures the timer trigger.
type SyncSchedulerConfig struct {
	Spec            string
	LookaheadMonths int
	RunTimeout      time.Duration
}

// SyncScheduler runs the reconciler on a cron schedule for the current month
// and the configured number of following months. Cron expressions are
// evaluated in the organization zone.
type SyncScheduler struct {
	runner scheduleSyncRunner
	zone   *orgtime.Zone
	clock  orgtime.Clock
	cfg    SyncSchedulerConfig
	logger *zap.Logger
	cron   *cron.Cron
}

// NewSyncScheduler validates the spec and builds a stopped scheduler.
func NewSyncScheduler(runner scheduleSyncRunner, zone *orgtime.Zone, clock orgtime.Clock, cfg SyncSchedulerConfig, logger *zap.Logger) (*SyncScheduler, error) {
	if zone == nil {
		zone = orgtime.NewZone(time.UTC)
	}
	if clock == nil {
		clock = orgtime.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	if cfg.LookaheadMonths < 0 {
		cfg.LookaheadMonths = 0
	}

	s := &SyncScheduler{runner: runner, zone: zone, clock: clock, cfg: cfg, logger: logger}
	// Overlapping ticks in this process are skipped; other processes are
	// kept out by the job lock.
	s.cron = cron.New(
		cron.WithLocation(zone.Location()),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid schedule sync cron %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins firing on schedule.
func (s *SyncScheduler) Start() {
	s.cron.Start()
	s.logger.Info("schedule sync cron started",
		zap.String("spec", s.cfg.Spec), zap.Int("lookahead_months", s.cfg.LookaheadMonths),
		zap.String("timezone", s.zone.Location().String()))
}

// Stop halts the scheduler and waits for a running tick to finish or ctx to end.
func (s *SyncScheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("schedule sync cron stop timed out")
	}
}

func (s *SyncScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RunTimeout)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce reconciles the current month and the lookahead months in order.
// Contention is expected when an administrator run is in flight and is only
// logged at info level.
func (s *SyncScheduler) RunOnce(ctx context.Context) []string {
	current := s.zone.CurrentMonth(s.clock.Now())
	var completed []string
	for i := 0; i <= s.cfg.LookaheadMonths; i++ {
		month := current.AddMonths(i).String()
		result, err := s.runner.Run(ctx, dto.ScheduleSyncRequest{
			Month:   month,
			Mode:    dto.ReconcileModeFutureOnly,
			Trigger: TriggerCron,
		})
		switch {
		case errors.Is(err, appErrors.ErrJobRunning):
			s.logger.Info("scheduled sync skipped, month already running", zap.String("month", month))
		case err != nil:
			s.logger.Error("scheduled sync failed", zap.String("month", month), zap.Error(err))
		default:
			completed = append(completed, month)
			s.logger.Info("scheduled sync completed",
				zap.String("month", month),
				zap.Int("created", result.Created.Count),
				zap.Int("updated", result.Updated.Count),
				zap.Int("removed", result.Removed.Count),
				zap.Int("skipped_conflicts", len(result.SkippedConflicts)))
		}
		if ctx.Err() != nil {
			break
		}
	}
	return completed
}
