package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type scriptedRunner struct {
	mu       sync.Mutex
	requests []dto.ScheduleSyncRequest
	errs     map[string]error
}

func (r *scriptedRunner) Run(ctx context.Context, req dto.ScheduleSyncRequest) (*dto.ScheduleSyncResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if err := r.errs[req.Month]; err != nil {
		return nil, err
	}
	return &dto.ScheduleSyncResult{Success: true, Month: req.Month}, nil
}

func TestSyncSchedulerRunOnceCoversLookahead(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"2026-01": appErrors.ErrJobRunning}}
	// Dec 31 17:30 UTC is already Jan 1 in Bangkok.
	clock := orgtime.FixedClock{At: time.Date(2025, time.December, 31, 17, 30, 0, 0, time.UTC)}
	scheduler, err := NewSyncScheduler(runner, bangkok(t), clock, SyncSchedulerConfig{Spec: "0 2 * * *", LookaheadMonths: 2}, nil)
	require.NoError(t, err)

	completed := scheduler.RunOnce(context.Background())

	assert.Equal(t, []string{"2026-02", "2026-03"}, completed)
	require.Len(t, runner.requests, 3)
	for _, req := range runner.requests {
		assert.Equal(t, dto.ReconcileModeFutureOnly, req.Mode)
		assert.Equal(t, TriggerCron, req.Trigger)
	}
	assert.Equal(t, "2026-01", runner.requests[0].Month)
}

func TestSyncSchedulerContinuesAfterFailure(t *testing.T) {
	runner := &scriptedRunner{errs: map[string]error{"2025-09": errStorage}}
	clock := orgtime.FixedClock{At: syncNow}
	scheduler, err := NewSyncScheduler(runner, bangkok(t), clock, SyncSchedulerConfig{Spec: "@daily", LookaheadMonths: 1}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"2025-10"}, scheduler.RunOnce(context.Background()))
}

func TestSyncSchedulerRejectsInvalidSpec(t *testing.T) {
	_, err := NewSyncScheduler(&scriptedRunner{}, bangkok(t), nil, SyncSchedulerConfig{Spec: "every now and then"}, nil)
	assert.Error(t, err)
}

func TestSyncSchedulerStartStop(t *testing.T) {
	scheduler, err := NewSyncScheduler(&scriptedRunner{}, nil, nil, SyncSchedulerConfig{Spec: "0 2 * * *"}, nil)
	require.NoError(t, err)

	scheduler.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	scheduler.Stop(ctx)
}
