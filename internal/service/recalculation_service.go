package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/pkg/jobs"
)

// Downstream job types enqueued after a successful reconciliation.
const (
	JobPayrollRecalculate = "payroll.recalculate"
	JobTuitionRecalculate = "tuition.recalculate"
)

// Recalculator triggers a payroll or tuition recalculation for a period.
type Recalculator interface {
	Recalculate(ctx context.Context, jobType string, payload dto.RecalculationPayload) error
}

// WebhookRecalculator POSTs the payload to a URL per job type. Job types
// without a URL are only logged.
type WebhookRecalculator struct {
	client *http.Client
	urls   map[string]string
	logger *zap.Logger
}

// NewWebhookRecalculator builds the HTTP recalculator.
func NewWebhookRecalculator(client *http.Client, urls map[string]string, logger *zap.Logger) *WebhookRecalculator {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookRecalculator{client: client, urls: urls, logger: logger}
}

// Recalculate implements Recalculator.
func (r *WebhookRecalculator) Recalculate(ctx context.Context, jobType string, payload dto.RecalculationPayload) error {
	url := r.urls[jobType]
	if url == "" {
		r.logger.Info("no downstream endpoint configured, skipping",
			zap.String("type", jobType), zap.String("month", payload.Month), zap.String("run_id", payload.RunID))
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", jobType, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", jobType, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Job-Type", jobType)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", jobType, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned status %d", jobType, resp.StatusCode)
	}
	return nil
}

type jobEnqueuer interface {
	Register(jobType string, handler jobs.Handler)
	Enqueue(job jobs.Job) error
}

// DownstreamTrigger hands post-reconciliation recalculations to the job queue.
// The queue retries failed jobs; nothing here blocks or fails the run.
type DownstreamTrigger struct {
	queue        jobEnqueuer
	recalculator Recalculator
	metrics      *MetricsService
	logger       *zap.Logger
}

// NewDownstreamTrigger registers the payroll and tuition handlers on queue.
func NewDownstreamTrigger(queue jobEnqueuer, recalculator Recalculator, metrics *MetricsService, logger *zap.Logger) *DownstreamTrigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &DownstreamTrigger{queue: queue, recalculator: recalculator, metrics: metrics, logger: logger}
	for _, jobType := range []string{JobPayrollRecalculate, JobTuitionRecalculate} {
		queue.Register(jobType, t.handle)
	}
	return t
}

// Fire enqueues payroll then tuition recalculation. Enqueue failures are
// logged and reported back only as a count.
func (t *DownstreamTrigger) Fire(payload dto.RecalculationPayload) int {
	failed := 0
	for _, jobType := range []string{JobPayrollRecalculate, JobTuitionRecalculate} {
		if err := t.queue.Enqueue(jobs.Job{Type: jobType, Payload: payload}); err != nil {
			failed++
			t.metrics.RecordDownstreamJob(jobType, false)
			t.logger.Error("failed to enqueue downstream job",
				zap.String("type", jobType), zap.String("month", payload.Month), zap.Error(err))
		}
	}
	return failed
}

func (t *DownstreamTrigger) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(dto.RecalculationPayload)
	if !ok {
		t.logger.Error("unexpected downstream payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	err := t.recalculator.Recalculate(ctx, job.Type, payload)
	t.metrics.RecordDownstreamJob(job.Type, err == nil)
	if err != nil {
		return err
	}
	t.logger.Info("downstream recalculation done",
		zap.String("type", job.Type), zap.String("month", payload.Month), zap.String("run_id", payload.RunID), zap.Int("attempt", job.Attempt))
	return nil
}
