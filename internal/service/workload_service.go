package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/dto"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/cache"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/export"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type workloadCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

// ExportFile is a rendered workload document.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// WorkloadService reports per-teacher workload from persisted sessions.
type WorkloadService struct {
	sessions  periodSessionReader
	cache     workloadCache
	csv       csvRenderer
	pdf       pdfRenderer
	zone      *orgtime.Zone
	clock     orgtime.Clock
	validator *validator.Validate
	logger    *zap.Logger
	ttl       time.Duration
}

// NewWorkloadService constructs the service. cache may be nil.
func NewWorkloadService(sessions periodSessionReader, cache workloadCache, zone *orgtime.Zone, clock orgtime.Clock, validate *validator.Validate, logger *zap.Logger, ttl time.Duration) *WorkloadService {
	if zone == nil {
		zone = orgtime.NewZone(time.UTC)
	}
	if clock == nil {
		clock = orgtime.SystemClock{}
	}
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkloadService{
		sessions:  sessions,
		cache:     cache,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		zone:      zone,
		clock:     clock,
		validator: validate,
		logger:    logger,
		ttl:       ttl,
	}
}

// Summary returns the workload report for the requested month, defaulting to
// the current month in the organization zone. The bool reports a cache hit.
func (s *WorkloadService) Summary(ctx context.Context, query dto.WorkloadQuery) (*dto.WorkloadResponse, bool, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	month := s.zone.CurrentMonth(s.clock.Now())
	if query.Month != "" {
		parsed, err := orgtime.ParseMonth(query.Month)
		if err != nil {
			return nil, false, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		month = parsed
	}

	key := cache.WorkloadKey(month.String(), query.ClassID)
	if s.cache != nil {
		var cached dto.WorkloadResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	sessions, err := s.sessions.ListByPeriod(ctx, models.SessionFilter{
		ClassID:  query.ClassID,
		DateFrom: month.FirstDay(),
		DateTo:   month.LastDay(),
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	resp := &dto.WorkloadResponse{
		Month:      month.String(),
		ClassID:    query.ClassID,
		PerTeacher: BuildWorkloadReport(sessions),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.ttl); err != nil {
			s.logger.Debug("workload cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return resp, false, nil
}

// Export renders the workload summary as CSV or PDF.
func (s *WorkloadService) Export(ctx context.Context, query dto.WorkloadQuery) (*ExportFile, error) {
	if query.Format == "" {
		query.Format = "csv"
	}
	summary, _, err := s.Summary(ctx, query)
	if err != nil {
		return nil, err
	}

	dataset := workloadDataset(summary.PerTeacher)
	base := fmt.Sprintf("workload-%s", summary.Month)
	if summary.ClassID != "" {
		base += "-" + summary.ClassID
	}

	switch query.Format {
	case "pdf":
		subtitle := summary.Month
		if summary.ClassID != "" {
			subtitle += " / " + summary.ClassID
		}
		body, err := s.pdf.Render(dataset, "Teacher workload", subtitle)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv", Body: body}, nil
	}
}

func workloadDataset(reports []models.TeacherReport) export.Dataset {
	headers := []string{"teacher", "sessions", "scheduled_minutes", "held_minutes", "scheduled_hours"}
	rows := make([]map[string]string, 0, len(reports))
	var sessions, scheduled, held int
	for _, r := range reports {
		rows = append(rows, map[string]string{
			"teacher":           r.TeacherID,
			"sessions":          strconv.Itoa(r.SessionCount),
			"scheduled_minutes": strconv.Itoa(r.ScheduledMinutes),
			"held_minutes":      strconv.Itoa(r.HeldMinutes),
			"scheduled_hours":   strconv.FormatFloat(float64(r.ScheduledMinutes)/60, 'f', 2, 64),
		})
		sessions += r.SessionCount
		scheduled += r.ScheduledMinutes
		held += r.HeldMinutes
	}
	return export.Dataset{
		Headers: headers,
		Rows:    rows,
		Footer: []map[string]string{{
			"teacher":           "TOTAL",
			"sessions":          strconv.Itoa(sessions),
			"scheduled_minutes": strconv.Itoa(scheduled),
			"held_minutes":      strconv.Itoa(held),
			"scheduled_hours":   strconv.FormatFloat(float64(scheduled)/60, 'f', 2, 64),
		}},
	}
}
