package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/export"
)

const maxExportRows = 5000

type reportLister interface {
	List(ctx context.Context, filter models.ReportFilter) ([]models.HealthReport, int, error)
}

// ExportResult is a rendered attachment.
type ExportResult struct {
	Filename    string
	ContentType string
	Rows        int
	Data        []byte
}

// ExportService renders filtered report listings as CSV or PDF.
type ExportService struct {
	reports   reportLister
	locations locationIndexer
	renderers map[export.Format]export.Renderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the package defaults.
func NewExportService(reports reportLister, locations locationIndexer, logger *zap.Logger, csv, pdf export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.RendererFor(export.FormatCSV)
	}
	if pdf == nil {
		pdf = export.RendererFor(export.FormatPDF)
	}
	return &ExportService{
		reports:   reports,
		locations: locations,
		renderers: map[export.Format]export.Renderer{export.FormatCSV: csv, export.FormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// ExportReports renders reports matching filter. Pagination in filter is ignored; at most
// maxExportRows newest rows are exported.
func (s *ExportService) ExportReports(ctx context.Context, actor models.Actor, filter models.ReportFilter, rawFormat string) (*ExportResult, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can export reports")
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report status")
	}
	filter.Limit = maxExportRows
	filter.Offset = 0

	reports, total, err := s.reports.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load reports")
	}
	if total > len(reports) {
		s.logger.Warn("report export truncated", zap.Int("total", total), zap.Int("exported", len(reports)))
	}

	names := map[string]string{}
	if s.locations != nil {
		index, err := s.locations.LocationIndex(ctx)
		if err != nil {
			return nil, err
		}
		for id, loc := range index {
			names[id] = loc.Name
		}
	}

	now := s.now()
	data, err := s.renderers[format].Render(buildReportDataset(reports, names, now))
	if err != nil {
		s.logger.Error("render export failed", zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportResult{
		Filename:    format.Filename("health-reports", now),
		ContentType: format.ContentType(),
		Rows:        len(reports),
		Data:        data,
	}, nil
}

func buildReportDataset(reports []models.HealthReport, names map[string]string, at time.Time) export.Dataset {
	dataset := export.Dataset{
		Title: "Health reports " + at.UTC().Format("2006-01-02 15:04"),
		Columns: []export.Column{
			{Key: "id", Title: "ID", Width: 2.2},
			{Key: "created_at", Title: "Submitted", Width: 1.6},
			{Key: "location", Title: "Location", Width: 1.4},
			{Key: "symptoms", Title: "Symptoms", Width: 2},
			{Key: "status", Title: "Status", Width: 1},
			{Key: "reporter", Title: "Reporter", Width: 1.4},
			{Key: "transitions", Title: "Transitions", Width: 0.8},
			{Key: "note", Title: "Note", Width: 2.4},
		},
		Rows: make([]map[string]string, 0, len(reports)),
	}
	for _, r := range reports {
		location := r.LocationID
		if name, ok := names[r.LocationID]; ok && name != "" {
			location = name + " (" + r.LocationID + ")"
		}
		note := ""
		if r.Note != nil {
			note = *r.Note
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":          r.ID,
			"created_at":  r.CreatedAt.UTC().Format(time.RFC3339),
			"location":    location,
			"symptoms":    strings.Join(r.Symptoms, ", "),
			"status":      string(r.Status),
			"reporter":    r.ReporterID,
			"transitions": strconv.Itoa(len(r.StatusHistory)),
			"note":        note,
		})
	}
	return dataset
}
