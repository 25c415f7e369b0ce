package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-health-api/internal/dto"
	"github.com/noah-isme/sma-health-api/internal/models"
	"github.com/noah-isme/sma-health-api/internal/service"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
	"github.com/noah-isme/sma-health-api/pkg/response"
)

type reportService interface {
	SubmitReport(ctx context.Context, actor models.Actor, req dto.CreateReportRequest) (*models.HealthReport, error)
	TransitionStatus(ctx context.Context, actor models.Actor, id string, req dto.UpdateStatusRequest) (*models.HealthReport, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.HealthReport, error)
	ListAll(ctx context.Context, actor models.Actor, filter models.ReportFilter) ([]models.HealthReport, int, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.HealthReport, error)
}

type reportExporter interface {
	ExportReports(ctx context.Context, actor models.Actor, filter models.ReportFilter, format string) (*service.ExportResult, error)
}

// ReportHandler exposes the health report lifecycle.
type ReportHandler struct {
	reports  reportService
	exporter reportExporter
}

// NewReportHandler constructs the handler.
func NewReportHandler(reports reportService, exporter reportExporter) *ReportHandler {
	return &ReportHandler{reports: reports, exporter: exporter}
}

// Create godoc
// @Summary Submit a health report
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.CreateReportRequest true "Report payload"
// @Success 201 {object} models.HealthReport
// @Failure 400 {object} appErrors.Error
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	report, err := h.reports.SubmitReport(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, report)
}

// Mine godoc
// @Summary List the caller's reports
// @Tags Reports
// @Produce json
// @Success 200 {array} models.HealthReport
// @Router /reports/me [get]
func (h *ReportHandler) Mine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	reports, err := h.reports.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports)
}

// List godoc
// @Summary List all reports
// @Tags Reports
// @Produce json
// @Param status query string false "Status filter"
// @Param location query string false "Location id"
// @Param from query string false "Created at or after (YYYY-MM-DD or RFC 3339)"
// @Param to query string false "Created before (YYYY-MM-DD or RFC 3339)"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {array} models.HealthReport
// @Header 200 {integer} X-Total-Count "Unpaginated total"
// @Router /reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	reports, total, err := h.reports.ListAll(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	response.JSON(c, http.StatusOK, reports)
}

// Get godoc
// @Summary Get a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report id"
// @Success 200 {object} models.HealthReport
// @Failure 404 {object} appErrors.Error
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	report, err := h.reports.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// UpdateStatus godoc
// @Summary Transition a report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report id"
// @Param payload body dto.UpdateStatusRequest true "Next status"
// @Success 200 {object} models.HealthReport
// @Failure 409 {object} appErrors.Error
// @Router /reports/{id}/status [patch]
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status is required"))
		return
	}
	report, err := h.reports.TransitionStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Export godoc
// @Summary Export reports
// @Tags Reports
// @Produce text/csv,application/pdf
// @Param format query string false "csv (default) or pdf"
// @Param status query string false "Status filter"
// @Param location query string false "Location id"
// @Success 200 {file} file
// @Router /reports/export [get]
func (h *ReportHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	filter, err := reportFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.exporter.ExportReports(c.Request.Context(), actor, filter, c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, result.ContentType, result.Data)
}

func reportFilterFromQuery(c *gin.Context) (models.ReportFilter, error) {
	var q dto.ReportListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return models.ReportFilter{}, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters")
	}
	if q.Limit < 0 || q.Offset < 0 {
		return models.ReportFilter{}, appErrors.Clone(appErrors.ErrValidation, "limit and offset must not be negative")
	}
	filter := models.ReportFilter{
		LocationID: strings.TrimSpace(q.Location),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if status := strings.TrimSpace(q.Status); status != "" {
		s := models.ReportStatus(strings.ToLower(status))
		filter.Status = &s
	}
	var err error
	if filter.From, err = parseTimeParam("from", q.From); err != nil {
		return models.ReportFilter{}, err
	}
	if filter.To, err = parseTimeParam("to", q.To); err != nil {
		return models.ReportFilter{}, err
	}
	return filter, nil
}
