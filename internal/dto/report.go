package dto

// CreateReportRequest captures POST /reports payload. ReporterID is honoured only for administrators
// submitting on behalf of a student.
type CreateReportRequest struct {
	Symptoms   []string `json:"symptoms" validate:"required,min=1,dive,required"`
	Location   string   `json:"location" validate:"required"`
	Note       *string  `json:"note,omitempty"`
	ReporterID string   `json:"reporterId,omitempty"`
}

// UpdateStatusRequest captures PATCH .../status payloads for reports and actions.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// ReportListQuery holds GET /reports query parameters.
type ReportListQuery struct {
	Status   string `form:"status"`
	Location string `form:"location"`
	From     string `form:"from"`
	To       string `form:"to"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
	Format   string `form:"format"`
}
