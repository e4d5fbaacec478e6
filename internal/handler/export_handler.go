package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labsphere/labsphere-api/internal/service"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/response"
)

// ExportHandler serves roster and timetable exports, both the synchronous
// streamed variant and the queued background jobs.
type ExportHandler struct {
	service *service.ExportService
	jobs    *service.ExportJobService
}

// NewExportHandler constructs an export handler. jobs may be nil when
// background exports are disabled.
func NewExportHandler(svc *service.ExportService, jobs *service.ExportJobService) *ExportHandler {
	return &ExportHandler{service: svc, jobs: jobs}
}

// Roster godoc
// @Summary Export a class roster
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /classes/{id}/export/roster [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.Roster(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// Timetable godoc
// @Summary Export a class timetable
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} binary
// @Router /classes/{id}/export/timetable [get]
func (h *ExportHandler) Timetable(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.service.Timetable(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// CreateJob godoc
// @Summary Queue a background export
// @Tags Exports
// @Accept json
// @Produce json
// @Param request body service.ExportJobRequest true "Export request"
// @Success 202 {object} response.Envelope{data=models.ExportJob}
// @Router /exports [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	var req service.ExportJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request body"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// JobStatus godoc
// @Summary Get export job status
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope{data=models.ExportJob}
// @Router /exports/jobs/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	job, err := h.jobs.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}

// Download godoc
// @Summary Download a finished export
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/download/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	contentType := "text/csv"
	if download.Format == "pdf" {
		contentType = "application/pdf"
	}
	headers := map[string]string{
		"Content-Disposition": `attachment; filename="` + download.Filename + `"`,
	}
	c.DataFromReader(http.StatusOK, info.Size(), contentType, download.File, headers)
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Data)
}
