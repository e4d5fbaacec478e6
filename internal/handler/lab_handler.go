package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/service"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/response"
)

// LabHandler exposes lab and computer endpoints.
type LabHandler struct {
	service *service.LabService
}

// NewLabHandler constructs a lab handler.
func NewLabHandler(svc *service.LabService) *LabHandler {
	return &LabHandler{service: svc}
}

// List godoc
// @Summary List labs
// @Tags Labs
// @Produce json
// @Param active query bool false "Filter by active flag"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /labs [get]
func (h *LabHandler) List(c *gin.Context) {
	var filter models.LabFilter
	filter.Active = boolQuery(c, "active")
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	labs, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, labs, pagination)
}

// Get godoc
// @Summary Get lab detail
// @Tags Labs
// @Produce json
// @Param id path string true "Lab ID"
// @Success 200 {object} response.Envelope
// @Router /labs/{id} [get]
func (h *LabHandler) Get(c *gin.Context) {
	lab, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lab, nil)
}

// Create godoc
// @Summary Create lab
// @Tags Labs
// @Accept json
// @Produce json
// @Param payload body service.LabRequest true "Lab payload"
// @Success 201 {object} response.Envelope
// @Router /labs [post]
func (h *LabHandler) Create(c *gin.Context) {
	var req service.LabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lab, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lab)
}

// Update godoc
// @Summary Update lab
// @Tags Labs
// @Accept json
// @Produce json
// @Param id path string true "Lab ID"
// @Param payload body service.LabRequest true "Lab payload"
// @Success 200 {object} response.Envelope
// @Router /labs/{id} [put]
func (h *LabHandler) Update(c *gin.Context) {
	var req service.LabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	lab, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lab, nil)
}

// Delete godoc
// @Summary Delete lab
// @Tags Labs
// @Produce json
// @Param id path string true "Lab ID"
// @Success 204
// @Router /labs/{id} [delete]
func (h *LabHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListComputers godoc
// @Summary List computers
// @Tags Computers
// @Produce json
// @Param lab_id query string false "Filter by lab"
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /computers [get]
func (h *LabHandler) ListComputers(c *gin.Context) {
	var filter models.ComputerFilter
	filter.LabID = c.Query("lab_id")
	filter.Active = boolQuery(c, "active")
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	computers, total, err := h.service.ListComputers(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	response.JSON(c, http.StatusOK, computers, pagination)
}

// GetComputer godoc
// @Summary Get computer detail
// @Tags Computers
// @Produce json
// @Param id path string true "Computer ID"
// @Success 200 {object} response.Envelope
// @Router /computers/{id} [get]
func (h *LabHandler) GetComputer(c *gin.Context) {
	computer, err := h.service.GetComputer(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, computer, nil)
}

// CreateComputer godoc
// @Summary Create computer
// @Tags Computers
// @Accept json
// @Produce json
// @Param payload body service.ComputerRequest true "Computer payload"
// @Success 201 {object} response.Envelope
// @Router /computers [post]
func (h *LabHandler) CreateComputer(c *gin.Context) {
	var req service.ComputerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	computer, err := h.service.CreateComputer(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, computer)
}

// UpdateComputer godoc
// @Summary Update computer
// @Tags Computers
// @Accept json
// @Produce json
// @Param id path string true "Computer ID"
// @Param payload body service.ComputerRequest true "Computer payload"
// @Success 200 {object} response.Envelope
// @Router /computers/{id} [put]
func (h *LabHandler) UpdateComputer(c *gin.Context) {
	var req service.ComputerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	computer, err := h.service.UpdateComputer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, computer, nil)
}

// DeleteComputer godoc
// @Summary Delete computer
// @Tags Computers
// @Produce json
// @Param id path string true "Computer ID"
// @Success 204
// @Router /computers/{id} [delete]
func (h *LabHandler) DeleteComputer(c *gin.Context) {
	if err := h.service.DeleteComputer(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
