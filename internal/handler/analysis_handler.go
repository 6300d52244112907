package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/service"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/response"
)

// AnalysisHandler exposes institution analyses over HTTP.
type AnalysisHandler struct {
	service *service.AnalysisService
}

// NewAnalysisHandler constructs the handler.
func NewAnalysisHandler(svc *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: svc}
}

// Claim godoc
// @Summary Claim a request for review
// @Description Create a pending analysis tying the calling institution to a request
// @Tags Analyses
// @Accept json
// @Produce json
// @Param payload body dto.ClaimAnalysisRequest true "Claim payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /analyses [post]
func (h *AnalysisHandler) Claim(c *gin.Context) {
	var req dto.ClaimAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid claim payload"))
		return
	}
	analysis, err := h.service.Claim(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, analysis)
}

// Advance godoc
// @Summary Advance an analysis
// @Description Move an analysis to a new reviewable status
// @Tags Analyses
// @Accept json
// @Produce json
// @Param id path int true "Analysis ID"
// @Param payload body dto.AdvanceAnalysisRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /analyses/{id} [patch]
func (h *AnalysisHandler) Advance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid analysis id"))
		return
	}
	var req dto.AdvanceAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	analysis, err := h.service.Advance(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending analysis
// @Tags Analyses
// @Produce json
// @Param id path int true "Analysis ID"
// @Success 204 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /analyses/{id} [delete]
func (h *AnalysisHandler) Withdraw(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid analysis id"))
		return
	}
	if err := h.service.Withdraw(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Get one analysis
// @Tags Analyses
// @Produce json
// @Param id path int true "Analysis ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analyses/{id} [get]
func (h *AnalysisHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid analysis id"))
		return
	}
	analysis, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analysis, nil)
}

// ListMine godoc
// @Summary List the calling institution's analyses
// @Tags Analyses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analyses [get]
func (h *AnalysisHandler) ListMine(c *gin.Context) {
	analyses, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analyses, nil)
}

// ListByRequest godoc
// @Summary List analyses of one request
// @Tags Analyses
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/analyses [get]
func (h *AnalysisHandler) ListByRequest(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	analyses, err := h.service.ListByRequest(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, analyses, nil)
}

// Summary godoc
// @Summary Summarize analyses of one request
// @Description Returns per-status counts across the request's analyses
// @Tags Analyses
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/summary [get]
func (h *AnalysisHandler) Summary(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	if claimsFromContext(c) == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	aggregate, err := h.service.Summarize(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, aggregate, nil)
}
