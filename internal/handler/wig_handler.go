package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/service"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/response"
)

// WigHandler exposes the wig catalog over HTTP.
type WigHandler struct {
	service *service.WigService
}

// NewWigHandler constructs the handler.
func NewWigHandler(svc *service.WigService) *WigHandler {
	return &WigHandler{service: svc}
}

// Create godoc
// @Summary Register a wig
// @Tags Wigs
// @Accept json
// @Produce json
// @Param payload body dto.CreateWigRequest true "Wig payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /wigs [post]
func (h *WigHandler) Create(c *gin.Context) {
	var req dto.CreateWigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid wig payload"))
		return
	}
	wig, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, wig)
}

// Get godoc
// @Summary Get one wig
// @Tags Wigs
// @Produce json
// @Param id path int true "Wig ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /wigs/{id} [get]
func (h *WigHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid wig id"))
		return
	}
	wig, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wig, nil)
}

// List godoc
// @Summary List wigs
// @Tags Wigs
// @Produce json
// @Param available query bool false "Availability filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /wigs [get]
func (h *WigHandler) List(c *gin.Context) {
	filter := models.WigFilter{
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}
	if raw := c.Query("available"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid availability filter"))
			return
		}
		filter.Available = &available
	}

	wigs, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wigs, pagination)
}

// Update godoc
// @Summary Update a wig's attributes
// @Tags Wigs
// @Accept json
// @Produce json
// @Param id path int true "Wig ID"
// @Param payload body dto.UpdateWigRequest true "Wig payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /wigs/{id} [patch]
func (h *WigHandler) Update(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid wig id"))
		return
	}
	var req dto.UpdateWigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid wig payload"))
		return
	}
	wig, err := h.service.Update(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, wig, nil)
}

// Delete godoc
// @Summary Remove an undonated wig
// @Tags Wigs
// @Produce json
// @Param id path int true "Wig ID"
// @Success 204 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /wigs/{id} [delete]
func (h *WigHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid wig id"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
