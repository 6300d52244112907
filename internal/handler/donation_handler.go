package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/service"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/response"
)

// DonationHandler exposes donation finalization and reporting over HTTP.
type DonationHandler struct {
	service *service.DonationService
	exports *service.ExportService
}

// NewDonationHandler constructs the handler.
func NewDonationHandler(svc *service.DonationService, exports *service.ExportService) *DonationHandler {
	return &DonationHandler{service: svc, exports: exports}
}

// Donate godoc
// @Summary Donate a wig to an approved request
// @Description Finalizes the workflow: completes the request and deactivates the wig
// @Tags Donations
// @Accept json
// @Produce json
// @Param payload body dto.CreateDonationRequest true "Donation payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /donations [post]
func (h *DonationHandler) Donate(c *gin.Context) {
	var req dto.CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid donation payload"))
		return
	}
	donation, err := h.service.Donate(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, donation)
}

// Revert godoc
// @Summary Revert a recent donation
// @Description Undo a donation made within the revert window
// @Tags Donations
// @Produce json
// @Param id path int true "Donation ID"
// @Success 204 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /donations/{id}/revert [post]
func (h *DonationHandler) Revert(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid donation id"))
		return
	}
	if err := h.service.Revert(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Get godoc
// @Summary Get one donation
// @Tags Donations
// @Produce json
// @Param id path int true "Donation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /donations/{id} [get]
func (h *DonationHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid donation id"))
		return
	}
	donation, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, donation, nil)
}

// List godoc
// @Summary List donations
// @Tags Donations
// @Produce json
// @Param request_id query int false "Filter by request"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /donations [get]
func (h *DonationHandler) List(c *gin.Context) {
	filter := models.DonationFilter{
		RequestID: int64(intQuery(c, "request_id")),
		Page:      intQuery(c, "page"),
		PageSize:  intQuery(c, "page_size"),
	}
	donations, pagination, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, donations, pagination)
}

// ExportHistory godoc
// @Summary Export donation history as CSV
// @Tags Donations
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /donations/export [get]
func (h *DonationHandler) ExportHistory(c *gin.Context) {
	filter := models.DonationFilter{
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}
	result, err := h.exports.HistoryCSV(c.Request.Context(), claimsFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Receipt godoc
// @Summary Render a donation receipt PDF
// @Tags Donations
// @Produce json
// @Param id path int true "Donation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /donations/{id}/receipt [get]
func (h *DonationHandler) Receipt(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid donation id"))
		return
	}
	result, err := h.exports.ReceiptPDF(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadExport godoc
// @Summary Download a generated export by signed token
// @Tags Donations
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *DonationHandler) DownloadExport(c *gin.Context) {
	relPath, err := h.exports.ParseToken(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export file not found"))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment")
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
