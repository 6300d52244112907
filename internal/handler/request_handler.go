package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/service"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/response"
)

// RequestHandler exposes the wig request lifecycle over HTTP.
type RequestHandler struct {
	service *service.RequestService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(svc *service.RequestService) *RequestHandler {
	return &RequestHandler{service: svc}
}

// Submit godoc
// @Summary Submit a wig request
// @Description Create a new request with its evidence document attached as multipart form data
// @Tags Requests
// @Accept multipart/form-data
// @Produce json
// @Param note formData string false "Free-text note"
// @Param evidence formData file true "Evidence document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	fileHeader, err := c.FormFile("evidence")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence document is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read evidence upload"))
		return
	}
	defer file.Close() //nolint:errcheck
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read evidence upload"))
		return
	}

	input := dto.SubmitRequestInput{
		Note:             c.PostForm("note"),
		EvidenceFilename: fileHeader.Filename,
		EvidenceMIME:     fileHeader.Header.Get("Content-Type"),
		Evidence:         data,
	}

	request, err := h.service.Submit(c.Request.Context(), claimsFromContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List requests
// @Description List requests visible to the caller, optionally filtered by status
// @Tags Requests
// @Produce json
// @Param status query string false "Comma-separated status filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestQuery{
		Page:     intQuery(c, "page"),
		PageSize: intQuery(c, "page_size"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := models.Status(strings.TrimSpace(part))
			if !status.IsValid() {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status in filter"))
				return
			}
			query.Status = append(query.Status, status)
		}
	}

	requests, pagination, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Get a request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	request, err := h.service.Get(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdateNote godoc
// @Summary Update the request note
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.UpdateRequestNoteRequest true "Note payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id} [patch]
func (h *RequestHandler) UpdateNote(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	var req dto.UpdateRequestNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid note payload"))
		return
	}
	request, err := h.service.UpdateNote(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// UpdateStatus godoc
// @Summary Set the overall request status
// @Description Direct status path for single-institution deployments
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path int true "Request ID"
// @Param payload body dto.UpdateRequestStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/status [patch]
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	var req dto.UpdateRequestStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	request, err := h.service.UpdateStatus(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Cancel godoc
// @Summary Cancel a request
// @Description Cancels the request and force-cancels every still-open analysis
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	request, err := h.service.Cancel(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Delete an open request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 204 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), id, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// EvidenceLink godoc
// @Summary Issue a signed evidence download link
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /requests/{id}/evidence [get]
func (h *RequestHandler) EvidenceLink(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request id"))
		return
	}
	link, err := h.service.EvidenceLink(c.Request.Context(), id, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadEvidence godoc
// @Summary Download an evidence document by signed token
// @Tags Requests
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /evidence/{token} [get]
func (h *RequestHandler) DownloadEvidence(c *gin.Context) {
	file, err := h.service.OpenEvidence(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", "attachment")
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
