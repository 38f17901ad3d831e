package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-roster-sync/internal/dto"
	"github.com/noah-isme/sma-roster-sync/internal/models"
	"github.com/noah-isme/sma-roster-sync/internal/service"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
	"github.com/noah-isme/sma-roster-sync/pkg/response"
)

type sessionService interface {
	Open(ctx context.Context, owner string, req dto.OpenSessionRequest) (*models.SessionSummary, error)
	Authorize(id, userID string, admin bool) error
	SelectKey(ctx context.Context, id string, req dto.SelectKeyRequest) (*models.WorkingSetView, error)
	WorkingSet(id string) (*models.WorkingSetView, error)
	EditRecord(ctx context.Context, id, entityID string, req dto.EditRecordRequest) (*models.RecordView, error)
	BulkEdit(ctx context.Context, id string, req dto.BulkEditRequest) (*models.BulkEditSummary, error)
	Submit(ctx context.Context, id string) (*models.SubmissionOutcome, error)
	ClearDraft(ctx context.Context, id string) (*models.WorkingSetView, error)
	Close(id string) error
}

type rosterExporter interface {
	Render(view *models.WorkingSetView, format string) (*service.ExportFile, error)
}

// SessionHandler exposes the annotation editing endpoints.
type SessionHandler struct {
	sessions sessionService
	exporter rosterExporter
}

// NewSessionHandler builds a new handler.
func NewSessionHandler(sessions sessionService, exporter rosterExporter) *SessionHandler {
	return &SessionHandler{sessions: sessions, exporter: exporter}
}

// Open godoc
// @Summary Open an editing session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param payload body dto.OpenSessionRequest true "Workflow to edit"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	summary, err := h.sessions.Open(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, summary)
}

// SelectKey godoc
// @Summary Select the course offering and date to annotate
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SelectKeyRequest true "Roster key"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sessions/{id}/selection [put]
func (h *SessionHandler) SelectKey(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	var req dto.SelectKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid selection payload"))
		return
	}
	view, err := h.sessions.SelectKey(upstreamContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// WorkingSet godoc
// @Summary Get the working set for the selected key
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/records [get]
func (h *SessionHandler) WorkingSet(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	view, err := h.sessions.WorkingSet(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, map[string]interface{}{
		"total":     view.Total,
		"annotated": view.Annotated,
	})
}

// EditRecord godoc
// @Summary Edit one student's annotation
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param entityId path string true "Student ID"
// @Param payload body dto.EditRecordRequest true "Value and notes"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /sessions/{id}/records/{entityId} [patch]
func (h *SessionHandler) EditRecord(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	var req dto.EditRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}
	row, err := h.sessions.EditRecord(c.Request.Context(), id, c.Param("entityId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, row)
}

// BulkEdit godoc
// @Summary Apply one value to many students
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.BulkEditRequest true "Bulk edit"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/records/bulk [post]
func (h *SessionHandler) BulkEdit(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	var req dto.BulkEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk edit payload"))
		return
	}
	summary, err := h.sessions.BulkEdit(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// Submit godoc
// @Summary Submit the working set to the Roster Service
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	outcome, err := h.sessions.Submit(upstreamContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(outcome.Skipped) > 0 {
		meta = map[string]interface{}{"partial": true}
	}
	response.JSON(c, http.StatusOK, outcome, meta)
}

// ClearDraft godoc
// @Summary Discard the draft and reset to committed values
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/draft [delete]
func (h *SessionHandler) ClearDraft(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	view, err := h.sessions.ClearDraft(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Close godoc
// @Summary Close an editing session
// @Description The draft stays persisted and is restored by the next session that selects the same key.
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Close(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Download the working set as a roster sheet
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Session ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /sessions/{id}/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	id, ok := h.authorize(c)
	if !ok {
		return
	}
	var query dto.ExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	if query.Format == "" {
		query.Format = service.ExportFormatCSV
	}
	view, err := h.sessions.WorkingSet(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exporter.Render(view, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}

func (h *SessionHandler) authorize(c *gin.Context) (string, bool) {
	return authorizeSession(c, h.sessions)
}
