package handler

import (
	"errors"
	"io"
	"net/http"

	"mailflow/internal/middleware"
	"mailflow/internal/rbac"
	"mailflow/internal/service"
	"mailflow/pkg/apperror"
	"mailflow/pkg/pagination"
	"mailflow/pkg/response"

	"github.com/gin-gonic/gin"
)

const batchArchivePermission = "mails.archive.batch"

type MailHandler struct {
	validation service.MailValidationService
	archive    service.MailArchiveService
	history    service.HistoryService
	guard      *rbac.PermissionGuard
	sweepDays  int
}

func NewMailHandler(validation service.MailValidationService, archive service.MailArchiveService, history service.HistoryService, guard *rbac.PermissionGuard, sweepDays int) *MailHandler {
	return &MailHandler{validation: validation, archive: archive, history: history, guard: guard, sweepDays: sweepDays}
}

// RegisterRoutes expects router to be behind RequireAuth
func (h *MailHandler) RegisterRoutes(router *gin.RouterGroup) {
	mails := router.Group("/api/mails")
	{
		mails.PUT("/incoming/:id/validate", h.Validate)
		mails.PUT("/incoming/:id/archive", h.Archive)
		mails.GET("/incoming/:id/history", h.ListHistory)
		mails.POST("/archive-batch", middleware.RequirePermission(h.guard, batchArchivePermission), h.ArchiveBatch)
	}
}

type archiveBatchRequest struct {
	Days     *int    `json:"days"`
	Comment  *string `json:"comment"`
	Category string  `json:"category"`
	Classeur string  `json:"classeur"`
}

// Validate moves a processed mail to validation, archiving it unless disabled
// @Summary      Validate incoming mail
// @Description  Validates a processed mail. Archives it in the same transaction unless auto_archive is false.
// @Tags         mails
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                        true   "Mail ID"
// @Param        payload  body      service.ValidateMailInput  false  "Validation options"
// @Success      200      {object}  response.Response{data=service.ValidationResult}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/mails/incoming/{id}/validate [put]
func (h *MailHandler) Validate(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.ValidateMailInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.validation.Validate(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// Archive archives a validated mail
// @Summary      Archive incoming mail
// @Description  Creates the archive record and stamps the mail archived. Idempotent.
// @Tags         mails
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      int                       true   "Mail ID"
// @Param        payload  body      service.ArchiveMailInput  false  "Archive options"
// @Success      200      {object}  response.Response{data=service.ArchiveResult}
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/mails/incoming/{id}/archive [put]
func (h *MailHandler) Archive(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req service.ArchiveMailInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	res, err := h.archive.Archive(c.Request.Context(), actor, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ArchiveBatch archives every processed mail older than the threshold.
// Reserved to admin and coordination, whatever the permission grants.
// @Summary      Archive processed mails in batch
// @Tags         mails
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      archiveBatchRequest  false  "Age threshold in days (default 7) and archive options"
// @Success      200      {object}  response.Response{data=service.SweepResult}
// @Failure      403      {object}  response.Response
// @Router       /api/mails/archive-batch [post]
func (h *MailHandler) ArchiveBatch(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	if !rbac.IsWorkflowPrivileged(actor.RoleID) {
		writeError(c, &apperror.ForbiddenError{Permission: batchArchivePermission})
		return
	}

	var req archiveBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}
	days := h.sweepDays
	if req.Days != nil {
		days = *req.Days
	}

	res, err := h.archive.Sweep(c.Request.Context(), actor, days, service.ArchiveMailInput{
		Comment:  req.Comment,
		Category: req.Category,
		Classeur: req.Classeur,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// ListHistory returns the trail of one mail
// @Summary      Mail history
// @Tags         mails
// @Security     BearerAuth
// @Produce      json
// @Param        id     path   int  true   "Mail ID"
// @Param        page   query  int  false  "Page number (default 1)"
// @Param        limit  query  int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/mails/incoming/{id}/history [get]
func (h *MailHandler) ListHistory(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	p := pagination.Parse(c)

	entries, total, err := h.history.ListMailHistory(c.Request.Context(), actor, id, p.Page, p.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"history": entries,
		"total":   total,
		"page":    p.Page,
		"limit":   p.Limit,
	}))
}
