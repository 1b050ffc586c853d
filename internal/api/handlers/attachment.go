package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/api/middleware"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// maxUploadBytes bounds one uploaded attachment.
const maxUploadBytes = 10 * 1024 * 1024

// AttachmentHandler handles session-scoped uploads and downloads.
type AttachmentHandler struct {
	attachments *services.AttachmentService
	logService  *services.LogService
}

// NewAttachmentHandler creates a new AttachmentHandler instance.
func NewAttachmentHandler(attachments *services.AttachmentService, logService *services.LogService) *AttachmentHandler {
	return &AttachmentHandler{attachments: attachments, logService: logService}
}

// Upload stores a file owned by the caller's session. Submitting an action
// later clones it onto the action.
// POST /api/attachments
func (h *AttachmentHandler) Upload(c *gin.Context) {
	session := middleware.Session(c)
	if session == "" {
		respondBadRequest(c, "X-Session header is required for uploads")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		respondBadRequest(c, "file form field is required")
		return
	}
	defer file.Close()

	if header.Size > maxUploadBytes {
		respondBadRequest(c, "file too large")
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		respondError(c, err)
		return
	}
	if len(content) > maxUploadBytes {
		respondBadRequest(c, "file too large")
		return
	}

	att, err := h.attachments.Upload(models.OwnerSession, session,
		header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		respondError(c, err)
		return
	}

	respondCreated(c, att)
}

// ListSession returns the caller's session uploads.
// GET /api/attachments
func (h *AttachmentHandler) ListSession(c *gin.Context) {
	session := middleware.Session(c)
	if session == "" {
		respondBadRequest(c, "X-Session header is required")
		return
	}

	atts, err := h.attachments.ListByOwner(models.OwnerSession, session)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"attachments": atts})
}

// Download streams one attachment's content.
// GET /api/attachments/:id
func (h *AttachmentHandler) Download(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid attachment ID")
		return
	}

	att, err := h.attachments.Get(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}

	content, err := h.attachments.Content(att)
	if err != nil {
		respondError(c, err)
		return
	}

	contentType := att.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+att.Name+`"`)
	c.Data(http.StatusOK, contentType, content)
}
