package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/api/middleware"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// EmailHandler handles the admin's email routing decisions.
type EmailHandler struct {
	router      *services.RouterService
	mailService *services.MailService
	logService  *services.LogService
}

// NewEmailHandler creates a new EmailHandler instance.
func NewEmailHandler(router *services.RouterService, mailService *services.MailService, logService *services.LogService) *EmailHandler {
	return &EmailHandler{
		router:      router,
		mailService: mailService,
		logService:  logService,
	}
}

// ListUndecided returns the undecided emails of one inforequest.
// GET /api/inforequests/:id/emails
func (h *EmailHandler) ListUndecided(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid inforequest ID")
		return
	}

	emails, err := h.router.ListUndecided(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"emails": emails})
}

// ListUnassigned returns inbound messages no inforequest matched.
// GET /api/messages/unassigned
func (h *EmailHandler) ListUnassigned(c *gin.Context) {
	msgs, err := h.mailService.ListUnassigned()
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"messages": msgs})
}

// DecideRequest classifies an undecided email as an obligee action.
type DecideRequest struct {
	BranchID        uint    `json:"branch_id" binding:"required"`
	Type            string  `json:"type" binding:"required"`
	Subject         string  `json:"subject"`
	Content         string  `json:"content"`
	DisclosureLevel *string `json:"disclosure_level"`
	RefusalReason   *string `json:"refusal_reason"`
	ObligeeIDs      []uint  `json:"obligee_ids"`
	AttachmentIDs   []uint  `json:"attachment_ids"`
}

// Decide turns an undecided email into an obligee action.
// POST /api/emails/:id/decide
func (h *EmailHandler) Decide(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid email ID")
		return
	}

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	p := services.AddActionParams{
		BranchID:      req.BranchID,
		Type:          models.ActionType(req.Type),
		Subject:       req.Subject,
		Content:       req.Content,
		ObligeeIDs:    req.ObligeeIDs,
		AttachmentIDs: req.AttachmentIDs,
		Session:       middleware.Session(c),
	}
	if req.DisclosureLevel != nil {
		level := models.DisclosureLevel(*req.DisclosureLevel)
		p.DisclosureLevel = &level
	}
	if req.RefusalReason != nil {
		reason := models.RefusalReason(*req.RefusalReason)
		p.RefusalReason = &reason
	}

	action, err := h.router.DecideEmail(uint(id), p)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"action": action})
}

// MarkRequest flips an undecided email to a non-action status.
type MarkRequest struct {
	Status string `json:"status" binding:"required"` // applicant_action, unrelated, unknown
}

// Mark classifies an undecided email without creating an action.
// POST /api/emails/:id/mark
func (h *EmailHandler) Mark(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid email ID")
		return
	}

	var req MarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.router.MarkEmail(uint(id), models.InforequestEmailStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"marked": true})
}

// Unassign detaches an email from its inforequest.
// DELETE /api/emails/:id
func (h *EmailHandler) Unassign(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid email ID")
		return
	}

	if err := h.router.UnassignEmail(uint(id)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"unassigned": true})
}

// GetMessage returns one raw message with its recipients.
// GET /api/messages/:id
func (h *EmailHandler) GetMessage(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid message ID")
		return
	}

	msg, err := h.mailService.GetMessage(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, msg)
}
