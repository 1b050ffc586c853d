package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// WebhookHandler receives delivery status callbacks from the outbound
// transport provider.
type WebhookHandler struct {
	mailService *services.MailService
	logService  *services.LogService
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(mailService *services.MailService, logService *services.LogService) *WebhookHandler {
	return &WebhookHandler{mailService: mailService, logService: logService}
}

// RecipientStatusRequest is one delivery event. mail narrows the update to
// one recipient; empty applies to all recipients of the message.
type RecipientStatusRequest struct {
	RemoteID string `json:"remote_id" binding:"required"`
	Mail     string `json:"mail"`
	Status   string `json:"status" binding:"required"`
	Details  string `json:"details"`
}

// RecipientStatus applies a delivery event. Repeated deliveries of the same
// event are harmless.
// POST /api/webhooks/recipient-status
func (h *WebhookHandler) RecipientStatus(c *gin.Context) {
	var req RecipientStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	status := models.RecipientStatus(req.Status)
	switch status {
	case models.RecipientStatusSent, models.RecipientStatusQueued,
		models.RecipientStatusRejected, models.RecipientStatusInvalid,
		models.RecipientStatusOpened, models.RecipientStatusUndefined:
	default:
		respondBadRequest(c, "Unknown recipient status: "+req.Status)
		return
	}

	if err := h.mailService.UpdateRecipientStatus(req.RemoteID, req.Mail, status, req.Details); err != nil {
		respondError(c, err)
		return
	}

	h.logService.LogDebug(0, models.LogModuleTransport, "webhook", "Recipient status updated", map[string]interface{}{
		"remote_id": req.RemoteID,
		"status":    req.Status,
	})
	respondOK(c, gin.H{"updated": true})
}
