package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/api/middleware"
	"github.com/mmmaly/chcemvediet-sub000/internal/database/models"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// InforequestHandler handles inforequest lifecycle requests.
type InforequestHandler struct {
	inforequests *services.InforequestService
	logService   *services.LogService
}

// NewInforequestHandler creates a new InforequestHandler instance.
func NewInforequestHandler(inforequests *services.InforequestService, logService *services.LogService) *InforequestHandler {
	return &InforequestHandler{
		inforequests: inforequests,
		logService:   logService,
	}
}

// CreateInforequestRequest represents the request to open a new inforequest.
type CreateInforequestRequest struct {
	Applicant struct {
		Ref    string `json:"ref" binding:"required"`
		Name   string `json:"name"`
		Street string `json:"street"`
		City   string `json:"city"`
		Zip    string `json:"zip"`
	} `json:"applicant" binding:"required"`
	ObligeeID     uint   `json:"obligee_id" binding:"required"`
	Subject       string `json:"subject" binding:"required"`
	Content       string `json:"content" binding:"required"`
	AttachmentIDs []uint `json:"attachment_ids"`
	SendEmail     bool   `json:"send_email"`
}

// Create opens a new inforequest.
// POST /api/inforequests
func (h *InforequestHandler) Create(c *gin.Context) {
	var req CreateInforequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ir, err := h.inforequests.CreateInforequest(services.CreateInforequestParams{
		Applicant: services.ApplicantIdentity{
			Ref:    req.Applicant.Ref,
			Name:   req.Applicant.Name,
			Street: req.Applicant.Street,
			City:   req.Applicant.City,
			Zip:    req.Applicant.Zip,
		},
		ObligeeID:     req.ObligeeID,
		Subject:       req.Subject,
		Content:       req.Content,
		AttachmentIDs: req.AttachmentIDs,
		Session:       middleware.Session(c),
		SendEmail:     req.SendEmail,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondCreated(c, ir)
}

// Get returns one inforequest with its branches and actions.
// GET /api/inforequests/:id
func (h *InforequestHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid inforequest ID")
		return
	}

	ir, err := h.inforequests.Get(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, ir)
}

// List returns the inforequests of one applicant.
// GET /api/inforequests?applicant=...
func (h *InforequestHandler) List(c *gin.Context) {
	applicant := c.Query("applicant")
	if applicant == "" {
		respondBadRequest(c, "applicant query parameter is required")
		return
	}

	irs, err := h.inforequests.ListByApplicant(applicant)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"inforequests": irs})
}

// AddActionRequest represents an applicant action submission.
type AddActionRequest struct {
	BranchID        uint     `json:"branch_id" binding:"required"`
	Type            string   `json:"type" binding:"required"`
	Subject         string   `json:"subject"`
	Content         string   `json:"content"`
	DisclosureLevel *string  `json:"disclosure_level"`
	RefusalReason   *string  `json:"refusal_reason"`
	ObligeeIDs      []uint   `json:"obligee_ids"`
	AttachmentIDs   []uint   `json:"attachment_ids"`
	Button          string   `json:"button"`
}

func (r *AddActionRequest) toParams(inforequestID uint, session string) services.AddActionParams {
	p := services.AddActionParams{
		InforequestID: inforequestID,
		BranchID:      r.BranchID,
		Type:          models.ActionType(r.Type),
		Subject:       r.Subject,
		Content:       r.Content,
		ObligeeIDs:    r.ObligeeIDs,
		AttachmentIDs: r.AttachmentIDs,
		Session:       session,
		Button:        services.SubmitButton(r.Button),
	}
	if r.DisclosureLevel != nil {
		level := models.DisclosureLevel(*r.DisclosureLevel)
		p.DisclosureLevel = &level
	}
	if r.RefusalReason != nil {
		reason := models.RefusalReason(*r.RefusalReason)
		p.RefusalReason = &reason
	}
	return p
}

// AddAction submits an applicant action, or stores a draft.
// POST /api/inforequests/:id/actions
func (h *InforequestHandler) AddAction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid inforequest ID")
		return
	}

	var req AddActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	action, draft, err := h.inforequests.AddApplicantAction(req.toParams(uint(id), middleware.Session(c)))
	if err != nil {
		respondError(c, err)
		return
	}
	if draft != nil {
		respondCreated(c, gin.H{"draft": draft})
		return
	}
	respondCreated(c, gin.H{"action": action})
}

// Close closes a closable inforequest.
// POST /api/inforequests/:id/close
func (h *InforequestHandler) Close(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid inforequest ID")
		return
	}

	if err := h.inforequests.Close(uint(id)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"closed": true})
}

// ExtendDeadlineRequest carries the number of extra working days.
type ExtendDeadlineRequest struct {
	Days int `json:"days" binding:"required"`
}

// ExtendDeadline grants extra working days on a branch's last action.
// POST /api/inforequests/:id/branches/:branchID/extend
func (h *InforequestHandler) ExtendDeadline(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid inforequest ID")
		return
	}
	branchID, err := strconv.ParseUint(c.Param("branchID"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid branch ID")
		return
	}

	var req ExtendDeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.inforequests.ExtendDeadline(uint(id), uint(branchID), req.Days); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"extended": true})
}

// GetDraft returns a stored draft.
// GET /api/drafts/:id
func (h *InforequestHandler) GetDraft(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid draft ID")
		return
	}

	draft, err := h.inforequests.GetDraft(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, draft)
}

// DeleteDraft removes a draft and its attachments.
// DELETE /api/drafts/:id
func (h *InforequestHandler) DeleteDraft(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid draft ID")
		return
	}

	if err := h.inforequests.DeleteDraft(uint(id)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"deleted": true})
}
