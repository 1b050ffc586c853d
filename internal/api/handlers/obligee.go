package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// ObligeeHandler handles the obligee directory.
type ObligeeHandler struct {
	obligees   *services.ObligeeService
	logService *services.LogService
}

// NewObligeeHandler creates a new ObligeeHandler instance.
func NewObligeeHandler(obligees *services.ObligeeService, logService *services.LogService) *ObligeeHandler {
	return &ObligeeHandler{obligees: obligees, logService: logService}
}

// CreateObligeeRequest registers a new obligee.
type CreateObligeeRequest struct {
	Name   string   `json:"name" binding:"required"`
	Street string   `json:"street"`
	City   string   `json:"city"`
	Zip    string   `json:"zip"`
	Emails []string `json:"emails" binding:"required"`
}

// Create registers an obligee.
// POST /api/obligees
func (h *ObligeeHandler) Create(c *gin.Context) {
	var req CreateObligeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	o, err := h.obligees.Create(req.Name, req.Street, req.City, req.Zip, req.Emails)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, o)
}

// List returns obligees, filtered by an optional name substring.
// GET /api/obligees?search=...&limit=...
func (h *ObligeeHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	os, err := h.obligees.List(c.Query("search"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"obligees": os})
}

// Get returns one obligee.
// GET /api/obligees/:id
func (h *ObligeeHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid obligee ID")
		return
	}

	o, err := h.obligees.Get(uint(id))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, o)
}

// SetActive enables or disables an obligee for new inforequests.
// PUT /api/obligees/:id/active
func (h *ObligeeHandler) SetActive(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondBadRequest(c, "Invalid obligee ID")
		return
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.obligees.SetActive(uint(id), req.Active); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"active": req.Active})
}
