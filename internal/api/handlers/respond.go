package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmmaly/chcemvediet-sub000/internal/services"
)

// respondOK writes the standard success envelope.
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondCreated writes the success envelope with a 201.
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    data,
	})
}

// respondError maps service error kinds onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, services.ErrNotAllowed):
		status, code = http.StatusConflict, "NOT_ALLOWED"
	case errors.Is(err, services.ErrInvalidObligee):
		status, code = http.StatusBadRequest, "INVALID_OBLIGEE"
	case errors.Is(err, services.ErrAttachmentNotOwned):
		status, code = http.StatusForbidden, "ATTACHMENT_NOT_OWNED"
	case errors.Is(err, services.ErrResourceExhausted):
		status, code = http.StatusServiceUnavailable, "RESOURCE_EXHAUSTED"
	case errors.Is(err, services.ErrEmailAlreadyDecided):
		status, code = http.StatusConflict, "ALREADY_DECIDED"
	case errors.Is(err, services.ErrBranchNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	}

	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": err.Error(),
		},
	})
}

// respondBadRequest writes a validation failure with a fixed message.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": message,
		},
	})
}
