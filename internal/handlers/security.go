package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/internal/security"
	"github.com/abdullahafiq394-creator/garagehub-backend-sub000/pkg/response"
)

// SecurityHandler exposes the deployment posture report.
type SecurityHandler struct {
	posture *security.PostureService
}

// NewSecurityHandler constructs a SecurityHandler.
func NewSecurityHandler(posture *security.PostureService) (*SecurityHandler, error) {
	if posture == nil {
		return nil, errors.New("security handler: posture service is required")
	}
	return &SecurityHandler{posture: posture}, nil
}

// GET /api/security/posture
func (h *SecurityHandler) Posture(c *gin.Context) {
	result := h.posture.Run(requestContext(c))
	response.Success(c, http.StatusOK, result)
}
