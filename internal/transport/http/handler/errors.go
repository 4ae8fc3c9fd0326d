package handler

import (
	"errors"
	"net/http"

	"github.com/ErlanBelekov/channel-gate/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	errInternalServer  = "Internal server error"
	errSessionNotFound = "Invite session not found"
	errInvalidAt       = "Query parameter 'at' must be an RFC 3339 timestamp"
)

// writeDomainError maps a domain sentinel to its status code. It reports
// false when err is not one of them.
func writeDomainError(c *gin.Context, err error) bool {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidProof):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPaymentNotVerified):
		status = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrWindowClosed):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyMember), errors.Is(err, domain.ErrSessionActive):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrRevokeFailed):
		status = http.StatusBadGateway
	case errors.Is(err, domain.ErrCollaboratorUnavailable):
		status = http.StatusServiceUnavailable
	default:
		return false
	}
	c.JSON(status, gin.H{"error": err.Error()})
	return true
}
