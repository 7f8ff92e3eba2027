package handlers

import (
	"context"
	"net/http"

	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
)

type AuthEventProcessor interface {
	Handle(ctx context.Context, event services.AuthEvent) (services.SessionClaims, error)
}

// AuthEventHandler receives the identity provider's authentication hooks
type AuthEventHandler struct {
	events AuthEventProcessor
}

func NewAuthEventHandler(events AuthEventProcessor) *AuthEventHandler {
	return &AuthEventHandler{events: events}
}

// Handle handles POST /hooks/auth-events and answers with the claims for the user's session
func (h *AuthEventHandler) Handle(c *gin.Context) {
	var event services.AuthEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := h.events.Handle(c.Request.Context(), event)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}
