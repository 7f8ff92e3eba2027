package handlers

import (
	"errors"
	"net/http"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// respondError maps the service error taxonomy onto HTTP.
// Unauthorized and not-found responses carry no detail.
func respondError(c *gin.Context, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrReferentialIntegrity):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
	default:
		log.Error().Err(err).
			Str("path", c.FullPath()).
			Str("user_id", authz.GetUserIDFromContext(c)).
			Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// actorFrom reads the actor the session middleware stored
func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{
		UserID: authz.GetUserIDFromContext(c),
		Role:   authz.GetRoleFromContext(c),
	}
}
