package handlers

import (
	"context"
	"net/http"

	"github.com/distinctlyminty44/role-based-rls/db"
	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
)

type Directory interface {
	ListOrganisations(ctx context.Context, actor services.Actor) ([]db.Organisation, error)
	ListTeams(ctx context.Context, actor services.Actor) ([]db.Team, error)
	Me(ctx context.Context, actor services.Actor) (*db.User, error)
}

// DirectoryHandler serves the read-only listings
type DirectoryHandler struct {
	directory Directory
}

func NewDirectoryHandler(directory Directory) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// ListOrganisations handles GET /api/organisations
func (h *DirectoryHandler) ListOrganisations(c *gin.Context) {
	orgs, err := h.directory.ListOrganisations(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organisations": orgs})
}

// ListTeams handles GET /api/teams
func (h *DirectoryHandler) ListTeams(c *gin.Context) {
	teams, err := h.directory.ListTeams(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

// Me handles GET /api/me
func (h *DirectoryHandler) Me(c *gin.Context) {
	user, err := h.directory.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
