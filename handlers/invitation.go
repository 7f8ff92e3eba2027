package handlers

import (
	"context"
	"net/http"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
)

// Invitations is the mutation surface the handler drives
type Invitations interface {
	CreateOrganisation(ctx context.Context, actor services.Actor, req services.CreateOrganisationRequest) (services.MutationResult, error)
	CreateTeam(ctx context.Context, actor services.Actor, req services.CreateTeamRequest) (services.MutationResult, error)
	CreateOwnTeam(ctx context.Context, actor services.Actor, req services.CreateOwnTeamRequest) (services.MutationResult, error)
	AddOrganisationOwner(ctx context.Context, actor services.Actor, req services.AddOrganisationOwnerRequest) (services.MutationResult, error)
	AddTeamUser(ctx context.Context, actor services.Actor, req services.AddTeamUserRequest) (services.MutationResult, error)
}

// InvitationHandler handles organisation and team invitation requests
type InvitationHandler struct {
	invitations Invitations
}

func NewInvitationHandler(invitations Invitations) *InvitationHandler {
	return &InvitationHandler{invitations: invitations}
}

// inviteeBody identifies the invited person. userId wins over email.
type inviteeBody struct {
	Email  string `json:"email"`
	UserID string `json:"userId"`
}

func (b inviteeBody) invitee() (services.Invitee, error) {
	return services.NewInvitee(b.Email, b.UserID)
}

type createOrganisationBody struct {
	Name string `json:"name"`
	inviteeBody
}

type createTeamBody struct {
	OrganisationID string `json:"organisationId"`
	Name           string `json:"name"`
	inviteeBody
}

type createOwnTeamBody struct {
	OrganisationID string `json:"organisationId"`
	Name           string `json:"name"`
}

type addTeamUserBody struct {
	UserType string `json:"userType"`
	inviteeBody
}

// CreateOrganisation handles POST /api/organisations
func (h *InvitationHandler) CreateOrganisation(c *gin.Context) {
	var body createOrganisationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, err := body.invitee()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.invitations.CreateOrganisation(c.Request.Context(), actorFrom(c), services.CreateOrganisationRequest{
		Name:  body.Name,
		Owner: owner,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateTeam handles POST /api/teams
func (h *InvitationHandler) CreateTeam(c *gin.Context) {
	var body createTeamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	manager, err := body.invitee()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.invitations.CreateTeam(c.Request.Context(), actorFrom(c), services.CreateTeamRequest{
		OrganisationID: body.OrganisationID,
		Name:           body.Name,
		Manager:        manager,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateOwnTeam handles POST /api/teams/own
func (h *InvitationHandler) CreateOwnTeam(c *gin.Context) {
	var body createOwnTeamBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.invitations.CreateOwnTeam(c.Request.Context(), actorFrom(c), services.CreateOwnTeamRequest{
		OrganisationID: body.OrganisationID,
		Name:           body.Name,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddOrganisationOwner handles POST /api/organisations/:id/owners
func (h *InvitationHandler) AddOrganisationOwner(c *gin.Context) {
	var body inviteeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner, err := body.invitee()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.invitations.AddOrganisationOwner(c.Request.Context(), actorFrom(c), services.AddOrganisationOwnerRequest{
		OrganisationID: c.Param("id"),
		Owner:          owner,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AddTeamUser handles POST /api/teams/:id/users
func (h *InvitationHandler) AddTeamUser(c *gin.Context) {
	var body addTeamUserBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := body.invitee()
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.invitations.AddTeamUser(c.Request.Context(), actorFrom(c), services.AddTeamUserRequest{
		TeamID:   c.Param("id"),
		Relation: authz.Relation(body.UserType),
		User:     user,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
