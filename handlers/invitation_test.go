package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/distinctlyminty44/role-based-rls/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInvitations
type MockInvitations struct {
	mock.Mock
}

func (m *MockInvitations) CreateOrganisation(ctx context.Context, actor services.Actor, req services.CreateOrganisationRequest) (services.MutationResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(services.MutationResult), args.Error(1)
}

func (m *MockInvitations) CreateTeam(ctx context.Context, actor services.Actor, req services.CreateTeamRequest) (services.MutationResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(services.MutationResult), args.Error(1)
}

func (m *MockInvitations) CreateOwnTeam(ctx context.Context, actor services.Actor, req services.CreateOwnTeamRequest) (services.MutationResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(services.MutationResult), args.Error(1)
}

func (m *MockInvitations) AddOrganisationOwner(ctx context.Context, actor services.Actor, req services.AddOrganisationOwnerRequest) (services.MutationResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(services.MutationResult), args.Error(1)
}

func (m *MockInvitations) AddTeamUser(ctx context.Context, actor services.Actor, req services.AddTeamUserRequest) (services.MutationResult, error) {
	args := m.Called(ctx, actor, req)
	return args.Get(0).(services.MutationResult), args.Error(1)
}

// withActor stands in for the session middleware
func withActor(userID string, role authz.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz.SetActor(c, userID, userID+"@x.com", role)
		c.Next()
	}
}

func newInvitationRouter(inv Invitations, userID string, role authz.Role) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewInvitationHandler(inv)
	api := r.Group("/api", withActor(userID, role))
	api.POST("/organisations", h.CreateOrganisation)
	api.POST("/teams", h.CreateTeam)
	api.POST("/teams/own", h.CreateOwnTeam)
	api.POST("/organisations/:id/owners", h.AddOrganisationOwner)
	api.POST("/teams/:id/users", h.AddTeamUser)
	return r
}

func TestInvitationHandler(t *testing.T) {
	platform := services.Actor{UserID: "platform-1", Role: authz.RolePlatform}
	owner := services.Actor{UserID: "owner-1", Role: authz.RoleOwner}
	manager := services.Actor{UserID: "mgr-1", Role: authz.RoleManager}

	tests := []struct {
		name       string
		actor      services.Actor
		path       string
		body       string
		setupMock  func(m *MockInvitations)
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name:  "create organisation by email",
			actor: platform,
			path:  "/api/organisations",
			body:  `{"name":"Acme","email":"a@x.com"}`,
			setupMock: func(m *MockInvitations) {
				m.On("CreateOrganisation", mock.Anything, platform, services.CreateOrganisationRequest{
					Name: "Acme", Owner: services.ByEmail{Email: "a@x.com"},
				}).Return(services.MutationResult{Applied: true, ResourceID: "org-1", UserID: "ph-a", Resolution: services.ResolutionCreated}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"applied": true, "resourceId": "org-1", "userId": "ph-a", "resolution": "created"},
		},
		{
			name:  "resolution failure is a 200 with applied false",
			actor: platform,
			path:  "/api/organisations",
			body:  `{"name":"Acme","email":"a@x.com"}`,
			setupMock: func(m *MockInvitations) {
				m.On("CreateOrganisation", mock.Anything, platform, mock.Anything).
					Return(services.MutationResult{Resolution: services.ResolutionFailed}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"applied": false, "resolution": "failed"},
		},
		{
			name:       "missing invitee is a validation error",
			actor:      platform,
			path:       "/api/organisations",
			body:       `{"name":"Acme"}`,
			setupMock:  func(*MockInvitations) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:  "create team by user id",
			actor: owner,
			path:  "/api/teams",
			body:  `{"organisationId":"org-1","name":"Core","email":"b@x.com","userId":"user-b"}`,
			setupMock: func(m *MockInvitations) {
				m.On("CreateTeam", mock.Anything, owner, services.CreateTeamRequest{
					OrganisationID: "org-1", Name: "Core", Manager: services.ByUserID{UserID: "user-b"},
				}).Return(services.MutationResult{Applied: true, ResourceID: "team-1", UserID: "user-b", Resolution: services.ResolutionFoundExisting}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"applied": true, "resourceId": "team-1", "userId": "user-b", "resolution": "found_existing"},
		},
		{
			name:  "create own team",
			actor: owner,
			path:  "/api/teams/own",
			body:  `{"organisationId":"org-1","name":"Ops"}`,
			setupMock: func(m *MockInvitations) {
				m.On("CreateOwnTeam", mock.Anything, owner, services.CreateOwnTeamRequest{OrganisationID: "org-1", Name: "Ops"}).
					Return(services.MutationResult{Applied: true, ResourceID: "team-2", UserID: "owner-1", Resolution: services.ResolutionFoundExisting}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "foreign organisation is not found",
			actor: owner,
			path:  "/api/organisations/org-b/owners",
			body:  `{"email":"c@x.com"}`,
			setupMock: func(m *MockInvitations) {
				m.On("AddOrganisationOwner", mock.Anything, owner, services.AddOrganisationOwnerRequest{
					OrganisationID: "org-b", Owner: services.ByEmail{Email: "c@x.com"},
				}).Return(services.MutationResult{}, services.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantBody:   map[string]any{"error": "not found"},
		},
		{
			name:  "tier failure is forbidden without detail",
			actor: manager,
			path:  "/api/organisations/org-1/owners",
			body:  `{"email":"c@x.com"}`,
			setupMock: func(m *MockInvitations) {
				m.On("AddOrganisationOwner", mock.Anything, manager, mock.Anything).
					Return(services.MutationResult{}, services.ErrUnauthorized)
			},
			wantStatus: http.StatusForbidden,
			wantBody:   map[string]any{"error": "forbidden"},
		},
		{
			name:  "add team member",
			actor: manager,
			path:  "/api/teams/team-1/users",
			body:  `{"userType":"members","email":"d@x.com"}`,
			setupMock: func(m *MockInvitations) {
				m.On("AddTeamUser", mock.Anything, manager, services.AddTeamUserRequest{
					TeamID: "team-1", Relation: authz.RelationMembers, User: services.ByEmail{Email: "d@x.com"},
				}).Return(services.MutationResult{Applied: true, ResourceID: "team-1", UserID: "user-d", Resolution: services.ResolutionFoundExisting}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:  "integrity violation is a conflict",
			actor: manager,
			path:  "/api/teams/team-1/users",
			body:  `{"userType":"managers","userId":"user-e"}`,
			setupMock: func(m *MockInvitations) {
				m.On("AddTeamUser", mock.Anything, manager, mock.Anything).
					Return(services.MutationResult{}, services.ErrReferentialIntegrity)
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "malformed json",
			actor:      manager,
			path:       "/api/teams/team-1/users",
			body:       `{"userType":`,
			setupMock:  func(*MockInvitations) {},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &MockInvitations{}
			tt.setupMock(m)
			r := newInvitationRouter(m, tt.actor.UserID, tt.actor.Role)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != nil {
				var got map[string]any
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
				assert.Equal(t, tt.wantBody, got)
			}
			m.AssertExpectations(t)
		})
	}
}

func TestRespondError_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	_, err := services.NewInvitee("not-an-email", "")
	respondError(c, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"validation failed","fields":{"email":"must be an email address"}}`, w.Body.String())
}

func TestRespondError_Internal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}
