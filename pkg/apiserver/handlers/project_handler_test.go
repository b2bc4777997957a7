package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/timeledger/timeledger/pkg/model"
	"github.com/timeledger/timeledger/pkg/store"
)

type fakeProjectStore struct {
	projects    map[uuid.UUID]*model.Project
	memberships []*model.ProjectMembership
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: map[uuid.UUID]*model.Project{}}
}

func (f *fakeProjectStore) Create(_ context.Context, project *model.Project) error {
	f.projects[project.ID] = project
	return nil
}

func (f *fakeProjectStore) GetByID(_ context.Context, orgID, id uuid.UUID) (*model.Project, error) {
	project, ok := f.projects[id]
	if !ok || project.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return project, nil
}

func (f *fakeProjectStore) List(_ context.Context, orgID uuid.UUID, filter store.ProjectFilter, limit, offset int) ([]model.Project, int64, error) {
	var out []model.Project
	for _, project := range f.projects {
		if project.OrganizationID != orgID {
			continue
		}
		if filter.CustomerID != nil && project.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && project.Status != *filter.Status {
			continue
		}
		if filter.VisibleToUserID != nil {
			if !project.IsActive {
				continue
			}
			member := false
			for _, m := range f.memberships {
				if m.ProjectID == project.ID && m.UserID == *filter.VisibleToUserID && m.IsActive {
					member = true
					break
				}
			}
			if !member {
				continue
			}
		}
		out = append(out, *project)
	}
	return out, int64(len(out)), nil
}

func (f *fakeProjectStore) Save(_ context.Context, project *model.Project) error {
	f.projects[project.ID] = project
	return nil
}

func (f *fakeProjectStore) ActiveMembership(_ context.Context, orgID, projectID, userID uuid.UUID) (*model.ProjectMembership, error) {
	for _, m := range f.memberships {
		if m.OrganizationID == orgID && m.ProjectID == projectID && m.UserID == userID && m.IsActive {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProjectStore) ListMembers(_ context.Context, orgID, projectID uuid.UUID) ([]model.ProjectMembership, error) {
	var out []model.ProjectMembership
	for _, m := range f.memberships {
		if m.OrganizationID == orgID && m.ProjectID == projectID && m.IsActive {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeProjectStore) AddMember(_ context.Context, orgID, projectID, userID uuid.UUID, rate *float64) (*model.ProjectMembership, error) {
	for _, m := range f.memberships {
		if m.ProjectID == projectID && m.UserID == userID && m.IsActive {
			return nil, store.ErrDuplicateMembership
		}
	}
	membership := &model.ProjectMembership{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ProjectID:      projectID,
		UserID:         userID,
		HourlyRate:     rate,
		IsActive:       true,
	}
	f.memberships = append(f.memberships, membership)
	return membership, nil
}

func (f *fakeProjectStore) RemoveMember(_ context.Context, orgID, projectID, userID uuid.UUID) error {
	for _, m := range f.memberships {
		if m.OrganizationID == orgID && m.ProjectID == projectID && m.UserID == userID && m.IsActive {
			m.IsActive = false
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeUserLookup struct {
	users map[uuid.UUID]*model.User
}

func (f *fakeUserLookup) GetByID(_ context.Context, orgID, id uuid.UUID) (*model.User, error) {
	user, ok := f.users[id]
	if !ok || user.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type fakeCustomerLookup struct {
	customers map[uuid.UUID]*model.Customer
}

func (f *fakeCustomerLookup) GetByID(_ context.Context, orgID, id uuid.UUID) (*model.Customer, error) {
	customer, ok := f.customers[id]
	if !ok || customer.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return customer, nil
}

type fakeSOWLookup struct {
	sows map[uuid.UUID]*model.SOW
}

func (f *fakeSOWLookup) GetByID(_ context.Context, orgID, id uuid.UUID) (*model.SOW, error) {
	sow, ok := f.sows[id]
	if !ok || sow.OrganizationID != orgID {
		return nil, gorm.ErrRecordNotFound
	}
	return sow, nil
}

func registerProjectRoutes(handler *ProjectHandler) func(api *gin.RouterGroup) {
	return func(api *gin.RouterGroup) {
		api.GET("/projects", handler.List)
		api.POST("/projects", handler.Create)
		api.GET("/projects/:id", handler.Get)
		api.PUT("/projects/:id", handler.Update)
		api.GET("/projects/:id/members", handler.ListMembers)
		api.POST("/projects/:id/members", handler.AddMember)
		api.DELETE("/projects/:id/members/:userID", handler.RemoveMember)
	}
}

func seedProject(projects *fakeProjectStore, orgID uuid.UUID, active bool) *model.Project {
	project := &model.Project{
		ID:             uuid.New(),
		OrganizationID: orgID,
		CustomerID:     uuid.New(),
		Name:           "Website rebuild",
		BillingModel:   model.BillingTaskBased,
		Status:         model.ProjectActive,
		IsActive:       active,
		HourlyRate:     120,
	}
	projects.projects[project.ID] = project
	return project
}

func TestProjectListEmployeeSeesOnlyActiveMemberships(t *testing.T) {
	employee := employeeUser()
	projects := newFakeProjectStore()
	visible := seedProject(projects, testOrgID(), true)
	seedProject(projects, testOrgID(), true) // no membership

	projects.memberships = append(projects.memberships, &model.ProjectMembership{
		ID:             uuid.New(),
		OrganizationID: testOrgID(),
		ProjectID:      visible.ID,
		UserID:         employee.ID,
		IsActive:       true,
	})

	handler := NewProjectHandler(projects, &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(employee, registerProjectRoutes(handler))

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Data []projectResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	require.Len(t, body.Data, 1)
	assert.Equal(t, visible.ID.String(), body.Data[0].ID)
}

func TestProjectListHiddenAfterMembershipDeactivated(t *testing.T) {
	employee := employeeUser()
	projects := newFakeProjectStore()
	project := seedProject(projects, testOrgID(), true)

	membership := &model.ProjectMembership{
		ID:             uuid.New(),
		OrganizationID: testOrgID(),
		ProjectID:      project.ID,
		UserID:         employee.ID,
		IsActive:       true,
	}
	projects.memberships = append(projects.memberships, membership)

	handler := NewProjectHandler(projects, &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(employee, registerProjectRoutes(handler))

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Data []projectResponse `json:"data"`
	}
	decodeBody(t, recorder, &body)
	require.Len(t, body.Data, 1)

	membership.IsActive = false

	recorder = doRequest(t, router, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	body.Data = nil
	decodeBody(t, recorder, &body)
	assert.Empty(t, body.Data)

	// Direct fetch hides the project entirely rather than admitting it exists.
	recorder = doRequest(t, router, http.MethodGet, "/api/v1/projects/"+project.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", errorCode(t, recorder))
}

func TestProjectGetCrossOrgIsNotFound(t *testing.T) {
	projects := newFakeProjectStore()
	foreign := seedProject(projects, uuid.New(), true)

	handler := NewProjectHandler(projects, &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(adminUser(), registerProjectRoutes(handler))

	recorder := doRequest(t, router, http.MethodGet, "/api/v1/projects/"+foreign.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", errorCode(t, recorder))
}

func TestProjectUpdateCrossOrgIsNotFoundForEmployee(t *testing.T) {
	projects := newFakeProjectStore()
	foreign := seedProject(projects, uuid.New(), true)
	local := seedProject(projects, testOrgID(), true)

	handler := NewProjectHandler(projects, &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(employeeUser(), registerProjectRoutes(handler))

	// A row in another tenant never becomes a 403: the tenant scope
	// decides before the role does.
	recorder := doRequest(t, router, http.MethodPut, "/api/v1/projects/"+foreign.ID.String(), gin.H{"name": "renamed"})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", errorCode(t, recorder))

	// Within the tenant the same request is a straight denial.
	recorder = doRequest(t, router, http.MethodPut, "/api/v1/projects/"+local.ID.String(), gin.H{"name": "renamed"})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", errorCode(t, recorder))

	// Membership mutations follow the same order.
	recorder = doRequest(t, router, http.MethodPost, "/api/v1/projects/"+foreign.ID.String()+"/members", gin.H{"user_id": uuid.NewString()})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "PROJECT_NOT_FOUND", errorCode(t, recorder))
}

func TestProjectCreateUnknownCustomer(t *testing.T) {
	handler := NewProjectHandler(newFakeProjectStore(), &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(managerUser(), registerProjectRoutes(handler))

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/projects", gin.H{
		"customer_id":   uuid.NewString(),
		"name":          "New project",
		"billing_model": "task_based",
	})
	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assert.Equal(t, "CUSTOMER_NOT_FOUND", errorCode(t, recorder))
}

func TestProjectCreateEmployeeDenied(t *testing.T) {
	handler := NewProjectHandler(newFakeProjectStore(), &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(employeeUser(), registerProjectRoutes(handler))

	recorder := doRequest(t, router, http.MethodPost, "/api/v1/projects", gin.H{
		"customer_id":   uuid.NewString(),
		"name":          "New project",
		"billing_model": "task_based",
	})
	assert.Equal(t, http.StatusForbidden, recorder.Code)
	assert.Equal(t, "AUTHORIZATION_DENIED", errorCode(t, recorder))
}

func TestProjectAddMemberTwiceConflicts(t *testing.T) {
	projects := newFakeProjectStore()
	project := seedProject(projects, testOrgID(), true)

	member := employeeUser()
	users := &fakeUserLookup{users: map[uuid.UUID]*model.User{member.ID: member}}

	handler := NewProjectHandler(projects, users, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(managerUser(), registerProjectRoutes(handler))

	payload := gin.H{"user_id": member.ID.String()}
	path := "/api/v1/projects/" + project.ID.String() + "/members"

	recorder := doRequest(t, router, http.MethodPost, path, payload)
	require.Equal(t, http.StatusCreated, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, path, payload)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assert.Equal(t, "DUPLICATE_RESOURCE", errorCode(t, recorder))

	// Removing and re-adding reuses the membership slot.
	recorder = doRequest(t, router, http.MethodDelete, path+"/"+member.ID.String(), nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = doRequest(t, router, http.MethodPost, path, payload)
	assert.Equal(t, http.StatusCreated, recorder.Code)
}

func TestProjectRemoveMemberEmployeeDenied(t *testing.T) {
	projects := newFakeProjectStore()
	project := seedProject(projects, testOrgID(), true)

	handler := NewProjectHandler(projects, &fakeUserLookup{}, &fakeCustomerLookup{}, &fakeSOWLookup{}, zap.NewNop())
	router := newTestRouter(employeeUser(), registerProjectRoutes(handler))

	path := "/api/v1/projects/" + project.ID.String() + "/members/" + uuid.NewString()
	recorder := doRequest(t, router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}
