package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/hr-approval/internal/application/dispatcher"
	"github.com/garyjia/hr-approval/internal/application/port"
	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/internal/domain/event"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// stubEngine returns inst/err for every call and remembers the last inputs
type stubEngine struct {
	inst      *entity.ApprovalInstance
	err       error
	subject   entity.Subject
	decision  appwf.DecisionRequest
	sweptAt   time.Time
	cancelled string
}

func (e *stubEngine) CreateInstance(_ context.Context, s entity.Subject) (*entity.ApprovalInstance, error) {
	e.subject = s
	return e.inst, e.err
}

func (e *stubEngine) RecordDecision(_ context.Context, req appwf.DecisionRequest) (*entity.ApprovalInstance, error) {
	e.decision = req
	return e.inst, e.err
}

func (e *stubEngine) SweepAutoApprovals(_ context.Context, now time.Time) (*appwf.SweepResult, error) {
	e.sweptAt = now
	return &appwf.SweepResult{Examined: 2, AutoApproved: 1}, e.err
}

func (e *stubEngine) Cancel(_ context.Context, _ int64, actorID, _ string) (*entity.ApprovalInstance, error) {
	e.cancelled = actorID
	return e.inst, e.err
}

func (e *stubEngine) GetInstance(context.Context, int64) (*entity.ApprovalInstance, error) {
	return e.inst, e.err
}

func (e *stubEngine) GetInstanceByEntity(context.Context, string, string) (*entity.ApprovalInstance, error) {
	return e.inst, e.err
}

func (e *stubEngine) ListPendingForApprover(context.Context, string) ([]*entity.ApprovalInstance, error) {
	return nil, e.err
}

func (e *stubEngine) History(context.Context, int64) ([]*entity.ApprovalHistory, error) {
	return nil, e.err
}

type stubDefinitions struct {
	err error
}

func (s *stubDefinitions) Create(_ context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	if s.err != nil {
		return nil, s.err
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	def.ID = 11
	return def, nil
}

func (s *stubDefinitions) Get(_ context.Context, id int64) (*entity.WorkflowDefinition, error) {
	return nil, fmt.Errorf("%w: workflow %d", appwf.ErrNotFound, id)
}

func (s *stubDefinitions) List(context.Context, string) ([]*entity.WorkflowDefinition, error) {
	return nil, s.err
}

func (s *stubDefinitions) SetActive(_ context.Context, id int64, active bool) (*entity.WorkflowDefinition, error) {
	return &entity.WorkflowDefinition{ID: id, IsActive: active}, s.err
}

type stubOrg struct {
	employee *entity.Employee
	roles    []string
	err      error
}

func (s *stubOrg) UpsertDepartment(context.Context, *entity.Department) error { return s.err }

func (s *stubOrg) UpsertEmployee(_ context.Context, e *entity.Employee) error {
	s.employee = e
	return s.err
}

func (s *stubOrg) AssignRole(_ context.Context, userID, roleID string) error {
	s.roles = append(s.roles, "+"+userID+":"+roleID)
	return s.err
}

func (s *stubOrg) RevokeRole(_ context.Context, userID, roleID string) error {
	s.roles = append(s.roles, "-"+userID+":"+roleID)
	return s.err
}

type stubNotifications struct{}

func (stubNotifications) Register(dispatcher.Dispatcher)                  {}
func (stubNotifications) HandleEvent(context.Context, *event.Event) error { return nil }
func (stubNotifications) RetryPending(context.Context, int) (int, error)  { return 0, nil }
func (stubNotifications) ListForInstance(context.Context, int64) ([]*entity.Notification, error) {
	return nil, nil
}

var testNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testAPI struct {
	engine *stubEngine
	defs   *stubDefinitions
	org    *stubOrg
	router *gin.Engine
}

func newTestAPI() *testAPI {
	api := &testAPI{
		engine: &stubEngine{inst: &entity.ApprovalInstance{ID: 5, Status: entity.StatusInProgress, CurrentStepOrder: 1}},
		defs:   &stubDefinitions{},
		org:    &stubOrg{},
	}
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	cfg.Version = "test"
	server := NewServer(cfg, Dependencies{
		Engine:        api.engine,
		Definitions:   api.defs,
		Org:           api.org,
		Notifications: stubNotifications{},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hr_approval_up 1\n"))
		}),
		Clock: fixedClock{now: testNow},
	}, nopLogger{})
	api.router = server.Router()
	return api
}

func (a *testAPI) do(method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var resp Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI()

	w, resp := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "test", data["version"])
	assert.Equal(t, testNow.Format(time.RFC3339), data["timestamp"])

	w, _ = api.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "hr_approval_up")
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestCreateApproval(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		api := newTestAPI()
		w, resp := api.do(http.MethodPost, "/api/approvals", map[string]interface{}{
			"entity_type":   "leave",
			"entity_id":     "L-1",
			"requester_id":  "emp-1",
			"department_id": "D",
			"amount":        120.5,
		})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "L-1", api.engine.subject.EntityID)
		require.NotNil(t, api.engine.subject.DepartmentID)
		assert.Equal(t, "D", *api.engine.subject.DepartmentID)
		assert.Equal(t, 120.5, *api.engine.subject.Amount)
	})

	tests := []struct {
		name   string
		body   map[string]interface{}
		err    error
		status int
	}{
		{"missing requester", map[string]interface{}{"entity_type": "leave", "entity_id": "L-1"}, nil, http.StatusBadRequest},
		{"negative amount", map[string]interface{}{"entity_type": "leave", "entity_id": "L-1", "requester_id": "e", "amount": -1}, nil, http.StatusBadRequest},
		{"no workflow", map[string]interface{}{"entity_type": "leave", "entity_id": "L-1", "requester_id": "e"}, fmt.Errorf("%w: no active workflow", appwf.ErrNotFound), http.StatusNotFound},
		{"resolution failure", map[string]interface{}{"entity_type": "leave", "entity_id": "L-1", "requester_id": "e"}, fmt.Errorf("%w: no department head", appwf.ErrResolution), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.engine.err = tt.err
			w, resp := api.do(http.MethodPost, "/api/approvals", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRecordDecision(t *testing.T) {
	t.Run("passes request to engine", func(t *testing.T) {
		api := newTestAPI()
		w, _ := api.do(http.MethodPost, "/api/approvals/5/decisions", map[string]interface{}{
			"step_order":  1,
			"actor_id":    "H",
			"action":      "delegate",
			"delegate_to": "H2",
			"comments":    "  away\x00 ",
		})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, appwf.DecisionRequest{
			InstanceID: 5,
			StepOrder:  1,
			ActorID:    "H",
			Action:     "delegate",
			DelegateTo: "H2",
			Comments:   "away",
		}, api.engine.decision)
	})

	tests := []struct {
		name   string
		path   string
		body   map[string]interface{}
		err    error
		status int
	}{
		{"bad id", "/api/approvals/abc/decisions", map[string]interface{}{"step_order": 1, "actor_id": "H", "action": "approve"}, nil, http.StatusBadRequest},
		{"unknown action", "/api/approvals/5/decisions", map[string]interface{}{"step_order": 1, "actor_id": "H", "action": "maybe"}, nil, http.StatusBadRequest},
		{"not an approver", "/api/approvals/5/decisions", map[string]interface{}{"step_order": 1, "actor_id": "X", "action": "approve"}, fmt.Errorf("%w: X", appwf.ErrUnauthorized), http.StatusForbidden},
		{"stale step", "/api/approvals/5/decisions", map[string]interface{}{"step_order": 1, "actor_id": "H", "action": "approve"}, fmt.Errorf("%w: step 1", appwf.ErrInvalidState), http.StatusConflict},
		{"lost race", "/api/approvals/5/decisions", map[string]interface{}{"step_order": 1, "actor_id": "H", "action": "approve"}, fmt.Errorf("%w: retry", appwf.ErrConflict), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			api.engine.err = tt.err
			w, _ := api.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestGetApproval_HidesInternalErrors(t *testing.T) {
	api := newTestAPI()
	api.engine.err = errors.New("database is locked")

	w, resp := api.do(http.MethodGet, "/api/approvals/5", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", resp.Error)
}

func TestCancelApproval(t *testing.T) {
	api := newTestAPI()
	w, _ := api.do(http.MethodPost, "/api/approvals/5/cancel", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodPost, "/api/approvals/5/cancel", map[string]interface{}{"actor_id": "emp-1", "reason": "plans changed"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "emp-1", api.engine.cancelled)
}

func TestSweepAutoApprovals(t *testing.T) {
	api := newTestAPI()

	w, resp := api.do(http.MethodPost, "/api/approvals/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, api.engine.sweptAt.Equal(testNow))
	assert.Equal(t, float64(1), resp.Data.(map[string]interface{})["auto_approved"])

	pinned := testNow.Add(73 * time.Hour)
	w, _ = api.do(http.MethodPost, "/api/approvals/sweep", map[string]interface{}{"now": pinned})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, api.engine.sweptAt.Equal(pinned))
}

func TestListEndpointsReturnEmptyArrays(t *testing.T) {
	api := newTestAPI()
	for _, path := range []string{"/api/workflows", "/api/approvals/5/history", "/api/approvals/5/notifications", "/api/approvers/H/pending"} {
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"data":[]`, path)
	}
}

func TestWorkflowEndpoints(t *testing.T) {
	api := newTestAPI()

	w, resp := api.do(http.MethodPost, "/api/workflows", map[string]interface{}{
		"name":        "Leave",
		"entity_type": "leave",
		"steps":       []map[string]interface{}{{"step_order": 1, "approver_type": "department_head"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(11), resp.Data.(map[string]interface{})["id"])

	w, _ = api.do(http.MethodPost, "/api/workflows", map[string]interface{}{"name": "Empty", "entity_type": "leave"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(http.MethodGet, "/api/workflows/3", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = api.do(http.MethodPost, "/api/workflows/3/deactivate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp.Data.(map[string]interface{})["is_active"])
}

func TestCreateWorkflow_RejectsMalformedSteps(t *testing.T) {
	tests := []struct {
		name  string
		steps []interface{}
	}{
		{"null step", []interface{}{nil, map[string]interface{}{"step_order": 1, "approver_type": "department_head"}}},
		{"zero step order", []interface{}{map[string]interface{}{"step_order": 0, "approver_type": "department_head"}}},
		{"negative step order", []interface{}{map[string]interface{}{"step_order": -1, "approver_type": "department_head"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI()
			w, resp := api.do(http.MethodPost, "/api/workflows", map[string]interface{}{
				"name":        "Leave",
				"entity_type": "leave",
				"steps":       tt.steps,
			})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, resp.Success)
		})
	}
}

func TestRecordDecision_StepOrderBelowOne(t *testing.T) {
	api := newTestAPI()
	w, _ := api.do(http.MethodPost, "/api/approvals/5/decisions", map[string]interface{}{
		"step_order": 0,
		"actor_id":   "H",
		"action":     "approve",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appwf.DecisionRequest{}, api.engine.decision)
}

func TestOrgEndpoints(t *testing.T) {
	api := newTestAPI()

	w, _ := api.do(http.MethodPut, "/api/org/employees/emp-1", map[string]interface{}{"department_id": "D", "position_id": "eng"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, api.org.employee.IsActive)
	assert.Equal(t, "emp-1", api.org.employee.UserID)

	w, _ = api.do(http.MethodPut, "/api/org/employees/emp-1", map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, api.org.employee.IsActive)

	w, _ = api.do(http.MethodPut, "/api/org/employees/emp-1/roles/hr_manager", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(http.MethodDelete, "/api/org/employees/emp-1/roles/hr_manager", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"+emp-1:hr_manager", "-emp-1:hr_manager"}, api.org.roles)

	api.org.err = fmt.Errorf("%w: department id is required", appwf.ErrInvalidInput)
	w, _ = api.do(http.MethodPut, "/api/org/departments/D", map[string]interface{}{"head_user_id": "H"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", appwf.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", appwf.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("%w: x", appwf.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: x", appwf.ErrConflict), http.StatusConflict},
		{fmt.Errorf("save: %w", port.ErrVersionConflict), http.StatusConflict},
		{fmt.Errorf("%w: x", appwf.ErrResolution), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: x", entity.ErrInvalidDefinition), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}
