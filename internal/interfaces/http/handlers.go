package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/application/service"
	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/domain/entity"
	"github.com/garyjia/hr-approval/pkg/utils"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine        appwf.Engine
	definitions   service.DefinitionService
	org           service.OrgService
	notifications service.NotificationService
	clock         port.Clock
	version       string
	logger        Logger
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateApprovalRequest starts approval for an HR request
type CreateApprovalRequest struct {
	EntityType   string   `json:"entity_type" binding:"required"`
	EntityID     string   `json:"entity_id" binding:"required"`
	RequesterID  string   `json:"requester_id" binding:"required"`
	DepartmentID *string  `json:"department_id"`
	PositionID   *string  `json:"position_id"`
	Amount       *float64 `json:"amount"`
}

// DecisionRequest is the body of POST /api/approvals/:id/decisions
type DecisionRequest struct {
	StepOrder  int    `json:"step_order" binding:"required,min=1"`
	ActorID    string `json:"actor_id" binding:"required"`
	Action     string `json:"action" binding:"required,oneof=approve reject delegate"`
	DelegateTo string `json:"delegate_to"`
	Comments   string `json:"comments"`
}

// CancelRequest is the body of POST /api/approvals/:id/cancel
type CancelRequest struct {
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// SweepRequest optionally pins the sweep time; the server clock is used otherwise
type SweepRequest struct {
	Now *time.Time `json:"now"`
}

// DepartmentRequest is the body of PUT /api/org/departments/:id
type DepartmentRequest struct {
	Name       string `json:"name"`
	HeadUserID string `json:"head_user_id"`
}

// EmployeeRequest is the body of PUT /api/org/employees/:id
type EmployeeRequest struct {
	Name         string `json:"name"`
	DepartmentID string `json:"department_id"`
	PositionID   string `json:"position_id"`
	IsActive     *bool  `json:"is_active"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: h.clock.Now().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// CreateWorkflow handles POST /api/workflows
func (h *Handlers) CreateWorkflow(c *gin.Context) {
	var def entity.WorkflowDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		h.badRequest(c, "invalid workflow definition body", err)
		return
	}

	created, err := h.definitions.Create(c.Request.Context(), &def)
	if err != nil {
		h.fail(c, "Failed to create workflow", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// ListWorkflows handles GET /api/workflows?entity_type=
func (h *Handlers) ListWorkflows(c *gin.Context) {
	defs, err := h.definitions.List(c.Request.Context(), c.Query("entity_type"))
	if err != nil {
		h.fail(c, "Failed to list workflows", err)
		return
	}
	if defs == nil {
		defs = []*entity.WorkflowDefinition{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: defs})
}

// GetWorkflow handles GET /api/workflows/:id
func (h *Handlers) GetWorkflow(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	def, err := h.definitions.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get workflow", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// ActivateWorkflow handles POST /api/workflows/:id/activate
func (h *Handlers) ActivateWorkflow(c *gin.Context) {
	h.setWorkflowActive(c, true)
}

// DeactivateWorkflow handles POST /api/workflows/:id/deactivate
func (h *Handlers) DeactivateWorkflow(c *gin.Context) {
	h.setWorkflowActive(c, false)
}

func (h *Handlers) setWorkflowActive(c *gin.Context, active bool) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	def, err := h.definitions.SetActive(c.Request.Context(), id, active)
	if err != nil {
		h.fail(c, "Failed to toggle workflow", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: def})
}

// CreateApproval handles POST /api/approvals
func (h *Handlers) CreateApproval(c *gin.Context) {
	var req CreateApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid approval request body", err)
		return
	}
	if err := utils.ValidateIdentifier("requester_id", req.RequesterID); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}

	inst, err := h.engine.CreateInstance(c.Request.Context(), entity.Subject{
		EntityType:   req.EntityType,
		EntityID:     req.EntityID,
		RequesterID:  req.RequesterID,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
		Amount:       req.Amount,
	})
	if err != nil {
		h.fail(c, "Failed to create approval", err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: inst})
}

// GetApproval handles GET /api/approvals/:id
func (h *Handlers) GetApproval(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	inst, err := h.engine.GetInstance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get approval", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// GetApprovalByEntity handles GET /api/entities/:entityType/:entityId/approval
func (h *Handlers) GetApprovalByEntity(c *gin.Context) {
	inst, err := h.engine.GetInstanceByEntity(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		h.fail(c, "Failed to get approval by entity", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// GetApprovalHistory handles GET /api/approvals/:id/history
func (h *Handlers) GetApprovalHistory(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	history, err := h.engine.History(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get approval history", err)
		return
	}
	if history == nil {
		history = []*entity.ApprovalHistory{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: history})
}

// GetApprovalNotifications handles GET /api/approvals/:id/notifications
func (h *Handlers) GetApprovalNotifications(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	notifications, err := h.notifications.ListForInstance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to list notifications", err)
		return
	}
	if notifications == nil {
		notifications = []*entity.Notification{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: notifications})
}

// RecordDecision handles POST /api/approvals/:id/decisions
func (h *Handlers) RecordDecision(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid decision body", err)
		return
	}

	inst, err := h.engine.RecordDecision(c.Request.Context(), appwf.DecisionRequest{
		InstanceID: id,
		StepOrder:  req.StepOrder,
		ActorID:    req.ActorID,
		Action:     req.Action,
		DelegateTo: req.DelegateTo,
		Comments:   utils.SanitizeString(req.Comments),
	})
	if err != nil {
		h.fail(c, "Failed to record decision", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// CancelApproval handles POST /api/approvals/:id/cancel
func (h *Handlers) CancelApproval(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid cancel body", err)
		return
	}

	inst, err := h.engine.Cancel(c.Request.Context(), id, req.ActorID, utils.SanitizeString(req.Reason))
	if err != nil {
		h.fail(c, "Failed to cancel approval", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: inst})
}

// ListPendingForApprover handles GET /api/approvers/:userId/pending
func (h *Handlers) ListPendingForApprover(c *gin.Context) {
	userID := c.Param("userId")
	if err := utils.ValidateIdentifier("user id", userID); err != nil {
		h.badRequest(c, err.Error(), err)
		return
	}
	pending, err := h.engine.ListPendingForApprover(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "Failed to list pending approvals", err)
		return
	}
	if pending == nil {
		pending = []*entity.ApprovalInstance{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pending})
}

// SweepAutoApprovals handles POST /api/approvals/sweep
func (h *Handlers) SweepAutoApprovals(c *gin.Context) {
	var req SweepRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, "invalid sweep body", err)
			return
		}
	}
	now := h.clock.Now()
	if req.Now != nil {
		now = req.Now.UTC()
	}

	result, err := h.engine.SweepAutoApprovals(c.Request.Context(), now)
	if err != nil {
		h.fail(c, "Auto-approval sweep failed", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// UpsertDepartment handles PUT /api/org/departments/:id
func (h *Handlers) UpsertDepartment(c *gin.Context) {
	var req DepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid department body", err)
		return
	}
	dept := &entity.Department{ID: c.Param("id"), Name: req.Name, HeadUserID: req.HeadUserID}
	if err := h.org.UpsertDepartment(c.Request.Context(), dept); err != nil {
		h.fail(c, "Failed to save department", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: dept})
}

// UpsertEmployee handles PUT /api/org/employees/:id
func (h *Handlers) UpsertEmployee(c *gin.Context) {
	var req EmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid employee body", err)
		return
	}
	emp := &entity.Employee{
		UserID:       c.Param("id"),
		Name:         req.Name,
		DepartmentID: req.DepartmentID,
		PositionID:   req.PositionID,
		IsActive:     req.IsActive == nil || *req.IsActive,
	}
	if err := h.org.UpsertEmployee(c.Request.Context(), emp); err != nil {
		h.fail(c, "Failed to save employee", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: emp})
}

// AssignRole handles PUT /api/org/employees/:id/roles/:roleId
func (h *Handlers) AssignRole(c *gin.Context) {
	if err := h.org.AssignRole(c.Request.Context(), c.Param("id"), c.Param("roleId")); err != nil {
		h.fail(c, "Failed to assign role", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

// RevokeRole handles DELETE /api/org/employees/:id/roles/:roleId
func (h *Handlers) RevokeRole(c *gin.Context) {
	if err := h.org.RevokeRole(c.Request.Context(), c.Param("id"), c.Param("roleId")); err != nil {
		h.fail(c, "Failed to revoke role", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true})
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, fmt.Sprintf("invalid id: %s", idStr), err)
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Info("Rejected request", "path", c.FullPath(), "reason", msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

// fail maps application errors onto status codes. Unexpected errors are
// logged and hidden from the client.
func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(status, Response{Success: false, Error: "internal server error"})
		return
	}
	h.logger.Info(msg, "path", c.FullPath(), "status", status, "error", err)
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// StatusFor returns the HTTP status for an application error
func StatusFor(err error) int {
	switch {
	case errors.Is(err, appwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, appwf.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, appwf.ErrInvalidState),
		errors.Is(err, appwf.ErrConflict),
		errors.Is(err, port.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, appwf.ErrResolution):
		return http.StatusUnprocessableEntity
	case errors.Is(err, appwf.ErrInvalidInput),
		errors.Is(err, entity.ErrInvalidDefinition):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
