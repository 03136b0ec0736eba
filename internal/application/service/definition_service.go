package service

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// DefinitionService administers workflow definitions. Saved definitions are
// never edited; a policy change is a new definition plus deactivating the old one.
type DefinitionService interface {
	Create(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error)
	Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error)
	List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error)
	SetActive(ctx context.Context, id int64, active bool) (*entity.WorkflowDefinition, error)
}

type definitionServiceImpl struct {
	defs      port.DefinitionRepository
	txManager port.TransactionManager
	logger    Logger
}

// NewDefinitionService creates a new DefinitionService
func NewDefinitionService(defs port.DefinitionRepository, txManager port.TransactionManager, logger Logger) DefinitionService {
	return &definitionServiceImpl{
		defs:      defs,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *definitionServiceImpl) Create(ctx context.Context, def *entity.WorkflowDefinition) (*entity.WorkflowDefinition, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition is required", entity.ErrInvalidDefinition)
	}
	def.ID = 0
	if err := def.Validate(); err != nil {
		return nil, err
	}

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.defs.Create(txCtx, def)
	})
	if err != nil {
		s.logger.Error("Failed to create workflow definition", "name", def.Name, "error", err)
		return nil, fmt.Errorf("create workflow definition: %w", err)
	}

	s.logger.Info("Workflow definition created",
		"workflow_id", def.ID,
		"name", def.Name,
		"entity_type", def.EntityType,
		"steps", len(def.Steps),
		"specificity", def.Specificity(),
	)
	return def, nil
}

func (s *definitionServiceImpl) Get(ctx context.Context, id int64) (*entity.WorkflowDefinition, error) {
	def, err := s.defs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get workflow definition: %w", err)
	}
	if def == nil {
		return nil, fmt.Errorf("%w: workflow %d", appwf.ErrNotFound, id)
	}
	return def, nil
}

func (s *definitionServiceImpl) List(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	defs, err := s.defs.List(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("list workflow definitions: %w", err)
	}
	return defs, nil
}

func (s *definitionServiceImpl) SetActive(ctx context.Context, id int64, active bool) (*entity.WorkflowDefinition, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if err := s.defs.SetActive(ctx, id, active); err != nil {
		s.logger.Error("Failed to toggle workflow definition", "workflow_id", id, "error", err)
		return nil, fmt.Errorf("set workflow active flag: %w", err)
	}

	s.logger.Info("Workflow definition toggled", "workflow_id", id, "active", active)
	return s.Get(ctx, id)
}
