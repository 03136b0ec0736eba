package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
	"github.com/garyjia/hr-approval/internal/domain/entity"
)

type mockDefinitionRepo struct {
	defs      map[int64]*entity.WorkflowDefinition
	createErr error
}

func (m *mockDefinitionRepo) Create(_ context.Context, def *entity.WorkflowDefinition) error {
	if m.createErr != nil {
		return m.createErr
	}
	def.ID = int64(len(m.defs) + 1)
	m.defs[def.ID] = def
	return nil
}

func (m *mockDefinitionRepo) GetByID(_ context.Context, id int64) (*entity.WorkflowDefinition, error) {
	return m.defs[id], nil
}

func (m *mockDefinitionRepo) List(_ context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	var out []*entity.WorkflowDefinition
	for _, d := range m.defs {
		if entityType == "" || d.EntityType == entityType {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDefinitionRepo) ListActiveByEntityType(ctx context.Context, entityType string) ([]*entity.WorkflowDefinition, error) {
	return m.List(ctx, entityType)
}

func (m *mockDefinitionRepo) SetActive(_ context.Context, id int64, active bool) error {
	m.defs[id].IsActive = active
	return nil
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

func TestDefinitionService_Create(t *testing.T) {
	repo := &mockDefinitionRepo{defs: map[int64]*entity.WorkflowDefinition{}}
	tx := &passthroughTx{}
	svc := NewDefinitionService(repo, tx, &mockLogger{})

	def, err := svc.Create(context.Background(), &entity.WorkflowDefinition{
		ID:         99,
		Name:       "Expense",
		EntityType: entity.EntityTypeExpense,
		IsActive:   true,
		Steps: []*entity.StepDefinition{
			{StepOrder: 2, ApproverType: entity.ApproverSpecificUser, ApproverID: "cfo"},
			{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), def.ID)
	assert.Equal(t, 1, def.Steps[0].StepOrder)
	assert.Equal(t, 1, tx.calls)

	_, err = svc.Create(context.Background(), &entity.WorkflowDefinition{Name: "Broken", EntityType: "leave"})
	assert.ErrorIs(t, err, entity.ErrInvalidDefinition)
	assert.Equal(t, 1, tx.calls)

	_, err = svc.Create(context.Background(), nil)
	assert.ErrorIs(t, err, entity.ErrInvalidDefinition)
}

func TestDefinitionService_CreateRepositoryError(t *testing.T) {
	repoErr := errors.New("disk full")
	repo := &mockDefinitionRepo{defs: map[int64]*entity.WorkflowDefinition{}, createErr: repoErr}
	logger := &mockLogger{}
	svc := NewDefinitionService(repo, &passthroughTx{}, logger)

	_, err := svc.Create(context.Background(), &entity.WorkflowDefinition{
		Name: "Leave", EntityType: "leave",
		Steps: []*entity.StepDefinition{{StepOrder: 1, ApproverType: entity.ApproverDepartmentHead}},
	})
	assert.ErrorIs(t, err, repoErr)
	assert.NotEmpty(t, logger.errors)
}

func TestDefinitionService_SetActive(t *testing.T) {
	repo := &mockDefinitionRepo{defs: map[int64]*entity.WorkflowDefinition{
		1: {ID: 1, Name: "Leave", EntityType: "leave", IsActive: true},
	}}
	svc := NewDefinitionService(repo, &passthroughTx{}, &mockLogger{})

	def, err := svc.SetActive(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, def.IsActive)

	_, err = svc.SetActive(context.Background(), 2, true)
	assert.ErrorIs(t, err, appwf.ErrNotFound)

	_, err = svc.Get(context.Background(), 3)
	assert.ErrorIs(t, err, appwf.ErrNotFound)
}
