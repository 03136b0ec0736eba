package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/domain/entity"
)

// Selector picks the workflow definition that governs a request
type Selector struct {
	defs port.DefinitionRepository
}

// NewSelector creates a selector over the definition store
func NewSelector(defs port.DefinitionRepository) *Selector {
	return &Selector{defs: defs}
}

// Select returns the most specific active definition for entityType that
// matches sc. Equal specificity is broken by the lowest id.
func (s *Selector) Select(ctx context.Context, entityType string, sc entity.SelectionContext) (*entity.WorkflowDefinition, error) {
	candidates, err := s.defs.ListActiveByEntityType(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow definitions: %w", err)
	}

	best := SelectBest(entityType, candidates, sc)
	if best == nil {
		return nil, fmt.Errorf("%w: no active workflow for entity type %q matches the request", ErrNotFound, entityType)
	}
	return best, nil
}

// SelectBest applies the selection rule to an in-memory candidate list
func SelectBest(entityType string, candidates []*entity.WorkflowDefinition, sc entity.SelectionContext) *entity.WorkflowDefinition {
	var best *entity.WorkflowDefinition
	for _, d := range candidates {
		if d == nil || !d.IsActive || d.EntityType != entityType || !d.Matches(sc) {
			continue
		}
		if best == nil {
			best = d
			continue
		}
		if spec, bestSpec := d.Specificity(), best.Specificity(); spec > bestSpec || (spec == bestSpec && d.ID < best.ID) {
			best = d
		}
	}
	return best
}
