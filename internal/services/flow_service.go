package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"approval-flow/backend/internal/repository"
	"approval-flow/backend/pkg/models"
)

// FlowService instantiates templates into running approval flows and drives
// the stage-advancement state machine. Every transition runs inside a single
// store transaction holding the instance lock, and every successful mutation
// appends exactly one movement to the ledger.
type FlowService struct {
	store       repository.Store
	transitions metric.Int64Counter
}

// NewFlowService creates a new FlowService.
func NewFlowService(store repository.Store) *FlowService {
	meter := otel.Meter("approval-flow/backend/services")
	transitions, _ := meter.Int64Counter("flow_transitions_total",
		metric.WithDescription("Transition requests by action and outcome"))
	return &FlowService{store: store, transitions: transitions}
}

// Instantiate clones a template into an independent running instance. Stage
// copies are renumbered contiguously 1..N in template enumeration order, so
// gaps in template numbering never reach the transition engine. A template
// with zero stages yields an instance that is finalized from the start.
func (s *FlowService) Instantiate(ctx context.Context, templateID, name string, createdBy *string) (*models.Instance, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: instance name is required", ErrValidation)
	}

	template, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	templateStages, err := s.store.ListTemplateStages(ctx, templateID)
	if err != nil {
		return nil, err
	}

	instance := &models.Instance{
		ID:         uuid.New().String(),
		TemplateID: &template.ID,
		Name:       name,
		CreatedBy:  createdBy,
		Finalized:  len(templateStages) == 0,
		CreatedAt:  time.Now(),
	}

	stages := make([]*models.InstanceStage, 0, len(templateStages))
	for i, ts := range templateStages {
		stages = append(stages, &models.InstanceStage{
			ID:              uuid.New().String(),
			InstanceID:      instance.ID,
			Position:        i + 1,
			Name:            ts.Name,
			SectorID:        ts.SectorID,
			ApproverProfile: ts.ApproverProfile,
		})
	}

	if err := s.store.CreateInstance(ctx, instance, stages); err != nil {
		return nil, err
	}
	return instance, nil
}

// Transition applies an "advance" or "retreat" action to one stage of one
// instance and returns a status for the caller. Unknown action names are
// rejected before anything is read or written.
func (s *FlowService) Transition(ctx context.Context, instanceID, stageID, action string, actorID *string, comment string) (*models.TransitionResult, error) {
	var apply func(ctx context.Context, tx repository.InstanceTx, stages []*models.InstanceStage, stage *models.InstanceStage, actorID *string, comment string) (*models.TransitionResult, error)
	switch strings.ToLower(strings.TrimSpace(action)) {
	case "advance":
		apply = s.advance
	case "retreat":
		apply = s.retreat
	default:
		return nil, fmt.Errorf("%w: invalid action %q", ErrValidation, action)
	}

	var result *models.TransitionResult
	err := s.store.WithInstanceLock(ctx, instanceID, func(ctx context.Context, tx repository.InstanceTx) error {
		stages, err := tx.ListStages(ctx)
		if err != nil {
			return err
		}
		stage := stageByID(stages, stageID)
		if stage == nil {
			return fmt.Errorf("stage %s in instance %s: %w", stageID, instanceID, repository.ErrNotFound)
		}
		result, err = apply(ctx, tx, stages, stage, actorID, comment)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", strings.ToLower(action)),
			attribute.String("outcome", string(result.Status)),
		))
	return result, nil
}

// advance completes a stage. Advancing an already-completed stage is an
// informational no-op, not an error.
func (s *FlowService) advance(ctx context.Context, tx repository.InstanceTx, stages []*models.InstanceStage, stage *models.InstanceStage, actorID *string, comment string) (*models.TransitionResult, error) {
	if stage.Completed {
		return &models.TransitionResult{
			Status:    models.TransitionNoop,
			Message:   fmt.Sprintf("stage %q is already complete", stage.Name),
			Finalized: tx.Instance().Finalized,
		}, nil
	}

	if err := tx.SetStageCompleted(ctx, stage.ID, true); err != nil {
		return nil, err
	}

	result := &models.TransitionResult{}
	if next := nextStage(stages, stage.Position); next == nil {
		if err := tx.SetFinalized(ctx, true); err != nil {
			return nil, err
		}
		result.Status = models.TransitionFinalized
		result.Message = "workflow finalized"
		result.Finalized = true
	} else {
		result.Status = models.TransitionAdvanced
		result.Message = fmt.Sprintf("advanced to stage %q", next.Name)
	}

	if err := s.appendMovement(ctx, tx, stage, models.ActionAdvance, actorID, comment); err != nil {
		return nil, err
	}
	return result, nil
}

// retreat reopens a stage and the one before it. The movement records the
// previous stage, i.e. the stage the flow returned to.
func (s *FlowService) retreat(ctx context.Context, tx repository.InstanceTx, stages []*models.InstanceStage, stage *models.InstanceStage, actorID *string, comment string) (*models.TransitionResult, error) {
	if stage.Position == 1 {
		return &models.TransitionResult{
			Status:    models.TransitionRefused,
			Message:   "cannot retreat from the first stage",
			Finalized: tx.Instance().Finalized,
		}, nil
	}

	previous := stageAtPosition(stages, stage.Position-1)
	if previous == nil {
		return nil, fmt.Errorf("%w: previous stage for position %d not found in instance %s",
			ErrInconsistent, stage.Position, stage.InstanceID)
	}

	if err := tx.SetStageCompleted(ctx, stage.ID, false); err != nil {
		return nil, err
	}
	if err := tx.SetStageCompleted(ctx, previous.ID, false); err != nil {
		return nil, err
	}
	if tx.Instance().Finalized {
		if err := tx.SetFinalized(ctx, false); err != nil {
			return nil, err
		}
	}

	if err := s.appendMovement(ctx, tx, previous, models.ActionReturn, actorID, comment); err != nil {
		return nil, err
	}
	return &models.TransitionResult{
		Status:  models.TransitionReturned,
		Message: fmt.Sprintf("returned to stage %q", previous.Name),
	}, nil
}

func (s *FlowService) appendMovement(ctx context.Context, tx repository.InstanceTx, stage *models.InstanceStage, actionName string, actorID *string, comment string) error {
	action, err := tx.GetActionByName(ctx, actionName)
	if err != nil {
		return fmt.Errorf("%w: action %q is not seeded", ErrInconsistent, actionName)
	}
	return tx.AppendMovement(ctx, &models.Movement{
		ID:         uuid.New().String(),
		InstanceID: stage.InstanceID,
		StageID:    &stage.ID,
		UserID:     actorID,
		ActionID:   &action.ID,
		ActionName: action.Name,
		Comment:    comment,
		RecordedAt: time.Now(),
	})
}

// GetDetail returns an instance with its stages, current stage and ledger.
// The finalized flag is a cache of "no incomplete stages remain"; if a read
// finds it stale it is corrected here under the instance lock.
func (s *FlowService) GetDetail(ctx context.Context, instanceID string) (*models.InstanceDetail, error) {
	instance, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	stages, err := s.store.ListInstanceStages(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	current := currentStage(stages)
	if current == nil && !instance.Finalized {
		err := s.store.WithInstanceLock(ctx, instanceID, func(ctx context.Context, tx repository.InstanceTx) error {
			locked, err := tx.ListStages(ctx)
			if err != nil {
				return err
			}
			if currentStage(locked) == nil && !tx.Instance().Finalized {
				return tx.SetFinalized(ctx, true)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		instance.Finalized = true
	}

	movements, err := s.store.ListMovements(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return &models.InstanceDetail{
		Instance:     instance,
		Stages:       stages,
		CurrentStage: current,
		Movements:    movements,
	}, nil
}

// CurrentStage returns the first incomplete stage, or nil when the flow is
// complete.
func (s *FlowService) CurrentStage(ctx context.Context, instanceID string) (*models.InstanceStage, error) {
	if _, err := s.store.GetInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	stages, err := s.store.ListInstanceStages(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return currentStage(stages), nil
}

// List returns instances matching the filter.
func (s *FlowService) List(ctx context.Context, filter models.InstanceFilter) ([]*models.Instance, error) {
	switch filter {
	case "", models.FilterAll, models.FilterInProgress, models.FilterFinalized:
	default:
		return nil, fmt.Errorf("%w: invalid filter %q", ErrValidation, filter)
	}
	return s.store.ListInstances(ctx, filter)
}

// Delete removes an instance with its stages and movements.
func (s *FlowService) Delete(ctx context.Context, instanceID string) error {
	return s.store.DeleteInstance(ctx, instanceID)
}

// currentStage is the first stage, in ascending position order, that is not
// completed. Stage slices from the store are already position-sorted.
func currentStage(stages []*models.InstanceStage) *models.InstanceStage {
	for _, stage := range stages {
		if !stage.Completed {
			return stage
		}
	}
	return nil
}

// nextStage is the stage with the smallest position strictly greater than pos.
func nextStage(stages []*models.InstanceStage, pos int) *models.InstanceStage {
	for _, stage := range stages {
		if stage.Position > pos {
			return stage
		}
	}
	return nil
}

func stageAtPosition(stages []*models.InstanceStage, pos int) *models.InstanceStage {
	for _, stage := range stages {
		if stage.Position == pos {
			return stage
		}
	}
	return nil
}

func stageByID(stages []*models.InstanceStage, id string) *models.InstanceStage {
	for _, stage := range stages {
		if stage.ID == id {
			return stage
		}
	}
	return nil
}
