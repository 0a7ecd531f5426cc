package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approval-flow/backend/internal/repository"
	"approval-flow/backend/pkg/models"
)

func newTestServices(t *testing.T) (*TemplateService, *FlowService) {
	t.Helper()
	store := repository.NewMemoryStore()
	return NewTemplateService(store), NewFlowService(store)
}

func mustInstantiate(t *testing.T, templates *TemplateService, flows *FlowService, stageNames ...string) (*models.Instance, []*models.InstanceStage) {
	t.Helper()
	ctx := context.Background()

	inputs := make([]models.StageInput, 0, len(stageNames))
	for _, name := range stageNames {
		inputs = append(inputs, models.StageInput{Name: name})
	}
	template, err := templates.Create(ctx, "Purchase Approval", "", nil, inputs)
	require.NoError(t, err)

	instance, err := flows.Instantiate(ctx, template.ID, "PO-100", nil)
	require.NoError(t, err)

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	return detail.Instance, detail.Stages
}

func TestInstantiateClonesIndependently(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)

	// Blank-named entries are skipped without renumbering, leaving a gap in
	// the template; the clone must still be contiguous 1..N.
	template, err := templates.Create(ctx, "Hiring", "", nil, []models.StageInput{
		{Name: "Screening"},
		{Name: "   "},
		{Name: "Interview"},
		{Name: "Offer"},
	})
	require.NoError(t, err)

	tstages, err := templates.store.ListTemplateStages(ctx, template.ID)
	require.NoError(t, err)
	require.Len(t, tstages, 3)
	assert.Equal(t, []int{1, 3, 4}, []int{tstages[0].Position, tstages[1].Position, tstages[2].Position})

	instance, err := flows.Instantiate(ctx, template.ID, "Hire Ana", nil)
	require.NoError(t, err)

	stages, err := flows.store.ListInstanceStages(ctx, instance.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	for i, stage := range stages {
		assert.Equal(t, i+1, stage.Position)
		assert.False(t, stage.Completed)
	}
	assert.Equal(t, "Screening", stages[0].Name)
	assert.Equal(t, "Interview", stages[1].Name)
	assert.Equal(t, "Offer", stages[2].Name)

	// Mutating the template afterwards never changes the existing instance.
	_, err = templates.Update(ctx, template.ID, "Hiring v2", "")
	require.NoError(t, err)
	require.NoError(t, templates.Delete(ctx, template.ID))

	after, err := flows.store.ListInstanceStages(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, stages, after)
}

func TestInstantiateZeroStagesIsFinalized(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)

	template, err := templates.Create(ctx, "Empty", "", nil, nil)
	require.NoError(t, err)

	instance, err := flows.Instantiate(ctx, template.ID, "Nothing to do", nil)
	require.NoError(t, err)
	assert.True(t, instance.Finalized)

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.CurrentStage)
	assert.Empty(t, detail.Movements)
}

func TestInstantiateValidation(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)

	template, err := templates.Create(ctx, "T", "", nil, []models.StageInput{{Name: "Only"}})
	require.NoError(t, err)

	_, err = flows.Instantiate(ctx, template.ID, "  ", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = flows.Instantiate(ctx, "11111111-1111-1111-1111-111111111111", "X", nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAdvanceMonotonicCompletion(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One", "Two", "Three")

	for i, stage := range stages {
		result, err := flows.Transition(ctx, instance.ID, stage.ID, "advance", nil, "")
		require.NoError(t, err)
		if i < len(stages)-1 {
			assert.Equal(t, models.TransitionAdvanced, result.Status)
			assert.Contains(t, result.Message, stages[i+1].Name)
		} else {
			assert.Equal(t, models.TransitionFinalized, result.Status)
			assert.True(t, result.Finalized)
		}
	}

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, detail.Instance.Finalized)
	assert.Nil(t, detail.CurrentStage)
	for _, stage := range detail.Stages {
		assert.True(t, stage.Completed)
	}
	require.Len(t, detail.Movements, 3)
	for _, movement := range detail.Movements {
		assert.Equal(t, models.ActionAdvance, movement.ActionName)
	}
}

func TestAdvanceIdempotentNoop(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One", "Two")

	first, err := flows.Transition(ctx, instance.ID, stages[0].ID, "advance", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionAdvanced, first.Status)

	second, err := flows.Transition(ctx, instance.ID, stages[0].ID, "advance", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionNoop, second.Status)
	assert.False(t, second.Status.Mutated())

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Movements, 1)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 2, detail.CurrentStage.Position)
}

func TestRetreatFirstStageGuard(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One", "Two")

	result, err := flows.Transition(ctx, instance.ID, stages[0].ID, "retreat", nil, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionRefused, result.Status)
	assert.Equal(t, "cannot retreat from the first stage", result.Message)

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Movements)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 1, detail.CurrentStage.Position)
}

func TestRetreatReopensTwoStages(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One", "Two", "Three")

	for _, stage := range stages {
		_, err := flows.Transition(ctx, instance.ID, stage.ID, "advance", nil, "")
		require.NoError(t, err)
	}

	result, err := flows.Transition(ctx, instance.ID, stages[2].ID, "retreat", nil, "rework")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionReturned, result.Status)
	assert.Contains(t, result.Message, "Two")

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.False(t, detail.Instance.Finalized)
	assert.True(t, detail.Stages[0].Completed)
	assert.False(t, detail.Stages[1].Completed)
	assert.False(t, detail.Stages[2].Completed)
	require.NotNil(t, detail.CurrentStage)
	assert.Equal(t, 2, detail.CurrentStage.Position)

	// One Return movement, recorded against the previous stage.
	require.Len(t, detail.Movements, 4)
	returned := detail.Movements[0]
	assert.Equal(t, models.ActionReturn, returned.ActionName)
	require.NotNil(t, returned.StageID)
	assert.Equal(t, stages[1].ID, *returned.StageID)
	assert.Equal(t, "rework", returned.Comment)
}

func TestTransitionInvalidAction(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One")

	_, err := flows.Transition(ctx, instance.ID, stages[0].ID, "approve", nil, "")
	assert.ErrorIs(t, err, ErrValidation)

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Movements)
	assert.False(t, detail.Stages[0].Completed)
}

func TestTransitionStageNotInInstance(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, _ := mustInstantiate(t, templates, flows, "One")
	other, otherStages := mustInstantiate(t, templates, flows, "Foreign")

	_, err := flows.Transition(ctx, instance.ID, otherStages[0].ID, "advance", nil, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The foreign instance is untouched.
	detail, err := flows.GetDetail(ctx, other.ID)
	require.NoError(t, err)
	assert.False(t, detail.Stages[0].Completed)
}

func TestFinalizedReconcileOnRead(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	templates := NewTemplateService(store)
	flows := NewFlowService(store)
	instance, stages := mustInstantiate(t, templates, flows, "Only")

	// Complete the stage behind the engine's back to simulate a stale cache.
	err := store.WithInstanceLock(ctx, instance.ID, func(ctx context.Context, tx repository.InstanceTx) error {
		return tx.SetStageCompleted(ctx, stages[0].ID, true)
	})
	require.NoError(t, err)

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, detail.Instance.Finalized)
	assert.Nil(t, detail.CurrentStage)

	persisted, err := store.GetInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, persisted.Finalized)
}

func TestPurchaseApprovalScenario(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)

	template, err := templates.Create(ctx, "Purchase Approval", "", nil, []models.StageInput{
		{Name: "Manager Review"},
		{Name: "Finance Review"},
	})
	require.NoError(t, err)

	instance, err := flows.Instantiate(ctx, template.ID, "PO-100", nil)
	require.NoError(t, err)

	actor := "11111111-2222-3333-4444-555555555555"
	store := flows.store.(*repository.MemoryStore)
	require.NoError(t, store.CreateUser(ctx, &models.User{ID: actor, Username: "u1", Email: "u1@acme.com", Profile: models.ProfileStandard}))

	detail, err := flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	stage1, stage2 := detail.Stages[0], detail.Stages[1]
	require.Equal(t, stage1.ID, detail.CurrentStage.ID)

	result, err := flows.Transition(ctx, instance.ID, stage1.ID, "advance", &actor, "lgtm")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionAdvanced, result.Status)

	detail, err = flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, detail.Stages[0].Completed)
	assert.Equal(t, stage2.ID, detail.CurrentStage.ID)
	assert.False(t, detail.Instance.Finalized)
	require.Len(t, detail.Movements, 1)
	assert.Equal(t, models.ActionAdvance, detail.Movements[0].ActionName)

	result, err = flows.Transition(ctx, instance.ID, stage2.ID, "advance", &actor, "")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionFinalized, result.Status)

	detail, err = flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.True(t, detail.Instance.Finalized)

	result, err = flows.Transition(ctx, instance.ID, stage2.ID, "retreat", &actor, "numbers off")
	require.NoError(t, err)
	assert.Equal(t, models.TransitionReturned, result.Status)

	detail, err = flows.GetDetail(ctx, instance.ID)
	require.NoError(t, err)
	assert.False(t, detail.Instance.Finalized)
	assert.False(t, detail.Stages[0].Completed)
	assert.False(t, detail.Stages[1].Completed)
	require.Len(t, detail.Movements, 3)
	assert.Equal(t, models.ActionReturn, detail.Movements[0].ActionName)
	require.NotNil(t, detail.Movements[0].StageID)
	assert.Equal(t, stage1.ID, *detail.Movements[0].StageID)
}

func TestDeleteInstanceRemovesLedger(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	instance, stages := mustInstantiate(t, templates, flows, "One")

	_, err := flows.Transition(ctx, instance.ID, stages[0].ID, "advance", nil, "")
	require.NoError(t, err)

	require.NoError(t, flows.Delete(ctx, instance.ID))
	_, err = flows.GetDetail(ctx, instance.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestListInstancesFilter(t *testing.T) {
	ctx := context.Background()
	templates, flows := newTestServices(t)
	done, doneStages := mustInstantiate(t, templates, flows, "Only")
	open, _ := mustInstantiate(t, templates, flows, "A", "B")

	_, err := flows.Transition(ctx, done.ID, doneStages[0].ID, "advance", nil, "")
	require.NoError(t, err)

	inProgress, err := flows.List(ctx, models.FilterInProgress)
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, open.ID, inProgress[0].ID)

	finalized, err := flows.List(ctx, models.FilterFinalized)
	require.NoError(t, err)
	require.Len(t, finalized, 1)
	assert.Equal(t, done.ID, finalized[0].ID)

	all, err := flows.List(ctx, models.FilterAll)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = flows.List(ctx, "bogus")
	assert.ErrorIs(t, err, ErrValidation)
}
