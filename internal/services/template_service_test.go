package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"approval-flow/backend/internal/repository"
	"approval-flow/backend/pkg/models"
)

func TestCreateTemplateRequiresName(t *testing.T) {
	ctx := context.Background()
	templates, _ := newTestServices(t)

	_, err := templates.Create(ctx, "   ", "", nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateTemplateSkipsBlankStages(t *testing.T) {
	ctx := context.Background()
	templates, _ := newTestServices(t)

	template, err := templates.Create(ctx, "Expenses", "reimbursements", nil, []models.StageInput{
		{Name: ""},
		{Name: "Manager"},
		{Name: "\t"},
		{Name: "Finance", ApproverProfile: models.ProfileAdministrator},
	})
	require.NoError(t, err)

	_, stages, err := templates.Get(ctx, template.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	// Positions keep the submitted index; blanks leave gaps.
	assert.Equal(t, 2, stages[0].Position)
	assert.Equal(t, "Manager", stages[0].Name)
	assert.Equal(t, models.ProfileStandard, stages[0].ApproverProfile)
	assert.Equal(t, 4, stages[1].Position)
	assert.Equal(t, "Finance", stages[1].Name)
	assert.Equal(t, models.ProfileAdministrator, stages[1].ApproverProfile)
}

func TestUpdateTemplate(t *testing.T) {
	ctx := context.Background()
	templates, _ := newTestServices(t)

	template, err := templates.Create(ctx, "Old", "desc", nil, nil)
	require.NoError(t, err)

	updated, err := templates.Update(ctx, template.ID, "New", "")
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Name)
	assert.Nil(t, updated.Description)

	_, err = templates.Update(ctx, template.ID, " ", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = templates.Update(ctx, "22222222-2222-2222-2222-222222222222", "X", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteTemplateCascadesStages(t *testing.T) {
	ctx := context.Background()
	templates, _ := newTestServices(t)

	template, err := templates.Create(ctx, "Gone", "", nil, []models.StageInput{{Name: "Only"}})
	require.NoError(t, err)

	require.NoError(t, templates.Delete(ctx, template.ID))

	_, _, err = templates.Get(ctx, template.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	stages, err := templates.store.ListTemplateStages(ctx, template.ID)
	require.NoError(t, err)
	assert.Empty(t, stages)

	err = templates.Delete(ctx, template.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
