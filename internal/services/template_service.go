package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"approval-flow/backend/internal/repository"
	"approval-flow/backend/pkg/models"
)

// TemplateService manages reusable workflow templates and their stage lists.
type TemplateService struct {
	store repository.Store
}

// NewTemplateService creates a new TemplateService.
func NewTemplateService(store repository.Store) *TemplateService {
	return &TemplateService{store: store}
}

// Create validates and stores a template. Submitted stages with a blank name
// are skipped without renumbering the rest, so stage positions can have gaps;
// instantiation renumbers contiguously, so gaps never reach a running flow.
func (s *TemplateService) Create(ctx context.Context, name, description string, createdBy *string, stages []models.StageInput) (*models.Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrValidation)
	}

	template := &models.Template{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now(),
	}
	if description != "" {
		template.Description = &description
	}

	var rows []*models.TemplateStage
	for i, in := range stages {
		if strings.TrimSpace(in.Name) == "" {
			continue
		}
		profile := in.ApproverProfile
		if profile == "" {
			profile = models.ProfileStandard
		}
		rows = append(rows, &models.TemplateStage{
			ID:              uuid.New().String(),
			TemplateID:      template.ID,
			Position:        i + 1,
			Name:            in.Name,
			SectorID:        in.SectorID,
			ApproverProfile: profile,
			CreatedAt:       template.CreatedAt,
		})
	}

	if err := s.store.CreateTemplate(ctx, template, rows); err != nil {
		return nil, err
	}
	return template, nil
}

// Get returns a template and its stages in ascending position order.
func (s *TemplateService) Get(ctx context.Context, id string) (*models.Template, []*models.TemplateStage, error) {
	template, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	stages, err := s.store.ListTemplateStages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return template, stages, nil
}

// List returns all templates.
func (s *TemplateService) List(ctx context.Context) ([]*models.Template, error) {
	return s.store.ListTemplates(ctx)
}

// Update renames a template. Stage edits go through delete/recreate of the
// template; instances already cloned are unaffected either way.
func (s *TemplateService) Update(ctx context.Context, id, name, description string) (*models.Template, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: template name is required", ErrValidation)
	}
	template, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	template.Name = name
	if description != "" {
		template.Description = &description
	} else {
		template.Description = nil
	}
	if err := s.store.UpdateTemplate(ctx, template); err != nil {
		return nil, err
	}
	return template, nil
}

// Delete removes a template and its stages.
func (s *TemplateService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteTemplate(ctx, id)
}
