package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"approval-flow/backend/pkg/models"
)

// MemoryStore is a mutex-guarded in-memory implementation of Store. It backs
// unit tests and --in-memory development runs, and mirrors the Postgres
// store's referential rules: cascading deletes for ownership relations,
// nulled references for ledger rows.
type MemoryStore struct {
	mu sync.Mutex

	sectors   map[string]*models.Sector
	users     map[string]*models.User
	templates map[string]*models.Template
	tstages   map[string]*models.TemplateStage
	instances map[string]*models.Instance
	istages   map[string]*models.InstanceStage
	actions   map[string]*models.Action
	movements []*models.Movement
}

// NewMemoryStore creates a MemoryStore with the fixed action rows pre-seeded,
// matching what Migrate does for Postgres.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		sectors:   map[string]*models.Sector{},
		users:     map[string]*models.User{},
		templates: map[string]*models.Template{},
		tstages:   map[string]*models.TemplateStage{},
		instances: map[string]*models.Instance{},
		istages:   map[string]*models.InstanceStage{},
		actions:   map[string]*models.Action{},
	}
	for _, name := range []string{models.ActionAdvance, models.ActionReturn} {
		action := &models.Action{ID: uuid.New().String(), Name: name}
		s.actions[action.ID] = action
	}
	return s
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateSector inserts a sector.
func (s *MemoryStore) CreateSector(ctx context.Context, sector *models.Sector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *sector
	s.sectors[sector.ID] = &copied
	return nil
}

// ListSectors returns all sectors ordered by name.
func (s *MemoryStore) ListSectors(ctx context.Context) ([]*models.Sector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sectors []*models.Sector
	for _, sector := range s.sectors {
		copied := *sector
		sectors = append(sectors, &copied)
	}
	sort.Slice(sectors, func(i, j int) bool { return sectors[i].Name < sectors[j].Name })
	return sectors, nil
}

// CreateUser inserts a user.
func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

// GetUserByEmail retrieves a user by e-mail address.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// CreateTemplate inserts a template and its stages.
func (s *MemoryStore) CreateTemplate(ctx context.Context, template *models.Template, stages []*models.TemplateStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *template
	s.templates[template.ID] = &copied
	for _, stage := range stages {
		sc := *stage
		s.tstages[stage.ID] = &sc
	}
	return nil
}

// GetTemplate retrieves a template by ID.
func (s *MemoryStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	template, ok := s.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *template
	return &copied, nil
}

// ListTemplates returns all templates, newest first.
func (s *MemoryStore) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var templates []*models.Template
	for _, template := range s.templates {
		copied := *template
		templates = append(templates, &copied)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})
	return templates, nil
}

// UpdateTemplate updates a template's name and description.
func (s *MemoryStore) UpdateTemplate(ctx context.Context, template *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.templates[template.ID]
	if !ok {
		return fmt.Errorf("template %s: %w", template.ID, ErrNotFound)
	}
	existing.Name = template.Name
	existing.Description = template.Description
	return nil
}

// DeleteTemplate removes a template and cascades to its stages. Instances
// keep their cloned stages; their template reference is nulled.
func (s *MemoryStore) DeleteTemplate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[id]; !ok {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	delete(s.templates, id)
	for sid, stage := range s.tstages {
		if stage.TemplateID == id {
			delete(s.tstages, sid)
		}
	}
	for _, instance := range s.instances {
		if instance.TemplateID != nil && *instance.TemplateID == id {
			instance.TemplateID = nil
		}
	}
	return nil
}

// ListTemplateStages returns a template's stages in ascending position order.
func (s *MemoryStore) ListTemplateStages(ctx context.Context, templateID string) ([]*models.TemplateStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stages []*models.TemplateStage
	for _, stage := range s.tstages {
		if stage.TemplateID == templateID {
			copied := *stage
			stages = append(stages, &copied)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Position < stages[j].Position })
	return stages, nil
}

// CreateInstance inserts an instance and its cloned stages.
func (s *MemoryStore) CreateInstance(ctx context.Context, instance *models.Instance, stages []*models.InstanceStage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *instance
	s.instances[instance.ID] = &copied
	for _, stage := range stages {
		sc := *stage
		s.istages[stage.ID] = &sc
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *MemoryStore) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *instance
	return &copied, nil
}

// ListInstances returns instances matching the filter, newest first.
func (s *MemoryStore) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var instances []*models.Instance
	for _, instance := range s.instances {
		switch filter {
		case models.FilterInProgress:
			if instance.Finalized {
				continue
			}
		case models.FilterFinalized:
			if !instance.Finalized {
				continue
			}
		}
		copied := *instance
		instances = append(instances, &copied)
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.After(instances[j].CreatedAt)
	})
	return instances, nil
}

// DeleteInstance removes an instance, its stages and its movements.
func (s *MemoryStore) DeleteInstance(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	delete(s.instances, id)
	for sid, stage := range s.istages {
		if stage.InstanceID == id {
			delete(s.istages, sid)
		}
	}
	kept := s.movements[:0]
	for _, movement := range s.movements {
		if movement.InstanceID != id {
			kept = append(kept, movement)
		}
	}
	s.movements = kept
	return nil
}

// ListInstanceStages returns an instance's stages in ascending position order.
func (s *MemoryStore) ListInstanceStages(ctx context.Context, instanceID string) ([]*models.InstanceStage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listStagesLocked(instanceID), nil
}

// ListMovements returns an instance's ledger, newest first. Ties on the
// recorded timestamp fall back to insertion order.
func (s *MemoryStore) ListMovements(ctx context.Context, instanceID string) ([]*models.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var movements []*models.Movement
	for i := len(s.movements) - 1; i >= 0; i-- {
		if s.movements[i].InstanceID == instanceID {
			copied := *s.movements[i]
			movements = append(movements, &copied)
		}
	}
	sort.SliceStable(movements, func(i, j int) bool {
		return movements[i].RecordedAt.After(movements[j].RecordedAt)
	})
	return movements, nil
}

// GetActionByName retrieves one of the seeded action rows.
func (s *MemoryStore) GetActionByName(ctx context.Context, name string) (*models.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getActionLocked(name)
}

// WithInstanceLock serializes fn against all other store operations. Unlike
// the Postgres store it applies mutations directly, so fn must check its
// preconditions before writing, which the transition engine does.
func (s *MemoryStore) WithInstanceLock(ctx context.Context, instanceID string, fn func(ctx context.Context, tx InstanceTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	instance, ok := s.instances[instanceID]
	if !ok {
		return ErrNotFound
	}
	return fn(ctx, &memInstanceTx{store: s, instance: instance})
}

func (s *MemoryStore) listStagesLocked(instanceID string) []*models.InstanceStage {
	var stages []*models.InstanceStage
	for _, stage := range s.istages {
		if stage.InstanceID == instanceID {
			copied := *stage
			stages = append(stages, &copied)
		}
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i].Position < stages[j].Position })
	return stages
}

func (s *MemoryStore) getActionLocked(name string) (*models.Action, error) {
	for _, action := range s.actions {
		if action.Name == name {
			copied := *action
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// memInstanceTx mutates the store while the caller holds its mutex.
type memInstanceTx struct {
	store    *MemoryStore
	instance *models.Instance
}

func (t *memInstanceTx) Instance() *models.Instance {
	copied := *t.instance
	return &copied
}

func (t *memInstanceTx) ListStages(ctx context.Context) ([]*models.InstanceStage, error) {
	return t.store.listStagesLocked(t.instance.ID), nil
}

func (t *memInstanceTx) SetStageCompleted(ctx context.Context, stageID string, completed bool) error {
	stage, ok := t.store.istages[stageID]
	if !ok || stage.InstanceID != t.instance.ID {
		return fmt.Errorf("stage %s: %w", stageID, ErrNotFound)
	}
	stage.Completed = completed
	return nil
}

func (t *memInstanceTx) SetFinalized(ctx context.Context, finalized bool) error {
	t.instance.Finalized = finalized
	return nil
}

func (t *memInstanceTx) AppendMovement(ctx context.Context, movement *models.Movement) error {
	copied := *movement
	t.store.movements = append(t.store.movements, &copied)
	return nil
}

func (t *memInstanceTx) GetActionByName(ctx context.Context, name string) (*models.Action, error) {
	return t.store.getActionLocked(name)
}
