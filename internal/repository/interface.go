package repository

import (
	"context"
	"errors"

	"approval-flow/backend/pkg/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface for templates, instances and the
// movement ledger.
type Store interface {
	Ping(ctx context.Context) error

	// Sectors and users are reference data consumed by the engine.
	CreateSector(ctx context.Context, sector *models.Sector) error
	ListSectors(ctx context.Context) ([]*models.Sector, error)
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// Templates own their stage rows; deleting a template cascades to them.
	CreateTemplate(ctx context.Context, template *models.Template, stages []*models.TemplateStage) error
	GetTemplate(ctx context.Context, id string) (*models.Template, error)
	ListTemplates(ctx context.Context) ([]*models.Template, error)
	UpdateTemplate(ctx context.Context, template *models.Template) error
	DeleteTemplate(ctx context.Context, id string) error
	ListTemplateStages(ctx context.Context, templateID string) ([]*models.TemplateStage, error)

	// Instances own their stage copies; deleting an instance cascades to
	// stages and movements.
	CreateInstance(ctx context.Context, instance *models.Instance, stages []*models.InstanceStage) error
	GetInstance(ctx context.Context, id string) (*models.Instance, error)
	ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.Instance, error)
	DeleteInstance(ctx context.Context, id string) error
	ListInstanceStages(ctx context.Context, instanceID string) ([]*models.InstanceStage, error)

	// Ledger reads. Movements are only ever written through an InstanceTx.
	ListMovements(ctx context.Context, instanceID string) ([]*models.Movement, error)
	GetActionByName(ctx context.Context, name string) (*models.Action, error)

	// WithInstanceLock runs fn inside a single transaction holding a
	// row-level lock on the instance, so concurrent transitions against the
	// same instance serialize. Returns ErrNotFound if the instance does not
	// exist; fn returning an error rolls everything back.
	WithInstanceLock(ctx context.Context, instanceID string, fn func(ctx context.Context, tx InstanceTx) error) error
}

// InstanceTx is the mutation surface available while holding an instance
// lock. All writes are applied atomically with the surrounding transaction.
type InstanceTx interface {
	Instance() *models.Instance
	ListStages(ctx context.Context) ([]*models.InstanceStage, error)
	SetStageCompleted(ctx context.Context, stageID string, completed bool) error
	SetFinalized(ctx context.Context, finalized bool) error
	AppendMovement(ctx context.Context, movement *models.Movement) error
	GetActionByName(ctx context.Context, name string) (*models.Action, error)
}
