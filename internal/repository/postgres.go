package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"approval-flow/backend/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// CreateSector inserts a sector.
func (s *PostgresStore) CreateSector(ctx context.Context, sector *models.Sector) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO sectors (id, name, description, created_at) VALUES ($1, $2, $3, $4)",
		sector.ID, sector.Name, sector.Description, sector.CreatedAt)
	return err
}

// ListSectors returns all sectors ordered by name.
func (s *PostgresStore) ListSectors(ctx context.Context) ([]*models.Sector, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, name, description, created_at FROM sectors ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sectors []*models.Sector
	for rows.Next() {
		var sector models.Sector
		if err := rows.Scan(&sector.ID, &sector.Name, &sector.Description, &sector.CreatedAt); err != nil {
			return nil, err
		}
		sectors = append(sectors, &sector)
	}
	return sectors, rows.Err()
}

// CreateUser inserts a user reference row.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO users (id, username, email, sector_id, profile, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		user.ID, user.Username, user.Email, user.SectorID, user.Profile, user.CreatedAt)
	return err
}

// GetUserByEmail retrieves a user by e-mail address.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(ctx,
		"SELECT id, username, email, sector_id, profile, created_at FROM users WHERE email = $1",
		email).Scan(&user.ID, &user.Username, &user.Email, &user.SectorID, &user.Profile, &user.CreatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &user, nil
}

// CreateTemplate inserts a template and its stage rows in one transaction.
func (s *PostgresStore) CreateTemplate(ctx context.Context, template *models.Template, stages []*models.TemplateStage) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO flow_templates (id, name, description, created_by, created_at) VALUES ($1, $2, $3, $4, $5)",
		template.ID, template.Name, template.Description, template.CreatedBy, template.CreatedAt)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		_, err = tx.Exec(ctx,
			"INSERT INTO template_stages (id, template_id, position, name, sector_id, approver_profile, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			stage.ID, stage.TemplateID, stage.Position, stage.Name, stage.SectorID, stage.ApproverProfile, stage.CreatedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetTemplate retrieves a template by its ID.
func (s *PostgresStore) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	var template models.Template
	err := s.db.QueryRow(ctx,
		"SELECT id, name, description, created_by, created_at, updated_at FROM flow_templates WHERE id = $1",
		id).Scan(&template.ID, &template.Name, &template.Description, &template.CreatedBy, &template.CreatedAt, &template.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &template, nil
}

// ListTemplates returns all templates, newest first.
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, name, description, created_by, created_at, updated_at FROM flow_templates ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		var template models.Template
		if err := rows.Scan(&template.ID, &template.Name, &template.Description, &template.CreatedBy, &template.CreatedAt, &template.UpdatedAt); err != nil {
			return nil, err
		}
		templates = append(templates, &template)
	}
	return templates, rows.Err()
}

// UpdateTemplate updates a template's name and description.
func (s *PostgresStore) UpdateTemplate(ctx context.Context, template *models.Template) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE flow_templates SET name = $1, description = $2, updated_at = $3 WHERE id = $4",
		template.Name, template.Description, time.Now(), template.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", template.ID, ErrNotFound)
	}
	return nil
}

// DeleteTemplate removes a template; its stages go with it via cascade.
// Instances already cloned from it are unaffected.
func (s *PostgresStore) DeleteTemplate(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM flow_templates WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListTemplateStages returns a template's stages in ascending position order.
func (s *PostgresStore) ListTemplateStages(ctx context.Context, templateID string) ([]*models.TemplateStage, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, template_id, position, name, sector_id, approver_profile, created_at, updated_at FROM template_stages WHERE template_id = $1 ORDER BY position",
		templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.TemplateStage
	for rows.Next() {
		var stage models.TemplateStage
		if err := rows.Scan(&stage.ID, &stage.TemplateID, &stage.Position, &stage.Name, &stage.SectorID, &stage.ApproverProfile, &stage.CreatedAt, &stage.UpdatedAt); err != nil {
			return nil, err
		}
		stages = append(stages, &stage)
	}
	return stages, rows.Err()
}

// CreateInstance inserts an instance and its cloned stages in one transaction.
func (s *PostgresStore) CreateInstance(ctx context.Context, instance *models.Instance, stages []*models.InstanceStage) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		"INSERT INTO flow_instances (id, template_id, name, created_by, finalized, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		instance.ID, instance.TemplateID, instance.Name, instance.CreatedBy, instance.Finalized, instance.CreatedAt)
	if err != nil {
		return err
	}
	for _, stage := range stages {
		_, err = tx.Exec(ctx,
			"INSERT INTO instance_stages (id, instance_id, position, name, sector_id, approver_profile, completed) VALUES ($1, $2, $3, $4, $5, $6, $7)",
			stage.ID, stage.InstanceID, stage.Position, stage.Name, stage.SectorID, stage.ApproverProfile, stage.Completed)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetInstance retrieves an instance by its ID.
func (s *PostgresStore) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	var instance models.Instance
	err := s.db.QueryRow(ctx,
		"SELECT id, template_id, name, created_by, finalized, created_at, updated_at FROM flow_instances WHERE id = $1",
		id).Scan(&instance.ID, &instance.TemplateID, &instance.Name, &instance.CreatedBy, &instance.Finalized, &instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &instance, nil
}

// ListInstances returns instances matching the filter, newest first.
func (s *PostgresStore) ListInstances(ctx context.Context, filter models.InstanceFilter) ([]*models.Instance, error) {
	query := "SELECT id, template_id, name, created_by, finalized, created_at, updated_at FROM flow_instances"
	switch filter {
	case models.FilterInProgress:
		query += " WHERE finalized = FALSE"
	case models.FilterFinalized:
		query += " WHERE finalized = TRUE"
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.Instance
	for rows.Next() {
		var instance models.Instance
		if err := rows.Scan(&instance.ID, &instance.TemplateID, &instance.Name, &instance.CreatedBy, &instance.Finalized, &instance.CreatedAt, &instance.UpdatedAt); err != nil {
			return nil, err
		}
		instances = append(instances, &instance)
	}
	return instances, rows.Err()
}

// DeleteInstance removes an instance. Stages and movements cascade; movement
// rows referencing the stages would otherwise have their stage_id nulled.
func (s *PostgresStore) DeleteInstance(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM flow_instances WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListInstanceStages returns an instance's stages in ascending position order.
func (s *PostgresStore) ListInstanceStages(ctx context.Context, instanceID string) ([]*models.InstanceStage, error) {
	return listInstanceStages(ctx, s.db, instanceID)
}

// ListMovements returns an instance's ledger, newest first.
func (s *PostgresStore) ListMovements(ctx context.Context, instanceID string) ([]*models.Movement, error) {
	rows, err := s.db.Query(ctx,
		`SELECT m.id, m.instance_id, m.stage_id, m.user_id, m.action_id, COALESCE(a.name, ''), COALESCE(m.comment, ''), m.recorded_at
		 FROM movements m LEFT JOIN actions a ON a.id = m.action_id
		 WHERE m.instance_id = $1 ORDER BY m.recorded_at DESC`,
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []*models.Movement
	for rows.Next() {
		var movement models.Movement
		if err := rows.Scan(&movement.ID, &movement.InstanceID, &movement.StageID, &movement.UserID, &movement.ActionID, &movement.ActionName, &movement.Comment, &movement.RecordedAt); err != nil {
			return nil, err
		}
		movements = append(movements, &movement)
	}
	return movements, rows.Err()
}

// GetActionByName retrieves one of the seeded action rows.
func (s *PostgresStore) GetActionByName(ctx context.Context, name string) (*models.Action, error) {
	return getActionByName(ctx, s.db, name)
}

// WithInstanceLock begins a transaction, locks the instance row with
// SELECT ... FOR UPDATE and runs fn against the transactional view. Two
// concurrent transitions on the same instance therefore serialize; the
// second sees the first's committed state.
func (s *PostgresStore) WithInstanceLock(ctx context.Context, instanceID string, fn func(ctx context.Context, tx InstanceTx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var instance models.Instance
	err = tx.QueryRow(ctx,
		"SELECT id, template_id, name, created_by, finalized, created_at, updated_at FROM flow_instances WHERE id = $1 FOR UPDATE",
		instanceID).Scan(&instance.ID, &instance.TemplateID, &instance.Name, &instance.CreatedBy, &instance.Finalized, &instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return mapNoRows(err)
	}

	if err := fn(ctx, &pgInstanceTx{tx: tx, instance: &instance}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgInstanceTx applies instance mutations inside the locking transaction.
type pgInstanceTx struct {
	tx       pgx.Tx
	instance *models.Instance
}

func (t *pgInstanceTx) Instance() *models.Instance {
	return t.instance
}

func (t *pgInstanceTx) ListStages(ctx context.Context) ([]*models.InstanceStage, error) {
	return listInstanceStages(ctx, t.tx, t.instance.ID)
}

func (t *pgInstanceTx) SetStageCompleted(ctx context.Context, stageID string, completed bool) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE instance_stages SET completed = $1 WHERE id = $2 AND instance_id = $3",
		completed, stageID, t.instance.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("stage %s: %w", stageID, ErrNotFound)
	}
	return nil
}

func (t *pgInstanceTx) SetFinalized(ctx context.Context, finalized bool) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE flow_instances SET finalized = $1, updated_at = $2 WHERE id = $3",
		finalized, time.Now(), t.instance.ID)
	if err != nil {
		return err
	}
	t.instance.Finalized = finalized
	return nil
}

func (t *pgInstanceTx) AppendMovement(ctx context.Context, movement *models.Movement) error {
	_, err := t.tx.Exec(ctx,
		"INSERT INTO movements (id, instance_id, stage_id, user_id, action_id, comment, recorded_at) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		movement.ID, movement.InstanceID, movement.StageID, movement.UserID, movement.ActionID, movement.Comment, movement.RecordedAt)
	return err
}

func (t *pgInstanceTx) GetActionByName(ctx context.Context, name string) (*models.Action, error) {
	return getActionByName(ctx, t.tx, name)
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func listInstanceStages(ctx context.Context, q querier, instanceID string) ([]*models.InstanceStage, error) {
	rows, err := q.Query(ctx,
		"SELECT id, instance_id, position, name, sector_id, approver_profile, completed FROM instance_stages WHERE instance_id = $1 ORDER BY position",
		instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.InstanceStage
	for rows.Next() {
		var stage models.InstanceStage
		if err := rows.Scan(&stage.ID, &stage.InstanceID, &stage.Position, &stage.Name, &stage.SectorID, &stage.ApproverProfile, &stage.Completed); err != nil {
			return nil, err
		}
		stages = append(stages, &stage)
	}
	return stages, rows.Err()
}

func getActionByName(ctx context.Context, q querier, name string) (*models.Action, error) {
	var action models.Action
	err := q.QueryRow(ctx,
		"SELECT id, name, description FROM actions WHERE name = $1", name).
		Scan(&action.ID, &action.Name, &action.Description)
	if err != nil {
		return nil, mapNoRows(err)
	}
	return &action, nil
}

func mapNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
