package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is the complete schema for fresh installs. Movement references
// to stage/user/action are SET NULL so the ledger survives deletion of the
// rows it points at; instance ownership relations cascade.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS sectors (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	description TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL UNIQUE,
	sector_id UUID REFERENCES sectors(id) ON DELETE SET NULL,
	profile TEXT NOT NULL DEFAULT 'standard' CHECK (profile IN ('administrator', 'standard')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS flow_templates (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	created_by UUID REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS template_stages (
	id UUID PRIMARY KEY,
	template_id UUID NOT NULL REFERENCES flow_templates(id) ON DELETE CASCADE,
	position INT NOT NULL CHECK (position > 0),
	name TEXT NOT NULL,
	sector_id UUID REFERENCES sectors(id) ON DELETE SET NULL,
	approver_profile TEXT NOT NULL DEFAULT 'standard' CHECK (approver_profile IN ('administrator', 'standard')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ,
	UNIQUE (template_id, position)
);

CREATE TABLE IF NOT EXISTS flow_instances (
	id UUID PRIMARY KEY,
	template_id UUID REFERENCES flow_templates(id) ON DELETE SET NULL,
	name TEXT NOT NULL,
	created_by UUID REFERENCES users(id) ON DELETE SET NULL,
	finalized BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS instance_stages (
	id UUID PRIMARY KEY,
	instance_id UUID NOT NULL REFERENCES flow_instances(id) ON DELETE CASCADE,
	position INT NOT NULL CHECK (position > 0),
	name TEXT NOT NULL,
	sector_id UUID REFERENCES sectors(id) ON DELETE SET NULL,
	approver_profile TEXT NOT NULL DEFAULT 'standard' CHECK (approver_profile IN ('administrator', 'standard')),
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	UNIQUE (instance_id, position)
);

CREATE TABLE IF NOT EXISTS actions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name TEXT NOT NULL UNIQUE,
	description TEXT
);

CREATE TABLE IF NOT EXISTS movements (
	id UUID PRIMARY KEY,
	instance_id UUID NOT NULL REFERENCES flow_instances(id) ON DELETE CASCADE,
	stage_id UUID REFERENCES instance_stages(id) ON DELETE SET NULL,
	user_id UUID REFERENCES users(id) ON DELETE SET NULL,
	action_id UUID REFERENCES actions(id) ON DELETE SET NULL,
	comment TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_movements_instance_recorded
	ON movements (instance_id, recorded_at DESC);

INSERT INTO actions (name, description) VALUES
	('Advance', 'Stage approved; flow moved forward'),
	('Return', 'Flow rolled back to the previous stage')
ON CONFLICT (name) DO NOTHING;
`

// Migrate applies the schema and seeds the fixed action rows. Safe to run
// repeatedly.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}
