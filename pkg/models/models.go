// Package models defines the domain models for the approval-flow service
package models

import (
	"time"
)

// ApproverProfile restricts who may act on a stage.
type ApproverProfile string

const (
	ProfileAdministrator ApproverProfile = "administrator"
	ProfileStandard      ApproverProfile = "standard"
)

// Canonical action names recorded on movements. These are a fixed
// enumeration seeded at migration time, not created lazily at runtime.
const (
	ActionAdvance = "Advance"
	ActionReturn  = "Return"
)

// InstanceFilter selects which flow instances a listing returns.
type InstanceFilter string

const (
	FilterAll        InstanceFilter = "all"
	FilterInProgress InstanceFilter = "in_progress"
	FilterFinalized  InstanceFilter = "finalized"
)

// Sector is an organizational unit (e.g. Finance, Engineering) that a
// stage or user can reference. Consumed as reference data only.
type Sector struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is the acting-user reference consumed by the engine. Credentials
// and sessions live with the identity provider, not here.
type User struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	SectorID  *string         `json:"sector_id,omitempty"`
	Profile   ApproverProfile `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}

// Template is a reusable workflow definition owning an ordered stage list.
type Template struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedBy   *string    `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// TemplateStage is one ordered step of a template. Positions are unique
// within a template but are not required to be contiguous.
type TemplateStage struct {
	ID              string          `json:"id"`
	TemplateID      string          `json:"template_id"`
	Position        int             `json:"position"`
	Name            string          `json:"name"`
	SectorID        *string         `json:"sector_id,omitempty"`
	ApproverProfile ApproverProfile `json:"approver_profile"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
}

// Instance is a running approval process cloned from a template. The
// template reference is provenance only; it is never re-read after cloning.
type Instance struct {
	ID         string     `json:"id"`
	TemplateID *string    `json:"template_id,omitempty"`
	Name       string     `json:"name"`
	CreatedBy  *string    `json:"created_by,omitempty"`
	Finalized  bool       `json:"finalized"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// InstanceStage is an independent copy of a template stage. Instance
// positions are always contiguous 1..N.
type InstanceStage struct {
	ID              string          `json:"id"`
	InstanceID      string          `json:"instance_id"`
	Position        int             `json:"position"`
	Name            string          `json:"name"`
	SectorID        *string         `json:"sector_id,omitempty"`
	ApproverProfile ApproverProfile `json:"approver_profile"`
	Completed       bool            `json:"completed"`
}

// Action is a named tag describing what a movement represents.
type Action struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Movement is one immutable entry of the audit ledger. Stage, user and
// action references are nullable: the referenced rows may be removed later
// while the history entry survives.
type Movement struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	StageID    *string   `json:"stage_id,omitempty"`
	UserID     *string   `json:"user_id,omitempty"`
	ActionID   *string   `json:"action_id,omitempty"`
	ActionName string    `json:"action_name,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StageInput is one submitted stage of a template create/update request.
// Blank-named entries are skipped without renumbering the rest.
type StageInput struct {
	Name            string          `json:"name"`
	SectorID        *string         `json:"sector_id,omitempty"`
	ApproverProfile ApproverProfile `json:"approver_profile,omitempty"`
}

// TransitionStatus classifies the outcome of a transition request.
type TransitionStatus string

const (
	// TransitionAdvanced means the stage was completed and a next stage exists.
	TransitionAdvanced TransitionStatus = "advanced"
	// TransitionFinalized means the last stage was completed.
	TransitionFinalized TransitionStatus = "finalized"
	// TransitionReturned means the flow was rolled back one stage.
	TransitionReturned TransitionStatus = "returned"
	// TransitionNoop means the stage was already complete; nothing changed.
	TransitionNoop TransitionStatus = "noop"
	// TransitionRefused means the request was declined (retreat from the
	// first stage); nothing changed.
	TransitionRefused TransitionStatus = "refused"
)

// Mutated reports whether a transition with this status changed any state.
func (s TransitionStatus) Mutated() bool {
	return s == TransitionAdvanced || s == TransitionFinalized || s == TransitionReturned
}

// TransitionResult is returned by the transition engine for every accepted
// request, including informational no-ops.
type TransitionResult struct {
	Status    TransitionStatus `json:"status"`
	Message   string           `json:"message"`
	Finalized bool             `json:"finalized"`
}

// InstanceDetail aggregates everything a caller needs to render one flow.
type InstanceDetail struct {
	Instance     *Instance        `json:"instance"`
	Stages       []*InstanceStage `json:"stages"`
	CurrentStage *InstanceStage   `json:"current_stage,omitempty"`
	Movements    []*Movement      `json:"movements"`
}
