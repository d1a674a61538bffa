package audit

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// Action is the audit action kind.
type Action string

// Audit actions.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// EntityType names the permission entity touched by a mutation.
type EntityType string

// Audited entity types.
const (
	EntityRole      EntityType = "role"
	EntityScope     EntityType = "scope"
	EntityRoleScope EntityType = "role_scope"
	EntityUserScope EntityType = "user_scope"
	EntityProfile   EntityType = "profile"
)

// ErrInvalidEntry is returned when an entry's details do not match its
// (entity_type, action) pair.
var ErrInvalidEntry = errors.New("audit: invalid entry")

// Entry is one append to the permission audit log.
type Entry struct {
	Action     Action
	EntityType EntityType
	EntityID   *string
	Details    Details
}

// Details is the typed payload of an entry. Each implementation belongs to
// exactly one entity type and a fixed set of actions.
type Details interface {
	schema() schema
}

type schema struct {
	entity  EntityType
	actions []Action
}

// Validate checks the entry against the details schema.
func (e Entry) Validate() error {
	if e.Details == nil {
		return fmt.Errorf("%w: details required", ErrInvalidEntry)
	}
	s := e.Details.schema()
	if s.entity != e.EntityType {
		return fmt.Errorf("%w: %T cannot describe entity %q", ErrInvalidEntry, e.Details, e.EntityType)
	}
	if !slices.Contains(s.actions, e.Action) {
		return fmt.Errorf("%w: %T cannot describe action %q", ErrInvalidEntry, e.Details, e.Action)
	}
	if oc, ok := e.Details.(OverrideChange); ok && oc.Change.action() != e.Action {
		return fmt.Errorf("%w: override change %q logged as %q", ErrInvalidEntry, oc.Change, e.Action)
	}
	return nil
}

// IntID formats a numeric entity id.
func IntID(id int64) *string {
	s := strconv.FormatInt(id, 10)
	return &s
}

// UUIDID formats a UUID entity id.
func UUIDID(id uuid.UUID) *string {
	s := id.String()
	return &s
}

// RoleSnapshot is the audited shape of a role row.
type RoleSnapshot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Code string `json:"code"`
}

// ScopeSnapshot is the audited shape of a scope row.
type ScopeSnapshot struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// RoleCreated details a role insert.
type RoleCreated struct {
	New RoleSnapshot `json:"new"`
}

func (RoleCreated) schema() schema { return schema{EntityRole, []Action{ActionCreate}} }

// RoleUpdated details a role edit. ProfilesRenamed counts profiles whose
// role code followed a code change.
type RoleUpdated struct {
	Old             RoleSnapshot `json:"old"`
	New             RoleSnapshot `json:"new"`
	ProfilesRenamed int          `json:"profiles_renamed"`
}

func (RoleUpdated) schema() schema { return schema{EntityRole, []Action{ActionUpdate}} }

// RoleDeleted details a role delete and the grants removed with it.
type RoleDeleted struct {
	Old           RoleSnapshot `json:"old"`
	GrantsRemoved int          `json:"grants_removed"`
}

func (RoleDeleted) schema() schema { return schema{EntityRole, []Action{ActionDelete}} }

// ScopeCreated details a scope insert.
type ScopeCreated struct {
	New ScopeSnapshot `json:"new"`
}

func (ScopeCreated) schema() schema { return schema{EntityScope, []Action{ActionCreate}} }

// ScopeUpdated details a scope edit.
type ScopeUpdated struct {
	Old ScopeSnapshot `json:"old"`
	New ScopeSnapshot `json:"new"`
}

func (ScopeUpdated) schema() schema { return schema{EntityScope, []Action{ActionUpdate}} }

// ScopeDeleted details a scope delete and the edges removed with it.
type ScopeDeleted struct {
	Old              ScopeSnapshot `json:"old"`
	GrantsRemoved    int           `json:"grants_removed"`
	OverridesRemoved int           `json:"overrides_removed"`
}

func (ScopeDeleted) schema() schema { return schema{EntityScope, []Action{ActionDelete}} }

// GrantEdge details a role×scope matrix toggle.
type GrantEdge struct {
	RoleID  int64 `json:"role_id"`
	ScopeID int64 `json:"scope_id"`
}

func (GrantEdge) schema() schema { return schema{EntityRoleScope, []Action{ActionGrant, ActionRevoke}} }

// OverrideChangeKind names the transition applied to a user override.
type OverrideChangeKind string

// Override transitions.
const (
	ChangeGrant            OverrideChangeKind = "grant"
	ChangeRevoke           OverrideChangeKind = "revoke"
	ChangeRemoveGrant      OverrideChangeKind = "remove_grant"
	ChangeRemoveRevocation OverrideChangeKind = "remove_revocation"
)

func (k OverrideChangeKind) action() Action {
	switch k {
	case ChangeGrant:
		return ActionGrant
	case ChangeRevoke:
		return ActionRevoke
	default:
		return ActionUpdate
	}
}

// OverrideChange details a user override toggle. Allow is nil when the
// override row was removed.
type OverrideChange struct {
	UserID  uuid.UUID          `json:"user_id"`
	ScopeID int64              `json:"scope_id"`
	Allow   *bool              `json:"allow"`
	Change  OverrideChangeKind `json:"action"`
}

func (OverrideChange) schema() schema {
	return schema{EntityUserScope, []Action{ActionGrant, ActionRevoke, ActionUpdate}}
}

// ProfileRoleChanged details a change of a profile's base role.
type ProfileRoleChanged struct {
	UserID  uuid.UUID `json:"user_id"`
	OldRole string    `json:"old_role"`
	NewRole string    `json:"new_role"`
}

func (ProfileRoleChanged) schema() schema { return schema{EntityProfile, []Action{ActionUpdate}} }
