package policykit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// RoleRecord is the persisted form of a role, the external source of truth
// the hierarchy cache loads at boot and on reload.
type RoleRecord struct {
	bun.BaseModel `bun:"table:policy_roles,alias:pr"`

	ID          string    `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	Name        string    `bun:"name,notnull,unique"`
	Priority    int       `bun:"priority,notnull,unique"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// DatabaseRoleSource reads the role set from the policy_roles table.
type DatabaseRoleSource struct {
	db dbkit.IDB
}

// NewDatabaseRoleSource creates a role source over an existing connection.
func NewDatabaseRoleSource(db dbkit.IDB) *DatabaseRoleSource {
	return &DatabaseRoleSource{db: db}
}

// LoadRoles reads every persisted role, most privileged first.
func (s *DatabaseRoleSource) LoadRoles(ctx context.Context) ([]RoleDescriptor, error) {
	var records []RoleRecord
	err := dbkit.WithErr1(
		s.db.NewSelect().Model(&records).Order("priority DESC").Scan(ctx),
		"LoadRoles",
	).Err()
	if err != nil {
		return nil, NewError(ErrRoleSourceUnavailable, err.Error())
	}

	roles := make([]RoleDescriptor, len(records))
	for i, rec := range records {
		roles[i] = RoleDescriptor{
			Name:        rec.Name,
			Priority:    rec.Priority,
			Description: rec.Description,
		}
	}
	return roles, nil
}

// SaveRoles upserts role descriptors into the persisted table. Intended for
// provisioning and tests; request handling never writes roles.
func (s *DatabaseRoleSource) SaveRoles(ctx context.Context, roles []RoleDescriptor) error {
	for _, role := range roles {
		rec := &RoleRecord{
			Name:        role.Name,
			Priority:    role.Priority,
			Description: role.Description,
		}
		result, err := s.db.NewInsert().
			Model(rec).
			On("CONFLICT (name) DO UPDATE").
			Set("priority = EXCLUDED.priority").
			Set("description = EXCLUDED.description").
			Set("updated_at = current_timestamp").
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "SaveRoles").Err(); err != nil {
			return NewError(ErrDatabaseError, err.Error()).WithRole(role.Name)
		}
	}
	return nil
}

// StaticRoleSource serves a fixed role list. Useful for tests and for
// deployments that keep roles in configuration files instead of a table.
type StaticRoleSource struct {
	roles []RoleDescriptor
	err   error
}

// NewStaticRoleSource creates a source that always returns these roles.
func NewStaticRoleSource(roles ...RoleDescriptor) *StaticRoleSource {
	return &StaticRoleSource{roles: roles}
}

// NewFailingRoleSource creates a source that always fails. Used to exercise
// the degraded-boot path.
func NewFailingRoleSource(err error) *StaticRoleSource {
	if err == nil {
		err = ErrRoleSourceUnavailable
	}
	return &StaticRoleSource{err: err}
}

// LoadRoles returns the configured roles or the configured failure.
func (s *StaticRoleSource) LoadRoles(_ context.Context) ([]RoleDescriptor, error) {
	if s.err != nil {
		return nil, NewError(ErrRoleSourceUnavailable, s.err.Error())
	}
	return append([]RoleDescriptor(nil), s.roles...), nil
}
