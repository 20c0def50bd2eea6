package policykit

import "context"

// Checker answers permission, row-filter and validation questions for one
// request. It is pinned to the configuration epoch that was current when it
// was created, so a reload mid-request can never mix old roles with new
// grants. It is typically created by middleware and stored in context.
type Checker struct {
	engine *Engine
	ep     *epoch

	userID string
	role   string
	entity string
	rc     RequestContext
	audit  AuditContext
}

// Checker captures the caller's identity, role, entity and audit metadata
// from the context and pins them to the current epoch.
//
// Example:
//
//	ctx = policykit.WithUserID(ctx, userID)
//	ctx = policykit.WithRole(ctx, "dispatcher")
//	ctx = policykit.WithEntity(ctx, "work_order")
//	checker := engine.Checker(ctx)
func (e *Engine) Checker(ctx context.Context) *Checker {
	return &Checker{
		engine: e,
		ep:     e.epoch.Load(),
		userID: GetUserID(ctx),
		role:   GetRole(ctx),
		entity: GetEntity(ctx),
		rc:     GetRequestContext(ctx),
		audit:  GetAuditContext(ctx),
	}
}

// UserID returns the user ID this checker is for.
func (c *Checker) UserID() string {
	return c.userID
}

// Role returns the role this checker evaluates as.
func (c *Checker) Role() string {
	return c.role
}

// Entity returns the entity key the request is pinned to.
func (c *Checker) Entity() string {
	return c.entity
}

// EpochSeq returns the sequence of the epoch this checker is pinned to.
func (c *Checker) EpochSeq() uint64 {
	return c.ep.seq
}

// Can checks whether the checker's role may perform op on the pinned
// entity. The decision is forwarded to the audit pipeline.
//
// Example:
//
//	if checker.Can(policykit.OpUpdate) {
//	    // proceed with the update
//	}
func (c *Checker) Can(op Operation) bool {
	return c.Decide(op).Allowed
}

// Decide returns the full decision for op on the pinned entity.
func (c *Checker) Decide(op Operation) Decision {
	return c.engine.decideOn(c.ep, c.entity, c.role, op, c.audit)
}

// CanAny checks whether any of the operations is allowed.
//
// Example:
//
//	if checker.CanAny(policykit.OpUpdate, policykit.OpDelete) {
//	    // show the edit controls
//	}
func (c *Checker) CanAny(ops ...Operation) bool {
	for _, op := range ops {
		if c.Can(op) {
			return true
		}
	}
	return false
}

// CanAll checks whether all of the operations are allowed.
func (c *Checker) CanAll(ops ...Operation) bool {
	for _, op := range ops {
		if !c.Can(op) {
			return false
		}
	}
	return true
}

// Filter returns the row predicate for the checker's role on the pinned
// entity.
//
// Example:
//
//	pred := checker.Filter()
//	rows := pred.Apply(db.NewSelect().Model(&orders))
func (c *Checker) Filter() Predicate {
	return c.engine.filterOn(c.ep, c.entity, c.role, c.rc)
}

// Validate checks a payload against the pinned entity's schema for op.
func (c *Checker) Validate(op Operation, payload map[string]any) (ValidationResult, error) {
	v, ok := c.ep.validators[c.entity]
	if !ok {
		return ValidationResult{}, NewError(ErrEntityNotFound, "no validator for entity").WithEntity(c.entity)
	}
	return v.Validate(op, payload)
}

// Descriptor returns the pinned entity's descriptor.
func (c *Checker) Descriptor() (EntityDescriptor, error) {
	desc, ok := c.ep.byKey[c.entity]
	if !ok {
		return EntityDescriptor{}, NewError(ErrEntityNotFound, "unknown entity").WithEntity(c.entity)
	}
	return desc.Clone(), nil
}

// AtLeast checks whether the checker's role has at least the given
// priority in the pinned epoch's hierarchy.
//
// Example:
//
//	if checker.AtLeast(50) {
//	    // role sits at supervisor level or above
//	}
func (c *Checker) AtLeast(priority int) bool {
	return c.ep.roles.AtLeast(c.role, priority)
}

// Priority returns the checker role's priority, or false when the role is
// not part of the pinned epoch's hierarchy.
func (c *Checker) Priority() (int, bool) {
	return c.ep.roles.PriorityOf(c.role)
}
