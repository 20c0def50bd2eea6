package policykit

import "fmt"

// Operation is one of the closed set of actions the engine evaluates.
type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	OpList   Operation = "list"
	OpExport Operation = "export"
)

// Operations returns the full operation set in canonical order.
func Operations() []Operation {
	return []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpList, OpExport}
}

var operationSet = map[Operation]bool{
	OpCreate: true,
	OpRead:   true,
	OpUpdate: true,
	OpDelete: true,
	OpList:   true,
	OpExport: true,
}

// ValidOperation reports whether op belongs to the known operation set.
func ValidOperation(op Operation) bool {
	return operationSet[op]
}

// Effect is the declared outcome of a grant.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Grant is one explicit permission declaration. A deny binds only to its
// exact role+resource+operation; it is never inherited by other roles.
type Grant struct {
	Role      string    `yaml:"role"`
	Resource  string    `yaml:"resource"`
	Operation Operation `yaml:"operation"`
	Effect    Effect    `yaml:"effect"`
}

// Decision reason codes. They are audit detail; callers surface only the
// boolean outcome to users.
const (
	DecisionExplicitAllow    = "explicit_allow"
	DecisionExplicitDeny     = "explicit_deny"
	DecisionInheritedAllow   = "inherited_allow"
	DecisionNoGrant          = "no_grant"
	DecisionUnknownRole      = "unknown_role"
	DecisionUnknownResource  = "unknown_resource"
	DecisionUnknownOperation = "unknown_operation"
	DecisionNoEntityContext  = "no_entity_context"
)

// Decision is the full outcome of one permission evaluation. The boolean is
// what callers act on; the rest exists for the audit trail.
type Decision struct {
	Allowed   bool
	Role      string
	Resource  string
	Operation Operation

	// GrantedBy names the role whose explicit grant decided the outcome.
	// Equal to Role for explicit grants, a lower-priority role for
	// inherited ones, empty for default denials.
	GrantedBy string

	// Reason is one of the Decision* codes.
	Reason string
}

// Denied returns the generic denial error for this decision. It never
// reveals which internal check failed.
func (d Decision) Denied() error {
	if d.Allowed {
		return nil
	}
	return NewError(ErrPermissionDenied, "permission denied")
}

// PermissionMatrix answers allow/deny for (role, resource, operation) over
// one epoch's role set and explicit grants. It is immutable once compiled.
type PermissionMatrix struct {
	roles     *RoleSet
	resources map[string]bool
	effects   map[string]map[Operation]map[string]Effect
}

// CompileGrants validates explicit grants against the epoch's role set and
// resource list and builds the lookup matrix. Unknown roles, resources,
// operations or conflicting duplicate grants are configuration errors, caught
// at boot or reload rather than at request time.
func CompileGrants(roles *RoleSet, resources []string, grants []Grant) (*PermissionMatrix, error) {
	if roles == nil || roles.Len() == 0 {
		return nil, NewError(ErrConfiguration, "permission matrix needs a role set")
	}

	resourceSet := make(map[string]bool, len(resources))
	for _, res := range resources {
		resourceSet[res] = true
	}

	effects := make(map[string]map[Operation]map[string]Effect)
	for _, g := range grants {
		if !roles.Contains(g.Role) {
			return nil, NewError(ErrConfiguration, "grant references unknown role").
				WithRole(g.Role).WithResource(g.Resource).WithOperation(g.Operation)
		}
		if !resourceSet[g.Resource] {
			return nil, NewError(ErrConfiguration, "grant references unknown resource").
				WithRole(g.Role).WithResource(g.Resource).WithOperation(g.Operation)
		}
		if !ValidOperation(g.Operation) {
			return nil, NewError(ErrConfiguration, fmt.Sprintf("grant references unknown operation %q", g.Operation)).
				WithRole(g.Role).WithResource(g.Resource)
		}
		if g.Effect != EffectAllow && g.Effect != EffectDeny {
			return nil, NewError(ErrConfiguration, fmt.Sprintf("grant effect must be %q or %q", EffectAllow, EffectDeny)).
				WithRole(g.Role).WithResource(g.Resource).WithOperation(g.Operation)
		}

		byOp := effects[g.Resource]
		if byOp == nil {
			byOp = make(map[Operation]map[string]Effect)
			effects[g.Resource] = byOp
		}
		byRole := byOp[g.Operation]
		if byRole == nil {
			byRole = make(map[string]Effect)
			byOp[g.Operation] = byRole
		}
		if prev, exists := byRole[g.Role]; exists && prev != g.Effect {
			return nil, NewError(ErrConfiguration, "conflicting grants for the same role, resource and operation").
				WithRole(g.Role).WithResource(g.Resource).WithOperation(g.Operation)
		}
		byRole[g.Role] = g.Effect
	}

	return &PermissionMatrix{
		roles:     roles,
		resources: resourceSet,
		effects:   effects,
	}, nil
}

// Can reports whether the role may perform the operation on the resource.
// Unknown role, resource or operation denies.
func (m *PermissionMatrix) Can(role, resource string, op Operation) bool {
	return m.Decide(role, resource, op).Allowed
}

// Decide evaluates (role, resource, operation) and reports how the outcome
// was reached. Lookup order: the exact grant for the requested role wins
// (deny or allow); otherwise the hierarchy is walked downward from the
// requested role's priority and the nearest explicit allow is inherited.
// Denies declared for other roles bind only to those roles.
func (m *PermissionMatrix) Decide(role, resource string, op Operation) Decision {
	d := Decision{Role: role, Resource: resource, Operation: op}

	if !ValidOperation(op) {
		d.Reason = DecisionUnknownOperation
		return d
	}
	if !m.resources[resource] {
		d.Reason = DecisionUnknownResource
		return d
	}
	priority, known := m.roles.PriorityOf(role)
	if !known {
		d.Reason = DecisionUnknownRole
		return d
	}

	var byRole map[string]Effect
	if byOp, ok := m.effects[resource]; ok {
		byRole = byOp[op]
	}

	if effect, ok := byRole[role]; ok {
		if effect == EffectDeny {
			d.Reason = DecisionExplicitDeny
			d.GrantedBy = role
			return d
		}
		d.Allowed = true
		d.Reason = DecisionExplicitAllow
		d.GrantedBy = role
		return d
	}

	// Walk roles strictly below the requested priority, nearest first.
	for _, candidate := range m.roles.ordered {
		if candidate.Priority >= priority {
			continue
		}
		if effect, ok := byRole[candidate.Name]; ok && effect == EffectAllow {
			d.Allowed = true
			d.Reason = DecisionInheritedAllow
			d.GrantedBy = candidate.Name
			return d
		}
	}

	d.Reason = DecisionNoGrant
	return d
}

// Resources returns the resource names this matrix was compiled against.
func (m *PermissionMatrix) Resources() []string {
	out := make([]string, 0, len(m.resources))
	for res := range m.resources {
		out = append(out, res)
	}
	return out
}
