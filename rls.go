package policykit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/uptrace/bun"
)

// CompareOp is a predicate comparison operator.
type CompareOp string

const (
	CmpEq    CompareOp = "="
	CmpNotEq CompareOp = "!="
	CmpGt    CompareOp = ">"
	CmpGte   CompareOp = ">="
	CmpLt    CompareOp = "<"
	CmpLte   CompareOp = "<="
	CmpIn    CompareOp = "in"
)

var compareOps = map[CompareOp]bool{
	CmpEq:    true,
	CmpNotEq: true,
	CmpGt:    true,
	CmpGte:   true,
	CmpLt:    true,
	CmpLte:   true,
	CmpIn:    true,
}

var identRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Condition is one column comparison inside a predicate.
type Condition struct {
	Column string
	Cmp    CompareOp
	Value  any
}

type predicateMode int

const (
	predicateNone predicateMode = iota // zero value: matches zero rows
	predicateAll
	predicateConds
)

// Predicate is the row filter handed to the storage layer. It is immutable
// data: a conjunction of conditions, or one of the two closed terminals.
// The zero value matches zero rows, so an unset predicate can never leak.
type Predicate struct {
	mode  predicateMode
	conds []Condition
}

// MatchNone returns the predicate that excludes every row.
func MatchNone() Predicate {
	return Predicate{mode: predicateNone}
}

// MatchAll returns the predicate that matches every row. Only an explicit
// allow-all policy produces it; absence of policy never does.
func MatchAll() Predicate {
	return Predicate{mode: predicateAll}
}

// Where returns a single-condition predicate.
func Where(column string, cmp CompareOp, value any) Predicate {
	return Predicate{mode: predicateConds, conds: []Condition{{Column: column, Cmp: cmp, Value: value}}}
}

// And conjoins two predicates. Match-none absorbs everything; match-all is
// the identity. Intersection only, never union, so composing policies can
// only narrow visibility.
func (p Predicate) And(q Predicate) Predicate {
	if p.mode == predicateNone || q.mode == predicateNone {
		return MatchNone()
	}
	if p.mode == predicateAll {
		return q
	}
	if q.mode == predicateAll {
		return p
	}
	conds := make([]Condition, 0, len(p.conds)+len(q.conds))
	conds = append(conds, p.conds...)
	conds = append(conds, q.conds...)
	return Predicate{mode: predicateConds, conds: conds}
}

// MatchesNone reports whether the predicate excludes every row.
func (p Predicate) MatchesNone() bool {
	return p.mode == predicateNone
}

// MatchesAll reports whether the predicate matches every row.
func (p Predicate) MatchesAll() bool {
	return p.mode == predicateAll
}

// Conditions returns a copy of the predicate's conditions.
func (p Predicate) Conditions() []Condition {
	return append([]Condition(nil), p.conds...)
}

// SQL renders the predicate as a parameterized WHERE clause. Values are
// always placeholders, never interpolated. Conditions with a column that is
// not a plain identifier render as 1 = 0, keeping the clause fail-closed.
func (p Predicate) SQL() (string, []any) {
	switch p.mode {
	case predicateAll:
		return "1 = 1", nil
	case predicateConds:
	default:
		return "1 = 0", nil
	}

	parts := make([]string, 0, len(p.conds))
	var args []any
	for _, c := range p.conds {
		clause, condArgs := c.sql()
		parts = append(parts, clause)
		args = append(args, condArgs...)
	}
	return strings.Join(parts, " AND "), args
}

func (c Condition) sql() (string, []any) {
	if !identRE.MatchString(c.Column) || !compareOps[c.Cmp] {
		return "1 = 0", nil
	}
	if c.Cmp == CmpIn {
		values, ok := asSlice(c.Value)
		if !ok || len(values) == 0 {
			return "1 = 0", nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
		return fmt.Sprintf("%s IN (%s)", c.Column, placeholders), values
	}
	return fmt.Sprintf("%s %s ?", c.Column, c.Cmp), []any{c.Value}
}

// Apply attaches the predicate to a bun query. The storage layer calls this
// after permission evaluation passes.
func (p Predicate) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	switch p.mode {
	case predicateAll:
		return q
	case predicateConds:
	default:
		return q.Where("1 = 0")
	}

	for _, c := range p.conds {
		if !identRE.MatchString(c.Column) || !compareOps[c.Cmp] {
			q = q.Where("1 = 0")
			continue
		}
		if c.Cmp == CmpIn {
			values, ok := asSlice(c.Value)
			if !ok || len(values) == 0 {
				q = q.Where("1 = 0")
				continue
			}
			q = q.Where("? IN (?)", bun.Ident(c.Column), bun.In(values))
			continue
		}
		q = q.Where("? "+string(c.Cmp)+" ?", bun.Ident(c.Column), c.Value)
	}
	return q
}

func asSlice(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	case []int64:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

// RequestContext is the per-request data row policies may depend on. It is
// assembled from the request context by one earlier pipeline step.
type RequestContext struct {
	UserID     string
	Role       string
	Attributes map[string]string
}

// PolicyFunc builds a predicate from request context. It must be pure and
// deterministic: same context, same predicate, no side effects.
type PolicyFunc func(rc RequestContext) Predicate

// ValueSource says where a policy rule takes its comparison value from.
type ValueSource string

const (
	// ValueLiteral compares against the rule's own Value. The default.
	ValueLiteral ValueSource = "literal"

	// ValueSubject compares against the requesting user's ID.
	ValueSubject ValueSource = "subject"

	// ValueAttribute compares against a named request attribute.
	ValueAttribute ValueSource = "attribute"
)

// PolicyRule is one declarative row condition. A rule whose source value is
// missing at evaluation time yields a match-none predicate.
type PolicyRule struct {
	Column    string      `yaml:"column"`
	Cmp       CompareOp   `yaml:"compare"`
	Source    ValueSource `yaml:"source,omitempty"`
	Value     any         `yaml:"value,omitempty"`
	Attribute string      `yaml:"attribute,omitempty"`
}

func (r PolicyRule) resolve(rc RequestContext) (any, bool) {
	switch r.Source {
	case ValueSubject:
		if rc.UserID == "" {
			return nil, false
		}
		return rc.UserID, true
	case ValueAttribute:
		v, ok := rc.Attributes[r.Attribute]
		if !ok || v == "" {
			return nil, false
		}
		return v, true
	default: // ValueLiteral or empty
		return r.Value, true
	}
}

// RLSPolicy declares the row filter for one (resource, role) pair. Exactly
// one of AllowAll, Rules or Build must be set. Rules within one policy and
// multiple policies for the same pair both compose via AND.
type RLSPolicy struct {
	Resource    string `yaml:"resource"`
	Role        string `yaml:"role"`
	Description string `yaml:"description,omitempty"`

	// AllowAll grants unrestricted row visibility. It must be explicit;
	// a resource with no policy for a role matches zero rows.
	AllowAll bool `yaml:"allow_all,omitempty"`

	// Rules is the declarative form; columns are checked against the
	// entity's declared fields when the policy set is compiled.
	Rules []PolicyRule `yaml:"rules,omitempty"`

	// Build is the escape hatch for conditions the rule form cannot
	// express. It bypasses compile-time column checks.
	Build PolicyFunc `yaml:"-"`
}

func (p RLSPolicy) predicate(rc RequestContext) Predicate {
	if p.Build != nil {
		return p.Build(rc)
	}
	if p.AllowAll {
		return MatchAll()
	}
	if len(p.Rules) == 0 {
		return MatchNone()
	}
	pred := MatchAll()
	for _, rule := range p.Rules {
		value, ok := rule.resolve(rc)
		if !ok {
			return MatchNone()
		}
		pred = pred.And(Where(rule.Column, rule.Cmp, value))
	}
	return pred
}

// OwnerPolicy restricts rows to those whose column equals the requesting
// user's ID.
func OwnerPolicy(resource, role, column string) RLSPolicy {
	return RLSPolicy{
		Resource: resource,
		Role:     role,
		Rules:    []PolicyRule{{Column: column, Cmp: CmpEq, Source: ValueSubject}},
	}
}

// AttributePolicy restricts rows to those whose column equals a request
// attribute, for example a department carried by the identity layer.
func AttributePolicy(resource, role, column, attribute string) RLSPolicy {
	return RLSPolicy{
		Resource: resource,
		Role:     role,
		Rules:    []PolicyRule{{Column: column, Cmp: CmpEq, Source: ValueAttribute, Attribute: attribute}},
	}
}

// FieldEqualsPolicy restricts rows to those whose column equals a fixed
// value, for example status = 'published'.
func FieldEqualsPolicy(resource, role, column string, value any) RLSPolicy {
	return RLSPolicy{
		Resource: resource,
		Role:     role,
		Rules:    []PolicyRule{{Column: column, Cmp: CmpEq, Source: ValueLiteral, Value: value}},
	}
}

// AllowAllPolicy grants a role unrestricted rows on a resource.
func AllowAllPolicy(resource, role string) RLSPolicy {
	return RLSPolicy{Resource: resource, Role: role, AllowAll: true}
}

// FuncPolicy wraps a custom predicate builder.
func FuncPolicy(resource, role string, fn PolicyFunc) RLSPolicy {
	return RLSPolicy{Resource: resource, Role: role, Build: fn}
}

// PolicySet is the compiled row-policy lookup for one epoch.
type PolicySet struct {
	byKey map[string]map[string][]RLSPolicy
}

// CompilePolicies validates policies against the epoch's descriptors and
// role set. Unknown resources or roles, malformed rules, and rule columns
// that are not declared fields are configuration errors.
func CompilePolicies(descriptors []EntityDescriptor, roles *RoleSet, policies []RLSPolicy) (*PolicySet, error) {
	byResource := make(map[string]*EntityDescriptor, len(descriptors))
	for i := range descriptors {
		byResource[descriptors[i].RLSResource] = &descriptors[i]
	}

	ps := &PolicySet{byKey: make(map[string]map[string][]RLSPolicy)}
	for _, p := range policies {
		desc, ok := byResource[p.Resource]
		if !ok {
			return nil, NewError(ErrConfiguration, "policy references unknown resource").
				WithResource(p.Resource).WithRole(p.Role)
		}
		if roles != nil && !roles.Contains(p.Role) {
			return nil, NewError(ErrConfiguration, "policy references unknown role").
				WithResource(p.Resource).WithRole(p.Role)
		}

		forms := 0
		if p.AllowAll {
			forms++
		}
		if len(p.Rules) > 0 {
			forms++
		}
		if p.Build != nil {
			forms++
		}
		if forms != 1 {
			return nil, NewError(ErrConfiguration, "policy must have exactly one of allow_all, rules or a build func").
				WithResource(p.Resource).WithRole(p.Role)
		}

		for _, rule := range p.Rules {
			if !identRE.MatchString(rule.Column) {
				return nil, NewError(ErrConfiguration, fmt.Sprintf("rule column %q is not a plain identifier", rule.Column)).
					WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column)
			}
			if !desc.HasField(rule.Column) {
				return nil, NewError(ErrConfiguration, fmt.Sprintf("rule column %q is not a declared field", rule.Column)).
					WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column).WithEntity(desc.EntityKey)
			}
			if !compareOps[rule.Cmp] {
				return nil, NewError(ErrConfiguration, fmt.Sprintf("unknown compare operator %q", rule.Cmp)).
					WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column)
			}
			switch rule.Source {
			case ValueLiteral, "":
				if rule.Value == nil {
					return nil, NewError(ErrConfiguration, "literal rule needs a value").
						WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column)
				}
			case ValueAttribute:
				if rule.Attribute == "" {
					return nil, NewError(ErrConfiguration, "attribute rule needs an attribute name").
						WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column)
				}
			case ValueSubject:
			default:
				return nil, NewError(ErrConfiguration, fmt.Sprintf("unknown value source %q", rule.Source)).
					WithResource(p.Resource).WithRole(p.Role).WithField(rule.Column)
			}
		}

		byRole := ps.byKey[p.Resource]
		if byRole == nil {
			byRole = make(map[string][]RLSPolicy)
			ps.byKey[p.Resource] = byRole
		}
		byRole[p.Role] = append(byRole[p.Role], p)
	}

	return ps, nil
}

// FilterFor returns the composed row predicate for (role, resource) under
// the given request context. A pair with no declared policy gets the
// match-none predicate: absence of policy is not implicit access.
func (ps *PolicySet) FilterFor(role, resource string, rc RequestContext) Predicate {
	byRole, ok := ps.byKey[resource]
	if !ok {
		return MatchNone()
	}
	policies, ok := byRole[role]
	if !ok || len(policies) == 0 {
		return MatchNone()
	}

	pred := MatchAll()
	for _, p := range policies {
		pred = pred.And(p.predicate(rc))
	}
	return pred
}
