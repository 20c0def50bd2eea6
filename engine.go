package policykit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fernandezvara/dbkit"
	"github.com/prometheus/client_golang/prometheus"
)

// Environment selects how strictly the engine treats recoverable
// configuration problems.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvDevelopment Environment = "development"
)

// Config assembles an Engine.
type Config struct {
	// DB is the backing database. Optional when both audit sinks and the
	// role source are supplied explicitly.
	DB dbkit.IDB

	// Registry holds the entity descriptors. Required, and must not be
	// empty.
	Registry *Registry

	// RoleSource provides the persisted role table. Defaults to a
	// database source on DB.
	RoleSource RoleSource

	// Grants is the permission table compiled into each epoch.
	Grants []Grant

	// Policies is the row-policy table compiled into each epoch.
	Policies []RLSPolicy

	// AuditPrimary receives audit records. Defaults to a database sink
	// on DB.
	AuditPrimary AuditSink

	// AuditFallback receives records the primary sink rejected.
	// Optional, but production setups should supply one.
	AuditFallback AuditSink

	// AuditQueueSize bounds the async audit queue. Defaults to 1024.
	AuditQueueSize int

	// Environment defaults to EnvProduction.
	Environment Environment

	// Metrics, when set, gets the engine's Prometheus collectors
	// registered on it.
	Metrics prometheus.Registerer

	// FallbackRoles replaces the built-in degraded-boot role set.
	FallbackRoles []RoleDescriptor
}

// epoch is one immutable generation of compiled configuration. Readers get
// the whole generation from a single atomic load, so a request never sees
// roles from one load and grants from another.
type epoch struct {
	seq         uint64
	descriptors []EntityDescriptor
	byKey       map[string]*EntityDescriptor
	byResource  map[string]*EntityDescriptor
	roles       *RoleSet
	matrix      *PermissionMatrix
	policies    *PolicySet
	validators  map[string]*Validator
	constants   *DerivedConstants
	loadedAt    time.Time
}

// Engine evaluates permissions, row policies and payload validation against
// the current configuration epoch, and forwards every decision to the audit
// pipeline.
//
// Error Handling:
// Database operations use dbkit's chainable error wrapping to provide
// detailed context about failed operations. Engine errors wrap the package
// sentinels, so callers classify them with errors.Is or the Is* helpers.
//
// Example error handling:
//
//	result, err := engine.Validate("work_order", policykit.OpCreate, payload)
//	if err != nil {
//	    if policykit.IsNotFound(err) {
//	        // Unknown entity key
//	    }
//	}
//	if !result.Valid() {
//	    for _, fe := range result.Errors {
//	        fmt.Printf("%s: %s\n", fe.Field, fe.Reason)
//	    }
//	}
type Engine struct {
	db            dbkit.IDB
	registry      *Registry
	roleSource    RoleSource
	grants        []Grant
	policies      []RLSPolicy
	fallbackRoles []RoleDescriptor
	environment   Environment

	audit   *Emitter
	metrics *engineMetrics

	epoch    atomic.Pointer[epoch]
	seq      atomic.Uint64
	reloadMu sync.Mutex
}

// New builds an engine and loads the first configuration epoch.
//
// Role-source failure at boot is survivable: the engine comes up on the
// fallback role set, logs it loudly and counts a degraded boot. Any other
// configuration problem (bad descriptor, bad grant, bad policy) is fatal
// here, and only here. After a successful boot the same problems fail
// Reload and leave the running epoch untouched.
//
// Example:
//
//	registry := policykit.NewRegistry()
//	// ... register entity descriptors ...
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	engine, err := policykit.New(ctx, policykit.Config{
//	    DB:       db,
//	    Registry: registry,
//	    Grants:   grants,
//	    Policies: policies,
//	})
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, NewError(ErrConfiguration, "a registry is required")
	}
	if cfg.Registry.Len() == 0 {
		return nil, NewError(ErrConfiguration, "the registry has no entities")
	}

	roleSource := cfg.RoleSource
	if roleSource == nil {
		if cfg.DB == nil {
			return nil, NewError(ErrConfiguration, "a role source or a database is required")
		}
		roleSource = NewDatabaseRoleSource(cfg.DB)
	}

	primary := cfg.AuditPrimary
	if primary == nil {
		if cfg.DB == nil {
			return nil, NewError(ErrConfiguration, "an audit sink or a database is required")
		}
		primary = NewDatabaseAuditSink(cfg.DB)
	}

	environment := cfg.Environment
	if environment == "" {
		environment = EnvProduction
	}

	metrics := newEngineMetrics()
	if cfg.Metrics != nil {
		if err := metrics.register(cfg.Metrics); err != nil {
			return nil, NewError(ErrConfiguration, fmt.Sprintf("cannot register metrics: %v", err))
		}
	}

	e := &Engine{
		db:            cfg.DB,
		registry:      cfg.Registry,
		roleSource:    roleSource,
		grants:        append([]Grant(nil), cfg.Grants...),
		policies:      append([]RLSPolicy(nil), cfg.Policies...),
		fallbackRoles: cfg.FallbackRoles,
		environment:   environment,
		metrics:       metrics,
	}

	roles, err := e.loadRoleSet(ctx)
	if err != nil {
		log.Printf("policykit: BOOT DEGRADED, role source unavailable, using fallback roles: %v", err)
		metrics.recordDegradedBoot()
		roles, err = newFallbackRoleSet(cfg.FallbackRoles)
		if err != nil {
			return nil, err
		}
	}

	ep, err := e.buildEpoch(1, roles)
	if err != nil {
		return nil, err
	}
	e.seq.Store(1)
	e.epoch.Store(ep)

	e.audit = newEmitter(primary, cfg.AuditFallback, metrics, cfg.AuditQueueSize)
	return e, nil
}

func (e *Engine) loadRoleSet(ctx context.Context) (*RoleSet, error) {
	descriptors, err := e.roleSource.LoadRoles(ctx)
	if err != nil {
		return nil, err
	}
	return NewRoleSet(descriptors)
}

// buildEpoch compiles one configuration generation. It either returns a
// complete epoch or an error; a half-built generation is never published.
func (e *Engine) buildEpoch(seq uint64, roles *RoleSet) (*epoch, error) {
	descriptors := e.registry.All()

	constants, err := DeriveConstants(descriptors)
	if err != nil {
		return nil, err
	}

	resources := make([]string, len(descriptors))
	byKey := make(map[string]*EntityDescriptor, len(descriptors))
	byResource := make(map[string]*EntityDescriptor, len(descriptors))
	for i := range descriptors {
		resources[i] = descriptors[i].RLSResource
		byKey[descriptors[i].EntityKey] = &descriptors[i]
		byResource[descriptors[i].RLSResource] = &descriptors[i]
	}

	matrix, err := CompileGrants(roles, resources, e.grants)
	if err != nil {
		return nil, err
	}

	policies, err := CompilePolicies(descriptors, roles, e.policies)
	if err != nil {
		return nil, err
	}

	validators := make(map[string]*Validator, len(descriptors))
	for i := range descriptors {
		v, err := BuildValidator(descriptors[i])
		if err != nil {
			return nil, err
		}
		validators[descriptors[i].EntityKey] = v
	}

	return &epoch{
		seq:         seq,
		descriptors: descriptors,
		byKey:       byKey,
		byResource:  byResource,
		roles:       roles,
		matrix:      matrix,
		policies:    policies,
		validators:  validators,
		constants:   constants,
		loadedAt:    time.Now(),
	}, nil
}

// Reload loads the role table again and recompiles grants, policies,
// validators and derived constants into a fresh epoch. On any failure the
// running epoch stays in place and requests keep evaluating against it;
// a reload is never allowed to degrade a healthy engine.
func (e *Engine) Reload(ctx context.Context) error {
	e.reloadMu.Lock()
	defer e.reloadMu.Unlock()

	roles, err := e.loadRoleSet(ctx)
	if err != nil {
		e.metrics.recordReload(err)
		log.Printf("policykit: reload failed, keeping current epoch: %v", err)
		return err
	}

	ep, err := e.buildEpoch(e.seq.Load()+1, roles)
	if err != nil {
		e.metrics.recordReload(err)
		log.Printf("policykit: reload failed, keeping current epoch: %v", err)
		return err
	}

	e.seq.Store(ep.seq)
	e.epoch.Store(ep)
	e.metrics.recordReload(nil)
	return nil
}

// ============================================================================
// PERMISSION EVALUATION
// ============================================================================

// Decide evaluates whether role may perform op on the entity the request
// context is pinned to. The resource always comes from the context, never
// from anything the caller typed into a payload. Every decision, allowed or
// denied, is forwarded to the audit pipeline.
func (e *Engine) Decide(ctx context.Context, role string, op Operation) Decision {
	return e.decideOn(e.epoch.Load(), GetEntity(ctx), role, op, GetAuditContext(ctx))
}

// Can reports whether role may perform op on the entity the request context
// is pinned to.
func (e *Engine) Can(ctx context.Context, role string, op Operation) bool {
	return e.Decide(ctx, role, op).Allowed
}

// decideOn evaluates one decision against a specific epoch, so a Checker
// pinned to an older epoch stays self-consistent across a reload.
func (e *Engine) decideOn(ep *epoch, entityKey, role string, op Operation, audit AuditContext) Decision {
	var d Decision
	switch desc, ok := ep.byKey[entityKey]; {
	case entityKey == "":
		d = Decision{Allowed: false, Role: role, Operation: op, Reason: DecisionNoEntityContext}
	case !ok:
		d = Decision{Allowed: false, Role: role, Resource: entityKey, Operation: op, Reason: DecisionUnknownResource}
	default:
		d = ep.matrix.Decide(role, desc.RLSResource, op)
	}
	e.finishDecision(ep, entityKey, d, audit)
	return d
}

func (e *Engine) finishDecision(ep *epoch, entityKey string, d Decision, audit AuditContext) {
	e.metrics.recordDecision(d)

	action, ok := ep.constants.AuditAction(entityKey, d.Operation)
	if !ok {
		action = entityKey + "." + string(d.Operation)
	}
	decision := "deny"
	if d.Allowed {
		decision = "allow"
	}

	e.audit.RecordAsync(context.Background(), &AuditRecord{
		Actor:     audit.ActorID,
		Action:    action,
		Resource:  d.Resource,
		Decision:  decision,
		Reason:    d.Reason,
		IPAddress: audit.IPAddress,
		UserAgent: audit.UserAgent,
		RequestID: audit.RequestID,
	})
}

// ============================================================================
// ROW POLICIES
// ============================================================================

// FilterFor returns the row predicate for role on the entity the request
// context is pinned to. Missing entity context or an unknown entity yields
// the match-none predicate.
func (e *Engine) FilterFor(ctx context.Context, role string) Predicate {
	rc := GetRequestContext(ctx)
	rc.Role = role
	return e.filterOn(e.epoch.Load(), GetEntity(ctx), role, rc)
}

func (e *Engine) filterOn(ep *epoch, entityKey, role string, rc RequestContext) Predicate {
	if entityKey == "" {
		return MatchNone()
	}
	desc, ok := ep.byKey[entityKey]
	if !ok {
		return MatchNone()
	}
	return ep.policies.FilterFor(role, desc.RLSResource, rc)
}

// ============================================================================
// VALIDATION
// ============================================================================

// Validate checks a payload against the entity's schema for op. Structural
// problems come back inside the ValidationResult; the error return is for
// unknown entities and unsupported operations only.
func (e *Engine) Validate(entityKey string, op Operation, payload map[string]any) (ValidationResult, error) {
	ep := e.epoch.Load()
	v, ok := ep.validators[entityKey]
	if !ok {
		return ValidationResult{}, NewError(ErrEntityNotFound, "no validator for entity").WithEntity(entityKey)
	}
	return v.Validate(op, payload)
}

// ============================================================================
// EPOCH ACCESSORS
// ============================================================================

// Descriptor returns the entity descriptor from the current epoch.
func (e *Engine) Descriptor(entityKey string) (EntityDescriptor, error) {
	ep := e.epoch.Load()
	desc, ok := ep.byKey[entityKey]
	if !ok {
		return EntityDescriptor{}, NewError(ErrEntityNotFound, "unknown entity").WithEntity(entityKey)
	}
	return desc.Clone(), nil
}

// Descriptors returns all entity descriptors from the current epoch in
// registration order.
func (e *Engine) Descriptors() []EntityDescriptor {
	ep := e.epoch.Load()
	out := make([]EntityDescriptor, len(ep.descriptors))
	for i := range ep.descriptors {
		out[i] = ep.descriptors[i].Clone()
	}
	return out
}

// Roles returns the role set of the current epoch.
func (e *Engine) Roles() *RoleSet {
	return e.epoch.Load().roles
}

// Constants returns the derived constants of the current epoch.
func (e *Engine) Constants() *DerivedConstants {
	return e.epoch.Load().constants
}

// EpochSeq returns the sequence number of the current epoch. It starts at 1
// and increments on every successful reload.
func (e *Engine) EpochSeq() uint64 {
	return e.epoch.Load().seq
}

// EpochLoadedAt returns when the current epoch was built.
func (e *Engine) EpochLoadedAt() time.Time {
	return e.epoch.Load().loadedAt
}

// UsingFallbackRoles reports whether the current epoch runs on the
// degraded-boot role set instead of the persisted role table.
func (e *Engine) UsingFallbackRoles() bool {
	return e.epoch.Load().roles.IsFallback()
}

// Registry returns the entity registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Audit returns the audit emitter.
func (e *Engine) Audit() *Emitter {
	return e.audit
}

// Environment returns the configured environment.
func (e *Engine) Environment() Environment {
	return e.environment
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAuditLog retrieves audit records with optional filters.
func (e *Engine) GetAuditLog(ctx context.Context, filter AuditFilter) ([]AuditRecord, error) {
	return e.audit.Query(ctx, filter)
}

// GetAuditMetrics returns the current audit pipeline metrics.
func (e *Engine) GetAuditMetrics() AuditMetrics {
	return e.audit.Metrics()
}

// ResetAuditMetrics resets the audit pipeline metrics.
func (e *Engine) ResetAuditMetrics() {
	e.audit.ResetMetrics()
}

// Close drains the audit queue and stops background work.
func (e *Engine) Close() {
	e.audit.Close()
}
