package policykit

import (
	"fmt"
	"sync"
)

// Registry holds all entity descriptors for the application.
// It is populated at startup; later registrations only become visible to
// request handling after an explicit Engine.Reload, because each epoch works
// on its own immutable snapshot of the registry.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityDescriptor
	tables   map[string]string // table name -> entity key
	rls      map[string]string // rls resource -> entity key
	order    []string          // registration order
}

// NewRegistry creates an empty entity registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]*EntityDescriptor),
		tables:   make(map[string]string),
		rls:      make(map[string]string),
	}
}

// Register adds an entity descriptor. It fails fast when required naming
// fields are missing, when a referenced field is not declared, or when the
// key, table or RLS resource collides with an existing entry.
//
// Example:
//
//	registry := policykit.NewRegistry()
//	err := registry.Register(policykit.EntityDescriptor{
//	    EntityKey:         "work_order",
//	    TableName:         "work_orders",
//	    RLSResource:       "work_orders",
//	    DisplayName:       "Work Order",
//	    DisplayNamePlural: "Work Orders",
//	    PrimaryKey:        "id",
//	    IdentityField:     "title",
//	    NameConstruction:  policykit.NameDirect,
//	    Fields: []policykit.FieldSpec{
//	        {Name: "id", Type: policykit.FieldUUID, SystemManaged: true},
//	        {Name: "title", Type: policykit.FieldString, Required: true},
//	    },
//	})
func (r *Registry) Register(d EntityDescriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[d.EntityKey]; exists {
		return NewError(ErrConfiguration, "entity key already registered").WithEntity(d.EntityKey)
	}
	if other, exists := r.tables[d.TableName]; exists {
		return NewError(ErrConfiguration,
			fmt.Sprintf("table name %q already used by entity %q", d.TableName, other)).
			WithEntity(d.EntityKey)
	}
	if other, exists := r.rls[d.RLSResource]; exists {
		return NewError(ErrConfiguration,
			fmt.Sprintf("rls resource %q already used by entity %q", d.RLSResource, other)).
			WithEntity(d.EntityKey)
	}

	stored := d.Clone()
	r.entities[d.EntityKey] = &stored
	r.tables[d.TableName] = d.EntityKey
	r.rls[d.RLSResource] = d.EntityKey
	r.order = append(r.order, d.EntityKey)
	return nil
}

// MustRegister is Register for boot paths; it panics on error.
func (r *Registry) MustRegister(d EntityDescriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Get returns a copy of the descriptor for an entity key.
func (r *Registry) Get(entityKey string) (EntityDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entities[entityKey]
	if !ok {
		return EntityDescriptor{}, NewError(ErrEntityNotFound, fmt.Sprintf("entity %q is not registered", entityKey)).
			WithEntity(entityKey)
	}
	return d.Clone(), nil
}

// GetByResource returns a copy of the descriptor owning an RLS resource.
func (r *Registry) GetByResource(resource string) (EntityDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.rls[resource]
	if !ok {
		return EntityDescriptor{}, NewError(ErrEntityNotFound, fmt.Sprintf("no entity owns rls resource %q", resource)).
			WithResource(resource)
	}
	return r.entities[key].Clone(), nil
}

// All returns copies of every descriptor, in registration order. Derivation
// consumers iterate this; they never reach the registry's own state.
func (r *Registry) All() []EntityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EntityDescriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.entities[key].Clone())
	}
	return out
}

// Keys returns all entity keys in registration order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
