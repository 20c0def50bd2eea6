package policykit

import "fmt"

// DerivedConstants holds the secondary lookup tables computed from the
// registered descriptors. Nothing here is hand-maintained: every table is a
// pure function of explicit descriptor data, rebuilt on every reload.
// Consumers must read it from the current epoch, never cache it beyond one.
type DerivedConstants struct {
	// CategoryOf maps entity key -> category.
	CategoryOf map[string]string

	// Categories maps category -> entity keys, in registration order.
	Categories map[string][]string

	// IdentityPrefixes maps entity key -> identity prefix for entities with
	// GENERATED name construction.
	IdentityPrefixes map[string]string

	// AuditActions maps entity key -> operation -> audit action name,
	// for example "work_order" -> create -> "work_order.create".
	AuditActions map[string]map[Operation]string

	// Paths maps entity key -> URL path, built from the explicit table name
	// ("/" + TableName). Never from pluralization.
	Paths map[string]string

	// ResourceTables maps rls resource -> table name.
	ResourceTables map[string]string
}

// DeriveConstants computes all derived tables from descriptors. Missing
// derivation inputs fail with an error naming the offending entity, so a
// reload carrying a bad descriptor never publishes a partial table set.
func DeriveConstants(descriptors []EntityDescriptor) (*DerivedConstants, error) {
	dc := &DerivedConstants{
		CategoryOf:       make(map[string]string, len(descriptors)),
		Categories:       make(map[string][]string),
		IdentityPrefixes: make(map[string]string),
		AuditActions:     make(map[string]map[Operation]string, len(descriptors)),
		Paths:            make(map[string]string, len(descriptors)),
		ResourceTables:   make(map[string]string, len(descriptors)),
	}

	for i := range descriptors {
		d := &descriptors[i]

		if d.Category == "" {
			return nil, NewError(ErrConfiguration,
				fmt.Sprintf("entity %q has no category, category tables cannot be derived", d.EntityKey)).
				WithEntity(d.EntityKey)
		}
		if d.NameConstruction == NameGenerated && d.IdentityPrefix == "" {
			return nil, NewError(ErrConfiguration,
				fmt.Sprintf("entity %q uses GENERATED names but has no identity prefix", d.EntityKey)).
				WithEntity(d.EntityKey)
		}
		if _, dup := dc.CategoryOf[d.EntityKey]; dup {
			return nil, NewError(ErrConfiguration,
				fmt.Sprintf("entity %q appears twice in the descriptor set", d.EntityKey)).
				WithEntity(d.EntityKey)
		}

		dc.CategoryOf[d.EntityKey] = d.Category
		dc.Categories[d.Category] = append(dc.Categories[d.Category], d.EntityKey)
		if d.IdentityPrefix != "" {
			dc.IdentityPrefixes[d.EntityKey] = d.IdentityPrefix
		}

		actions := make(map[Operation]string, len(Operations()))
		for _, op := range Operations() {
			actions[op] = d.EntityKey + "." + string(op)
		}
		dc.AuditActions[d.EntityKey] = actions

		dc.Paths[d.EntityKey] = "/" + d.TableName
		dc.ResourceTables[d.RLSResource] = d.TableName
	}

	return dc, nil
}

// AuditAction returns the audit action name for an entity and operation.
func (dc *DerivedConstants) AuditAction(entityKey string, op Operation) (string, bool) {
	actions, ok := dc.AuditActions[entityKey]
	if !ok {
		return "", false
	}
	action, ok := actions[op]
	return action, ok
}

// PathFor returns the URL path for an entity.
func (dc *DerivedConstants) PathFor(entityKey string) (string, bool) {
	path, ok := dc.Paths[entityKey]
	return path, ok
}

// EntitiesIn returns the entity keys in a category, in registration order.
func (dc *DerivedConstants) EntitiesIn(category string) []string {
	return append([]string(nil), dc.Categories[category]...)
}

// TableFor returns the table backing an RLS resource.
func (dc *DerivedConstants) TableFor(resource string) (string, bool) {
	table, ok := dc.ResourceTables[resource]
	return table, ok
}
