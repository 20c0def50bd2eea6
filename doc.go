// Package policykit provides a metadata-driven access control and validation
// engine for entity-based applications.
//
// PolicyKit replaces per-entity permission code with declarative entity
// descriptors. Register each entity's naming, fields and constraints once;
// the engine derives everything else: payload validators, permission
// decisions across a role hierarchy, row-level query filters, audit action
// names and URL paths.
//
// # Core Concepts
//
// Entity Descriptor: The explicit metadata for one entity type. Names are
// never guessed from identifiers; display names, plural forms, tables and
// resource keys are all declared, and registration fails fast on anything
// missing or contradictory.
//
// Role Hierarchy: A linear priority ordering loaded from the policy_roles
// table. Grants attach to (role, resource, operation); a role with no
// explicit grant inherits the nearest explicit allow from a higher role.
// Denies never propagate.
//
// Epoch: One immutable, atomically swapped generation of compiled
// configuration (roles, grants, policies, validators, derived constants).
// Readers never block and never see a half-applied reload.
//
// Row Policy: A declarative predicate over an entity's columns for one
// (resource, role) pair. No policy means no rows; allow-all is always
// explicit.
//
// # Key Features
//
//   - Explicit naming: no automatic pluralization, no derived display names
//   - Closed validation schema: unknown fields rejected, system-managed
//     fields stripped, type coercion before constraint checks
//   - Fail-closed permissions: unknown role, resource or operation denies
//   - Hierarchy inheritance for allows, exact-match-only denies
//   - Row-level security predicates that compose via AND only
//   - Audit pipeline with a durable fallback sink that never fails a request
//   - Survivable boots: a dead role source degrades to fallback roles
//     instead of refusing to start
//   - DBKit integration: Uses your existing database connection
//
// # Basic Usage
//
//	// 1. Register entity descriptors (at application startup)
//	registry := policykit.NewRegistry()
//	registry.MustRegister(policykit.EntityDescriptor{
//	    EntityKey:         "work_order",
//	    TableName:         "work_orders",
//	    RLSResource:       "work_orders",
//	    DisplayName:       "Work Order",
//	    DisplayNamePlural: "Work Orders",
//	    Category:          "operations",
//	    PrimaryKey:        "id",
//	    IdentityField:     "code",
//	    NameConstruction:  policykit.NameDirect,
//	    Fields: []policykit.FieldSpec{
//	        {Name: "id", Type: policykit.FieldUUID, SystemManaged: true},
//	        {Name: "code", Type: policykit.FieldString, Required: true, MaxLen: 32},
//	        {Name: "status", Type: policykit.FieldString, Enum: []string{"open", "closed"}},
//	        {Name: "assigned_to", Type: policykit.FieldUUID},
//	    },
//	    ImmutableFields: []string{"code"},
//	})
//
//	// 2. Create the engine
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	engine, err := policykit.New(ctx, policykit.Config{
//	    DB:       db,
//	    Registry: registry,
//	    Grants: []policykit.Grant{
//	        {Role: "admin", Resource: "work_orders", Operation: policykit.OpDelete, Effect: policykit.EffectAllow},
//	        {Role: "member", Resource: "work_orders", Operation: policykit.OpUpdate, Effect: policykit.EffectAllow},
//	    },
//	    Policies: []policykit.RLSPolicy{
//	        policykit.AllowAllPolicy("work_orders", "admin"),
//	        policykit.OwnerPolicy("work_orders", "member", "assigned_to"),
//	    },
//	})
//
//	// 3. Validate payloads
//	result, _ := engine.Validate("work_order", policykit.OpCreate, payload)
//	if !result.Valid() {
//	    // result.Errors names every offending field and reason
//	}
//
//	// 4. Check permissions (entity comes from context, not the caller)
//	ctx = policykit.WithEntity(ctx, "work_order")
//	if engine.Can(ctx, "member", policykit.OpUpdate) {
//	    // proceed
//	}
//
// # Middleware Usage
//
//	mw := policykit.NewMiddleware(engine)
//
//	router.Use(mw.InjectRequestContext())
//	router.With(mw.AttachEntity("work_order"), mw.RequireOperation(policykit.OpUpdate)).
//	    Patch("/work_orders/{id}", updateHandler)
//
// # Row-Level Security
//
// Every list query gets a predicate for the caller's role. The predicate is
// opaque to handlers; they attach it and move on:
//
//	pred := engine.FilterFor(ctx, "member")
//	q := pred.Apply(db.NewSelect().Model(&orders))
//
// A (resource, role) pair with no policy yields a predicate matching zero
// rows. Multiple policies for the same pair intersect.
//
// # Audit Trail
//
// Every permission decision is recorded with:
//   - Actor and derived action name (e.g. "work_order.update")
//   - Resource and decision (allow or deny) with the reason
//   - Request metadata (IP, user agent, request ID)
//
// Records go to the primary sink; when it fails they divert to a durable
// fallback sink and the failure is counted. Audit problems never surface
// to the request that triggered them.
package policykit
