package policykit

import "fmt"

// NameConstruction describes how an entity's human-readable name is built.
// It is explicit descriptor data; names are never derived from file names,
// table names, or pluralization heuristics.
type NameConstruction string

const (
	// NameDirect takes the name verbatim from IdentityField.
	NameDirect NameConstruction = "DIRECT"

	// NameComposed combines the NameFields values in order.
	NameComposed NameConstruction = "COMPOSED"

	// NameGenerated builds the name from IdentityPrefix plus a
	// system-assigned sequence.
	NameGenerated NameConstruction = "GENERATED"
)

// FieldType is the declared type of an entity field.
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldInteger   FieldType = "integer"
	FieldBoolean   FieldType = "boolean"
	FieldEnum      FieldType = "enum"
	FieldUUID      FieldType = "uuid"
	FieldTimestamp FieldType = "timestamp"
	FieldDecimal   FieldType = "decimal"
)

var fieldTypes = map[FieldType]bool{
	FieldString:    true,
	FieldInteger:   true,
	FieldBoolean:   true,
	FieldEnum:      true,
	FieldUUID:      true,
	FieldTimestamp: true,
	FieldDecimal:   true,
}

// FieldSpec declares one entity field: its type, whether clients must or may
// supply it, and the constraints its values must satisfy.
type FieldSpec struct {
	Name     string    `yaml:"name"`
	Type     FieldType `yaml:"type"`
	Required bool      `yaml:"required,omitempty"`

	// Enum lists the legal values for FieldEnum fields.
	Enum []string `yaml:"enum,omitempty"`

	// MinLen/MaxLen bound string lengths. Zero means unbounded.
	MinLen int `yaml:"min_len,omitempty"`
	MaxLen int `yaml:"max_len,omitempty"`

	// Min/Max bound integer and decimal values. They are decimal strings
	// parsed when the validator is compiled; empty means unbounded.
	Min string `yaml:"min,omitempty"`
	Max string `yaml:"max,omitempty"`

	// Pattern is an RE2 expression string values must match, compiled when
	// the validator is compiled.
	Pattern string `yaml:"pattern,omitempty"`

	// SystemManaged marks fields the client may never set (ids, audit
	// timestamps). They are stripped from input whatever the supplied value.
	SystemManaged bool `yaml:"system_managed,omitempty"`
}

func (f FieldSpec) clone() FieldSpec {
	c := f
	if f.Enum != nil {
		c.Enum = append([]string(nil), f.Enum...)
	}
	return c
}

// RelationshipKind distinguishes the direction of an entity relationship.
type RelationshipKind string

const (
	RelationBelongsTo RelationshipKind = "belongs_to"
	RelationHasMany   RelationshipKind = "has_many"
)

// Relationship declares a link from this entity to another registered entity.
type Relationship struct {
	Name       string           `yaml:"name"`
	Entity     string           `yaml:"entity"`
	LocalField string           `yaml:"local_field"`
	Kind       RelationshipKind `yaml:"kind"`
}

// EntityDescriptor is the complete metadata record for one entity. All naming
// properties are explicit; a descriptor that omits one does not register.
type EntityDescriptor struct {
	// EntityKey identifies the entity everywhere in the engine.
	EntityKey string `yaml:"entity_key"`

	// TableName is the backing table. Also the source of the URL path.
	TableName string `yaml:"table_name"`

	// RLSResource keys grants and row policies for this entity.
	RLSResource string `yaml:"rls_resource"`

	DisplayName       string `yaml:"display_name"`
	DisplayNamePlural string `yaml:"display_name_plural"`

	// Category groups entities for the derived category tables. Checked at
	// derivation time, not registration.
	Category string `yaml:"category,omitempty"`

	// PrimaryKey names the field holding the row identifier.
	PrimaryKey string `yaml:"primary_key"`

	// IdentityField names the field a DIRECT name is read from.
	IdentityField string `yaml:"identity_field,omitempty"`

	// NameFields lists the fields a COMPOSED name combines, in order.
	NameFields []string `yaml:"name_fields,omitempty"`

	// IdentityPrefix prefixes GENERATED names (for example "WO"). Checked at
	// derivation time.
	IdentityPrefix string `yaml:"identity_prefix,omitempty"`

	NameConstruction NameConstruction `yaml:"name_construction"`

	// Fields is the closed field set, in declaration order.
	Fields []FieldSpec `yaml:"fields"`

	// ImmutableFields may be written on create but never on update.
	ImmutableFields []string `yaml:"immutable_fields,omitempty"`

	Relationships []Relationship `yaml:"relationships,omitempty"`
}

// HasField reports whether the descriptor declares a field with this name.
func (d *EntityDescriptor) HasField(name string) bool {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return true
		}
	}
	return false
}

// Field returns the spec for a declared field.
func (d *EntityDescriptor) Field(name string) (FieldSpec, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return d.Fields[i].clone(), true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields lists the fields clients must supply on create, in
// declaration order. FieldSpec.Required is the single source of truth.
func (d *EntityDescriptor) RequiredFields() []string {
	var names []string
	for i := range d.Fields {
		if d.Fields[i].Required {
			names = append(names, d.Fields[i].Name)
		}
	}
	return names
}

// Clone returns a deep copy. The registry hands out clones so callers can
// never reach its internal state.
func (d *EntityDescriptor) Clone() EntityDescriptor {
	c := *d
	if d.NameFields != nil {
		c.NameFields = append([]string(nil), d.NameFields...)
	}
	if d.Fields != nil {
		c.Fields = make([]FieldSpec, len(d.Fields))
		for i := range d.Fields {
			c.Fields[i] = d.Fields[i].clone()
		}
	}
	if d.ImmutableFields != nil {
		c.ImmutableFields = append([]string(nil), d.ImmutableFields...)
	}
	if d.Relationships != nil {
		c.Relationships = append([]Relationship(nil), d.Relationships...)
	}
	return c
}

// validate checks the structural invariants a descriptor must satisfy before
// it may enter the registry. Violations are configuration errors.
func (d *EntityDescriptor) validate() error {
	if d.EntityKey == "" {
		return NewError(ErrConfiguration, "entity key is required")
	}
	if d.TableName == "" {
		return NewError(ErrConfiguration, "table name is required").WithEntity(d.EntityKey)
	}
	if d.RLSResource == "" {
		return NewError(ErrConfiguration, "rls resource is required").WithEntity(d.EntityKey)
	}
	if d.DisplayName == "" {
		return NewError(ErrConfiguration, "display name is required").WithEntity(d.EntityKey)
	}
	if d.DisplayNamePlural == "" {
		return NewError(ErrConfiguration, "plural display name is required, it is never pluralized automatically").WithEntity(d.EntityKey)
	}
	if len(d.Fields) == 0 {
		return NewError(ErrConfiguration, "at least one field is required").WithEntity(d.EntityKey)
	}

	seen := make(map[string]bool, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if err := d.validateField(f); err != nil {
			return err
		}
		if seen[f.Name] {
			return NewError(ErrConfiguration, "duplicate field name").
				WithEntity(d.EntityKey).WithField(f.Name)
		}
		seen[f.Name] = true
	}

	if d.PrimaryKey == "" {
		return NewError(ErrConfiguration, "primary key is required").WithEntity(d.EntityKey)
	}
	if !seen[d.PrimaryKey] {
		return NewError(ErrConfiguration, "primary key field is not declared").
			WithEntity(d.EntityKey).WithField(d.PrimaryKey)
	}

	switch d.NameConstruction {
	case NameDirect:
		if d.IdentityField == "" {
			return NewError(ErrConfiguration, "DIRECT name construction requires an identity field").WithEntity(d.EntityKey)
		}
	case NameComposed:
		if len(d.NameFields) == 0 {
			return NewError(ErrConfiguration, "COMPOSED name construction requires name fields").WithEntity(d.EntityKey)
		}
	case NameGenerated:
		// IdentityPrefix is a derivation input, checked by DeriveConstants.
	default:
		return NewError(ErrConfiguration,
			fmt.Sprintf("name construction must be %s, %s or %s", NameDirect, NameComposed, NameGenerated)).
			WithEntity(d.EntityKey)
	}

	if d.IdentityField != "" && !seen[d.IdentityField] {
		return NewError(ErrConfiguration, "identity field is not declared").
			WithEntity(d.EntityKey).WithField(d.IdentityField)
	}
	for _, name := range d.NameFields {
		if !seen[name] {
			return NewError(ErrConfiguration, "name field is not declared").
				WithEntity(d.EntityKey).WithField(name)
		}
	}
	for _, name := range d.ImmutableFields {
		if !seen[name] {
			return NewError(ErrConfiguration, "immutable field is not declared").
				WithEntity(d.EntityKey).WithField(name)
		}
	}
	for _, rel := range d.Relationships {
		if rel.Name == "" {
			return NewError(ErrConfiguration, "relationship name is required").WithEntity(d.EntityKey)
		}
		if rel.Entity == "" {
			return NewError(ErrConfiguration, "relationship target entity is required").
				WithEntity(d.EntityKey).WithField(rel.Name)
		}
		if rel.Kind != RelationBelongsTo && rel.Kind != RelationHasMany {
			return NewError(ErrConfiguration, "relationship kind must be belongs_to or has_many").
				WithEntity(d.EntityKey).WithField(rel.Name)
		}
		if rel.LocalField != "" && !seen[rel.LocalField] {
			return NewError(ErrConfiguration, "relationship local field is not declared").
				WithEntity(d.EntityKey).WithField(rel.LocalField)
		}
	}

	return nil
}

func (d *EntityDescriptor) validateField(f *FieldSpec) error {
	if f.Name == "" {
		return NewError(ErrConfiguration, "field name is required").WithEntity(d.EntityKey)
	}
	if !fieldTypes[f.Type] {
		return NewError(ErrConfiguration, fmt.Sprintf("unknown field type %q", f.Type)).
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if f.Required && f.SystemManaged {
		// A field the client must send but may never set is unsatisfiable.
		return NewError(ErrConfiguration, "field cannot be both required and system managed").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if f.Type == FieldEnum && len(f.Enum) == 0 {
		return NewError(ErrConfiguration, "enum field needs at least one value").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if f.Type != FieldEnum && len(f.Enum) > 0 {
		return NewError(ErrConfiguration, "enum values are only valid on enum fields").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if (f.MinLen != 0 || f.MaxLen != 0) && f.Type != FieldString {
		return NewError(ErrConfiguration, "length bounds are only valid on string fields").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if f.MinLen < 0 || f.MaxLen < 0 || (f.MaxLen != 0 && f.MaxLen < f.MinLen) {
		return NewError(ErrConfiguration, "invalid length bounds").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if (f.Min != "" || f.Max != "") && f.Type != FieldInteger && f.Type != FieldDecimal {
		return NewError(ErrConfiguration, "value bounds are only valid on integer and decimal fields").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	if f.Pattern != "" && f.Type != FieldString {
		return NewError(ErrConfiguration, "patterns are only valid on string fields").
			WithEntity(d.EntityKey).WithField(f.Name)
	}
	return nil
}
