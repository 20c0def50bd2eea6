package policykit

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Field error reason codes.
const (
	ReasonRequired  = "required"
	ReasonUnknown   = "unknown_field"
	ReasonImmutable = "immutable"
	ReasonType      = "invalid_type"
	ReasonEnum      = "invalid_enum"
	ReasonLength    = "invalid_length"
	ReasonRange     = "out_of_range"
	ReasonPattern   = "pattern_mismatch"
)

// FieldError is one field-level validation failure. Validation failures are
// data, never exceptions; a failed payload reports every offending field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`

	// Allowed carries the valid value set for enum violations.
	Allowed []string `json:"allowed,omitempty"`
}

// ValidationResult is the outcome of validating one payload. Value holds the
// coerced payload and is nil whenever Errors is non-empty.
type ValidationResult struct {
	Value  map[string]any `json:"value"`
	Errors []FieldError   `json:"errors"`
}

// Valid reports whether the payload passed.
func (r ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Err adapts the result to an error value for callers that propagate errors.
// Returns nil when the payload passed.
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	parts := make([]string, len(r.Errors))
	for i, fe := range r.Errors {
		parts[i] = fe.Field + ": " + fe.Reason
	}
	return NewError(ErrValidation, strings.Join(parts, "; "))
}

type compiledField struct {
	spec    FieldSpec
	pattern *regexp.Regexp
	enum    map[string]bool
	minInt  *int64
	maxInt  *int64
	minDec  *decimal.Decimal
	maxDec  *decimal.Decimal
}

// Validator is the compiled validation schema for one entity. It is built
// once per epoch and is safe for concurrent use.
type Validator struct {
	entityKey string
	fields    map[string]*compiledField
	order     []string
	required  []string
	immutable map[string]bool
}

// BuildValidator compiles an entity descriptor into a validator. Patterns
// that do not compile and bounds that do not parse are configuration errors,
// so they surface at boot or reload rather than on a request.
func BuildValidator(d EntityDescriptor) (*Validator, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}

	v := &Validator{
		entityKey: d.EntityKey,
		fields:    make(map[string]*compiledField, len(d.Fields)),
		immutable: make(map[string]bool, len(d.ImmutableFields)),
	}

	for i := range d.Fields {
		spec := d.Fields[i].clone()
		cf := &compiledField{spec: spec}

		if spec.Pattern != "" {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, NewError(ErrConfiguration, fmt.Sprintf("pattern does not compile: %v", err)).
					WithEntity(d.EntityKey).WithField(spec.Name)
			}
			cf.pattern = re
		}
		if len(spec.Enum) > 0 {
			cf.enum = make(map[string]bool, len(spec.Enum))
			for _, val := range spec.Enum {
				cf.enum[val] = true
			}
		}

		var err error
		switch spec.Type {
		case FieldInteger:
			cf.minInt, err = parseIntBound(spec.Min)
			if err == nil {
				cf.maxInt, err = parseIntBound(spec.Max)
			}
		case FieldDecimal:
			cf.minDec, err = parseDecimalBound(spec.Min)
			if err == nil {
				cf.maxDec, err = parseDecimalBound(spec.Max)
			}
		}
		if err != nil {
			return nil, NewError(ErrConfiguration, err.Error()).
				WithEntity(d.EntityKey).WithField(spec.Name)
		}

		v.fields[spec.Name] = cf
		v.order = append(v.order, spec.Name)
		if spec.Required {
			v.required = append(v.required, spec.Name)
		}
	}

	for _, name := range d.ImmutableFields {
		v.immutable[name] = true
	}

	return v, nil
}

func parseIntBound(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("integer bound %q does not parse", s)
	}
	return &n, nil
}

func parseDecimalBound(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("decimal bound %q does not parse", s)
	}
	return &d, nil
}

// EntityKey returns the entity this validator was compiled for.
func (v *Validator) EntityKey() string {
	return v.entityKey
}

// Validate checks a payload against the compiled schema and returns the
// coerced value plus every field-level failure. Semantics:
//
//   - The schema is closed: fields outside the declared set are rejected.
//   - SystemManaged fields are stripped silently, whatever was supplied.
//   - OpCreate enforces required fields; OpUpdate treats every field as
//     optional but rejects writes to immutable fields.
//   - Coercion runs before constraint checks; a coercion failure is a
//     field error, never a panic.
//
// Only OpCreate and OpUpdate carry payloads; other operations are an error.
func (v *Validator) Validate(op Operation, payload map[string]any) (ValidationResult, error) {
	if op != OpCreate && op != OpUpdate {
		return ValidationResult{}, NewError(ErrInvalidOperation,
			fmt.Sprintf("operation %q does not carry a payload", op)).
			WithEntity(v.entityKey).WithOperation(op)
	}

	var errs []FieldError
	value := make(map[string]any, len(payload))

	// Declared fields first, in declaration order, so error output is
	// deterministic for a given payload.
	for _, name := range v.order {
		raw, present := payload[name]
		if !present {
			continue
		}
		cf := v.fields[name]

		if cf.spec.SystemManaged {
			continue // stripped, never an error
		}
		if op == OpUpdate && v.immutable[name] {
			errs = append(errs, FieldError{Field: name, Reason: ReasonImmutable, Detail: "field cannot be changed after create"})
			continue
		}
		if raw == nil {
			errs = append(errs, FieldError{Field: name, Reason: ReasonType, Detail: "must not be null"})
			continue
		}

		coerced, err := coerceValue(cf.spec.Type, raw)
		if err != nil {
			errs = append(errs, FieldError{Field: name, Reason: ReasonType, Detail: err.Error()})
			continue
		}

		if fe := cf.check(name, coerced); fe != nil {
			errs = append(errs, *fe)
			continue
		}
		value[name] = coerced
	}

	// Anything left in the payload is outside the declared set.
	var unknown []string
	for key := range payload {
		if _, declared := v.fields[key]; !declared {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		errs = append(errs, FieldError{Field: key, Reason: ReasonUnknown, Detail: "field is not declared"})
	}

	if op == OpCreate {
		for _, name := range v.required {
			if _, present := payload[name]; !present {
				errs = append(errs, FieldError{Field: name, Reason: ReasonRequired})
			}
		}
	}

	if len(errs) > 0 {
		return ValidationResult{Errors: errs}, nil
	}
	return ValidationResult{Value: value}, nil
}

// check runs the per-field constraints on an already-coerced value.
func (cf *compiledField) check(name string, coerced any) *FieldError {
	switch cf.spec.Type {
	case FieldString:
		s := coerced.(string)
		n := utf8.RuneCountInString(s)
		if cf.spec.MinLen > 0 && n < cf.spec.MinLen {
			return &FieldError{Field: name, Reason: ReasonLength,
				Detail: fmt.Sprintf("must be at least %d characters", cf.spec.MinLen)}
		}
		if cf.spec.MaxLen > 0 && n > cf.spec.MaxLen {
			return &FieldError{Field: name, Reason: ReasonLength,
				Detail: fmt.Sprintf("must be at most %d characters", cf.spec.MaxLen)}
		}
		if cf.pattern != nil && !cf.pattern.MatchString(s) {
			return &FieldError{Field: name, Reason: ReasonPattern,
				Detail: fmt.Sprintf("must match pattern %s", cf.spec.Pattern)}
		}

	case FieldEnum:
		s := coerced.(string)
		if !cf.enum[s] {
			return &FieldError{Field: name, Reason: ReasonEnum,
				Detail:  fmt.Sprintf("%q is not a valid value", s),
				Allowed: append([]string(nil), cf.spec.Enum...)}
		}

	case FieldInteger:
		n := coerced.(int64)
		if cf.minInt != nil && n < *cf.minInt {
			return &FieldError{Field: name, Reason: ReasonRange,
				Detail: fmt.Sprintf("must be at least %d", *cf.minInt)}
		}
		if cf.maxInt != nil && n > *cf.maxInt {
			return &FieldError{Field: name, Reason: ReasonRange,
				Detail: fmt.Sprintf("must be at most %d", *cf.maxInt)}
		}

	case FieldDecimal:
		d := coerced.(decimal.Decimal)
		if cf.minDec != nil && d.Cmp(*cf.minDec) < 0 {
			return &FieldError{Field: name, Reason: ReasonRange,
				Detail: fmt.Sprintf("must be at least %s", cf.minDec.String())}
		}
		if cf.maxDec != nil && d.Cmp(*cf.maxDec) > 0 {
			return &FieldError{Field: name, Reason: ReasonRange,
				Detail: fmt.Sprintf("must be at most %s", cf.maxDec.String())}
		}
	}

	return nil
}
