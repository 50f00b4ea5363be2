package blueprint

import (
	"fmt"
	"regexp"

	"strata.evalgo.org/common"
	"strata.evalgo.org/fields"
)

var blueprintSlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Result is the outcome of validating a data map against a blueprint.
// Errors block the write; warnings (unknown keys, destructive changes) do not.
type Result struct {
	OK       bool                `json:"ok"`
	Errors   []common.FieldError `json:"errors,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Engine validates data maps against blueprints by dispatching each field to
// its registered handler. Engines are stateless and safe for concurrent use.
type Engine struct {
	registry *fields.Registry
}

// NewEngine creates a validation engine over a field type registry.
func NewEngine(registry *fields.Registry) *Engine {
	return &Engine{registry: registry}
}

// ValidateDefinition runs the blueprint-level structural checks: name set,
// slug shape, at least one field, unique field keys, known field kinds.
func (e *Engine) ValidateDefinition(b *Blueprint) []common.FieldError {
	var errs []common.FieldError

	if b.Name == "" {
		errs = append(errs, common.FieldError{Field: "name", Message: "name must not be empty"})
	}
	if !blueprintSlugPattern.MatchString(b.Slug) {
		errs = append(errs, common.FieldError{Field: "slug", Message: "slug must contain only lowercase letters, digits and hyphens"})
	}
	if len(b.Fields) == 0 {
		errs = append(errs, common.FieldError{Field: "fields", Message: "a blueprint needs at least one field"})
	}

	seen := make(map[string]bool, len(b.Fields))
	for _, f := range b.Fields {
		if f.Key == "" {
			errs = append(errs, common.FieldError{Field: "fields", Message: "field key must not be empty"})
			continue
		}
		if seen[f.Key] {
			errs = append(errs, common.FieldError{Field: f.Key, Message: "duplicate field key"})
		}
		seen[f.Key] = true
		if _, ok := e.registry.Lookup(f.Type); !ok {
			errs = append(errs, common.FieldError{Field: f.Key, Message: fmt.Sprintf("unknown field type %q", f.Type)})
		}
	}

	return errs
}

// Validate checks a data map against a blueprint. Structural checks run
// first; then every declared field is validated in order through its handler.
// Keys in data that match no declared field produce warnings, never errors.
// Validate never mutates its inputs.
func (e *Engine) Validate(b *Blueprint, data map[string]interface{}) Result {
	result := Result{}

	if errs := e.ValidateDefinition(b); len(errs) > 0 {
		result.Errors = errs
		return result
	}

	declared := make(map[string]bool, len(b.Fields))
	for _, f := range b.Fields {
		declared[f.Key] = true
		handler, ok := e.registry.Lookup(f.Type)
		if !ok {
			// ValidateDefinition already rejected unknown kinds
			continue
		}
		// an absent key validates as nil input
		value := data[f.Key]
		for _, msg := range handler.Validate(value, f.Required, f.Validation, f.Options) {
			result.Errors = append(result.Errors, common.FieldError{Field: f.Key, Message: msg})
		}
	}

	for key := range data {
		if !declared[key] {
			result.Warnings = append(result.Warnings, fmt.Sprintf("unknown field %q will be dropped", key))
		}
	}

	result.OK = len(result.Errors) == 0
	return result
}

// Serialize walks the declared fields of a blueprint and converts each value
// to its storage form via the field handler. Unknown keys are dropped; absent
// declared keys stay absent.
func (e *Engine) Serialize(b *Blueprint, data map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(data))
	for _, f := range b.Fields {
		value, present := data[f.Key]
		if !present {
			continue
		}
		handler, ok := e.registry.Lookup(f.Type)
		if !ok {
			continue
		}
		serialized, err := handler.Serialize(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		out[f.Key] = serialized
	}
	return out, nil
}

// Deserialize converts stored data back into the in-memory form.
func (e *Engine) Deserialize(b *Blueprint, raw map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(raw))
	for _, f := range b.Fields {
		value, present := raw[f.Key]
		if !present {
			continue
		}
		handler, ok := e.registry.Lookup(f.Type)
		if !ok {
			continue
		}
		deserialized, err := handler.Deserialize(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Key, err)
		}
		out[f.Key] = deserialized
	}
	return out, nil
}
