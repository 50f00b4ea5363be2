// Package fields implements the field type registry for the Strata content
// backend. Every field kind provides four operations: validate, serialize,
// deserialize and default. Content payloads are untyped maps; the registry is
// the single place that knows how to interpret a value for a given kind.
//
// The built-in kind set is closed. Plugins may register additional kinds at
// startup but can never override a built-in.
package fields

import (
	"fmt"
	"sort"
	"sync"
)

// Built-in field kind identifiers.
const (
	KindText        = "text"
	KindTextarea    = "textarea"
	KindRichText    = "rich-text"
	KindNumber      = "number"
	KindBoolean     = "boolean"
	KindDate        = "date"
	KindDatetime    = "datetime"
	KindSlug        = "slug"
	KindEmail       = "email"
	KindURL         = "url"
	KindSelect      = "select"
	KindMultiselect = "multiselect"
	KindJSON        = "json"
	KindMedia       = "media"
	KindRelation    = "relation"
	KindColor       = "color"
	KindLocation    = "location"
	KindReference   = "reference"
)

// Options carries kind-specific field options (select choices, media
// multiplicity, default values). Stored as part of the field definition and
// preserved round-trip.
type Options map[string]interface{}

// Bool reads a boolean option, returning false when absent or mistyped.
func (o Options) Bool(key string) bool {
	v, ok := o[key].(bool)
	return ok && v
}

// Rule is a single declarative validation rule attached to a field
// definition. Rules run in declared order after the required check.
type Rule struct {
	Type    string      `json:"type"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message,omitempty"`
}

// message returns the rule's custom message or the given fallback.
func (r Rule) message(fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

// Handler implements the four operations for one field kind.
//
// Validate never panics for malformed rules: a syntactically invalid rule
// (for example a broken regex pattern) produces a validation error scoped to
// that rule. Validate returns plain messages; the blueprint engine tags them
// with the field key.
type Handler interface {
	Validate(value interface{}, required bool, rules []Rule, opts Options) []string
	Serialize(value interface{}) (interface{}, error)
	Deserialize(raw interface{}) (interface{}, error)
	Default(opts Options) interface{}
}

// Registry maps field kinds to their handlers. It is populated with the
// closed built-in set at construction time; plugin registrations are
// permitted afterwards but complete before the server takes traffic.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	builtin  map[string]bool
}

// NewRegistry creates a registry populated with all built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{
		handlers: make(map[string]Handler),
		builtin:  make(map[string]bool),
	}

	builtins := map[string]Handler{
		KindText:        &textHandler{},
		KindTextarea:    &textHandler{},
		KindRichText:    &textHandler{},
		KindNumber:      &numberHandler{},
		KindBoolean:     &booleanHandler{},
		KindDate:        &dateHandler{},
		KindDatetime:    &dateHandler{},
		KindSlug:        &slugFieldHandler{},
		KindEmail:       &emailHandler{},
		KindURL:         &urlHandler{},
		KindSelect:      &selectHandler{},
		KindMultiselect: &multiselectHandler{},
		KindJSON:        &jsonHandler{},
		KindMedia:       &mediaHandler{},
		KindRelation:    &relationHandler{},
		KindColor:       &colorHandler{},
		KindLocation:    &locationHandler{},
		KindReference:   &referenceHandler{},
	}
	for kind, h := range builtins {
		r.handlers[kind] = h
		r.builtin[kind] = true
	}
	return r
}

// Register adds a plugin-contributed field kind. Built-in kinds and already
// registered kinds cannot be replaced.
func (r *Registry) Register(kind string, h Handler) error {
	if kind == "" {
		return fmt.Errorf("field kind cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for kind %q cannot be nil", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.builtin[kind] {
		return fmt.Errorf("cannot override built-in field kind %q", kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("field kind %q is already registered", kind)
	}
	r.handlers[kind] = h
	return nil
}

// Lookup returns the handler for a kind.
func (r *Registry) Lookup(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns all registered kind names, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
