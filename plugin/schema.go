package plugin

import (
	"fmt"

	"strata.evalgo.org/common"
)

// Schema is a declarative config schema: property name to its declaration.
type Schema map[string]Property

// Property declares one config value.
type Property struct {
	// Type is one of string, int, float, bool, list, map.
	Type     string        `yaml:"type"`
	Required bool          `yaml:"required,omitempty"`
	Default  interface{}   `yaml:"default,omitempty"`
	Enum     []interface{} `yaml:"enum,omitempty"`
}

// Validate checks config against the schema and fills in declared defaults
// for absent keys. Keys the schema does not declare pass through untouched;
// the __version stamp is always ignored.
func (s Schema) Validate(config map[string]interface{}) []common.FieldError {
	var errs []common.FieldError
	for name, prop := range s {
		value, ok := config[name]
		if !ok || value == nil {
			if prop.Default != nil {
				config[name] = prop.Default
				continue
			}
			if prop.Required {
				errs = append(errs, common.FieldError{Field: name, Message: "is required"})
			}
			continue
		}
		if !typeMatches(prop.Type, value) {
			errs = append(errs, common.FieldError{Field: name, Message: fmt.Sprintf("must be of type %s", prop.Type)})
			continue
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
			errs = append(errs, common.FieldError{Field: name, Message: fmt.Sprintf("must be one of %v", prop.Enum)})
		}
	}
	return errs
}

func typeMatches(declared string, value interface{}) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "int":
		switch value.(type) {
		case int, int32, int64:
			return true
		case float64:
			// yaml and json decode integers as float64 in interface maps
			f := value.(float64)
			return f == float64(int64(f))
		}
		return false
	case "float":
		switch value.(type) {
		case float32, float64, int, int64:
			return true
		}
		return false
	case "bool":
		_, ok := value.(bool)
		return ok
	case "list":
		switch value.(type) {
		case []interface{}, []string:
			return true
		}
		return false
	case "map":
		switch value.(type) {
		case map[string]interface{}, map[interface{}]interface{}:
			return true
		}
		return false
	}
	// unknown declared type never matches
	return false
}

func enumContains(enum []interface{}, value interface{}) bool {
	for _, allowed := range enum {
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
