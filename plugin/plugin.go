// Package plugin manages plugin lifecycle: manifest validation, config
// migration and validation, and the init/enable/reconfigure/disable/destroy
// state machine. Plugins extend the system through the hook and field
// registries handed to them in their Context.
package plugin

import (
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/fields"
	"strata.evalgo.org/hooks"
)

// State is a plugin instance's lifecycle state.
type State string

const (
	StateActive    State = "active"
	StateError     State = "error"
	StateDisabling State = "disabling"
	StateDisabled  State = "disabled"
)

// Manifest declares a plugin's identity and requirements.
type Manifest struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Version      string   `yaml:"version"`
	Description  string   `yaml:"description,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	Incompatible []string `yaml:"incompatible,omitempty"`

	// Engine is an optional semver range the host version must satisfy,
	// e.g. ">=1.0.0 <2.0.0".
	Engine string `yaml:"engine,omitempty"`

	// ConfigSchema declares the shape of the plugin's configuration.
	ConfigSchema Schema `yaml:"config,omitempty"`
}

// ConfigMigration upgrades a stored config from one plugin version to the
// next. Migrations chain: the manager applies the one whose From matches the
// stored __version stamp, then looks again with To.
type ConfigMigration struct {
	From  string
	To    string
	Apply func(config map[string]interface{}) (map[string]interface{}, error)
}

// Plugin bundles a manifest with lifecycle callbacks. All callbacks are
// optional; nil callbacks are skipped.
//
// Init is expected to capture the unsubscribe closures of any hook
// registrations it makes and invoke them in Disable. The manager does not
// track per-plugin hook registrations.
type Plugin struct {
	Manifest         Manifest
	ConfigMigrations []ConfigMigration

	Init        func(ctx *Context) error
	Enable      func(ctx *Context) error
	Reconfigure func(ctx *Context) error
	Disable     func(ctx *Context) error
	Destroy     func(ctx *Context) error
}

// Context is what a plugin sees of the host.
type Context struct {
	Manifest Manifest
	Config   map[string]interface{}
	Hooks    *hooks.Registry
	Fields   *fields.Registry

	// Registries holds additional host registries by name, e.g. "storage".
	Registries map[string]interface{}

	Logger *logrus.Entry
}
