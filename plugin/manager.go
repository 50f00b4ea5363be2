package plugin

import (
	"fmt"
	"sync"

	"github.com/blang/semver/v4"
	"github.com/sirupsen/logrus"

	"strata.evalgo.org/common"
	"strata.evalgo.org/fields"
	"strata.evalgo.org/hooks"
)

// versionKey stamps a stored config with the plugin version that wrote it.
const versionKey = "__version"

type instance struct {
	plugin *Plugin
	state  State
	ctx    *Context
}

// Manager loads and unloads plugins and owns their lifecycle state.
type Manager struct {
	hooks      *hooks.Registry
	fields     *fields.Registry
	registries map[string]interface{}
	engine     semver.Version
	logger     *logrus.Logger

	mu        sync.Mutex
	instances map[string]*instance
}

// NewManager creates a plugin manager. engineVersion is the host version
// plugin engine constraints are checked against; registries are additional
// host registries exposed to plugins by name.
func NewManager(registry *hooks.Registry, fieldRegistry *fields.Registry, engineVersion string, registries map[string]interface{}) (*Manager, error) {
	engine, err := semver.Parse(engineVersion)
	if err != nil {
		return nil, common.WrapError(common.KindPlugin, fmt.Sprintf("engine version %q is not valid semver", engineVersion), err)
	}
	if registries == nil {
		registries = make(map[string]interface{})
	}
	return &Manager{
		hooks:      registry,
		fields:     fieldRegistry,
		registries: registries,
		engine:     engine,
		logger:     common.Logger,
		instances:  make(map[string]*instance),
	}, nil
}

// Load validates, configures, and activates a plugin. On any lifecycle
// callback failure the instance stays registered in state error and the
// failure propagates.
func (m *Manager) Load(p *Plugin, rawConfig map[string]interface{}) error {
	if err := ValidateManifest(p.Manifest); err != nil {
		return err
	}
	id := p.Manifest.ID

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[id]; exists {
		return common.NewError(common.KindConflict, fmt.Sprintf("plugin %s is already loaded", id))
	}
	for _, dep := range p.Manifest.Dependencies {
		inst, ok := m.instances[dep]
		if !ok || inst.state != StateActive {
			return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s requires %s, which is not active", id, dep))
		}
	}
	for _, other := range p.Manifest.Incompatible {
		if _, ok := m.instances[other]; ok {
			return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s is incompatible with loaded plugin %s", id, other))
		}
	}
	if p.Manifest.Engine != "" {
		rng, err := semver.ParseRange(p.Manifest.Engine)
		if err != nil {
			return common.WrapError(common.KindPlugin, fmt.Sprintf("plugin %s: engine constraint", id), err)
		}
		if !rng(m.engine) {
			return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s requires engine %s, host is %s", id, p.Manifest.Engine, m.engine))
		}
	}

	config, err := m.migrateConfig(p, rawConfig)
	if err != nil {
		return err
	}
	if errs := p.Manifest.ConfigSchema.Validate(config); len(errs) > 0 {
		return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s: invalid config: %v", id, errs))
	}
	config[versionKey] = p.Manifest.Version

	ctx := &Context{
		Manifest:   p.Manifest,
		Config:     config,
		Hooks:      m.hooks,
		Fields:     m.fields,
		Registries: m.registries,
		Logger:     m.logger.WithField("plugin", id),
	}
	inst := &instance{plugin: p, ctx: ctx}
	m.instances[id] = inst

	if err := m.invoke(inst, "init", p.Init); err != nil {
		return err
	}
	if err := m.invoke(inst, "enable", p.Enable); err != nil {
		return err
	}
	inst.state = StateActive
	m.logger.WithFields(logrus.Fields{"plugin": id, "version": p.Manifest.Version}).Info("plugin loaded")
	return nil
}

// Reconfigure merges partial into the plugin's current config, re-validates,
// and hands the plugin the updated context.
func (m *Manager) Reconfigure(id string, partial map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return common.NewError(common.KindNotFound, fmt.Sprintf("plugin %s is not loaded", id))
	}
	if inst.state != StateActive {
		return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s is %s, not active", id, inst.state))
	}

	merged := make(map[string]interface{}, len(inst.ctx.Config)+len(partial))
	for k, v := range inst.ctx.Config {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}
	if errs := inst.plugin.Manifest.ConfigSchema.Validate(merged); len(errs) > 0 {
		return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s: invalid config: %v", id, errs))
	}
	merged[versionKey] = inst.plugin.Manifest.Version

	inst.ctx.Config = merged
	return m.invoke(inst, "reconfigure", inst.plugin.Reconfigure)
}

// Unload disables and destroys a plugin, then clears the instance.
func (m *Manager) Unload(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst, ok := m.instances[id]
	if !ok {
		return common.NewError(common.KindNotFound, fmt.Sprintf("plugin %s is not loaded", id))
	}
	inst.state = StateDisabling
	if err := m.invoke(inst, "disable", inst.plugin.Disable); err != nil {
		return err
	}
	if err := m.invoke(inst, "destroy", inst.plugin.Destroy); err != nil {
		return err
	}
	delete(m.instances, id)
	m.logger.WithField("plugin", id).Info("plugin unloaded")
	return nil
}

// StateOf reports a plugin's lifecycle state.
func (m *Manager) StateOf(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return "", false
	}
	return inst.state, true
}

// ConfigOf returns a copy of a plugin's effective config.
func (m *Manager) ConfigOf(id string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(inst.ctx.Config))
	for k, v := range inst.ctx.Config {
		out[k] = v
	}
	return out, true
}

// Loaded lists the ids of all loaded plugins, active or not.
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.instances))
	for id := range m.instances {
		ids = append(ids, id)
	}
	return ids
}

// invoke runs one lifecycle callback; a failure moves the instance to state
// error and propagates classified.
func (m *Manager) invoke(inst *instance, phase string, fn func(ctx *Context) error) error {
	if fn == nil {
		return nil
	}
	if err := fn(inst.ctx); err != nil {
		inst.state = StateError
		return common.WrapError(common.KindPlugin, fmt.Sprintf("plugin %s: %s failed", inst.plugin.Manifest.ID, phase), err)
	}
	return nil
}

// migrateConfig walks the plugin's config migration chain when the stored
// __version stamp differs from the manifest version.
func (m *Manager) migrateConfig(p *Plugin, rawConfig map[string]interface{}) (map[string]interface{}, error) {
	config := make(map[string]interface{}, len(rawConfig))
	for k, v := range rawConfig {
		config[k] = v
	}

	stored, stamped := config[versionKey].(string)
	if !stamped || stored == p.Manifest.Version || len(p.ConfigMigrations) == 0 {
		return config, nil
	}

	seen := map[string]bool{}
	current := stored
	for current != p.Manifest.Version {
		if seen[current] {
			return nil, common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s: config migration cycle at version %s", p.Manifest.ID, current))
		}
		seen[current] = true

		var step *ConfigMigration
		for i := range p.ConfigMigrations {
			if p.ConfigMigrations[i].From == current {
				step = &p.ConfigMigrations[i]
				break
			}
		}
		if step == nil {
			// no further migration applies; stop walking
			break
		}
		next, err := step.Apply(config)
		if err != nil {
			return nil, common.WrapError(common.KindPlugin, fmt.Sprintf("plugin %s: config migration from %s failed", p.Manifest.ID, current), err)
		}
		config = next
		current = step.To
	}
	return config, nil
}
