package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata.evalgo.org/common"
	"strata.evalgo.org/fields"
	"strata.evalgo.org/hooks"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(hooks.NewRegistry(), fields.NewRegistry(), "1.2.0", nil)
	require.NoError(t, err)
	return m
}

func simplePlugin(id, version string) *Plugin {
	return &Plugin{Manifest: Manifest{ID: id, Name: id, Version: version}}
}

// TestValidateManifest tests the structural schema
func TestValidateManifest(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		wantErr  string
	}{
		{name: "Valid", manifest: Manifest{ID: "seo-toolkit", Name: "SEO Toolkit", Version: "1.0.0"}},
		{name: "ValidWithEngine", manifest: Manifest{ID: "seo", Name: "SEO", Version: "2.1.3", Engine: ">=1.0.0 <2.0.0"}},
		{name: "MissingID", manifest: Manifest{Name: "x", Version: "1.0.0"}, wantErr: "id is required"},
		{name: "BadID", manifest: Manifest{ID: "Not Valid!", Name: "x", Version: "1.0.0"}, wantErr: "not a valid identifier"},
		{name: "MissingName", manifest: Manifest{ID: "x", Version: "1.0.0"}, wantErr: "name is required"},
		{name: "BadVersion", manifest: Manifest{ID: "x", Name: "x", Version: "one"}, wantErr: "not valid semver"},
		{name: "BadEngine", manifest: Manifest{ID: "x", Name: "x", Version: "1.0.0", Engine: "whenever"}, wantErr: "not a valid range"},
		{name: "BadSchemaType", manifest: Manifest{ID: "x", Name: "x", Version: "1.0.0",
			ConfigSchema: Schema{"mode": {Type: "enum"}}}, wantErr: "unknown type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManifest(tt.manifest)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestLoadLifecycle tests init then enable then active
func TestLoadLifecycle(t *testing.T) {
	m := testManager(t)

	var calls []string
	p := simplePlugin("audit", "1.0.0")
	p.Init = func(ctx *Context) error {
		calls = append(calls, "init")
		assert.Equal(t, "audit", ctx.Manifest.ID)
		assert.NotNil(t, ctx.Hooks)
		assert.NotNil(t, ctx.Fields)
		assert.NotNil(t, ctx.Logger)
		return nil
	}
	p.Enable = func(ctx *Context) error {
		calls = append(calls, "enable")
		return nil
	}

	require.NoError(t, m.Load(p, nil))
	assert.Equal(t, []string{"init", "enable"}, calls)

	state, ok := m.StateOf("audit")
	require.True(t, ok)
	assert.Equal(t, StateActive, state)
}

// TestLoadDuplicateRejected tests the same-id rule
func TestLoadDuplicateRejected(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.Load(simplePlugin("audit", "1.0.0"), nil))

	err := m.Load(simplePlugin("audit", "2.0.0"), nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindConflict))
}

// TestLoadDependencies tests dependency and incompatibility enforcement
func TestLoadDependencies(t *testing.T) {
	m := testManager(t)

	p := simplePlugin("child", "1.0.0")
	p.Manifest.Dependencies = []string{"parent"}
	err := m.Load(p, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires parent")

	require.NoError(t, m.Load(simplePlugin("parent", "1.0.0"), nil))
	require.NoError(t, m.Load(p, nil))

	rival := simplePlugin("rival", "1.0.0")
	rival.Manifest.Incompatible = []string{"parent"}
	err = m.Load(rival, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible")
}

// TestLoadEngineConstraint tests the host version range check
func TestLoadEngineConstraint(t *testing.T) {
	m := testManager(t) // host 1.2.0

	ok := simplePlugin("fits", "1.0.0")
	ok.Manifest.Engine = ">=1.0.0 <2.0.0"
	require.NoError(t, m.Load(ok, nil))

	tooNew := simplePlugin("toonew", "1.0.0")
	tooNew.Manifest.Engine = ">=2.0.0"
	err := m.Load(tooNew, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires engine")
}

// TestLoadInitFailure tests the error state transition
func TestLoadInitFailure(t *testing.T) {
	m := testManager(t)

	p := simplePlugin("broken", "1.0.0")
	p.Init = func(ctx *Context) error { return errors.New("no database") }

	err := m.Load(p, nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindPlugin))

	state, ok := m.StateOf("broken")
	require.True(t, ok)
	assert.Equal(t, StateError, state)
}

// TestConfigSchemaValidation tests defaults, required, type and enum checks
func TestConfigSchemaValidation(t *testing.T) {
	m := testManager(t)

	p := simplePlugin("seo", "1.0.0")
	p.Manifest.ConfigSchema = Schema{
		"site_name": {Type: "string", Required: true},
		"max_depth": {Type: "int", Default: 3},
		"mode":      {Type: "string", Enum: []interface{}{"strict", "lenient"}},
	}

	err := m.Load(p, map[string]interface{}{"max_depth": "three"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "site_name")
	assert.Contains(t, err.Error(), "max_depth")

	// config rejection happens before registration, so the id is free to retry
	require.NoError(t, m.Load(p, map[string]interface{}{"site_name": "Blog", "mode": "strict"}))

	cfg, ok := m.ConfigOf("seo")
	require.True(t, ok)
	assert.Equal(t, "Blog", cfg["site_name"])
	assert.Equal(t, 3, cfg["max_depth"])
	assert.Equal(t, "1.0.0", cfg[versionKey])
}

// TestConfigMigrationChain tests walking __version forward across two steps
func TestConfigMigrationChain(t *testing.T) {
	m := testManager(t)

	p := simplePlugin("seo", "3.0.0")
	p.ConfigMigrations = []ConfigMigration{
		{From: "1.0.0", To: "2.0.0", Apply: func(cfg map[string]interface{}) (map[string]interface{}, error) {
			cfg["renamed"] = cfg["old"]
			delete(cfg, "old")
			return cfg, nil
		}},
		{From: "2.0.0", To: "3.0.0", Apply: func(cfg map[string]interface{}) (map[string]interface{}, error) {
			cfg["added"] = true
			return cfg, nil
		}},
	}

	require.NoError(t, m.Load(p, map[string]interface{}{versionKey: "1.0.0", "old": "value"}))

	cfg, _ := m.ConfigOf("seo")
	assert.Equal(t, "value", cfg["renamed"])
	assert.NotContains(t, cfg, "old")
	assert.Equal(t, true, cfg["added"])
	assert.Equal(t, "3.0.0", cfg[versionKey])
}

// TestConfigMigrationSkippedWhenUnstamped tests the stamp precondition
func TestConfigMigrationSkippedWhenUnstamped(t *testing.T) {
	m := testManager(t)

	p := simplePlugin("seo", "2.0.0")
	p.ConfigMigrations = []ConfigMigration{
		{From: "1.0.0", To: "2.0.0", Apply: func(cfg map[string]interface{}) (map[string]interface{}, error) {
			return nil, errors.New("must not run")
		}},
	}

	require.NoError(t, m.Load(p, map[string]interface{}{"key": "value"}))
	cfg, _ := m.ConfigOf("seo")
	assert.Equal(t, "value", cfg["key"])
	assert.Equal(t, "2.0.0", cfg[versionKey])
}

// TestReconfigure tests merge, re-validate, callback
func TestReconfigure(t *testing.T) {
	m := testManager(t)

	var seen map[string]interface{}
	p := simplePlugin("seo", "1.0.0")
	p.Manifest.ConfigSchema = Schema{"depth": {Type: "int"}}
	p.Reconfigure = func(ctx *Context) error {
		seen = ctx.Config
		return nil
	}

	require.NoError(t, m.Load(p, map[string]interface{}{"depth": 1, "keep": "me"}))
	require.NoError(t, m.Reconfigure("seo", map[string]interface{}{"depth": 5}))

	assert.Equal(t, 5, seen["depth"])
	assert.Equal(t, "me", seen["keep"])

	err := m.Reconfigure("seo", map[string]interface{}{"depth": "deep"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

// TestUnloadInvokesTeardown tests disable then destroy, and that a plugin's
// unsubscribe closures stop its hook handlers
func TestUnloadInvokesTeardown(t *testing.T) {
	registry := hooks.NewRegistry()
	m, err := NewManager(registry, fields.NewRegistry(), "1.0.0", nil)
	require.NoError(t, err)

	var calls []string
	var unsubscribe func()
	p := simplePlugin("audit", "1.0.0")
	p.Init = func(ctx *Context) error {
		unsubscribe = ctx.Hooks.On("content:afterCreate", func(ctx context.Context, event string, payload hooks.Payload) error {
			return nil
		}, hooks.Options{})
		return nil
	}
	p.Disable = func(ctx *Context) error {
		calls = append(calls, "disable")
		unsubscribe()
		return nil
	}
	p.Destroy = func(ctx *Context) error {
		calls = append(calls, "destroy")
		return nil
	}

	require.NoError(t, m.Load(p, nil))
	actions, _ := registry.HandlerCount("content:afterCreate")
	assert.Equal(t, 1, actions)

	require.NoError(t, m.Unload("audit"))
	assert.Equal(t, []string{"disable", "destroy"}, calls)

	actions, _ = registry.HandlerCount("content:afterCreate")
	assert.Equal(t, 0, actions)

	_, ok := m.StateOf("audit")
	assert.False(t, ok)
}

// TestLoadManifestDir tests YAML manifest discovery
func TestLoadManifestDir(t *testing.T) {
	dir := t.TempDir()
	manifest := `
id: seo-toolkit
name: SEO Toolkit
version: 1.2.0
engine: ">=1.0.0"
config:
  site_name:
    type: string
    required: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seo.yaml"), []byte(manifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	manifests, err := LoadManifestDir(dir)
	require.NoError(t, err)
	require.Len(t, manifests, 1)
	assert.Equal(t, "seo-toolkit", manifests[0].ID)
	assert.True(t, manifests[0].ConfigSchema["site_name"].Required)

	missing, err := LoadManifestDir(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}
