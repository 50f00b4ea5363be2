package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/blang/semver/v4"
	"gopkg.in/yaml.v3"

	"strata.evalgo.org/common"
)

var manifestIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// ValidateManifest checks a manifest's structural schema: non-empty
// well-formed id, a name, a parseable semver version, a parseable engine
// range when declared, and known config schema types.
func ValidateManifest(m Manifest) error {
	if m.ID == "" {
		return common.NewError(common.KindPlugin, "manifest id is required")
	}
	if !manifestIDPattern.MatchString(m.ID) {
		return common.NewError(common.KindPlugin, fmt.Sprintf("manifest id %q is not a valid identifier", m.ID))
	}
	if m.Name == "" {
		return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s: manifest name is required", m.ID))
	}
	if _, err := semver.Parse(m.Version); err != nil {
		return common.WrapError(common.KindPlugin, fmt.Sprintf("plugin %s: version %q is not valid semver", m.ID, m.Version), err)
	}
	if m.Engine != "" {
		if _, err := semver.ParseRange(m.Engine); err != nil {
			return common.WrapError(common.KindPlugin, fmt.Sprintf("plugin %s: engine constraint %q is not a valid range", m.ID, m.Engine), err)
		}
	}
	for name, prop := range m.ConfigSchema {
		switch prop.Type {
		case "string", "int", "float", "bool", "list", "map":
		default:
			return common.NewError(common.KindPlugin, fmt.Sprintf("plugin %s: config property %s has unknown type %q", m.ID, name, prop.Type))
		}
	}
	return nil
}

// LoadManifest reads and validates one YAML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapError(common.KindPlugin, fmt.Sprintf("read manifest %s", path), err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, common.WrapError(common.KindPlugin, fmt.Sprintf("parse manifest %s", path), err)
	}
	if err := ValidateManifest(m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifestDir reads every *.yaml and *.yml manifest in dir, sorted by
// file name. A missing dir yields an empty list.
func LoadManifestDir(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, common.WrapError(common.KindPlugin, fmt.Sprintf("read manifest dir %s", dir), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	manifests := make([]*Manifest, 0, len(names))
	for _, name := range names {
		m, err := LoadManifest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
