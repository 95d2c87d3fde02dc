package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultManifestFile is the manifest path used when none is configured.
const DefaultManifestFile = "config.json"

// ManifestEntry identifies one axis of a saved group.
type ManifestEntry struct {
	Serial string `json:"serial_number" yaml:"serial_number"`
	MAC    string `json:"mac_address" yaml:"mac_address"`
	IP     string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Port   int    `json:"port,omitempty" yaml:"port,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	// Identity is the drive's response schema flag, see Attribute.Identity.
	Identity int `json:"m,omitempty" yaml:"m,omitempty"`
}

// Manifest is the ordered list of axes that make up a group.
type Manifest []ManifestEntry

// Resolver turns a manifest into live axis attributes, typically by asking
// a discovery service for the current address of each serial or MAC.
type Resolver interface {
	Resolve(ctx context.Context, m Manifest) ([]Attribute, error)
}

// StaticResolver resolves a manifest from the addresses stored in it.
type StaticResolver struct{}

// Resolve implements Resolver.
func (StaticResolver) Resolve(_ context.Context, m Manifest) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(m))
	for i, e := range m {
		if e.IP == "" {
			return nil, fmt.Errorf("manifest entry %d (%s): no ip address", i, e.Serial)
		}
		attrs = append(attrs, Attribute{
			IP:       e.IP,
			Port:     e.Port,
			MAC:      e.MAC,
			Serial:   e.Serial,
			Identity: e.Identity,
			ID:       i,
			Name:     e.Name,
		})
	}
	return attrs, nil
}

// ManifestFromAttributes builds a manifest that reproduces attrs.
func ManifestFromAttributes(attrs []Attribute) Manifest {
	m := make(Manifest, len(attrs))
	for i, a := range attrs {
		m[i] = ManifestEntry{
			Serial:   a.Serial,
			MAC:      a.MAC,
			IP:       a.IP,
			Port:     a.Port,
			Name:     a.Name,
			Identity: a.Identity,
		}
	}
	return m
}

// ResolveBySerial picks attributes out of known in the order given by serials.
func ResolveBySerial(known []Attribute, serials []string) ([]Attribute, error) {
	return resolveBy(known, serials, "serial number", func(a Attribute) string { return a.Serial })
}

// ResolveByMAC picks attributes out of known in the order given by macs.
// MAC comparison ignores case.
func ResolveByMAC(known []Attribute, macs []string) ([]Attribute, error) {
	return resolveBy(known, macs, "mac address", func(a Attribute) string { return strings.ToLower(a.MAC) }, strings.ToLower)
}

func resolveBy(known []Attribute, keys []string, what string, keyOf func(Attribute) string, norm ...func(string) string) ([]Attribute, error) {
	index := make(map[string]Attribute, len(known))
	for _, a := range known {
		index[keyOf(a)] = a
	}

	out := make([]Attribute, 0, len(keys))
	for i, k := range keys {
		for _, n := range norm {
			k = n(k)
		}
		a, ok := index[k]
		if !ok {
			return nil, fmt.Errorf("%s %q not found", what, keys[i])
		}
		a.ID = i
		out = append(out, a)
	}
	return out, nil
}

// LoadManifest reads a manifest from path. Files ending in .yaml or .yml are
// parsed as YAML, everything else as JSON.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if isYAML(path) {
		err = yaml.Unmarshal(data, &m)
	} else {
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("manifest %s lists no axes", path)
	}
	return m, nil
}

// SaveManifest writes m to path in the format implied by its extension.
func SaveManifest(path string, m Manifest) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(m)
	} else {
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// ManifestExists returns true if a manifest file exists at path.
func ManifestExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
