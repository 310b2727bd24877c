package plugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Manifest describes one plugin domain, loaded from
// <plugin-dir>/<domain>/manifest.yaml.
type Manifest struct {
	Domain    string   `yaml:"domain"`
	Name      string   `yaml:"name"`
	Version   string   `yaml:"version"`
	Platforms []string `yaml:"platforms"`
	// Requires lists supporting modules that must be available before the
	// domain can be set up.
	Requires []string `yaml:"requires"`
}

// ErrNoManifest reports that a domain ships no manifest. Registered
// integrations without one are still usable.
var ErrNoManifest = fs.ErrNotExist

// LoadManifest reads and parses a domain's manifest. A missing file
// returns an error matching ErrNoManifest; an unreadable or unparsable
// manifest is an import failure.
func LoadManifest(dir, domain string) (*Manifest, error) {
	path := filepath.Join(dir, domain, "manifest.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manifest for %q: %w", domain, ErrNoManifest)
		}
		return nil, fmt.Errorf("read manifest for %q: %w", domain, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest for %q: %w", domain, err)
	}
	if m.Domain == "" {
		m.Domain = domain
	}
	if m.Domain != domain {
		return nil, fmt.Errorf("manifest for %q declares domain %q", domain, m.Domain)
	}
	return &m, nil
}
