package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/cave/pkg/rls"
)

// PolicySeedDocument is the YAML shape accepted by LoadPolicySeed, applied
// the same way cmd/warren's "apply -f" command applies a resource file:
// read once at startup, upsert everything it names, then discard the file
// handle.
type PolicySeedDocument struct {
	APIVersion string             `yaml:"apiVersion"`
	Kind       string             `yaml:"kind"`
	Policies   []PolicySeedRecord `yaml:"policies"`
}

// PolicySeedRecord is a single RLS policy to upsert.
type PolicySeedRecord struct {
	ID         string `yaml:"id"`
	Table      string `yaml:"table"`
	Name       string `yaml:"name"`
	Expression string `yaml:"expression"` // raw JSON predicate tree
}

// LoadPolicySeed reads a YAML policy-seed file and upserts every record
// into engine. Missing file paths are not an error — seeding is optional.
func LoadPolicySeed(path string, engine *rls.Engine) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read policy seed %s: %w", path, err)
	}

	var doc PolicySeedDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: parse policy seed %s: %w", path, err)
	}
	if doc.Kind != "" && doc.Kind != "RLSPolicySeed" {
		return fmt.Errorf("config: unsupported policy seed kind %q", doc.Kind)
	}

	for _, rec := range doc.Policies {
		if _, err := engine.Upsert(rec.ID, rec.Table, rec.Name, []byte(rec.Expression)); err != nil {
			return fmt.Errorf("config: upsert seeded policy %s/%s: %w", rec.Table, rec.Name, err)
		}
	}
	return nil
}
