package prompt

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/lockboxhq/lockbox/internal/common"
)

// Canonical prompt names. Tools resolve these at construction time, so a
// typo here surfaces as a fail-fast configuration error.
const (
	MessageAnalysis       = "message_analysis"
	TransactionClustering = "transaction_clustering"
	ContactRoles          = "contact_roles"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Prompts []catalogEntry `yaml:"prompts"`
}

type catalogEntry struct {
	Name   string `yaml:"name"`
	Semver string `yaml:"semver"`
	System string `yaml:"system"`
}

// LoadCatalog registers every prompt from the embedded catalog into the
// registry. Call once at process startup, before constructing tools.
func LoadCatalog(reg *Registry) error {
	return loadCatalogBytes(reg, catalogYAML)
}

func loadCatalogBytes(reg *Registry, data []byte) error {
	var cat catalogFile
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parsing prompt catalog: %w", err)
	}
	if len(cat.Prompts) == 0 {
		return fmt.Errorf("prompt catalog is empty: %w", common.ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(cat.Prompts))
	for _, p := range cat.Prompts {
		if seen[p.Name] {
			return fmt.Errorf("duplicate prompt %q in catalog: %w", p.Name, common.ErrInvalidConfig)
		}
		seen[p.Name] = true
		if _, err := reg.Register(p.Name, p.Semver, p.System); err != nil {
			return fmt.Errorf("registering prompt %q: %w", p.Name, err)
		}
	}
	return nil
}
