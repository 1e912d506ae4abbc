package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, LoadCatalog(reg))

	for _, name := range []string{MessageAnalysis, TransactionClustering, ContactRoles} {
		v, err := reg.CurrentVersion(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, v.Semver, name)
		assert.NotEmpty(t, v.Hash, name)
		assert.Contains(t, v.Content, "JSON", name)
	}

	t.Run("loading twice is idempotent", func(t *testing.T) {
		before := len(reg.AllVersions())
		require.NoError(t, LoadCatalog(reg))
		assert.Equal(t, before, len(reg.AllVersions()))
	})
}

func TestLoadCatalogBytes(t *testing.T) {
	t.Run("malformed yaml", func(t *testing.T) {
		err := loadCatalogBytes(NewRegistry(nil), []byte("prompts: [whoops"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parsing prompt catalog")
	})

	t.Run("empty catalog", func(t *testing.T) {
		err := loadCatalogBytes(NewRegistry(nil), []byte("prompts: []"))
		require.Error(t, err)
	})

	t.Run("duplicate names", func(t *testing.T) {
		doc := strings.TrimSpace(`
prompts:
  - name: twin
    semver: 1.0.0
    system: first
  - name: twin
    semver: 1.0.1
    system: second
`)
		err := loadCatalogBytes(NewRegistry(nil), []byte(doc))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate prompt")
	})
}
