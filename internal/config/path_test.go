package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	t.Setenv("LOCKBOX_TEST_DIR", "/srv/lockbox")

	tests := []struct {
		name string
		path string
		want string
	}{
		{"empty", "", ""},
		{"plain path untouched", "/var/lib/lockbox.db", "/var/lib/lockbox.db"},
		{"tilde prefix", "~/data/lockbox.db", filepath.Join(home, "data", "lockbox.db")},
		{"bare tilde", "~", home},
		{"env var", "$LOCKBOX_TEST_DIR/lockbox.db", "/srv/lockbox/lockbox.db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.path))
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir, err := ConfigDir()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, filepath.Join(".config", "lockbox")), dir)
}

func TestDefaultDatabasePath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.local/share/lockbox/lockbox.db", DefaultDatabasePath())
}
