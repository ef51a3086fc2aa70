package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("SELECT 1;"), 0o644))
	}
	return dir
}

func TestDiscoverMigrations_SortedSQLOnly(t *testing.T) {
	dir := writeFiles(t, "002_loyalty.sql", "001_init.sql", "README.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	files, err := discoverMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_init.sql", "002_loyalty.sql"}, files)
}

func TestDiscoverMigrations_DuplicateVersion(t *testing.T) {
	dir := writeFiles(t, "001_init.sql", "001_again.sql")
	_, err := discoverMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate version 001")
}

func TestExtractVersion(t *testing.T) {
	v, err := extractVersion("014_purchase_orders.sql")
	require.NoError(t, err)
	assert.Equal(t, "014", v)

	_, err = extractVersion("init.sql")
	assert.Error(t, err)
	_, err = extractVersion("_init.sql")
	assert.Error(t, err)
}

func TestChecksum_StableAndContentSensitive(t *testing.T) {
	a := checksum([]byte("CREATE TABLE x ();"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, checksum([]byte("CREATE TABLE x ();")))
	assert.NotEqual(t, a, checksum([]byte("CREATE TABLE y ();")))
}
