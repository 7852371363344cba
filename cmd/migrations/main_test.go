package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_create_votes.up.sql",
		"000001_create_servers.up.sql",
		"000001_create_servers.down.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600))
	}

	names, err := upMigrations(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_servers.up.sql", "000002_create_votes.up.sql"}, names)

	name, err := migrationFilePath(dir, "create_votes.up")
	require.NoError(t, err)
	assert.Equal(t, "000002_create_votes.up.sql", name)

	_, err = migrationFilePath(dir, "create_users.up")
	assert.Error(t, err)
}
