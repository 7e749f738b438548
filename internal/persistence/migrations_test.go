package persistence

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	entries, err := fs.ReadDir(embedMigrations, migrationsDir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for _, entry := range entries {
		content, err := fs.ReadFile(embedMigrations, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		body := string(content)
		assert.Contains(t, body, "-- +goose Up", entry.Name())
		assert.Contains(t, body, "-- +goose Down", entry.Name())
	}
}

func TestHistoryMigrationCascades(t *testing.T) {
	content, err := fs.ReadFile(embedMigrations, migrationsDir+"/00003_create_ticket_status_history.sql")
	require.NoError(t, err)
	body := string(content)

	assert.True(t, strings.Contains(body, "REFERENCES tickets (id) ON DELETE CASCADE"))
	assert.True(t, strings.Contains(body, "REFERENCES users (id) ON DELETE SET NULL"))
}
