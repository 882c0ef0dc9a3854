package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/csstoy/internal/model"
	sqliteRepo "github.com/sakif/csstoy/internal/repository/sqlite"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "csstoy.db")

	out, err := run(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = run(t, "migrate", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "database is up to date")
}

func TestPromote(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "csstoy.db")
	db, err := sqliteRepo.New(dbPath)
	require.NoError(t, err)
	u := &model.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x"}
	require.NoError(t, db.Users().Create(context.Background(), u))
	require.NoError(t, db.Close())

	out, err := run(t, "promote", "alice", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "alice is now an admin")

	db, err = sqliteRepo.New(dbPath)
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Users().GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, got.Role)

	_, err = run(t, "promote", "nobody", "--db", dbPath)
	assert.Error(t, err)

	_, err = run(t, "promote", "--db", dbPath)
	assert.Error(t, err, "username argument is required")
}

func TestRecountReportsRepairs(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "csstoy.db")
	out, err := run(t, "recount", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "repaired 0 snippet(s)")
}
