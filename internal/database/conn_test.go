package database

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteInfo(t *testing.T, prefix string) ConnectionInfo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sqlite")
	return ConnectionInfo{
		Driver: DriverSQLite,
		DSN:    "file:" + path + "?_pragma=busy_timeout(5000)",
		Prefix: prefix,
	}
}

func TestRebind(t *testing.T) {
	tests := []struct {
		driver string
		in     string
		want   string
	}{
		{DriverSQLite, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{DriverPostgres, "SELECT * FROM t WHERE a = ? AND b = ?", "SELECT * FROM t WHERE a = $1 AND b = $2"},
		{DriverPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rebind(tt.driver, tt.in))
	}
}

func TestConn_Expand(t *testing.T) {
	c := &Conn{info: ConnectionInfo{Driver: DriverPostgres, Prefix: "simpletest123456"}}

	got := c.Expand("SELECT uid FROM {users} u JOIN {users_roles} r ON r.uid = u.uid WHERE r.rid = ?")

	assert.Equal(t, "SELECT uid FROM simpletest123456users u JOIN simpletest123456users_roles r ON r.uid = u.uid WHERE r.rid = $1", got)
	assert.Equal(t, "simpletest123456sessions", c.Table("sessions"))
}

func TestConn_SchemaLifecycle(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, sqliteInfo(t, "simpletest111111"))
	require.NoError(t, err)
	defer conn.Close()

	// GIVEN two namespaces on the same engine
	other := conn.WithPrefix("simpletest222222")
	require.NoError(t, CreateSchema(ctx, conn))
	require.NoError(t, CreateSchema(ctx, other))

	_, err = conn.ExecContext(ctx, "INSERT INTO {users} (uid, name) VALUES (?, ?)", 1, "admin")
	require.NoError(t, err)

	// WHEN the first namespace is dropped
	tables, err := conn.Tables(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, len(SchemaTables()))
	require.NoError(t, conn.DropTables(ctx))

	// THEN only the other namespace survives
	tables, err = conn.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)

	tables, err = other.Tables(ctx)
	require.NoError(t, err)
	assert.Len(t, tables, len(SchemaTables()))

	var count int
	require.NoError(t, other.QueryRowContext(ctx, "SELECT COUNT(*) FROM {users}").Scan(&count))
	assert.Equal(t, 0, count)
}

func TestConn_DropTablesRequiresPrefix(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx, sqliteInfo(t, ""))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, CreateSchema(ctx, conn))

	err = conn.DropTables(ctx)
	assert.True(t, errors.Is(err, ErrNoPrefix))

	tables, err := conn.Tables(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tables)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), ConnectionInfo{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestRegistry_RenameAndReplace(t *testing.T) {
	r := NewRegistry()
	defer r.Close()
	original := ConnectionInfo{Driver: DriverSQLite, DSN: "file:a.sqlite"}
	r.Add(DefaultKey, DefaultTarget, original)
	snapshot := r.Infos()

	require.NoError(t, r.Rename(DefaultKey, OriginalDefault))
	r.Add(DefaultKey, DefaultTarget, original.WithPrefix("simpletest123456"))

	info, ok := r.Info(OriginalDefault, DefaultTarget)
	require.True(t, ok)
	assert.Equal(t, original, info)
	info, _ = r.Info(DefaultKey, DefaultTarget)
	assert.Equal(t, "simpletest123456", info.Prefix)

	assert.Error(t, r.Rename("missing", "other"))
	assert.Error(t, r.Rename(DefaultKey, OriginalDefault))

	r.Replace(snapshot)
	assert.Equal(t, snapshot, r.Infos())
	assert.Equal(t, []string{DefaultKey}, r.Keys())
}

func TestRegistry_SharesPools(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	defer r.Close()
	info := sqliteInfo(t, "")
	r.Add(DefaultKey, DefaultTarget, info)
	r.Add(OriginalDefault, DefaultTarget, info.WithPrefix("simpletest1"))

	a, err := r.Connection(ctx, DefaultKey, DefaultTarget)
	require.NoError(t, err)
	b, err := r.Connection(ctx, OriginalDefault, DefaultTarget)
	require.NoError(t, err)

	assert.Same(t, a.DB(), b.DB())
	assert.Equal(t, "simpletest1", b.Prefix())

	_, err = r.Connection(ctx, "nope", DefaultTarget)
	assert.ErrorIs(t, err, ErrConnectionNotDefined)
}

func TestRunnerConnection_FallbackChain(t *testing.T) {
	ctx := context.Background()
	base := sqliteInfo(t, "")

	tests := []struct {
		name       string
		setup      func(r *Registry)
		wantPrefix string
		wantLog    string
		wantErr    bool
	}{
		{
			name: "dedicated runner target",
			setup: func(r *Registry) {
				r.Add(DefaultKey, RunnerTarget, base.WithPrefix("runner"))
				r.Add(OriginalDefault, DefaultTarget, base.WithPrefix("original"))
				r.Add(DefaultKey, DefaultTarget, base.WithPrefix("ambient"))
			},
			wantPrefix: "runner",
			wantLog:    "test-runner",
		},
		{
			name: "preserved original default",
			setup: func(r *Registry) {
				r.Add(OriginalDefault, DefaultTarget, base.WithPrefix("original"))
				r.Add(DefaultKey, DefaultTarget, base.WithPrefix("ambient"))
			},
			wantPrefix: "original",
			wantLog:    OriginalDefault,
		},
		{
			name: "ambient default",
			setup: func(r *Registry) {
				r.Add(DefaultKey, DefaultTarget, base.WithPrefix("ambient"))
			},
			wantPrefix: "ambient",
			wantLog:    "key=default",
		},
		{
			name:    "nothing defined",
			setup:   func(r *Registry) {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			defer r.Close()
			tt.setup(r)
			var buf bytes.Buffer
			logger := log.New(&buf)

			conn, err := RunnerConnection(ctx, r, logger)

			if tt.wantErr {
				assert.ErrorIs(t, err, ErrConnectionNotDefined)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPrefix, conn.Prefix())
			assert.Contains(t, buf.String(), tt.wantLog)
		})
	}
}
