package harness

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/logging"
)

func newTestEnvironment(t *testing.T) (*Environment, database.ConnectionInfo) {
	t.Helper()
	info := database.ConnectionInfo{
		Driver: database.DriverSQLite,
		DSN:    config.SQLiteDSN(filepath.Join(t.TempDir(), "sitetest.sqlite")),
	}
	registry := database.NewRegistry()
	registry.Add(database.DefaultKey, database.DefaultTarget, info)
	t.Cleanup(func() { registry.Close() })

	env := NewEnvironment(registry)
	env.Settings["site_name"] = "Original"
	env.Settings["nested"] = map[string]any{"list": []any{"a", "b"}}
	env.Streams["public"] = "sites/default/files"
	env.Statics.Set(app.StaticCacheTags, map[string]bool{"node_list": true})
	env.ErrorLog = "/var/log/site.log"
	return env, info
}

func newTestSandbox(env *Environment) *Sandbox {
	return &Sandbox{Env: env, TimeLimit: time.Minute, Logger: logging.Discard()}
}

func allocate(t *testing.T) *RunContext {
	t.Helper()
	run, err := NewNamer(filepath.Join(t.TempDir(), "simpletest")).Allocate()
	require.NoError(t, err)
	return run
}

func TestSandbox_PrepareSwapsEnvironment(t *testing.T) {
	env, info := newTestEnvironment(t)
	s := newTestSandbox(env)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return now }
	run := allocate(t)

	require.NoError(t, s.Prepare(context.Background(), run))
	t.Cleanup(func() { s.Restore(context.Background(), run) })

	original, ok := env.Registry.Info(database.OriginalDefault, database.DefaultTarget)
	require.True(t, ok)
	assert.Equal(t, info, original)
	rebound, ok := env.Registry.Info(database.DefaultKey, database.DefaultTarget)
	require.True(t, ok)
	assert.Equal(t, run.Prefix, rebound.Prefix)
	assert.Equal(t, run.Prefix, run.Conn.Prefix())

	assert.Equal(t, run.Prefix, env.Setting("hash_salt"))
	assert.Equal(t, run.PublicPath, env.Setting("file_public_path"))
	assert.Equal(t, "Original", env.Setting("site_name"))
	assert.Equal(t, map[string]string{
		"public":    run.PublicPath,
		"private":   run.PrivatePath,
		"temporary": run.TempPath,
	}, env.Streams)
	assert.Empty(t, env.Statics.Names())
	assert.Equal(t, run.Prefix, env.TestPrefix)
	assert.Equal(t, run.ErrorLog, env.ErrorLog)
	assert.Equal(t, now.Add(time.Minute), run.Deadline)
	assert.Same(t, run, env.Run())
	for _, dir := range []string{run.PublicPath, run.PrivatePath, run.TempPath, run.TranslationsPath} {
		assert.DirExists(t, dir)
	}
}

func TestSandbox_RestoreIsExact(t *testing.T) {
	env, info := newTestEnvironment(t)
	s := newTestSandbox(env)
	before := env.Snapshot()
	run := allocate(t)

	require.NoError(t, s.Prepare(context.Background(), run))
	require.NoError(t, database.CreateSchema(context.Background(), run.Conn))
	env.Settings["added"] = true
	env.Statics.Set("drupal_static_fast", 1)

	require.NoError(t, s.Restore(context.Background(), run))

	assert.Equal(t, before, env.Snapshot())
	assert.Nil(t, env.Run())
	assert.NoDirExists(t, run.SitePath)

	conn, err := database.Open(context.Background(), info)
	require.NoError(t, err)
	defer conn.Close()
	tables, err := conn.ListTables(context.Background(), run.Prefix)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestSandbox_RestoreTwiceIsANoOp(t *testing.T) {
	env, _ := newTestEnvironment(t)
	s := newTestSandbox(env)
	run := allocate(t)
	require.NoError(t, s.Prepare(context.Background(), run))
	require.NoError(t, s.Restore(context.Background(), run))
	after := env.Snapshot()

	env.Settings["later"] = "change"
	require.NoError(t, s.Restore(context.Background(), run))

	assert.Equal(t, "change", env.Setting("later"))
	delete(env.Settings, "later")
	assert.Equal(t, after, env.Snapshot())
}

func TestSandbox_RestoreAfterFailedPrepare(t *testing.T) {
	registry := database.NewRegistry()
	env := NewEnvironment(registry)
	env.Settings["site_name"] = "Original"
	before := env.Snapshot()
	s := newTestSandbox(env)
	run := allocate(t)

	err := s.Prepare(context.Background(), run)
	var f *EnvironmentFault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "rebind storage", f.Op)
	assert.ErrorIs(t, err, database.ErrConnectionNotDefined)

	require.NoError(t, s.Restore(context.Background(), run))
	assert.Equal(t, before, env.Snapshot())
	assert.Nil(t, env.Run())
	assert.NoDirExists(t, run.SitePath)
}

func TestSandbox_OneRunPerEnvironment(t *testing.T) {
	env, _ := newTestEnvironment(t)
	s := newTestSandbox(env)
	first := allocate(t)
	second := allocate(t)

	require.NoError(t, s.Prepare(context.Background(), first))
	err := s.Prepare(context.Background(), second)

	assert.ErrorIs(t, err, ErrRunBound)
	assert.Same(t, first, env.Run())

	require.NoError(t, s.Restore(context.Background(), second))
	assert.Same(t, first, env.Run(), "restoring a rejected run leaves the active one alone")
	require.NoError(t, s.Restore(context.Background(), first))
	third := allocate(t)
	require.NoError(t, s.Prepare(context.Background(), third))
	require.NoError(t, s.Restore(context.Background(), third))
}

func TestSandbox_RequiresPrefix(t *testing.T) {
	env, _ := newTestEnvironment(t)

	err := newTestSandbox(env).Prepare(context.Background(), &RunContext{})

	assert.ErrorIs(t, err, database.ErrNoPrefix)
	assert.Nil(t, env.Run())
}

func TestEnvironment_SnapshotIsDeep(t *testing.T) {
	env, _ := newTestEnvironment(t)
	snap := env.Snapshot()

	env.Settings["nested"].(map[string]any)["list"].([]any)[0] = "changed"
	env.Streams["public"] = "elsewhere"
	env.Registry.Remove(database.DefaultKey)

	assert.Equal(t, "a", snap.Settings["nested"].(map[string]any)["list"].([]any)[0])
	assert.Equal(t, "sites/default/files", snap.Streams["public"])
	assert.Contains(t, snap.Connections, database.DefaultKey)
}

func TestEnvironmentFromConfig(t *testing.T) {
	env := EnvironmentFromConfig(&config.HarnessConfig{Storage: config.StorageConfig{
		Driver:    "postgres",
		DSN:       "postgres://site",
		RunnerDSN: "postgres://runner",
	}})

	info, ok := env.Registry.Info(database.DefaultKey, database.DefaultTarget)
	require.True(t, ok)
	assert.Equal(t, "postgres://site", info.DSN)
	info, ok = env.Registry.Info(database.DefaultKey, database.RunnerTarget)
	require.True(t, ok)
	assert.Equal(t, "postgres://runner", info.DSN)
}
