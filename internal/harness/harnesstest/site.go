// Package harnesstest serves the reference application for tests that drive
// it through the harness.
package harnesstest

import (
	"context"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/handlers"
)

// RunTablePrefix starts every table created by a test run.
const RunTablePrefix = "simpletest"

// Site is the reference application served over HTTP with the sandbox root
// and storage a harness run shares with it.
type Site struct {
	Root    string
	Storage database.ConnectionInfo
	Server  *httptest.Server
	Config  *config.HarnessConfig
}

// ServeSite starts the application on a random port. Everything is released
// when the test finishes, after any harness registered later has torn down.
func ServeSite(t *testing.T) *Site {
	t.Helper()
	root := t.TempDir()
	sandboxRoot := filepath.Join(root, "simpletest")
	storage := database.ConnectionInfo{
		Driver: database.DriverSQLite,
		DSN:    config.SQLiteDSN(filepath.Join(root, "sitetest.sqlite")),
	}

	site, err := handlers.NewSite(handlers.SiteConfig{
		SandboxRoot:     sandboxRoot,
		DefaultSitePath: filepath.Join(root, "default"),
		Storage:         storage,
	})
	if err != nil {
		t.Fatalf("Failed to create site: %v", err)
	}
	server := httptest.NewServer(site)
	t.Cleanup(func() { site.Close() })
	t.Cleanup(server.Close)

	u, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("Failed to parse server URL: %v", err)
	}

	return &Site{
		Root:    root,
		Storage: storage,
		Server:  server,
		Config: &config.HarnessConfig{
			Domain:       u.Host,
			Scheme:       "http",
			SandboxRoot:  sandboxRoot,
			OriginalSite: filepath.Join(root, "default"),
			Profile:      config.DefaultProfile,
			TimeLimit:    time.Minute,
			Browser:      config.DefaultBrowser,
			LogLevel:     "error",
			Storage:      config.StorageConfig{Driver: storage.Driver, DSN: storage.DSN},
		},
	}
}

// RunTables lists the tables left behind by test runs.
func (s *Site) RunTables(t *testing.T) []string {
	t.Helper()
	ctx := context.Background()
	conn, err := database.Open(ctx, s.Storage)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	defer conn.Close()
	tables, err := conn.ListTables(ctx, RunTablePrefix)
	if err != nil {
		t.Fatalf("Failed to list tables: %v", err)
	}
	return tables
}
