package testutil

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/database"
)

// TestDatabase represents an isolated table namespace for one test
type TestDatabase struct {
	Conn   *database.Conn
	Prefix string
}

// SetupTestDatabase creates the site schema under a unique prefix. It uses a
// temporary SQLite file unless SITETEST_TEST_DRIVER=postgres, in which case
// the POSTGRES_* variables select the server. Tables are dropped when the
// test finishes.
func SetupTestDatabase(t *testing.T) *TestDatabase {
	t.Helper()
	ctx := context.Background()

	info := database.ConnectionInfo{
		Driver: database.DriverSQLite,
		DSN:    config.SQLiteDSN(filepath.Join(t.TempDir(), "test.sqlite")),
	}
	if os.Getenv("SITETEST_TEST_DRIVER") == database.DriverPostgres {
		connConfig, err := config.LoadPostgresConfig(func(key string) string {
			switch key {
			case "POSTGRES_USER":
				return getEnvOrDefault("POSTGRES_USER", "postgres")
			case "POSTGRES_PASSWORD":
				return getEnvOrDefault("POSTGRES_PASSWORD", "postgres")
			case "POSTGRES_DB":
				return getEnvOrDefault("POSTGRES_DB", "postgres")
			case "POSTGRES_HOSTNAME":
				return getEnvOrDefault("POSTGRES_HOSTNAME", "localhost")
			default:
				return ""
			}
		})
		if err != nil {
			t.Fatalf("Failed to load postgres config: %v", err)
		}
		info = database.ConnectionInfo{Driver: database.DriverPostgres, DSN: connConfig.ConnectionString()}
	}

	// Generate unique prefix for this test
	info.Prefix = fmt.Sprintf("test%d_%d_", time.Now().UnixNano()%1000000, rand.Intn(10000))

	conn, err := database.Open(ctx, info)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := database.CreateSchema(ctx, conn); err != nil {
		conn.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		if err := conn.DropTables(context.Background()); err != nil {
			t.Logf("Warning: Failed to drop test tables %s*: %v", info.Prefix, err)
		}
		conn.Close()
	})

	return &TestDatabase{Conn: conn, Prefix: info.Prefix}
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
