package database

import (
	"context"
	"fmt"
)

// schema lists the tables of an installed site, in creation order. Types are
// limited to what both SQLite and PostgreSQL accept.
var schema = []struct {
	table string
	ddl   string
}{
	{"users", `
	CREATE TABLE IF NOT EXISTS {users} (
		uid INTEGER PRIMARY KEY,
		name VARCHAR(60) UNIQUE NOT NULL,
		mail VARCHAR(254) NOT NULL DEFAULT '',
		pass VARCHAR(255) NOT NULL DEFAULT '',
		status INTEGER NOT NULL DEFAULT 1,
		created BIGINT NOT NULL DEFAULT 0
	)`},
	{"roles", `
	CREATE TABLE IF NOT EXISTS {roles} (
		rid VARCHAR(64) PRIMARY KEY,
		label VARCHAR(255) NOT NULL,
		weight INTEGER NOT NULL DEFAULT 0
	)`},
	{"role_permissions", `
	CREATE TABLE IF NOT EXISTS {role_permissions} (
		rid VARCHAR(64) NOT NULL,
		permission VARCHAR(128) NOT NULL,
		PRIMARY KEY (rid, permission)
	)`},
	{"users_roles", `
	CREATE TABLE IF NOT EXISTS {users_roles} (
		uid INTEGER NOT NULL,
		rid VARCHAR(64) NOT NULL,
		PRIMARY KEY (uid, rid)
	)`},
	{"sessions", `
	CREATE TABLE IF NOT EXISTS {sessions} (
		sid VARCHAR(128) PRIMARY KEY,
		uid INTEGER NOT NULL,
		hostname VARCHAR(128) NOT NULL DEFAULT '',
		accessed BIGINT NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS {sessions_uid_idx} ON {sessions}(uid)`},
	{"config", `
	CREATE TABLE IF NOT EXISTS {config} (
		name VARCHAR(255) PRIMARY KEY,
		data TEXT NOT NULL
	)`},
	{"key_value", `
	CREATE TABLE IF NOT EXISTS {key_value} (
		collection VARCHAR(128) NOT NULL,
		name VARCHAR(128) NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (collection, name)
	)`},
}

// SchemaTables returns the un-prefixed names of the tables CreateSchema
// creates.
func SchemaTables() []string {
	tables := make([]string, len(schema))
	for i, s := range schema {
		tables[i] = s.table
	}
	return tables
}

// CreateSchema creates the site tables in the connection's namespace.
func CreateSchema(ctx context.Context, c *Conn) error {
	for _, s := range schema {
		if _, err := c.ExecContext(ctx, s.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", c.Table(s.table), err)
		}
	}
	return nil
}
