package config

import (
	"errors"
	"fmt"
)

// PostgresConfig holds the connection settings used when the shared storage
// engine is PostgreSQL.
type PostgresConfig struct {
	User     string
	Password string
	Database string
	Host     string
	Port     string
	SSLMode  string
}

// LoadPostgresConfig reads the POSTGRES_* variables. Every missing required
// variable is reported, not only the first.
func LoadPostgresConfig(getenv func(string) string) (*PostgresConfig, error) {
	pg := &PostgresConfig{Port: "5432", SSLMode: "disable"}

	var errs []error
	for _, v := range []struct {
		env      string
		dst      *string
		required bool
	}{
		{"POSTGRES_USER", &pg.User, true},
		{"POSTGRES_PASSWORD", &pg.Password, true},
		{"POSTGRES_DB", &pg.Database, true},
		{"POSTGRES_HOSTNAME", &pg.Host, true},
		{"POSTGRES_PORT", &pg.Port, false},
		{"POSTGRES_SSLMODE", &pg.SSLMode, false},
	} {
		value := getenv(v.env)
		switch {
		case value != "":
			*v.dst = value
		case v.required:
			errs = append(errs, fmt.Errorf("%s is required", v.env))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return pg, nil
}

// ConnectionString returns a lib/pq keyword/value connection string
func (c *PostgresConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}
