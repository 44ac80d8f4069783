package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/themizzi/sitetest/internal/database"
)

// Sandbox moves an Environment into a test run and back out.
type Sandbox struct {
	Env       *Environment
	TimeLimit time.Duration
	Logger    *log.Logger
	Now       func() time.Time
}

// Prepare snapshots the environment, creates the run's directory tree and
// rebinds the default connection to the run's table prefix. The original
// default connection stays reachable under database.OriginalDefault.
func (s *Sandbox) Prepare(ctx context.Context, run *RunContext) error {
	if run.Prefix == "" {
		return fault("prepare environment", database.ErrNoPrefix)
	}
	if err := s.Env.bind(run); err != nil {
		return fault("prepare environment", err)
	}
	run.Snapshot = s.Env.Snapshot()

	s.Env.Statics.ResetAll()
	s.Env.mu.Lock()
	s.Env.Streams = map[string]string{}
	s.Env.mu.Unlock()

	for _, dir := range []string{run.SitePath, run.PublicPath, run.PrivatePath, run.TempPath, run.TranslationsPath} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fault("create sandbox", err)
		}
	}

	if err := s.rebindDefault(run.Prefix); err != nil {
		return fault("rebind storage", err)
	}
	conn, err := s.Env.Registry.Connection(ctx, database.DefaultKey, database.DefaultTarget)
	if err != nil {
		return fault("connect storage", err)
	}
	run.Conn = conn

	s.Env.mu.Lock()
	s.Env.Settings["hash_salt"] = run.Prefix
	s.Env.Settings["file_public_path"] = run.PublicPath
	s.Env.Settings["file_private_path"] = run.PrivatePath
	s.Env.Settings["file_temp_path"] = run.TempPath
	s.Env.Settings["translation_path"] = run.TranslationsPath
	s.Env.Streams["public"] = run.PublicPath
	s.Env.Streams["private"] = run.PrivatePath
	s.Env.Streams["temporary"] = run.TempPath
	s.Env.TestPrefix = run.Prefix
	s.Env.ErrorLog = run.ErrorLog
	s.Env.mu.Unlock()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	run.Deadline = now().Add(s.TimeLimit)
	s.logger().Debug("sandbox prepared", "prefix", run.Prefix, "path", run.SitePath)
	return nil
}

func (s *Sandbox) rebindDefault(prefix string) error {
	infos := s.Env.Registry.Infos()
	targets, ok := infos[database.DefaultKey]
	if !ok {
		return fmt.Errorf("%s: %w", database.DefaultKey, database.ErrConnectionNotDefined)
	}
	if err := s.Env.Registry.Rename(database.DefaultKey, database.OriginalDefault); err != nil {
		return err
	}
	for target, info := range targets {
		s.Env.Registry.Add(database.DefaultKey, target, info.WithPrefix(prefix))
	}
	return nil
}

// Restore drops the run's tables, removes its sandbox and puts back the
// snapshot. It tolerates a partially prepared run and is a no-op the second
// time.
func (s *Sandbox) Restore(ctx context.Context, run *RunContext) error {
	if run == nil || run.restored {
		return nil
	}
	run.restored = true

	var errs []error
	if run.Conn != nil && run.Conn.Prefix() != "" {
		if err := run.Conn.DropTables(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drop tables: %w", err))
		}
	}
	if run.SitePath != "" {
		if err := os.RemoveAll(run.SitePath); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove sandbox: %w", err))
		}
	}
	if run.Snapshot != nil {
		s.Env.Restore(run.Snapshot)
	}
	s.Env.unbind(run)
	run.Conn = nil
	s.logger().Debug("sandbox restored", "prefix", run.Prefix)
	return errors.Join(errs...)
}

func (s *Sandbox) logger() *log.Logger {
	if s.Logger == nil {
		return log.Default()
	}
	return s.Logger
}
