package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/harness"
)

var (
	sandboxDirPattern = regexp.MustCompile(`^[0-9]{6}$`)
	runPrefixPattern  = regexp.MustCompile(`^` + harness.PrefixBase + `[0-9]{6}`)
)

// CleanupResult lists what a cleanup removed.
type CleanupResult struct {
	Sandboxes []string
	Prefixes  []string
}

func storageInfo(cfg *config.HarnessConfig) database.ConnectionInfo {
	return database.ConnectionInfo{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
}

// Cleanup removes the sandboxes and tables left behind by test runs that
// did not tear down, for example because the process was killed.
func Cleanup(ctx context.Context, cfg *config.HarnessConfig, logger *log.Logger) (CleanupResult, error) {
	var result CleanupResult

	sandboxes, err := removeSandboxes(cfg.SandboxRoot)
	result.Sandboxes = sandboxes
	if err != nil {
		return result, err
	}
	for _, dir := range sandboxes {
		logger.Info("removed sandbox", "path", dir)
	}

	env := harness.EnvironmentFromConfig(cfg)
	defer env.Registry.Close()
	conn, err := database.RunnerConnection(ctx, env.Registry, logger)
	if err != nil {
		return result, fmt.Errorf("failed to connect storage: %w", err)
	}

	tables, err := conn.ListTables(ctx, harness.PrefixBase)
	if err != nil {
		return result, err
	}
	prefixes := map[string]bool{}
	for _, table := range tables {
		if prefix := runPrefixPattern.FindString(table); prefix != "" {
			prefixes[prefix] = true
		}
	}

	var errs []error
	for prefix := range prefixes {
		if err := conn.WithPrefix(prefix).DropTables(ctx); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Info("dropped tables", "prefix", prefix)
		result.Prefixes = append(result.Prefixes, prefix)
	}
	sort.Strings(result.Prefixes)
	return result, errors.Join(errs...)
}

func removeSandboxes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sandbox root: %w", err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !sandboxDirPattern.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", dir, err)
		}
		removed = append(removed, dir)
	}
	return removed, nil
}
