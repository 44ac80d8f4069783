package harness

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/models"
)

// Suffix range shared by the sandbox directory and the storage prefix.
const (
	minSuffix = 100000
	maxSuffix = 999999
)

// PrefixBase starts every storage prefix. Cleanup relies on it.
const PrefixBase = "simpletest"

// Sandbox subdirectories.
const (
	PublicDir       = "files"
	PrivateDir      = "private"
	TempDir         = "temp"
	TranslationsDir = "translations"
)

// RunContext is everything one test run knows about itself. It is created by
// the namer and threaded through every component instead of living in
// process globals.
type RunContext struct {
	Suffix      string
	Prefix      string
	SandboxRoot string
	SitePath    string

	Domain   string
	BaseURL  string
	BasePath string

	PublicPath       string
	PrivatePath      string
	TempPath         string
	TranslationsPath string
	ErrorLog         string

	Deadline time.Time
	Conn     *database.Conn
	Snapshot *Snapshot
	// Root is the administrator created by the installer.
	Root *models.Account

	restored bool
}

// Namer allocates collision-free run identifiers under a sandbox root.
type Namer struct {
	Root string
	// IntN returns a random number in [0, n). Defaults to math/rand/v2.
	IntN        func(n int) int
	MaxAttempts int
}

// NewNamer creates a namer for root.
func NewNamer(root string) *Namer {
	return &Namer{Root: root, IntN: rand.IntN, MaxAttempts: 1000}
}

// Allocate reserves a sandbox directory and returns the run it belongs to.
// The directory is created atomically; a suffix whose directory already
// exists is re-rolled. Filesystem errors are returned as is.
func (n *Namer) Allocate() (*RunContext, error) {
	root, err := filepath.Abs(n.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox root: %w", err)
	}

	for attempt := 0; attempt < n.MaxAttempts; attempt++ {
		suffix := strconv.Itoa(minSuffix + n.IntN(maxSuffix-minSuffix+1))
		dir := filepath.Join(root, suffix)
		err := os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create sandbox: %w", err)
		}
		return newRunContext(root, suffix), nil
	}
	return nil, fmt.Errorf("no free sandbox under %s after %d attempts", root, n.MaxAttempts)
}

func newRunContext(root, suffix string) *RunContext {
	dir := filepath.Join(root, suffix)
	return &RunContext{
		Suffix:           suffix,
		Prefix:           PrefixBase + suffix,
		SandboxRoot:      root,
		SitePath:         dir,
		PublicPath:       filepath.Join(dir, PublicDir),
		PrivatePath:      filepath.Join(dir, PrivateDir),
		TempPath:         filepath.Join(dir, TempDir),
		TranslationsPath: filepath.Join(dir, TranslationsDir),
		ErrorLog:         filepath.Join(dir, app.ErrorLogFile),
	}
}
