package database

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

type tier struct {
	key, target string
}

// runnerTiers is the order in which RunnerConnection looks for a usable
// connection outside of a test run.
var runnerTiers = []tier{
	{DefaultKey, RunnerTarget},
	{OriginalDefault, DefaultTarget},
	{DefaultKey, DefaultTarget},
}

// RunnerConnection returns the connection the test runner itself should use:
// the dedicated runner target, then the connection preserved before a test
// rebound the default, then the ambient default. It logs the tier it picked
// and only fails when none is defined.
func RunnerConnection(ctx context.Context, r *Registry, logger *log.Logger) (*Conn, error) {
	for _, t := range runnerTiers {
		if _, ok := r.Info(t.key, t.target); !ok {
			continue
		}
		conn, err := r.Connection(ctx, t.key, t.target)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			logger.Info("using runner connection", "key", t.key, "target", t.target)
		}
		return conn, nil
	}
	return nil, fmt.Errorf("no runner connection: %w", ErrConnectionNotDefined)
}
