package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/alessio/shellescape"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/harness"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/runner"
	"github.com/themizzi/sitetest/internal/suite"
)

// RunOptions configure a run of the functional suite against DOMAIN.
type RunOptions struct {
	Config   *config.HarnessConfig
	Cases    []suite.Case
	Parallel int
	Filters  runner.RegexFilters
	// Logger receives harness logs; TestLogger reports progress.
	Logger     *log.Logger
	TestLogger runner.TestLogger
	Out        io.Writer
}

// RunSuite runs the cases on Parallel workers. Every worker owns an
// Environment and runs its share of the cases one after the other.
func RunSuite(ctx context.Context, opts RunOptions) (runner.Results, error) {
	if err := opts.Config.RequireDomain(); err != nil {
		return runner.Results{}, err
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	opts.Filters.Describe(out)
	if opts.Logger == nil {
		opts.Logger = logging.New(logging.Options{Level: opts.Config.LogLevel})
	}

	workers := opts.Parallel
	if workers < 1 {
		workers = 1
	}
	if workers > len(opts.Cases) {
		workers = len(opts.Cases)
	}
	buckets := make([][]suite.Case, workers)
	for i, tc := range opts.Cases {
		buckets[i%workers] = append(buckets[i%workers], tc)
	}

	var (
		mu      sync.Mutex
		results runner.Results
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, bucket := range buckets {
		g.Go(func() error {
			env := harness.EnvironmentFromConfig(opts.Config)
			defer env.Registry.Close()

			r := runner.Run(opts.Filters.AsFilter, opts.TestLogger, func(c *runner.Context) {
				for _, tc := range bucket {
					if ctx.Err() != nil {
						return
					}
					suite.Run(c, []suite.Case{tc}, harness.Options{
						Config:      opts.Config,
						Environment: env,
						Events:      harness.LogEvents{Logger: opts.Logger},
						Logger:      opts.Logger,
					})
				}
			})
			mu.Lock()
			results.Merge(r)
			mu.Unlock()
			return ctx.Err()
		})
	}
	err := g.Wait()
	return results, err
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// ReproduceCommand returns a shell command that runs only the failed tests.
func ReproduceCommand(command string, results runner.Results) string {
	if results.OK() {
		return ""
	}
	var b commandBuilder
	b.add(command, "run")
	for _, f := range results.Failures {
		b.add("--run", "^"+regexp.QuoteMeta(f.TestID.String())+"$")
	}
	return b.String()
}

// PrintSummary prints the results and, for failures, how to rerun them.
func PrintSummary(w io.Writer, command string, results runner.Results) {
	fmt.Fprintln(w)
	runner.PrintResults(w, results)
	if cmd := ReproduceCommand(command, results); cmd != "" {
		fmt.Fprintf(w, "\nTo rerun the failed tests:\n  %s\n", cmd)
	}
}
