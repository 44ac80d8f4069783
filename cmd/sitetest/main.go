package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	internalcli "github.com/themizzi/sitetest/internal/cli"
	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/runner"
	"github.com/themizzi/sitetest/internal/suite"
)

var version = "0.1.0"

var errTestsFailed = errors.New("tests failed")

func loadConfig() (*config.HarnessConfig, *log.Logger, error) {
	cfg, err := config.LoadHarnessConfig(os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	return cfg, logging.New(opts), nil
}

// ServeCommand returns the serve command
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the site under test",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			deps, err := internalcli.BuildServerDependencies(cfg, config.LoadServerConfig(os.Getenv), logger)
			if err != nil {
				return err
			}
			return internalcli.RunServe(deps)
		},
	}
}

// RunCommand returns the run command
func RunCommand() *cli.Command {
	var filters runner.RegexFilters
	return &cli.Command{
		Name:  "run",
		Usage: "Run the functional suite against DOMAIN",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "number of tests to run at once",
				Value: 1,
			},
			&cli.GenericFlag{
				Name:  "run",
				Usage: "only run tests whose name matches this regex (repeatable)",
				Value: &filters.MustMatch,
			},
			&cli.GenericFlag{
				Name:  "skip",
				Usage: "skip tests whose name matches this regex (repeatable)",
				Value: &filters.MustNotMatch,
			},
			&cli.BoolFlag{
				Name:  "debug-output",
				Usage: "print the harness log of every test, not only failed ones",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := c.App.Writer
			results, err := internalcli.RunSuite(ctx, internalcli.RunOptions{
				Config:   cfg,
				Cases:    suite.Cases(),
				Parallel: c.Int("parallel"),
				Filters:  filters,
				Logger:   logger,
				TestLogger: &runner.ConsoleTestLogger{
					Out:                  out,
					DebugOutputOnFailure: true,
					DebugOutputOnSuccess: c.Bool("debug-output"),
				},
				Out: out,
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			internalcli.PrintSummary(out, c.App.Name, results)
			if !results.OK() {
				return cli.Exit(errTestsFailed, 1)
			}
			return err
		},
	}
}

// CleanupCommand returns the cleanup command
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Remove sandboxes and tables left behind by interrupted runs",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			result, err := internalcli.Cleanup(c.Context, cfg, logger)
			fmt.Fprintf(c.App.Writer, "Removed %d sandboxes and %d table sets.\n", len(result.Sandboxes), len(result.Prefixes))
			return err
		},
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn(".env file not found, using environment variables")
	}

	app := &cli.App{
		Name:    "sitetest",
		Usage:   "Functional test harness for the example site",
		Version: version,
		Commands: []*cli.Command{
			ServeCommand(),
			RunCommand(),
			CleanupCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
