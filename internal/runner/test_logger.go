package runner

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

type TestLogger interface {
	TestStarted(id TestID)
	TestError(id TestID, err error)
	TestFinished(id TestID, failed bool, output []string)
	TestSkipped(id TestID, reason string)
}

type nullTestLogger struct{}

func (n nullTestLogger) TestStarted(TestID)                  {}
func (n nullTestLogger) TestError(TestID, error)             {}
func (n nullTestLogger) TestFinished(TestID, bool, []string) {}
func (n nullTestLogger) TestSkipped(TestID, string)          {}

// ConsoleTestLogger prints test progress. It is safe for use by parallel
// workers; lines of different tests may interleave.
type ConsoleTestLogger struct {
	Out                  io.Writer
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
	mu                   sync.Mutex
}

var (
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
	passColor = color.New(color.FgGreen)
)

func (c *ConsoleTestLogger) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *ConsoleTestLogger) TestStarted(id TestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out(), "[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id TestID, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(c.out(), "  %s\n", failColor.Sprint(line))
	}
}

func (c *ConsoleTestLogger) TestFinished(id TestID, failed bool, output []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if failed {
		fmt.Fprintf(c.out(), "  %s %s\n", failColor.Sprint("FAILED:"), id)
	} else {
		fmt.Fprintf(c.out(), "  %s %s\n", passColor.Sprint("ok"), id)
	}
	if len(output) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		for _, line := range output {
			fmt.Fprintf(c.out(), "    DEBUG %s\n", line)
		}
	}
}

func (c *ConsoleTestLogger) TestSkipped(id TestID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reason == "" {
		fmt.Fprintf(c.out(), "  %s %s\n", skipColor.Sprint("SKIPPED:"), id)
	} else {
		fmt.Fprintf(c.out(), "  %s %s (%s)\n", skipColor.Sprint("SKIPPED:"), id, reason)
	}
}

// PrintResults prints the summary line and every failure.
func PrintResults(w io.Writer, results Results) {
	if results.OK() {
		fmt.Fprintf(w, "%s (%d tests)\n", passColor.Sprint("All tests passed"), len(results.Tests))
		return
	}
	fmt.Fprintf(w, "%s (%d of %d tests)\n", failColor.Sprint("FAILED"), len(results.Failures), len(results.Tests))
	for _, f := range results.Failures {
		fmt.Fprintf(w, "  %s\n", f.TestID)
		for _, err := range f.Errors {
			fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(err.Error(), "\n", "\n    "))
		}
	}
}
