package runner

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	events []string
}

func (r *recordingLogger) TestStarted(id TestID) { r.events = append(r.events, "start "+id.String()) }
func (r *recordingLogger) TestError(id TestID, err error) {
	r.events = append(r.events, "error "+id.String()+": "+err.Error())
}
func (r *recordingLogger) TestFinished(id TestID, failed bool, output []string) {
	if failed {
		r.events = append(r.events, "failed "+id.String())
		return
	}
	r.events = append(r.events, "passed "+id.String())
}
func (r *recordingLogger) TestSkipped(id TestID, reason string) {
	r.events = append(r.events, "skipped "+id.String()+" "+reason)
}

func TestRun_PassAndFail(t *testing.T) {
	logger := &recordingLogger{}

	results := Run(nil, logger, func(c *Context) {
		c.Run("passes", func(c *Context) {})
		c.Run("fails", func(c *Context) {
			c.Errorf("expected %d", 1)
			c.FailNow()
			c.Errorf("not reached")
		})
	})

	assert.False(t, results.OK())
	require.Len(t, results.Tests, 2)
	require.Len(t, results.Failures, 1)
	assert.Equal(t, "fails", results.Failures[0].TestID.String())
	assert.Equal(t, []error{errors.New("expected 1")}, results.Failures[0].Errors)
	assert.Equal(t, []string{
		"start passes",
		"passed passes",
		"start fails",
		"error fails: expected 1",
		"failed fails",
	}, logger.events)
}

func TestRun_FailNowWithoutMessage(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("silent", func(c *Context) { c.FailNow() })
	})

	require.Len(t, results.Failures, 1)
	assert.EqualError(t, results.Failures[0].Errors[0], "test failed with no failure message")
}

func TestRun_UnexpectedPanic(t *testing.T) {
	results := Run(nil, nil, func(c *Context) {
		c.Run("panics", func(c *Context) { panic("boom") })
		c.Run("next", func(c *Context) {})
	})

	require.Len(t, results.Tests, 2)
	require.Len(t, results.Failures, 1)
	assert.Contains(t, results.Failures[0].Errors[0].Error(), "unexpected panic in test: boom")
}

func TestRun_CleanupsRunInReverseAfterFailure(t *testing.T) {
	var order []string

	results := Run(nil, nil, func(c *Context) {
		c.Run("cleanup", func(c *Context) {
			c.Cleanup(func() { order = append(order, "first") })
			c.Cleanup(func() {
				order = append(order, "second")
				c.Errorf("teardown failed")
			})
			c.Cleanup(func() { panic("cleanup panic") })
			c.FailNow()
		})
	})

	assert.Equal(t, []string{"second", "first"}, order)
	require.Len(t, results.Failures, 1)
	errs := results.Failures[0].Errors
	require.Len(t, errs, 3)
	assert.Equal(t, "test failed with no failure message", errs[0].Error())
	assert.Contains(t, errs[1].Error(), "cleanup panic")
	assert.Equal(t, "teardown failed", errs[2].Error())
}

func TestRun_Skip(t *testing.T) {
	logger := &recordingLogger{}

	results := Run(nil, logger, func(c *Context) {
		c.Run("skipped", func(c *Context) { c.SkipWithReason("not today") })
	})

	assert.True(t, results.OK())
	require.Len(t, results.Tests, 1)
	assert.True(t, results.Tests[0].Skipped)
	assert.Equal(t, []string{"start skipped", "skipped skipped not today"}, logger.events)
}

func TestRun_NestedNamesAndFailurePropagation(t *testing.T) {
	var name string
	var parentFailed bool

	Run(nil, nil, func(c *Context) {
		c.Run("group", func(c *Context) {
			c.Run("case", func(c *Context) {
				name = c.Name()
				c.Errorf("nope")
			})
			parentFailed = c.Failed()
		})
	})

	assert.Equal(t, "group/case", name)
	assert.True(t, parentFailed)
}

func TestRun_Filter(t *testing.T) {
	var filters RegexFilters
	require.NoError(t, filters.MustMatch.Set("^hello"))
	require.NoError(t, filters.MustNotMatch.Set("slow"))
	logger := &recordingLogger{}
	var ran []string

	results := Run(filters.AsFilter, logger, func(c *Context) {
		for _, name := range []string{"hello page", "hello slow", "form"} {
			c.Run(name, func(c *Context) { ran = append(ran, c.Name()) })
		}
	})

	assert.Equal(t, []string{"hello page"}, ran)
	assert.Len(t, results.Tests, 1)
	assert.Contains(t, logger.events, "skipped form excluded by filter parameters")
}

func TestRegexList(t *testing.T) {
	var list RegexList
	assert.False(t, list.IsDefined())
	assert.Error(t, list.Set("("))

	require.NoError(t, list.Set("a+"))
	require.NoError(t, list.Set("^b"))

	assert.Equal(t, `"a+" or "^b"`, list.String())
	assert.Equal(t, []string{"a+", "^b"}, list.Patterns())
	assert.True(t, list.AnyMatch("xaa"))
	assert.False(t, list.AnyMatch("cb"))
}

func TestConsoleTestLogger(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := &ConsoleTestLogger{Out: &buf, DebugOutputOnFailure: true}
	id := TestID{Path: []string{"suite", "case"}}

	logger.TestStarted(id)
	logger.TestError(id, errors.New("line one\nline two"))
	logger.TestFinished(id, true, []string{"Created user"})
	logger.TestSkipped(TestID{Path: []string{"other"}}, "")

	assert.Equal(t, "[suite/case]\n"+
		"  line one\n"+
		"  line two\n"+
		"  FAILED: suite/case\n"+
		"    DEBUG Created user\n"+
		"  SKIPPED: other\n", buf.String())
}

func TestPrintResults(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	results := Results{}
	results.Merge(Results{Tests: []TestResult{{TestID: TestID{Path: []string{"a"}}}}})
	failure := TestResult{TestID: TestID{Path: []string{"b"}}, Errors: []error{errors.New("bad")}}
	results.Merge(Results{Tests: []TestResult{failure}, Failures: []TestResult{failure}})

	PrintResults(&buf, results)

	assert.Equal(t, "FAILED (1 of 2 tests)\n  b\n    bad\n", buf.String())
}
