// Package runner executes harness tests outside of go test. A Context
// satisfies the harness TB contract: FailNow unwinds the test with a panic
// that the runner recovers, and cleanups run afterwards in reverse order.
package runner

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

type environment struct {
	mu         sync.Mutex
	results    Results
	testLogger TestLogger
	filter     Filter
}

func (e *environment) record(result TestResult, failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results.Tests = append(e.results.Tests, result)
	if failed {
		e.results.Failures = append(e.results.Failures, result)
	}
}

// Context is the state of one running test.
type Context struct {
	env *environment
	id  TestID

	mu         sync.Mutex
	failed     bool
	skipped    bool
	skipReason string
	errors     []error
	output     []string
	cleanups   []func()
}

// Run runs action as the root of a test tree and returns the results of
// every test it started.
func Run(filter Filter, testLogger TestLogger, action func(*Context)) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.recovered(r)
		}
		c.runCleanups()
		result := TestResult{TestID: c.id, Errors: c.Errors(), Skipped: c.skipped}
		if len(c.id.Path) > 0 {
			c.env.record(result, c.Failed())
		}
	}()

	action(c)
}

func (c *Context) recovered(r any) {
	if c.skipped {
		return
	}
	c.mu.Lock()
	c.failed = true
	var addError error
	if _, ok := r.(*Context); ok {
		if len(c.errors) == 0 {
			addError = errors.New("test failed with no failure message")
		}
	} else {
		addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
	}
	if addError != nil {
		c.errors = append(c.errors, addError)
	}
	c.mu.Unlock()
	if addError != nil {
		c.env.testLogger.TestError(c.id, addError)
	}
}

// runCleanups runs the registered cleanups, last registered first. A
// cleanup that fails the test does not stop the ones after it.
func (c *Context) runCleanups() {
	for {
		c.mu.Lock()
		n := len(c.cleanups)
		if n == 0 {
			c.mu.Unlock()
			return
		}
		fn := c.cleanups[n-1]
		c.cleanups = c.cleanups[:n-1]
		c.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					c.recovered(r)
				}
			}()
			fn()
		}()
	}
}

func (c *Context) ID() TestID {
	return c.id
}

// Name returns the slash separated path of the test.
func (c *Context) Name() string {
	return c.id.String()
}

// Run runs action as a subtest unless the filter excludes it.
func (c *Context) Run(name string, action func(*Context)) {
	id := c.id.Child(name)

	if c.env.filter != nil && !c.env.filter(id) {
		c.env.testLogger.TestSkipped(id, "excluded by filter parameters")
		return
	}
	c.env.testLogger.TestStarted(id)
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped {
		c.env.testLogger.TestSkipped(id, c1.skipReason)
		return
	}
	if c1.Failed() {
		c.mu.Lock()
		c.failed = true
		c.mu.Unlock()
	}
	c.env.testLogger.TestFinished(id, c1.Failed(), c1.Output())
}

func (c *Context) Helper() {}

func (c *Context) Errorf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	c.mu.Lock()
	c.failed = true
	c.errors = append(c.errors, err)
	c.mu.Unlock()
	c.env.testLogger.TestError(c.id, err)
}

func (c *Context) FailNow() {
	panic(c)
}

func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Context) Skip() {
	c.skipped = true
	panic(c)
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

// Logf captures a line of debug output for the test.
func (c *Context) Logf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.output = append(c.output, fmt.Sprintf(format, args...))
}

// Cleanup registers fn to run when the test finishes, even after FailNow.
func (c *Context) Cleanup(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

func (c *Context) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errors...)
}

func (c *Context) Output() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.output...)
}
