package runner

import (
	"fmt"
	"strings"
)

// Results collects the outcome of every test in a run.
type Results struct {
	Tests    []TestResult
	Failures []TestResult
}

type TestResult struct {
	TestID  TestID
	Errors  []error
	Skipped bool
}

func (r Results) OK() bool {
	return len(r.Failures) == 0
}

// Merge appends the results of another run, as produced by a parallel worker.
func (r *Results) Merge(other Results) {
	r.Tests = append(r.Tests, other.Tests...)
	r.Failures = append(r.Failures, other.Failures...)
}

type TestID struct {
	Path []string
}

func (t TestID) String() string {
	return strings.Join(t.Path, "/")
}

// Child returns the ID of a subtest.
func (t TestID) Child(name string) TestID {
	path := make([]string, 0, len(t.Path)+1)
	path = append(path, t.Path...)
	return TestID{Path: append(path, name)}
}

type TestFailure struct {
	ID  TestID
	Err error
}

func (f TestFailure) Error() string {
	return fmt.Sprintf("[%s]: %s", f.ID, f.Err)
}
