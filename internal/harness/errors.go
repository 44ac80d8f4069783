package harness

import (
	"errors"
	"fmt"

	"github.com/themizzi/sitetest/internal/app"
)

// ErrRunBound is returned when an Environment already hosts a test run.
var ErrRunBound = errors.New("environment already has an active test run")

// EnvironmentFault is a failure of the test environment itself. It aborts
// the run; teardown still executes.
type EnvironmentFault struct {
	Op  string
	Err error
}

func (e *EnvironmentFault) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *EnvironmentFault) Unwrap() error { return e.Err }

func fault(op string, err error) error {
	var f *EnvironmentFault
	if errors.As(err, &f) {
		return err
	}
	return &EnvironmentFault{Op: op, Err: err}
}

// AssertionFailure is an expected test failure. It is recorded on the test
// and lets teardown run.
type AssertionFailure struct {
	Message string
}

func (e *AssertionFailure) Error() string { return e.Message }

// failureFor turns any error into the message reported for the test. Module
// installation errors keep their itemized message; automation errors keep
// the driver's message.
func failureFor(err error) *AssertionFailure {
	var failure *AssertionFailure
	if errors.As(err, &failure) {
		return failure
	}
	var install *app.ModuleInstallError
	if errors.As(err, &install) {
		return &AssertionFailure{Message: install.Error()}
	}
	return &AssertionFailure{Message: err.Error()}
}
