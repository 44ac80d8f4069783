package harness

import (
	"github.com/charmbracelet/log"
)

// EventSink observes the test lifecycle.
type EventSink interface {
	OnTestStart(name string)
	OnTestEnd(name string, failed bool)
}

type nopEvents struct{}

func (nopEvents) OnTestStart(string)     {}
func (nopEvents) OnTestEnd(string, bool) {}

// LogEvents reports lifecycle events to a logger.
type LogEvents struct {
	Logger *log.Logger
}

func (e LogEvents) OnTestStart(name string) {
	e.Logger.Info("test started", "test", name)
}

func (e LogEvents) OnTestEnd(name string, failed bool) {
	if failed {
		e.Logger.Error("test failed", "test", name)
		return
	}
	e.Logger.Info("test passed", "test", name)
}
