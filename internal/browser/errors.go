package browser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSessionNotFound is returned when a session name was never registered.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotStarted is returned when a stopped session is used.
	ErrSessionNotStarted = errors.New("session is not started")
	// ErrNoPage is returned when the session has not navigated yet.
	ErrNoPage = errors.New("no page loaded")
)

// ElementNotFoundError reports a locator that matched nothing on the page.
type ElementNotFoundError struct {
	Type     string
	Selector string
	Locator  string
}

func (e *ElementNotFoundError) Error() string {
	msg := strings.ToUpper(e.Type[:1]) + e.Type[1:]
	switch e.Selector {
	case "":
	case "css", "xpath":
		msg += fmt.Sprintf(" matching %s %q", e.Selector, e.Locator)
	default:
		msg += fmt.Sprintf(" with %s %q", e.Selector, e.Locator)
	}
	return msg + " not found."
}

// ExpectationError is a failed expectation about the current page.
type ExpectationError struct {
	Message string
}

func (e *ExpectationError) Error() string {
	return e.Message
}

func expectation(format string, args ...any) error {
	return &ExpectationError{Message: fmt.Sprintf(format, args...)}
}

func fieldNotFound(locator string) error {
	return &ElementNotFoundError{Type: "form field", Selector: "id|name|label|value", Locator: locator}
}

func buttonNotFound(locator string) error {
	return &ElementNotFoundError{Type: "button", Selector: "id|name|label|value", Locator: locator}
}
