package harness

import (
	"github.com/PuerkitoBio/goquery"

	"github.com/themizzi/sitetest/internal/browser"
)

// Assertions wraps browser.WebAssert so that every mismatch fails the test
// and stops it, carrying the assertion's message.
type Assertions struct {
	t   TB
	web *browser.WebAssert
}

func (a *Assertions) check(err error) bool {
	a.t.Helper()
	if err != nil {
		a.t.Errorf("%s", failureFor(err).Message)
		a.t.FailNow()
		return false
	}
	return true
}

// Web exposes the error-returning assertions.
func (a *Assertions) Web() *browser.WebAssert { return a.web }

func (a *Assertions) StatusCodeEquals(code int) bool {
	a.t.Helper()
	return a.check(a.web.StatusCodeEquals(code))
}

func (a *Assertions) StatusCodeNotEquals(code int) bool {
	a.t.Helper()
	return a.check(a.web.StatusCodeNotEquals(code))
}

func (a *Assertions) AddressEquals(path string) bool {
	a.t.Helper()
	return a.check(a.web.AddressEquals(path))
}

func (a *Assertions) ResponseHeaderEquals(name, value string) bool {
	a.t.Helper()
	return a.check(a.web.ResponseHeaderEquals(name, value))
}

func (a *Assertions) CookieEquals(name, value string) bool {
	a.t.Helper()
	return a.check(a.web.CookieEquals(name, value))
}

func (a *Assertions) CookieExists(name string) bool {
	a.t.Helper()
	return a.check(a.web.CookieExists(name))
}

func (a *Assertions) PageTextContains(text string) bool {
	a.t.Helper()
	return a.check(a.web.PageTextContains(text))
}

func (a *Assertions) PageTextNotContains(text string) bool {
	a.t.Helper()
	return a.check(a.web.PageTextNotContains(text))
}

func (a *Assertions) PageTextMatches(pattern string) bool {
	a.t.Helper()
	return a.check(a.web.PageTextMatches(pattern))
}

func (a *Assertions) PageTextNotMatches(pattern string) bool {
	a.t.Helper()
	return a.check(a.web.PageTextNotMatches(pattern))
}

func (a *Assertions) ResponseContains(text string) bool {
	a.t.Helper()
	return a.check(a.web.ResponseContains(text))
}

func (a *Assertions) ResponseNotContains(text string) bool {
	a.t.Helper()
	return a.check(a.web.ResponseNotContains(text))
}

func (a *Assertions) ResponseMatches(pattern string) bool {
	a.t.Helper()
	return a.check(a.web.ResponseMatches(pattern))
}

func (a *Assertions) ResponseNotMatches(pattern string) bool {
	a.t.Helper()
	return a.check(a.web.ResponseNotMatches(pattern))
}

func (a *Assertions) ElementExists(css string) *goquery.Selection {
	a.t.Helper()
	sel, err := a.web.ElementExists(css)
	a.check(err)
	return sel
}

func (a *Assertions) ElementNotExists(css string) bool {
	a.t.Helper()
	return a.check(a.web.ElementNotExists(css))
}

func (a *Assertions) ElementTextContains(css, text string) bool {
	a.t.Helper()
	return a.check(a.web.ElementTextContains(css, text))
}

func (a *Assertions) ElementTextNotContains(css, text string) bool {
	a.t.Helper()
	return a.check(a.web.ElementTextNotContains(css, text))
}

func (a *Assertions) ElementContains(css, html string) bool {
	a.t.Helper()
	return a.check(a.web.ElementContains(css, html))
}

func (a *Assertions) ElementNotContains(css, html string) bool {
	a.t.Helper()
	return a.check(a.web.ElementNotContains(css, html))
}

func (a *Assertions) FieldExists(locator string) *browser.Field {
	a.t.Helper()
	f, err := a.web.FieldExists(locator)
	a.check(err)
	return f
}

func (a *Assertions) FieldNotExists(locator string) bool {
	a.t.Helper()
	return a.check(a.web.FieldNotExists(locator))
}

func (a *Assertions) FieldValueEquals(locator, value string) bool {
	a.t.Helper()
	return a.check(a.web.FieldValueEquals(locator, value))
}

func (a *Assertions) FieldValueNotEquals(locator, value string) bool {
	a.t.Helper()
	return a.check(a.web.FieldValueNotEquals(locator, value))
}

func (a *Assertions) CheckboxChecked(locator string) bool {
	a.t.Helper()
	return a.check(a.web.CheckboxChecked(locator))
}

func (a *Assertions) CheckboxNotChecked(locator string) bool {
	a.t.Helper()
	return a.check(a.web.CheckboxNotChecked(locator))
}

func (a *Assertions) ButtonExists(locator string) *goquery.Selection {
	a.t.Helper()
	b, err := a.web.ButtonExists(locator)
	a.check(err)
	return b
}

func (a *Assertions) SelectExists(locator string) *browser.Field {
	a.t.Helper()
	f, err := a.web.SelectExists(locator)
	a.check(err)
	return f
}

func (a *Assertions) TitleEquals(title string) bool {
	a.t.Helper()
	return a.check(a.web.TitleEquals(title))
}
