package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// WebAssert evaluates expectations against the current page of a session.
// Every check returns nil on success and an *ExpectationError or
// *ElementNotFoundError describing the mismatch otherwise.
type WebAssert struct {
	session *Session
}

// NewWebAssert creates assertions bound to s.
func NewWebAssert(s *Session) *WebAssert {
	return &WebAssert{session: s}
}

func (a *WebAssert) Session() *Session { return a.session }

func (a *WebAssert) StatusCodeEquals(code int) error {
	if actual := a.session.StatusCode(); actual != code {
		return expectation("Current response status code is %d, but %d expected.", actual, code)
	}
	return nil
}

func (a *WebAssert) StatusCodeNotEquals(code int) error {
	if actual := a.session.StatusCode(); actual == code {
		return expectation("Current response status code is %d, but should not be.", actual)
	}
	return nil
}

// AddressEquals compares the path, query and fragment of the current URL.
func (a *WebAssert) AddressEquals(expected string) error {
	actual := a.currentAddress()
	want := expected
	if u, err := url.Parse(expected); err == nil && u.Host != "" {
		want = addressOf(u)
	}
	if actual != want {
		return expectation("Current page is %q, but %q expected.", actual, want)
	}
	return nil
}

func (a *WebAssert) currentAddress() string {
	u, err := url.Parse(a.session.CurrentURL())
	if err != nil {
		return a.session.CurrentURL()
	}
	return addressOf(u)
}

func addressOf(u *url.URL) string {
	addr := u.EscapedPath()
	if addr == "" {
		addr = "/"
	}
	if u.RawQuery != "" {
		addr += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		addr += "#" + u.Fragment
	}
	return addr
}

func (a *WebAssert) ResponseHeaderEquals(name, value string) error {
	if actual := a.session.ResponseHeader(name); actual != value {
		return expectation("Current response header %q is %q, but %q expected.", name, actual, value)
	}
	return nil
}

func (a *WebAssert) ResponseHeaderContains(name, value string) error {
	if actual := a.session.ResponseHeader(name); !containsFold(actual, value) {
		return expectation("The text %q was not found anywhere in the %q response header.", value, name)
	}
	return nil
}

func (a *WebAssert) CookieExists(name string) error {
	_, ok, err := a.session.Cookie(name)
	if err != nil {
		return err
	}
	if !ok {
		return expectation("Cookie %q is not set, but should be.", name)
	}
	return nil
}

func (a *WebAssert) CookieEquals(name, value string) error {
	if err := a.CookieExists(name); err != nil {
		return err
	}
	actual, _, _ := a.session.Cookie(name)
	if actual != value {
		return expectation("Cookie %q value is %q, but should be %q.", name, actual, value)
	}
	return nil
}

func (a *WebAssert) page() (*Page, error) {
	return a.session.Page()
}

// PageTextContains checks the visible text of the page, ignoring case and
// differences in whitespace.
func (a *WebAssert) PageTextContains(text string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	if !containsFold(p.Text(), NormalizeWhitespace(text)) {
		return expectation("The text %q was not found anywhere in the text of the current page.", text)
	}
	return nil
}

func (a *WebAssert) PageTextNotContains(text string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	if containsFold(p.Text(), NormalizeWhitespace(text)) {
		return expectation("The text %q appears in the text of this page, but it should not.", text)
	}
	return nil
}

func (a *WebAssert) PageTextMatches(pattern string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if !re.MatchString(p.Text()) {
		return expectation("The pattern %s was not found anywhere in the text of the current page.", pattern)
	}
	return nil
}

func (a *WebAssert) PageTextNotMatches(pattern string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if re.MatchString(p.Text()) {
		return expectation("The pattern %s was found in the text of the current page, but it should not.", pattern)
	}
	return nil
}

func (a *WebAssert) ResponseContains(text string) error {
	if !containsFold(a.session.Content(), text) {
		return expectation("The string %q was not found anywhere in the HTML response of the current page.", text)
	}
	return nil
}

func (a *WebAssert) ResponseNotContains(text string) error {
	if containsFold(a.session.Content(), text) {
		return expectation("The string %q appears in the HTML response of this page, but it should not.", text)
	}
	return nil
}

func (a *WebAssert) ResponseMatches(pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if !re.MatchString(a.session.Content()) {
		return expectation("The pattern %q was not found anywhere in the HTML response of the page.", pattern)
	}
	return nil
}

func (a *WebAssert) ResponseNotMatches(pattern string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if re.MatchString(a.session.Content()) {
		return expectation("The pattern %q was found in the HTML response of the page, but it should not.", pattern)
	}
	return nil
}

// ElementExists returns the elements matching a CSS selector.
func (a *WebAssert) ElementExists(css string) (*goquery.Selection, error) {
	p, err := a.page()
	if err != nil {
		return nil, err
	}
	sel := p.Find(css)
	if sel.Length() == 0 {
		return nil, &ElementNotFoundError{Type: "element", Selector: "css", Locator: css}
	}
	return sel, nil
}

func (a *WebAssert) ElementNotExists(css string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	if p.Find(css).Length() > 0 {
		return expectation("An element matching css %q appears on this page, but it should not.", css)
	}
	return nil
}

func (a *WebAssert) ElementTextContains(css, text string) error {
	sel, err := a.ElementExists(css)
	if err != nil {
		return err
	}
	if !containsFold(visibleText(sel.First()), NormalizeWhitespace(text)) {
		return expectation("The text %q was not found in the text of the element matching css %q.", text, css)
	}
	return nil
}

func (a *WebAssert) ElementTextNotContains(css, text string) error {
	sel, err := a.ElementExists(css)
	if err != nil {
		return err
	}
	if containsFold(visibleText(sel.First()), NormalizeWhitespace(text)) {
		return expectation("The text %q appears in the text of the element matching css %q, but it should not.", text, css)
	}
	return nil
}

func (a *WebAssert) ElementContains(css, html string) error {
	sel, err := a.ElementExists(css)
	if err != nil {
		return err
	}
	inner, _ := sel.First().Html()
	if !containsFold(inner, html) {
		return expectation("The string %q was not found in the HTML of the element matching css %q.", html, css)
	}
	return nil
}

func (a *WebAssert) ElementNotContains(css, html string) error {
	sel, err := a.ElementExists(css)
	if err != nil {
		return err
	}
	inner, _ := sel.First().Html()
	if containsFold(inner, html) {
		return expectation("The string %q appears in the HTML of the element matching css %q, but it should not.", html, css)
	}
	return nil
}

// FieldExists locates a form control by id, name, label or placeholder.
func (a *WebAssert) FieldExists(locator string) (*Field, error) {
	p, err := a.page()
	if err != nil {
		return nil, err
	}
	f := p.FindField(locator)
	if f == nil {
		return nil, fieldNotFound(locator)
	}
	return f, nil
}

func (a *WebAssert) FieldNotExists(locator string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	if p.FindField(locator) != nil {
		return expectation("A field %q appears on this page, but it should not.", locator)
	}
	return nil
}

// FieldValueEquals passes when the field's value starts with value,
// ignoring case.
func (a *WebAssert) FieldValueEquals(locator, value string) error {
	f, err := a.FieldExists(locator)
	if err != nil {
		return err
	}
	if actual := f.Value(); !hasPrefixFold(actual, value) {
		return expectation("The field %q value is %q, but %q expected.", locator, actual, value)
	}
	return nil
}

func (a *WebAssert) FieldValueNotEquals(locator, value string) error {
	f, err := a.FieldExists(locator)
	if err != nil {
		return err
	}
	if actual := f.Value(); hasPrefixFold(actual, value) {
		return expectation("The field %q value is %q, but it should not be.", locator, actual)
	}
	return nil
}

func (a *WebAssert) CheckboxChecked(locator string) error {
	f, err := a.FieldExists(locator)
	if err != nil {
		return err
	}
	if !f.IsChecked() {
		return expectation("Checkbox %q is not checked, but it should be.", locator)
	}
	return nil
}

func (a *WebAssert) CheckboxNotChecked(locator string) error {
	f, err := a.FieldExists(locator)
	if err != nil {
		return err
	}
	if f.IsChecked() {
		return expectation("Checkbox %q is checked, but it should not be.", locator)
	}
	return nil
}

// ButtonExists locates a button by id, name, value, text or title.
func (a *WebAssert) ButtonExists(locator string) (*goquery.Selection, error) {
	p, err := a.page()
	if err != nil {
		return nil, err
	}
	b := p.FindButton(locator)
	if b == nil {
		return nil, buttonNotFound(locator)
	}
	return b, nil
}

// SelectExists locates a select element by id, name or label.
func (a *WebAssert) SelectExists(locator string) (*Field, error) {
	p, err := a.page()
	if err != nil {
		return nil, err
	}
	f := p.FindSelect(locator)
	if f == nil {
		return nil, &ElementNotFoundError{Type: "select", Selector: "id|name|label|value", Locator: locator}
	}
	return f, nil
}

// TitleEquals compares the document title.
func (a *WebAssert) TitleEquals(title string) error {
	p, err := a.page()
	if err != nil {
		return err
	}
	actual := NormalizeWhitespace(p.Find("title").First().Text())
	if !strings.EqualFold(actual, title) {
		return expectation("Title %q was not found, the current title is %q.", title, actual)
	}
	return nil
}
