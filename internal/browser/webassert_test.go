package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withAssertPage(t *testing.T, fn func(a *WebAssert)) {
	t.Helper()
	headers := http.Header{}
	headers.Set("Content-Type", "text/html; charset=utf-8")
	headers.Set("Cache-Control", "no-cache")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "theme", Value: "dark", Path: "/"})
		httphelpers.HandlerWithResponse(http.StatusOK, headers, []byte(formPage)).ServeHTTP(w, r)
	})
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		s := startedHTTPSession(t, server.URL)
		require.NoError(t, s.Visit(context.Background(), server.URL+"/form?x=1"))
		fn(NewWebAssert(s))
	})
}

func TestWebAssert_Passing(t *testing.T) {
	withAssertPage(t, func(a *WebAssert) {
		checks := map[string]error{
			"status":             a.StatusCodeEquals(200),
			"status not":         a.StatusCodeNotEquals(404),
			"address":            a.AddressEquals("/form?x=1"),
			"header":             a.ResponseHeaderEquals("Cache-Control", "no-cache"),
			"cookie":             a.CookieEquals("theme", "dark"),
			"text":               a.PageTextContains("hello amsterdam"),
			"text whitespace":    a.PageTextContains("Hello\n\n  Amsterdam"),
			"text not":           a.PageTextNotContains("secret"),
			"text matches":       a.PageTextMatches(`hello\s+amster`),
			"text not matches":   a.PageTextNotMatches(`goodbye`),
			"response":           a.ResponseContains("VAR HIDDEN"),
			"response not":       a.ResponseNotContains("goodbye"),
			"response matches":   a.ResponseMatches(`<form id="example-form"`),
			"response not match": a.ResponseNotMatches(`<iframe`),
			"element not":        a.ElementNotExists("form#missing"),
			"element text":       a.ElementTextContains("p", "Hello Amsterdam"),
			"element text not":   a.ElementTextNotContains("p", "Rotterdam"),
			"element html":       a.ElementContains("form#example-form", `name="bio"`),
			"element html not":   a.ElementNotContains("p", "<b>"),
			"field not":          a.FieldNotExists("form_id"),
			"field value prefix": a.FieldValueEquals("name", "bo"),
			"field value not":    a.FieldValueNotEquals("name", "alice"),
			"checkbox checked":   a.CheckboxChecked("agree"),
			"checkbox unchecked": a.CheckboxNotChecked("subscribe"),
			"title":              a.TitleEquals("example"),
		}
		for name, err := range checks {
			assert.NoError(t, err, name)
		}

		_, err := a.ElementExists("form#example-form")
		assert.NoError(t, err)
		_, err = a.ButtonExists("Save configuration")
		assert.NoError(t, err)
		sel, err := a.SelectExists("edit-color")
		require.NoError(t, err)
		assert.Equal(t, "g", sel.Value())
	})
}

func TestWebAssert_FailureMessages(t *testing.T) {
	withAssertPage(t, func(a *WebAssert) {
		_, elementErr := a.ElementExists("form#missing")
		_, fieldErr := a.FieldExists("surname")
		_, buttonErr := a.ButtonExists("Publish")
		_, selectErr := a.SelectExists("size")

		tests := []struct {
			name     string
			err      error
			expected string
		}{
			{"status", a.StatusCodeEquals(403), "Current response status code is 200, but 403 expected."},
			{"status not", a.StatusCodeNotEquals(200), "Current response status code is 200, but should not be."},
			{"address", a.AddressEquals("/user/login"), `Current page is "/form?x=1", but "/user/login" expected.`},
			{"text", a.PageTextContains("Rotterdam"), `The text "Rotterdam" was not found anywhere in the text of the current page.`},
			{"text not", a.PageTextNotContains("hello"), `The text "hello" appears in the text of this page, but it should not.`},
			{"response", a.ResponseContains("<iframe"), `The string "<iframe" was not found anywhere in the HTML response of the current page.`},
			{"element", elementErr, `Element matching css "form#missing" not found.`},
			{"element not", a.ElementNotExists("p"), `An element matching css "p" appears on this page, but it should not.`},
			{"field", fieldErr, `Form field with id|name|label|value "surname" not found.`},
			{"field value", a.FieldValueEquals("name", "Foobaz"), `The field "name" value is "Bob", but "Foobaz" expected.`},
			{"checkbox", a.CheckboxChecked("subscribe"), `Checkbox "subscribe" is not checked, but it should be.`},
			{"button", buttonErr, `Button with id|name|label|value "Publish" not found.`},
			{"select", selectErr, `Select with id|name|label|value "size" not found.`},
			{"cookie", a.CookieEquals("missing", "x"), `Cookie "missing" is not set, but should be.`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.Error(t, tt.err)
				assert.Equal(t, tt.expected, tt.err.Error())

				var expectationErr *ExpectationError
				var notFound *ElementNotFoundError
				assert.True(t, errors.As(tt.err, &expectationErr) || errors.As(tt.err, &notFound))
			})
		}
	})
}

func TestWebAssert_NoPage(t *testing.T) {
	s := startedHTTPSession(t, "http://example.com")
	a := NewWebAssert(s)

	assert.ErrorIs(t, a.PageTextContains("anything"), ErrNoPage)
}
