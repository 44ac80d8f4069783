package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

// Session is a named browser with its cookies and current page.
type Session struct {
	name   string
	driver Driver

	mu   sync.Mutex
	page *Page
}

// NewSession wraps driver under name.
func NewSession(name string, driver Driver) *Session {
	return &Session{name: name, driver: driver}
}

func (s *Session) Name() string   { return s.name }
func (s *Session) Driver() Driver { return s.driver }

func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.driver.IsStarted() {
		return nil
	}
	s.page = nil
	return s.driver.Start(ctx)
}

func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = nil
	if !s.driver.IsStarted() {
		return nil
	}
	return s.driver.Stop()
}

func (s *Session) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.IsStarted()
}

// Visit navigates to an absolute URL.
func (s *Session) Visit(ctx context.Context, target string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = nil
	return s.driver.Visit(ctx, target)
}

// SubmitForm fills fields, keyed by field locator, and presses button. With
// a formID the button and fields are looked up inside that form; otherwise
// the form is the one enclosing the button.
func (s *Session) SubmitForm(ctx context.Context, fields map[string]string, button, formID string) error {
	page, err := s.Page()
	if err != nil {
		return err
	}

	var form, btn *goquery.Selection
	if formID != "" {
		form = page.FindForm(formID)
		if form.Length() == 0 {
			return &ElementNotFoundError{Type: "form", Selector: "id", Locator: formID}
		}
		btn = findButton(form, button)
		if btn == nil {
			return buttonNotFound(button)
		}
	} else {
		btn = page.FindButton(button)
		if btn == nil {
			return buttonNotFound(button)
		}
		form = page.FormFor(btn)
		if form.Length() == 0 {
			return expectation("Button %q is not inside a form.", button)
		}
	}

	sub, err := page.BuildSubmission(form, btn, fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.page = nil
	if err := s.driver.Submit(ctx, sub); err != nil {
		return fmt.Errorf("failed to submit form: %w", err)
	}
	return nil
}

// Page parses the current response. The result is cached until the next
// navigation.
func (s *Session) Page() (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.driver.IsStarted() {
		return nil, ErrSessionNotStarted
	}
	if s.page != nil {
		return s.page, nil
	}
	current := s.driver.CurrentURL()
	if current == "" {
		return nil, ErrNoPage
	}
	page, err := ParsePage(s.driver.Content(), current)
	if err != nil {
		return nil, err
	}
	s.page = page
	return page, nil
}

func (s *Session) StatusCode() int              { return s.driver.StatusCode() }
func (s *Session) ResponseHeaders() http.Header { return s.driver.ResponseHeaders() }
func (s *Session) Content() string              { return s.driver.Content() }
func (s *Session) CurrentURL() string           { return s.driver.CurrentURL() }

// ResponseHeader returns one header of the last response.
func (s *Session) ResponseHeader(name string) string {
	hdr := s.driver.ResponseHeaders()
	if hdr == nil {
		return ""
	}
	return hdr.Get(name)
}

func (s *Session) SetCookie(name, value string) error {
	return s.driver.SetCookie(name, value)
}

func (s *Session) Cookie(name string) (string, bool, error) {
	return s.driver.Cookie(name)
}

func (s *Session) SetRequestHeader(name, value string) {
	s.driver.SetRequestHeader(name, value)
}
