package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightOptions configure a PlaywrightDriver.
type PlaywrightOptions struct {
	BaseURL string
	// Browser is shared between drivers when set; otherwise the driver
	// launches and owns a headless Chromium.
	Browser   playwright.Browser
	Headless  bool
	UserAgent string
	// Timeout bounds navigation in milliseconds.
	Timeout float64
}

// PlaywrightDriver drives a real browser through Playwright. Every session
// gets its own browser context so cookies never leak between sessions.
type PlaywrightDriver struct {
	opts PlaywrightOptions

	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	headers map[string]string

	mu      sync.Mutex
	status  int
	respHdr http.Header
}

// NewPlaywrightDriver creates a stopped Playwright driver.
func NewPlaywrightDriver(opts PlaywrightOptions) *PlaywrightDriver {
	if opts.Timeout == 0 {
		opts.Timeout = 30000
	}
	return &PlaywrightDriver{opts: opts, headers: map[string]string{}}
}

// Start opens a fresh browser context and page.
func (d *PlaywrightDriver) Start(ctx context.Context) error {
	if d.page != nil {
		return nil
	}
	d.browser = d.opts.Browser
	if d.browser == nil {
		pw, err := playwright.Run()
		if err != nil {
			return fmt.Errorf("failed to start playwright: %w", err)
		}
		d.pw = pw
		browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(d.opts.Headless),
		})
		if err != nil {
			pw.Stop()
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		d.browser = browser
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	if d.opts.UserAgent != "" {
		contextOpts.UserAgent = playwright.String(d.opts.UserAgent)
	}
	bctx, err := d.browser.NewContext(contextOpts)
	if err != nil {
		d.Stop()
		return fmt.Errorf("failed to create browser context: %w", err)
	}
	d.bctx = bctx
	if len(d.headers) > 0 {
		if err := bctx.SetExtraHTTPHeaders(d.headers); err != nil {
			d.Stop()
			return fmt.Errorf("failed to set request headers: %w", err)
		}
	}

	page, err := bctx.NewPage()
	if err != nil {
		d.Stop()
		return fmt.Errorf("failed to open page: %w", err)
	}
	page.SetDefaultNavigationTimeout(d.opts.Timeout)
	page.OnResponse(func(resp playwright.Response) {
		if resp.Request().IsNavigationRequest() && resp.Frame() == page.MainFrame() {
			d.record(resp)
		}
	})
	d.page = page
	return nil
}

func (d *PlaywrightDriver) record(resp playwright.Response) {
	hdr := http.Header{}
	for k, v := range resp.Headers() {
		hdr.Set(k, v)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = resp.Status()
	d.respHdr = hdr
}

// Stop closes the page and context, and the browser if the driver owns it.
func (d *PlaywrightDriver) Stop() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.bctx != nil {
		keep(d.bctx.Close())
	}
	if d.pw != nil {
		if d.browser != nil {
			keep(d.browser.Close())
		}
		keep(d.pw.Stop())
	}
	d.pw, d.browser, d.bctx, d.page = nil, nil, nil, nil
	d.mu.Lock()
	d.status, d.respHdr = 0, nil
	d.mu.Unlock()
	return firstErr
}

func (d *PlaywrightDriver) IsStarted() bool { return d.page != nil }

// Visit navigates the page and waits for the load event.
func (d *PlaywrightDriver) Visit(ctx context.Context, target string) error {
	if d.page == nil {
		return ErrSessionNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := d.page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", target, err)
	}
	if resp != nil {
		d.record(resp)
	}
	return nil
}

// Submit fills the edited controls in the live form and clicks the button.
func (d *PlaywrightDriver) Submit(ctx context.Context, sub *Submission) error {
	if d.page == nil {
		return ErrSessionNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, f := range sub.Fields {
		loc := d.page.Locator(fmt.Sprintf("%s >> [name=%q]", sub.Form, f.Name)).First()
		var err error
		switch f.Type {
		case "checkbox":
			err = loc.SetChecked(truthy(f.Value))
		case "radio":
			err = d.page.Locator(fmt.Sprintf("%s >> [name=%q][value=%q]", sub.Form, f.Name, f.Value)).Check()
		case "select":
			_, err = loc.SelectOption(playwright.SelectOptionValues{Values: &[]string{f.Value}})
		default:
			err = loc.Fill(f.Value)
		}
		if err != nil {
			return fmt.Errorf("failed to set field %q: %w", f.Name, err)
		}
	}
	if err := d.page.Locator(sub.Button).Click(); err != nil {
		return fmt.Errorf("failed to press submit button: %w", err)
	}
	err := d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: playwright.LoadStateNetworkidle})
	if err != nil {
		return fmt.Errorf("failed waiting for form submission: %w", err)
	}
	return nil
}

func (d *PlaywrightDriver) StatusCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *PlaywrightDriver) ResponseHeaders() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.respHdr
}

// Content returns the serialized DOM of the page.
func (d *PlaywrightDriver) Content() string {
	if d.page == nil {
		return ""
	}
	content, err := d.page.Content()
	if err != nil {
		return ""
	}
	return content
}

func (d *PlaywrightDriver) CurrentURL() string {
	if d.page == nil {
		return ""
	}
	return d.page.URL()
}

func (d *PlaywrightDriver) cookieURL() string {
	if u := d.CurrentURL(); u != "" && u != "about:blank" {
		return u
	}
	return d.opts.BaseURL
}

// SetCookie adds a cookie for the site's host to the browser context.
func (d *PlaywrightDriver) SetCookie(name, value string) error {
	if d.bctx == nil {
		return ErrSessionNotStarted
	}
	return d.bctx.AddCookies([]playwright.OptionalCookie{{
		Name:  name,
		Value: value,
		URL:   playwright.String(d.cookieURL()),
	}})
}

// Cookie reads a cookie visible to the site's host.
func (d *PlaywrightDriver) Cookie(name string) (string, bool, error) {
	if d.bctx == nil {
		return "", false, ErrSessionNotStarted
	}
	cookies, err := d.bctx.Cookies(d.cookieURL())
	if err != nil {
		return "", false, fmt.Errorf("failed to read cookies: %w", err)
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

// SetRequestHeader sends a header with every following request. An empty
// value removes it.
func (d *PlaywrightDriver) SetRequestHeader(name, value string) {
	if value == "" {
		delete(d.headers, name)
	} else {
		d.headers[name] = value
	}
	if d.bctx != nil {
		d.bctx.SetExtraHTTPHeaders(d.headers)
	}
}
