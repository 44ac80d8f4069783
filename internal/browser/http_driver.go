package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// HTTPDriverOptions configure an HTTPDriver.
type HTTPDriverOptions struct {
	// BaseURL scopes cookies set before the first navigation.
	BaseURL string
	// Client supplies the transport and timeout. The driver installs its own
	// cookie jar on a copy.
	Client    *http.Client
	UserAgent string
}

// HTTPDriver is a headless driver that speaks plain HTTP and keeps cookies in
// a jar. It does not run scripts.
type HTTPDriver struct {
	opts    HTTPDriverOptions
	base    *url.URL
	client  *http.Client
	headers http.Header

	started bool
	status  int
	respHdr http.Header
	content string
	current string
}

// NewHTTPDriver creates a stopped HTTP driver.
func NewHTTPDriver(opts HTTPDriverOptions) (*HTTPDriver, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
	}
	return &HTTPDriver{opts: opts, base: base, headers: http.Header{}}, nil
}

// Start resets cookies and navigation state.
func (d *HTTPDriver) Start(ctx context.Context) error {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{}
	if d.opts.Client != nil {
		*client = *d.opts.Client
	}
	client.Jar = jar
	d.client = client
	d.started = true
	d.reset()
	return nil
}

// Stop discards cookies and navigation state. Stopping twice is a no-op.
func (d *HTTPDriver) Stop() error {
	d.started = false
	d.client = nil
	d.reset()
	return nil
}

func (d *HTTPDriver) reset() {
	d.status = 0
	d.respHdr = http.Header{}
	d.content = ""
	d.current = ""
}

func (d *HTTPDriver) IsStarted() bool { return d.started }

// Visit performs a GET request, following redirects.
func (d *HTTPDriver) Visit(ctx context.Context, target string) error {
	return d.do(ctx, http.MethodGet, target, "", "")
}

// Submit sends the encoded form.
func (d *HTTPDriver) Submit(ctx context.Context, sub *Submission) error {
	target, body := sub.Encode()
	if sub.Method == http.MethodGet {
		return d.do(ctx, http.MethodGet, target, "", "")
	}
	return d.do(ctx, http.MethodPost, target, body, "application/x-www-form-urlencoded")
}

func (d *HTTPDriver) do(ctx context.Context, method, target, body, contentType string) error {
	if !d.started {
		return ErrSessionNotStarted
	}
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, r)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range d.headers {
		req.Header[name] = values
	}
	if d.opts.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", d.opts.UserAgent)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	d.status = resp.StatusCode
	d.respHdr = resp.Header
	d.content = string(data)
	d.current = resp.Request.URL.String()
	return nil
}

func (d *HTTPDriver) StatusCode() int              { return d.status }
func (d *HTTPDriver) ResponseHeaders() http.Header { return d.respHdr }
func (d *HTTPDriver) Content() string              { return d.content }
func (d *HTTPDriver) CurrentURL() string           { return d.current }

func (d *HTTPDriver) cookieURL() *url.URL {
	if d.current != "" {
		if u, err := url.Parse(d.current); err == nil {
			return u
		}
	}
	return d.base
}

// SetCookie stores a cookie for the site's host.
func (d *HTTPDriver) SetCookie(name, value string) error {
	if !d.started {
		return ErrSessionNotStarted
	}
	u := d.cookieURL()
	d.client.Jar.SetCookies(u, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
	return nil
}

// Cookie returns the value of a cookie visible to the site.
func (d *HTTPDriver) Cookie(name string) (string, bool, error) {
	if !d.started {
		return "", false, ErrSessionNotStarted
	}
	for _, c := range d.client.Jar.Cookies(d.cookieURL()) {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

// SetRequestHeader sends a header with every following request. An empty
// value removes it.
func (d *HTTPDriver) SetRequestHeader(name, value string) {
	if value == "" {
		d.headers.Del(name)
		return
	}
	d.headers.Set(name, value)
}
