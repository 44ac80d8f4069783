package harness

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/browser"
	"github.com/themizzi/sitetest/internal/config"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/models"
)

// DebugCookie carries the debugger session key to the served application.
const DebugCookie = "XDEBUG_SESSION"

// teardownTimeout bounds the cleanup of one run.
const teardownTimeout = time.Minute

// TB is the part of testing.TB the harness reports through. The runner
// package provides an implementation outside of go test.
type TB interface {
	Helper()
	Name() string
	Errorf(format string, args ...any)
	FailNow()
	Failed() bool
	Logf(format string, args ...any)
	Cleanup(func())
}

// DriverFactory creates the driver behind a named browser session.
type DriverFactory func(name string, run *RunContext) (browser.Driver, error)

// Options configure a Harness.
type Options struct {
	// Profile overrides the configured install profile.
	Profile string
	// Modules are enabled after install, together with their dependencies.
	Modules []string
	// Config is loaded from Getenv when nil.
	Config *config.HarnessConfig
	Getenv func(string) string
	// Environment is shared between sequential runs of one worker. A private
	// one is created when nil.
	Environment *Environment
	Events      EventSink
	Logger      *log.Logger
	// DriverFactory defaults to the browser selected in Config.
	DriverFactory DriverFactory
	// RegisterSessions registers sessions beyond the default one.
	RegisterSessions func(h *Harness) error
	// DebugSession is the debugger cookie of the runner's own request.
	DebugSession string
}

// Harness owns one test run: its sandbox, installed site, browser sessions
// and the identity logged in through them.
type Harness struct {
	t      TB
	opts   Options
	cfg    *config.HarnessConfig
	events EventSink
	logger *log.Logger

	env       *Environment
	ownsEnv   bool
	run       *RunContext
	sandbox   *Sandbox
	kernel    *app.Kernel
	sessions  *browser.Manager
	newDriver DriverFactory

	ctx    context.Context
	cancel context.CancelFunc

	loggedInUser *models.Account
}

// New prepares a sandbox, installs the site into it and opens the default
// browser session. Teardown is registered with t.Cleanup and runs even when
// setup fails halfway. A missing DOMAIN fails the test before anything is
// allocated.
func New(t TB, opts Options) *Harness {
	t.Helper()
	h := &Harness{t: t, opts: opts, events: opts.Events, ctx: context.Background(), cancel: func() {}}
	if h.events == nil {
		h.events = nopEvents{}
	}

	h.cfg = opts.Config
	if h.cfg == nil {
		getenv := opts.Getenv
		if getenv == nil {
			getenv = os.Getenv
		}
		cfg, err := config.LoadHarnessConfig(getenv)
		if err != nil {
			h.abort(fault("load configuration", err))
		}
		h.cfg = cfg
	}
	if err := h.cfg.RequireDomain(); err != nil {
		h.abort(fault("setup", err))
	}

	h.logger = opts.Logger
	if h.logger == nil {
		h.logger = logging.New(logging.Options{Level: h.cfg.LogLevel})
	}
	h.newDriver = opts.DriverFactory
	if h.newDriver == nil {
		h.newDriver = defaultDriverFactory(h.cfg)
	}

	h.events.OnTestStart(t.Name())
	t.Cleanup(h.tearDown)

	h.env = opts.Environment
	if h.env == nil {
		h.env = EnvironmentFromConfig(h.cfg)
		h.ownsEnv = true
	}

	run, err := NewNamer(h.cfg.SandboxRoot).Allocate()
	if err != nil {
		h.abort(fault("allocate sandbox", err))
	}
	run.Domain = h.cfg.Domain
	run.BaseURL = h.cfg.BaseURL()
	run.BasePath = h.cfg.NormalizedBasePath()
	h.run = run
	h.logger = h.logger.WithPrefix(run.Prefix)

	h.sandbox = &Sandbox{Env: h.env, TimeLimit: h.cfg.TimeLimit, Logger: h.logger}
	if err := h.sandbox.Prepare(context.Background(), run); err != nil {
		h.abort(err)
	}
	h.ctx, h.cancel = context.WithDeadline(context.Background(), run.Deadline)

	profile := opts.Profile
	if profile == "" {
		profile = h.cfg.Profile
	}
	installer := &Installer{Env: h.env, OriginalSite: h.cfg.OriginalSite, Logger: h.logger}
	kernel, err := installer.Install(h.ctx, run, profile, opts.Modules)
	h.kernel = kernel
	if err != nil {
		h.fail(err)
	}
	h.prepareRequestForGenerator()

	h.sessions = browser.NewManager()
	if err := h.RegisterSession(browser.DefaultSession); err != nil {
		h.abort(fault("register session", err))
	}
	if opts.RegisterSessions != nil {
		if err := opts.RegisterSessions(h); err != nil {
			h.abort(fault("register sessions", err))
		}
	}
	if _, err := h.openSession(""); err != nil {
		h.abort(fault("open session", err))
	}
	return h
}

func defaultDriverFactory(cfg *config.HarnessConfig) DriverFactory {
	return func(name string, run *RunContext) (browser.Driver, error) {
		if cfg.Browser == "playwright" {
			return browser.NewPlaywrightDriver(browser.PlaywrightOptions{
				BaseURL:  run.BaseURL,
				Headless: cfg.Headless,
			}), nil
		}
		return browser.NewHTTPDriver(browser.HTTPDriverOptions{BaseURL: run.BaseURL})
	}
}

// RegisterSession adds a named session backed by the driver factory.
func (h *Harness) RegisterSession(name string) error {
	d, err := h.newDriver(name, h.run)
	if err != nil {
		return err
	}
	h.sessions.Register(browser.NewSession(name, d))
	return nil
}

// OpenSession starts the named session, or the default one, and attaches
// the test token and debugger cookie to it.
func (h *Harness) OpenSession(name string) *browser.Session {
	h.t.Helper()
	s, err := h.openSession(name)
	if err != nil {
		h.fail(err)
	}
	return s
}

// UseSession opens the named session and makes it the one Get, SubmitForm
// and AssertSession act on.
func (h *Harness) UseSession(name string) {
	h.t.Helper()
	if name == "" {
		name = browser.DefaultSession
	}
	h.OpenSession(name)
	if err := h.sessions.SetDefault(name); err != nil {
		h.fail(err)
	}
}

func (h *Harness) openSession(name string) (*browser.Session, error) {
	s, err := h.sessions.Open(h.ctx, name)
	if err != nil {
		return nil, err
	}
	if err := h.identify(s); err != nil {
		return nil, err
	}
	h.forwardDebugger(s)
	return s, nil
}

// forwardDebugger passes a debugger session on to the served application.
func (h *Harness) forwardDebugger(s *browser.Session) {
	key := h.opts.DebugSession
	if key == "" {
		key = h.cfg.DebugIDEKey()
	}
	if key == "" {
		return
	}
	if err := s.SetCookie(DebugCookie, key); err != nil {
		h.logger.Warn("failed to forward debugger cookie", "err", err)
	}
}

// tearDown shuts the kernel down, stops the sessions and restores the
// environment, in that order.
func (h *Harness) tearDown() {
	if h.kernel != nil {
		h.kernel.Shutdown()
	}
	h.loggedInUser = nil
	if h.sessions != nil {
		if err := h.sessions.CloseAll(); err != nil {
			h.t.Errorf("failed to stop sessions: %v", err)
		}
	}
	if h.run != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		if err := h.sandbox.Restore(ctx, h.run); err != nil {
			h.t.Errorf("failed to restore environment: %v", err)
		}
		cancel()
	}
	h.cancel()
	if h.ownsEnv && h.env != nil {
		h.env.Registry.Close()
	}
	h.events.OnTestEnd(h.t.Name(), h.t.Failed())
}

// abort reports an environment fault and stops the test.
func (h *Harness) abort(err error) {
	h.t.Helper()
	h.t.Errorf("%v", err)
	h.t.FailNow()
}

// fail records err as an assertion failure and stops the test.
func (h *Harness) fail(err error) {
	h.t.Helper()
	h.t.Errorf("%s", failureFor(err).Message)
	h.t.FailNow()
}

// Context is cancelled when the run's time limit expires.
func (h *Harness) Context() context.Context { return h.ctx }

func (h *Harness) Run() *RunContext              { return h.run }
func (h *Harness) Kernel() *app.Kernel           { return h.kernel }
func (h *Harness) Environment() *Environment     { return h.env }
func (h *Harness) Sessions() *browser.Manager    { return h.sessions }
func (h *Harness) Config() *config.HarnessConfig { return h.cfg }
func (h *Harness) Logger() *log.Logger           { return h.logger }

// Container returns the live service container.
func (h *Harness) Container() *app.Container {
	if h.kernel == nil {
		return nil
	}
	return h.kernel.Container()
}

// Session returns the named session, or the default one.
func (h *Harness) Session(name ...string) *browser.Session {
	h.t.Helper()
	s, err := h.sessions.Get(firstOrEmpty(name))
	if err != nil {
		h.fail(err)
	}
	return s
}

// AssertSession returns assertions over the named session, or the default
// one.
func (h *Harness) AssertSession(name ...string) *Assertions {
	h.t.Helper()
	return &Assertions{t: h.t, web: browser.NewWebAssert(h.Session(name...))}
}

func firstOrEmpty(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// EnableModules installs modules mid-test and rebuilds the container.
func (h *Harness) EnableModules(modules ...string) {
	h.t.Helper()
	if err := h.kernel.InstallModules(h.ctx, uniqueModules(modules)); err != nil {
		h.fail(err)
	}
	h.RefreshVariables()
	h.prepareRequestForGenerator()
}

// RebuildContainer compiles a new container from storage. The logged in
// identity carries over and the synthetic request is attached again so the
// URL generator can build absolute URLs.
func (h *Harness) RebuildContainer() *app.Container {
	h.t.Helper()
	c, err := h.kernel.RebuildContainer(h.ctx)
	if err != nil {
		h.fail(err)
	}
	h.prepareRequestForGenerator()
	return c
}

// prepareRequestForGenerator pushes a synthetic request for the site's
// base URL onto the container.
func (h *Harness) prepareRequestForGenerator() {
	c := h.Container()
	if c == nil {
		return
	}
	req, err := http.NewRequest(http.MethodGet, h.run.BaseURL+"/user", nil)
	if err != nil {
		h.logger.Warn("failed to build synthetic request", "err", err)
		return
	}
	req.Host = h.run.Domain
	c.RequestStack.Push(req)
	c.RequestContext.FromRequest(req, h.run.BasePath)
}

// URL generates the absolute URL of a route.
func (h *Harness) URL(route string, params map[string]string) string {
	h.t.Helper()
	u, err := h.Container().URLGenerator.Generate(route, params, true)
	if err != nil {
		h.fail(err)
	}
	return u
}

// GetAbsoluteURL resolves a path against the site's base URL. URLs with a
// host are returned unchanged; a leading base path is not repeated.
func (h *Harness) GetAbsoluteURL(path string) string {
	return absoluteURL(h.run.BaseURL, h.run.BasePath, path)
}

func absoluteURL(baseURL, basePath, path string) string {
	if u, err := url.Parse(path); err == nil && u.Host != "" {
		return path
	}
	if basePath != "" && (path == basePath || strings.HasPrefix(path, basePath+"/")) {
		path = strings.TrimPrefix(path, basePath)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// Get navigates the current session to path and returns the response body.
func (h *Harness) Get(path string, query url.Values) string {
	h.t.Helper()
	target := h.GetAbsoluteURL(path)
	if len(query) > 0 {
		u, err := url.Parse(target)
		if err != nil {
			h.fail(err)
		}
		q := u.Query()
		for k, v := range query {
			q[k] = v
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	s := h.OpenSession("")
	if err := s.Visit(h.ctx, target); err != nil {
		h.fail(err)
	}
	h.RefreshVariables()
	return s.Content()
}

// SubmitForm fills fields, keyed by field locator, and presses the submit
// button labelled submit. formID restricts the lookup to one form.
func (h *Harness) SubmitForm(fields map[string]string, submit, formID string) {
	h.t.Helper()
	s := h.OpenSession("")
	if err := s.SubmitForm(h.ctx, fields, submit, formID); err != nil {
		h.fail(err)
	}
	h.RefreshVariables()
}

// identify attaches a fresh signed test token so the served application
// selects this run's tables.
func (h *Harness) identify(s *browser.Session) error {
	token, err := app.GenerateTestToken(h.run.SandboxRoot, h.run.Prefix, time.Now())
	if err != nil {
		return fault("sign test token", err)
	}
	if err := s.SetCookie(app.TestCookieName, app.EncodeTestCookie(token)); err != nil {
		return err
	}
	s.SetRequestHeader("User-Agent", token)
	return nil
}

// RefreshVariables drops everything cached in this process that a request
// to the served application may have changed.
func (h *Harness) RefreshVariables() {
	h.env.Statics.Reset(app.StaticCacheTags, app.StaticCacheDeletedTags, app.StaticCacheInvalidatedTags)
	if c := h.Container(); c != nil {
		c.Config.Reset()
		c.State.ResetCache()
	}
}

// GetOptions returns the options of a select field keyed by value.
func (h *Harness) GetOptions(locator string) map[string]string {
	h.t.Helper()
	f := h.AssertSession().SelectExists(locator)
	out := map[string]string{}
	for _, o := range f.Options() {
		out[o.Value] = o.Label
	}
	return out
}

// FailNow stops the test, typically after a fixture recorded why.
func (h *Harness) FailNow() {
	h.t.Helper()
	h.t.FailNow()
}

// Fatalf records a failure and stops the test.
func (h *Harness) Fatalf(format string, args ...any) {
	h.t.Helper()
	h.fail(&AssertionFailure{Message: fmt.Sprintf(format, args...)})
}
