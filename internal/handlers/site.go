// Package handlers serves the reference application exercised by the
// harness. Every request is bootstrapped against the site selected by the
// test token it carries.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/database"
	"github.com/themizzi/sitetest/internal/logging"
	"github.com/themizzi/sitetest/internal/models"
)

// SiteConfig configures the served application.
type SiteConfig struct {
	// SandboxRoot holds one directory per test run.
	SandboxRoot string
	// DefaultSitePath is used for requests without a test token.
	DefaultSitePath string
	// Storage is the un-prefixed storage engine shared with test runs.
	Storage  database.ConnectionInfo
	BasePath string
	Logger   *log.Logger
	Now      func() time.Time
}

// Site is the served application.
type Site struct {
	cfg      SiteConfig
	registry *database.Registry
	renderer *Renderer
	handler  http.Handler
}

type scopeKey struct{}

// scope is what the bootstrap middleware attaches to a request.
type scope struct {
	kernel    *app.Kernel
	container *app.Container
	logger    *log.Logger
	prefix    string
	basePath  string
}

func scopeFrom(r *http.Request) *scope {
	s, _ := r.Context().Value(scopeKey{}).(*scope)
	return s
}

// NewSite builds the router of the served application.
func NewSite(cfg SiteConfig) (*Site, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.BasePath = strings.TrimRight(cfg.BasePath, "/")

	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	s := &Site{cfg: cfg, registry: database.NewRegistry(), renderer: renderer}

	handlers := map[string]http.Handler{
		app.RouteFront:       NewFrontPageHandler(renderer),
		app.RouteLogin:       NewLoginHandler(renderer),
		app.RouteLogout:      NewLogoutHandler(renderer),
		app.RouteRegister:    NewRegisterHandler(renderer),
		app.RouteUserPage:    NewUserPageHandler(renderer),
		app.RouteHello:       NewHelloHandler(renderer),
		app.RouteExampleForm: NewExampleFormHandler(renderer),
	}

	site := chi.NewRouter()
	site.Use(middleware.Recoverer)
	site.Use(s.bootstrap)
	site.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, http.StatusNotFound, "Page not found", "The requested page could not be found.")
	})
	for _, name := range app.ModuleNames() {
		m, _ := app.LookupModule(name)
		for _, route := range m.Routes {
			methods := route.Methods
			if len(methods) == 0 {
				methods = []string{http.MethodGet}
			}
			for _, method := range methods {
				site.Method(method, route.Path, s.guard(route.Name, handlers[route.Name]))
			}
		}
	}

	if cfg.BasePath == "" {
		s.handler = site
	} else {
		root := chi.NewRouter()
		root.Mount(cfg.BasePath, site)
		s.handler = root
	}
	return s, nil
}

// ServeHTTP dispatches to the router.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close releases the storage pools.
func (s *Site) Close() error {
	return s.registry.Close()
}

// testToken prefers the cookie. A cookie that does not hold a test token
// falls back to the User-Agent so it can never select the default site on
// its own.
func testToken(r *http.Request) string {
	if c, err := r.Cookie(app.TestCookieName); err == nil {
		if token := app.DecodeTestCookie(c.Value); app.IsTestToken(token) {
			return token
		}
	}
	return r.UserAgent()
}

// bootstrap selects the site from the test token, boots its kernel and
// resolves the session.
func (s *Site) bootstrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sitePath, prefix, logger := s.cfg.DefaultSitePath, "", s.cfg.Logger

		if token := testToken(r); app.IsTestToken(token) {
			p, err := app.ValidateTestToken(s.cfg.SandboxRoot, token, s.cfg.Now())
			if err != nil {
				logger.Warn("rejected test request", "path", r.URL.Path, "err", err)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			prefix = p
			sitePath, _ = app.SandboxDir(s.cfg.SandboxRoot, p)
			fileLogger, closer, err := logging.NewFileLogger(filepath.Join(sitePath, app.ErrorLogFile), logging.Options{Level: "warn", Prefix: p})
			if err == nil {
				defer closer.Close()
				logger = fileLogger
			}
		}

		settings, err := app.LoadSettings(sitePath)
		if errors.Is(err, app.ErrSiteNotInstalled) {
			http.Error(w, "Site not installed", http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			logger.Error("failed to load settings", "err", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if settings.Database.Prefix != prefix {
			logger.Error("settings do not match the storage prefix", "settings", settings.Database.Prefix, "token", prefix)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		conn, err := s.registry.Open(ctx, s.cfg.Storage.WithPrefix(prefix))
		if err != nil {
			logger.Error("failed to connect to storage", "err", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		kernel := app.NewKernel(app.KernelOptions{SitePath: sitePath, Conn: conn, Settings: settings, Logger: logger})
		if err := kernel.Boot(ctx); err != nil {
			logger.Error("failed to boot kernel", "err", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer kernel.Shutdown()

		c := kernel.Container()
		c.RequestStack.Push(r)
		c.RequestContext.FromRequest(r, s.cfg.BasePath)

		if cookie, err := r.Cookie(models.SessionName(r.Host)); err == nil {
			s.resolveSession(ctx, c, cookie.Value)
		}

		sc := &scope{kernel: kernel, container: c, logger: logger, prefix: prefix, basePath: s.cfg.BasePath}
		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, scopeKey{}, sc)))
	})
}

func (s *Site) resolveSession(ctx context.Context, c *app.Container, sid string) {
	uid, ok, err := c.Sessions.Lookup(ctx, sid)
	if err != nil || !ok {
		return
	}
	account, err := c.Users.Load(ctx, uid)
	if err != nil || !account.IsActive() {
		return
	}
	account.SessionID = sid
	c.CurrentUser.SetAccount(account)
}

// guard answers 404 for routes of disabled modules and 403 when the current
// user lacks the route permission.
func (s *Site) guard(routeName string, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := scopeFrom(r)
		route, ok := sc.container.URLGenerator.Route(routeName)
		if !ok {
			s.fail(w, r, http.StatusNotFound, "Page not found", "The requested page could not be found.")
			return
		}
		if route.Permission != "" {
			allowed, err := sc.container.CurrentUser.HasPermission(r.Context(), route.Permission)
			if err != nil {
				serverError(s.renderer, w, r, err)
				return
			}
			if !allowed {
				accessDenied(s.renderer, w, r)
				return
			}
		}
		h.ServeHTTP(w, r)
	})
}

func (s *Site) fail(w http.ResponseWriter, r *http.Request, status int, title, body string) {
	page := newPage(r, title)
	page.Body = body
	if err := s.renderer.Render(w, status, "error", page); err != nil {
		http.Error(w, title, status)
	}
}
