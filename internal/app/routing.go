package app

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ErrNoRequestContext is returned when an absolute URL is requested before
// the request context was populated.
var ErrNoRequestContext = errors.New("request context is not set")

// ErrRouteNotFound is returned for unknown route names.
var ErrRouteNotFound = errors.New("route not found")

// RequestStack tracks the requests the container is handling.
type RequestStack struct {
	mu    sync.Mutex
	stack []*http.Request
}

// Push adds r on top of the stack.
func (s *RequestStack) Push(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stack = append(s.stack, r)
}

// Pop removes and returns the top request.
func (s *RequestStack) Pop() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return nil
	}
	r := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return r
}

// Current returns the top request, if any.
func (s *RequestStack) Current() *http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// Len returns the number of stacked requests.
func (s *RequestStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stack)
}

// RequestContext is the part of the current request URL generation needs.
type RequestContext struct {
	mu       sync.RWMutex
	scheme   string
	host     string
	basePath string
	method   string
	pathInfo string
}

// FromRequest populates the context from r. basePath is the path prefix the
// application is served under.
func (c *RequestContext) FromRequest(r *http.Request, basePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheme = "http"
	if r.TLS != nil {
		c.scheme = "https"
	} else if r.URL.Scheme != "" {
		c.scheme = r.URL.Scheme
	}
	c.host = r.Host
	if c.host == "" {
		c.host = r.URL.Host
	}
	c.basePath = strings.TrimRight(basePath, "/")
	c.method = r.Method
	c.pathInfo = strings.TrimPrefix(r.URL.Path, c.basePath)
}

// IsSet reports whether a host is known.
func (c *RequestContext) IsSet() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host != ""
}

// Host returns the current host.
func (c *RequestContext) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// BasePath returns the current base path.
func (c *RequestContext) BasePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.basePath
}

// PathInfo returns the request path below the base path.
func (c *RequestContext) PathInfo() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pathInfo
}

// URLGenerator builds URLs for named routes.
type URLGenerator struct {
	routes  map[string]Route
	context *RequestContext
}

// NewURLGenerator indexes the routes of enabled.
func NewURLGenerator(enabled []string, rc *RequestContext) *URLGenerator {
	g := &URLGenerator{routes: map[string]Route{}, context: rc}
	for _, name := range enabled {
		m, ok := LookupModule(name)
		if !ok {
			continue
		}
		for _, route := range m.Routes {
			g.routes[route.Name] = route
		}
	}
	return g
}

// Route returns the route called name.
func (g *URLGenerator) Route(name string) (Route, bool) {
	r, ok := g.routes[name]
	return r, ok
}

// Generate returns the path (or absolute URL) of route name with params
// substituted into its {placeholders}.
func (g *URLGenerator) Generate(name string, params map[string]string, absolute bool) (string, error) {
	route, ok := g.routes[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrRouteNotFound, name)
	}
	path := route.Path
	for key, value := range params {
		path = strings.ReplaceAll(path, "{"+key+"}", url.PathEscape(value))
	}
	if strings.Contains(path, "{") {
		return "", fmt.Errorf("missing parameters for route %s: %s", name, path)
	}

	if !g.context.IsSet() {
		if absolute {
			return "", fmt.Errorf("%w: cannot build absolute URL for %s", ErrNoRequestContext, name)
		}
		return path, nil
	}
	g.context.mu.RLock()
	defer g.context.mu.RUnlock()
	path = g.context.basePath + path
	if !absolute {
		return path, nil
	}
	return g.context.scheme + "://" + g.context.host + path, nil
}
