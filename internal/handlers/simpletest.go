package handlers

import (
	"net/http"
	"strings"
)

// FrontPageHandler serves the site root
type FrontPageHandler struct {
	renderer *Renderer
}

// NewFrontPageHandler creates a new front page handler
func NewFrontPageHandler(renderer *Renderer) *FrontPageHandler {
	return &FrontPageHandler{renderer: renderer}
}

// ServeHTTP redirects to system.site:page.front unless it is the root itself
func (h *FrontPageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	site, err := sc.container.Config.Get(r.Context(), "system.site")
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}
	if front := site.GetString("page.front"); front != "" && front != "/" && strings.HasPrefix(front, "/") {
		http.Redirect(w, r, sc.basePath+front, http.StatusSeeOther)
		return
	}
	if err := h.renderer.Render(w, http.StatusOK, "front", newPage(r, "")); err != nil {
		serverError(h.renderer, w, r, err)
	}
}

// HelloHandler serves the greeting page of the test module
type HelloHandler struct {
	renderer *Renderer
}

// NewHelloHandler creates a new hello handler
func NewHelloHandler(renderer *Renderer) *HelloHandler {
	return &HelloHandler{renderer: renderer}
}

// ServeHTTP handles GET /simpletest/hello
func (h *HelloHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.renderer.Render(w, http.StatusOK, "hello", newPage(r, "")); err != nil {
		serverError(h.renderer, w, r, err)
	}
}

// ExampleFormHandler edits simpletest_test.settings:name
type ExampleFormHandler struct {
	renderer *Renderer
}

// NewExampleFormHandler creates a new example form handler
func NewExampleFormHandler(renderer *Renderer) *ExampleFormHandler {
	return &ExampleFormHandler{renderer: renderer}
}

const exampleSettings = "simpletest_test.settings"

// ServeHTTP handles GET and POST /simpletest/example-form
func (h *ExampleFormHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sc := scopeFrom(r)
	ctx := r.Context()
	page := newPage(r, "")

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		cfg, err := sc.container.Config.GetEditable(ctx, exampleSettings)
		if err != nil {
			serverError(h.renderer, w, r, err)
			return
		}
		if err := cfg.Set("name", r.PostFormValue("name")).Save(ctx); err != nil {
			serverError(h.renderer, w, r, err)
			return
		}
		page.Messages = []string{"The configuration options have been saved."}
	}

	cfg, err := sc.container.Config.Get(ctx, exampleSettings)
	if err != nil {
		serverError(h.renderer, w, r, err)
		return
	}
	page.Form["name"] = cfg.GetString("name")
	if err := h.renderer.Render(w, http.StatusOK, "example_form", page); err != nil {
		serverError(h.renderer, w, r, err)
	}
}
