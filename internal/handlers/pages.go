package handlers

import (
	"net/http"

	"github.com/themizzi/sitetest/internal/models"
)

// newPage fills the fields shared by every page from the request scope.
func newPage(r *http.Request, title string) Page {
	page := Page{Title: title, SiteName: "Drupal", CurrentUser: models.Anonymous(), Form: map[string]string{}}
	sc := scopeFrom(r)
	if sc == nil {
		return page
	}
	page.BasePath = sc.basePath
	page.CurrentUser = sc.container.CurrentUser.Account()

	ctx := r.Context()
	if site, err := sc.container.Config.Get(ctx, "system.site"); err == nil && site.GetString("name") != "" {
		page.SiteName = site.GetString("name")
	}
	if perf, err := sc.container.Config.Get(ctx, "system.performance"); err == nil && perf.GetBool("css.preprocess") {
		page.Stylesheets = []string{sc.basePath + "/sites/default/files/css/css_aggregated.css"}
	} else {
		page.Stylesheets = []string{
			sc.basePath + "/core/modules/system/css/system.module.css",
			sc.basePath + "/core/modules/user/css/user.module.css",
		}
	}
	return page
}

func accessDenied(renderer *Renderer, w http.ResponseWriter, r *http.Request) {
	page := newPage(r, "Access denied")
	page.Body = "You are not authorized to access this page."
	if err := renderer.Render(w, http.StatusForbidden, "error", page); err != nil {
		http.Error(w, "Access denied", http.StatusForbidden)
	}
}

// serverError logs err and answers 500. The error itself is only shown when
// system.logging:error_level is verbose.
func serverError(renderer *Renderer, w http.ResponseWriter, r *http.Request, err error) {
	page := newPage(r, "Error")
	page.Body = "The website encountered an unexpected error. Please try again later."
	if sc := scopeFrom(r); sc != nil {
		sc.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		if logging, lerr := sc.container.Config.Get(r.Context(), "system.logging"); lerr == nil && logging.GetString("error_level") == "verbose" {
			page.Errors = append(page.Errors, err.Error())
		}
	}
	if rerr := renderer.Render(w, http.StatusInternalServerError, "error", page); rerr != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// redirect answers 303 to a named route.
func redirect(renderer *Renderer, w http.ResponseWriter, r *http.Request, routeName string, params map[string]string) {
	sc := scopeFrom(r)
	target, err := sc.container.URLGenerator.Generate(routeName, params, false)
	if err != nil {
		serverError(renderer, w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
