package handlers

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/themizzi/sitetest/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page is the data every template receives.
type Page struct {
	Title       string
	SiteName    string
	BasePath    string
	Stylesheets []string
	Messages    []string
	Errors      []string
	CurrentUser *models.Account
	Account     *models.Account
	Form        map[string]string
	Body        string
}

// Renderer executes the embedded page templates.
type Renderer struct {
	templates map[string]*template.Template
}

var pages = []string{"front", "error", "hello", "login", "register", "user", "example_form"}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: map[string]*template.Template{}}
	for _, name := range pages {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render writes page name with status.
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, page Page) error {
	tmpl, ok := r.templates[name]
	if !ok {
		return fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name+".html", page); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
