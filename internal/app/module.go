package app

import (
	"fmt"
	"sort"
	"strings"

	"github.com/themizzi/sitetest/internal/models"
)

// Route is a named path a module serves.
type Route struct {
	Name       string
	Path       string
	Permission string
	// Methods defaults to GET when empty.
	Methods []string
}

// Module declares what an extension contributes to a site.
type Module struct {
	Name         string
	Dependencies []string
	Permissions  []models.Permission
	Routes       []Route
	// DefaultConfig is written on install for objects that do not exist yet.
	DefaultConfig map[string]map[string]any
}

// Profiles lists the modules each install profile enables.
var Profiles = map[string][]string{
	"minimal": {"system", "user"},
	"testing": {"system", "user", "node"},
}

// ModuleInstallError names every module that could not be installed.
type ModuleInstallError struct {
	Requested []string
	Missing   []string
	Err       error
}

func (e *ModuleInstallError) Error() string {
	if len(e.Missing) == 0 && e.Err != nil {
		return fmt.Sprintf("Unable to install modules %s: %v", strings.Join(e.Requested, ", "), e.Err)
	}
	return fmt.Sprintf("Unable to install modules %s due to missing modules %s.",
		strings.Join(e.Requested, ", "), strings.Join(e.Missing, ", "))
}

func (e *ModuleInstallError) Unwrap() error { return e.Err }

// LookupModule returns the declaration of name.
func LookupModule(name string) (Module, bool) {
	m, ok := modules[name]
	return m, ok
}

// ModuleNames returns every known module, sorted.
func ModuleNames() []string {
	names := make([]string, 0, len(modules))
	for name := range modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveDependencies returns names plus their dependencies, dependencies
// first, without duplicates. Unknown modules yield a ModuleInstallError
// listing all of them.
func ResolveDependencies(names []string) ([]string, error) {
	var ordered, missing []string
	seen := map[string]bool{}

	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		m, ok := modules[name]
		if !ok {
			missing = append(missing, name)
			return
		}
		for _, dep := range m.Dependencies {
			visit(dep)
		}
		ordered = append(ordered, name)
	}
	for _, name := range names {
		visit(name)
	}

	if len(missing) > 0 {
		return nil, &ModuleInstallError{Requested: names, Missing: missing}
	}
	return ordered, nil
}
