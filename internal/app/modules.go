package app

import "github.com/themizzi/sitetest/internal/models"

// Route names used by handlers and fixtures.
const (
	RouteFront       = "system.front"
	RouteLogin       = "user.login"
	RouteLogout      = "user.logout"
	RouteUserPage    = "user.page"
	RouteRegister    = "user.register"
	RouteHello       = "simpletest_test.hello"
	RouteExampleForm = "simpletest_test.example_form"
)

var modules = map[string]Module{
	"system": {
		Name: "system",
		Permissions: []models.Permission{
			{Name: "administer site configuration", Title: "Administer site configuration"},
			{Name: "access site reports", Title: "View site reports"},
		},
		Routes: []Route{
			{Name: RouteFront, Path: "/"},
		},
		DefaultConfig: map[string]map[string]any{
			"system.site": {
				"name": "Drupal",
				"mail": "",
				"page": map[string]any{"front": "/user/login", "403": "", "404": ""},
			},
			"system.performance": {
				"css": map[string]any{"preprocess": true},
				"js":  map[string]any{"preprocess": true},
			},
			"system.logging": {"error_level": "hide"},
			"system.mail": {
				"interface": map[string]any{"default": "log_mail"},
			},
		},
	},
	"user": {
		Name:         "user",
		Dependencies: []string{"system"},
		Permissions: []models.Permission{
			{Name: "administer users", Title: "Administer users"},
			{Name: "administer permissions", Title: "Administer permissions"},
			{Name: "access user profiles", Title: "View user information"},
		},
		Routes: []Route{
			{Name: RouteLogin, Path: "/user/login", Methods: []string{"GET", "POST"}},
			{Name: RouteLogout, Path: "/user/logout"},
			{Name: RouteRegister, Path: "/user/register", Methods: []string{"GET", "POST"}},
			{Name: RouteUserPage, Path: "/user/{user}"},
		},
		DefaultConfig: map[string]map[string]any{
			"user.settings": {"register": "visitors"},
		},
	},
	"node": {
		Name:         "node",
		Dependencies: []string{"user"},
		Permissions: []models.Permission{
			{Name: "access content", Title: "View published content"},
			{Name: "create content", Title: "Create content"},
		},
	},
	"simpletest_test": {
		Name:         "simpletest_test",
		Dependencies: []string{"system"},
		Permissions: []models.Permission{
			{Name: "simpletest_test access tests", Title: "Access test pages"},
		},
		Routes: []Route{
			{Name: RouteHello, Path: "/simpletest/hello", Permission: "simpletest_test access tests"},
			{Name: RouteExampleForm, Path: "/simpletest/example-form", Methods: []string{"GET", "POST"}},
		},
		DefaultConfig: map[string]map[string]any{
			"simpletest_test.settings": {"name": ""},
		},
	},
}
