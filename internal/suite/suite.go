// Package suite holds the functional tests shipped with sitetest. They run
// under go test and from the sitetest run command alike.
package suite

import (
	"slices"
	"strconv"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/harness"
	"github.com/themizzi/sitetest/internal/runner"
)

// Case is one functional test.
type Case struct {
	Name string
	// Modules are enabled on top of the install profile.
	Modules []string
	Run     func(h *harness.Harness)
}

// Cases returns every built-in case.
func Cases() []Case {
	return []Case{
		{Name: "hello page", Modules: []string{"simpletest_test"}, Run: helloPage},
		{Name: "example form", Modules: []string{"simpletest_test"}, Run: exampleForm},
		{Name: "create role", Run: createRole},
		{Name: "login logout", Run: loginLogout},
		{Name: "rebuild keeps identity", Run: rebuildKeepsIdentity},
		{Name: "registration mail", Run: registrationMail},
	}
}

// Run runs cases as subtests of c. Each case gets its own harness built
// from opts.
func Run(c *runner.Context, cases []Case, opts harness.Options) {
	for _, tc := range cases {
		c.Run(tc.Name, func(c *runner.Context) {
			caseOpts := opts
			caseOpts.Modules = append(slices.Clone(opts.Modules), tc.Modules...)
			tc.Run(harness.New(c, caseOpts))
		})
	}
}

func helloPage(h *harness.Harness) {
	account := h.CreateUser([]string{"simpletest_test access tests"}, "")
	if account == nil {
		h.Fatalf("Failed to create a user with access to the test pages.")
	}
	h.Login(account)

	h.Get("simpletest/hello", nil)
	assert := h.AssertSession()
	assert.StatusCodeEquals(200)
	assert.PageTextContains("Hello Amsterdam")
}

func exampleForm(h *harness.Harness) {
	h.Get("simpletest/example-form", nil)
	h.SubmitForm(map[string]string{"name": "Foobaz"}, "Save configuration", "")

	assert := h.AssertSession()
	assert.StatusCodeEquals(200)
	assert.FieldValueEquals("name", "Foobaz")
}

func createRole(h *harness.Harness) {
	rid, ok := h.CreateRole([]string{"access content"}, "", "", -1)
	if !ok {
		h.FailNow()
	}
	granted, err := h.Container().Roles.Permissions(h.Context(), rid)
	if err != nil {
		h.Fatalf("Failed to read permissions of role %s: %v", rid, err)
	}
	if !slices.Equal(granted, []string{"access content"}) {
		h.Fatalf("Role %s has permissions %v, but [access content] expected.", rid, granted)
	}
}

func loginLogout(h *harness.Harness) {
	account := h.CreateUser(nil, "")
	if account == nil {
		h.FailNow()
	}
	h.Login(account)
	if h.Container().CurrentUser.ID() != account.ID {
		h.Fatalf("Current user is %d, but %d expected.", h.Container().CurrentUser.ID(), account.ID)
	}

	h.Logout()
	if account.SessionID != "" {
		h.Fatalf("Session of %s was kept after logout.", account.Name)
	}
	if h.Container().CurrentUser.IsAuthenticated() {
		h.Fatalf("Current user is still authenticated after logout.")
	}
}

func rebuildKeepsIdentity(h *harness.Harness) {
	account := h.CreateUser(nil, "")
	if account == nil {
		h.FailNow()
	}
	h.Login(account)

	c := h.RebuildContainer()
	if c.CurrentUser.ID() != account.ID {
		h.Fatalf("Current user is %d after rebuild, but %d expected.", c.CurrentUser.ID(), account.ID)
	}
	h.Get(h.URL(app.RouteUserPage, map[string]string{"user": strconv.FormatInt(account.ID, 10)}), nil)
	assert := h.AssertSession()
	assert.StatusCodeEquals(200)
	assert.ElementTextContains("h1", account.Name)
}

func registrationMail(h *harness.Harness) {
	name := harness.RandomName(8)
	h.Get("user/register", nil)
	h.SubmitForm(map[string]string{
		"mail": name + "@example.com",
		"name": name,
		"pass": harness.RandomName(12),
	}, "Create new account", "")
	h.AssertSession().PageTextContains("Registration successful.")

	mails := h.Mails()
	if len(mails) != 1 {
		h.Fatalf("%d mails were sent, but 1 expected.", len(mails))
	}
	if mails[0].To != name+"@example.com" {
		h.Fatalf("Mail was sent to %s, but %s@example.com expected.", mails[0].To, name)
	}
}
