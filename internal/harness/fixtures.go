package harness

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/themizzi/sitetest/internal/app"
	"github.com/themizzi/sitetest/internal/models"
)

const machineChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomName returns a lowercase alphanumeric name starting with a letter.
func RandomName(length int) string {
	if length <= 0 {
		return ""
	}
	b := make([]byte, length)
	b[0] = machineChars[rand.IntN(26)]
	for i := 1; i < length; i++ {
		b[i] = machineChars[rand.IntN(len(machineChars))]
	}
	return string(b)
}

// RandomString returns printable ASCII. Strings of three or more characters
// always contain an ampersand so escaping bugs show up.
func RandomString(length int) string {
	if length <= 0 {
		return ""
	}
	n := length
	if length >= 3 {
		n--
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(32 + rand.IntN(95))
	}
	if length < 3 {
		return string(b)
	}
	pos := length / 2
	return string(b[:pos]) + "&" + string(b[pos:])
}

// softFail records a fixture failure without stopping the test.
func (h *Harness) softFail(format string, args ...any) {
	h.t.Helper()
	h.t.Errorf(format, args...)
}

// CreateUser creates an active account with a generated password. With
// permissions, a role holding exactly those permissions is created and
// assigned first. It returns nil, after recording a failure, when anything
// could not be persisted. The plain password is kept in PassRaw.
func (h *Harness) CreateUser(permissions []string, name string) *models.Account {
	h.t.Helper()
	c := h.Container()

	var rid string
	if len(permissions) > 0 {
		var ok bool
		if rid, ok = h.CreateRole(permissions, "", "", -1); !ok {
			return nil
		}
	}

	if name == "" {
		name = RandomName(8)
	}
	pass := RandomName(8)
	account, err := models.NewAccount(name, name+"@example.com", pass, c.Settings.PasswordCost)
	if err != nil {
		h.softFail("Failed to create user %s: %v", name, err)
		return nil
	}
	if rid != "" {
		account.Roles = append(account.Roles, rid)
	}
	if err := c.Users.Create(h.ctx, account); err != nil {
		h.softFail("Failed to create user %s: %v", name, err)
		return nil
	}
	h.t.Logf("Created user with name %s and pass %s", name, pass)
	return account
}

// CheckPermissions reports whether every name is a declared permission. All
// unknown names are reported in one failure.
func (h *Harness) CheckPermissions(permissions []string) bool {
	h.t.Helper()
	invalid := h.Container().Permissions.Invalid(permissions)
	if len(invalid) > 0 {
		h.softFail("Invalid permissions %s.", strings.Join(invalid, ", "))
		return false
	}
	return true
}

// CreateRole creates a role with exactly permissions. An empty rid is
// generated, an empty label defaults to the id and a negative weight places
// the role last. Unknown permissions fail before anything is stored; grants
// are read back to catch silently dropped ones.
func (h *Harness) CreateRole(permissions []string, rid, label string, weight int) (string, bool) {
	h.t.Helper()
	c := h.Container()

	if !h.CheckPermissions(permissions) {
		return "", false
	}
	if rid == "" {
		rid = RandomName(8)
	}
	if weight < 0 {
		w, err := c.Roles.NextWeight(h.ctx)
		if err != nil {
			h.softFail("Failed to create role %s: %v", rid, err)
			return "", false
		}
		weight = w
	}

	role, err := models.NewRole(rid, label, weight)
	if err != nil {
		h.softFail("Failed to create role %s: %v", rid, err)
		return "", false
	}
	if err := c.Roles.Create(h.ctx, role); err != nil {
		h.softFail("Failed to create role %s: %v", rid, err)
		return "", false
	}
	h.t.Logf("Created role ID %s with name %s", role.ID, role.Label)

	if len(permissions) == 0 {
		return rid, true
	}
	if err := c.Roles.Grant(h.ctx, rid, permissions...); err != nil {
		h.softFail("Failed to grant permissions to role %s: %v", rid, err)
		return "", false
	}
	granted, err := c.Roles.Permissions(h.ctx, rid)
	if err != nil {
		h.softFail("Failed to read permissions of role %s: %v", rid, err)
		return "", false
	}
	var dropped []string
	for _, p := range permissions {
		if !slices.Contains(granted, p) {
			dropped = append(dropped, p)
		}
	}
	if len(dropped) > 0 {
		h.softFail("Failed to create permissions: %s", strings.Join(dropped, ", "))
		return "", false
	}
	return rid, true
}

// Login logs account in through the login form, after logging out whoever
// is logged in. The session cookie is recorded on the account and the
// container's current user follows.
func (h *Harness) Login(account *models.Account) {
	h.t.Helper()
	if h.loggedInUser != nil {
		h.Logout()
	}

	h.Get("user/login", nil)
	h.SubmitForm(map[string]string{
		"name": account.Name,
		"pass": account.PassRaw,
	}, "Log in", "")

	sid, ok, err := h.Session().Cookie(models.SessionName(h.run.Domain))
	if err != nil {
		h.fail(err)
	}
	if ok {
		account.SessionID = sid
	}
	if !h.UserIsLoggedIn(account) {
		h.fail(&AssertionFailure{Message: fmt.Sprintf("User %s was not logged in.", account.Name)})
	}
	h.loggedInUser = account
	h.Container().CurrentUser.SetAccount(account)
}

// Logout logs the current user out and checks that the anonymous login form
// is shown. The session cookie is forgotten before the container's current
// user becomes anonymous.
func (h *Harness) Logout() {
	h.t.Helper()
	h.Get("user/logout", nil)
	assert := h.AssertSession()
	assert.StatusCodeEquals(200)
	assert.FieldExists("name")
	assert.FieldExists("pass")

	if h.loggedInUser != nil {
		h.loggedInUser.SessionID = ""
	}
	h.loggedInUser = nil
	h.Container().CurrentUser.SetAccount(nil)
}

// LoggedInUser returns the account logged in through Login, if any.
func (h *Harness) LoggedInUser() *models.Account { return h.loggedInUser }

// UserIsLoggedIn reports whether account's session cookie maps to a live
// session of that account.
func (h *Harness) UserIsLoggedIn(account *models.Account) bool {
	h.t.Helper()
	if account == nil || account.SessionID == "" {
		return false
	}
	ok, err := h.Container().Sessions.Exists(h.ctx, account.SessionID, account.ID)
	if err != nil {
		h.fail(err)
	}
	return ok
}

// Mails returns the messages captured by the mail collector.
func (h *Harness) Mails() []app.Mail {
	h.t.Helper()
	c := h.Container()
	c.State.ResetCache()
	mails, err := c.Mail.Collected(h.ctx)
	if err != nil {
		h.fail(err)
	}
	return mails
}
