package harness

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRandomName(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		name := RandomName(n)
		if len(name) != n || !pattern.MatchString(name) {
			t.Fatalf("RandomName(%d) = %q", n, name)
		}
	})
	assert.Empty(t, RandomName(0))
}

func TestRandomString(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		s := RandomString(n)
		if len(s) != n {
			t.Fatalf("RandomString(%d) has length %d", n, len(s))
		}
		for i := 0; i < len(s); i++ {
			if s[i] < 32 || s[i] > 126 {
				t.Fatalf("non printable byte %d in %q", s[i], s)
			}
		}
		if n >= 3 && s[n/2] != '&' {
			t.Fatalf("RandomString(%d) = %q has no ampersand at %d", n, s, n/2)
		}
	})
}

// fixtureHarness runs the harness against a recording TB so soft failures
// can be inspected.
func fixtureHarness(t *testing.T) (*Harness, *fakeTB) {
	t.Helper()
	fake := newFakeTB(t)
	var h *Harness
	require.False(t, fake.run(func() { h = New(fake, siteOptions(serveSite(t))) }), "setup failed: %v", fake.Errors())
	return h, fake
}

func TestCreateRole_ExactPermissions(t *testing.T) {
	h, fake := fixtureHarness(t)
	c := h.Container()

	rid, ok := h.CreateRole([]string{"access content"}, "", "", -1)

	require.True(t, ok, fake.Errors())
	granted, err := c.Roles.Permissions(h.Context(), rid)
	require.NoError(t, err)
	assert.Equal(t, []string{"access content"}, granted)

	role, err := c.Roles.Load(h.Context(), rid)
	require.NoError(t, err)
	assert.Equal(t, rid, role.Label, "label defaults to the id")
}

func TestCreateRole_WeightGoesLast(t *testing.T) {
	h, _ := fixtureHarness(t)
	c := h.Container()
	next, err := c.Roles.NextWeight(h.Context())
	require.NoError(t, err)

	rid, ok := h.CreateRole(nil, "editor", "Editor", -1)
	require.True(t, ok)

	role, err := c.Roles.Load(h.Context(), rid)
	require.NoError(t, err)
	assert.Equal(t, "editor", role.ID)
	assert.Equal(t, "Editor", role.Label)
	assert.Equal(t, next, role.Weight)
}

func TestCreateRole_UnknownPermission(t *testing.T) {
	h, fake := fixtureHarness(t)
	c := h.Container()
	weight, err := c.Roles.NextWeight(h.Context())
	require.NoError(t, err)

	rid, ok := h.CreateRole([]string{"access content", "fly", "teleport"}, "pilot", "", -1)

	assert.False(t, ok)
	assert.Empty(t, rid)
	assert.Equal(t, []string{"Invalid permissions fly, teleport."}, fake.Errors())

	exists, err := c.Roles.Exists(h.Context(), "pilot")
	require.NoError(t, err)
	assert.False(t, exists)
	after, err := c.Roles.NextWeight(h.Context())
	require.NoError(t, err)
	assert.Equal(t, weight, after)
}

func TestCreateUser(t *testing.T) {
	h, fake := fixtureHarness(t)
	c := h.Container()

	account := h.CreateUser([]string{"access content"}, "")

	require.NotNil(t, account, fake.Errors())
	assert.Equal(t, account.Name+"@example.com", account.Mail)
	assert.NotEmpty(t, account.PassRaw)
	require.Len(t, account.Roles, 2)
	rid := account.Roles[1]

	loaded, err := c.Users.Load(h.Context(), account.ID)
	require.NoError(t, err)
	assert.Equal(t, account.Name, loaded.Name)
	assert.Contains(t, loaded.Roles, rid)
}

func TestCreateUser_UnknownPermission(t *testing.T) {
	h, fake := fixtureHarness(t)
	count, err := h.Container().Users.Count(h.Context())
	require.NoError(t, err)

	account := h.CreateUser([]string{"fly"}, "pilot")

	assert.Nil(t, account)
	assert.Equal(t, []string{"Invalid permissions fly."}, fake.Errors())
	after, err := h.Container().Users.Count(h.Context())
	require.NoError(t, err)
	assert.Equal(t, count, after)
}

func TestCheckPermissions(t *testing.T) {
	h, fake := fixtureHarness(t)

	assert.True(t, h.CheckPermissions([]string{"access content", "administer users"}))
	assert.Empty(t, fake.Errors())
	assert.False(t, h.CheckPermissions([]string{"nope"}))
	assert.True(t, strings.HasPrefix(fake.Errors()[0], "Invalid permissions nope"))
}

func TestLogin_WrongPasswordFails(t *testing.T) {
	site := serveSite(t)
	fake := newFakeTB(t)

	t.Run("run", func(t *testing.T) {
		fake.T = t
		stopped := fake.run(func() {
			h := New(fake, siteOptions(site))
			account := h.CreateUser(nil, "jane")
			account.PassRaw = "wrong"
			h.Login(account)
		})
		assert.True(t, stopped)
	})

	assert.Equal(t, []string{"User jane was not logged in."}, fake.Errors())
}
