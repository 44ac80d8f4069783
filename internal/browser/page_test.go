package browser

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const formPage = `<!DOCTYPE html>
<html>
<head><title>Example</title><style>p { color: red }</style></head>
<body>
  <script>var hidden = "secret";</script>
  <p>Hello

     Amsterdam</p>
  <form id="example-form" action="/submit" method="post">
    <label for="edit-name">Your name</label>
    <input type="text" id="edit-name" name="name" value="Bob">
    <input type="email" name="mail" placeholder="E-mail address">
    <input type="hidden" name="form_id" value="example_form">
    <label><input type="checkbox" name="subscribe" value="yes"> Subscribe</label>
    <input type="checkbox" name="agree" checked>
    <select name="color" id="edit-color">
      <option value="r">Red</option>
      <option value="g" selected>Green</option>
    </select>
    <textarea name="bio">About me</textarea>
    <input type="text" name="locked" value="x" disabled>
    <input type="submit" name="op" value="Save configuration">
    <button type="submit" name="op" value="delete">Delete</button>
  </form>
  <form><input type="submit" value="Search"></form>
  <form id="filter-form" action="/filter"><input type="text" name="q" value="widgets"></form>
  <button form="filter-form" name="op" value="reset">Reset</button>
  <button form="filter-form" id="apply-filter" name="op" value="apply">Apply</button>
</body>
</html>`

func parseFormPage(t *testing.T) *Page {
	t.Helper()
	p, err := ParsePage(formPage, "http://example.com/form?x=1")
	require.NoError(t, err)
	return p
}

func TestPage_Text(t *testing.T) {
	p := parseFormPage(t)

	text := p.Text()

	assert.Contains(t, text, "Hello Amsterdam")
	assert.NotContains(t, text, "secret")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Example")
}

func TestPage_FindField(t *testing.T) {
	p := parseFormPage(t)

	tests := []struct {
		locator  string
		expected string
	}{
		{locator: "edit-name", expected: "name"},
		{locator: "name", expected: "name"},
		{locator: "Your name", expected: "name"},
		{locator: "E-mail address", expected: "mail"},
		{locator: "Subscribe", expected: "subscribe"},
		{locator: "bio", expected: "bio"},
	}
	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			f := p.FindField(tt.locator)
			require.NotNil(t, f)
			assert.Equal(t, tt.expected, f.Name())
		})
	}

	assert.Nil(t, p.FindField("form_id"), "hidden inputs are not fields")
	assert.Nil(t, p.FindField("missing"))
}

func TestField_Value(t *testing.T) {
	p := parseFormPage(t)

	assert.Equal(t, "Bob", p.FindField("name").Value())
	assert.Equal(t, "g", p.FindField("color").Value())
	assert.Equal(t, "About me", p.FindField("bio").Value())
	assert.Equal(t, "", p.FindField("subscribe").Value())
	assert.Equal(t, "on", p.FindField("agree").Value())
	assert.True(t, p.FindField("agree").IsChecked())
}

func TestPage_FindButton(t *testing.T) {
	p := parseFormPage(t)

	save := p.FindButton("Save configuration")
	require.NotNil(t, save)
	assert.Equal(t, "Save configuration", save.AttrOr("value", ""))

	del := p.FindButton("Delete")
	require.NotNil(t, del)
	assert.Equal(t, "delete", del.AttrOr("value", ""))

	assert.NotNil(t, p.FindButton("Save"), "partial labels match when nothing matches exactly")
	assert.Nil(t, p.FindButton("Publish"))
}

func TestPage_FindSelect(t *testing.T) {
	p := parseFormPage(t)

	f := p.FindSelect("edit-color")
	require.NotNil(t, f)
	assert.Equal(t, []Option{
		{Value: "r", Label: "Red"},
		{Value: "g", Label: "Green", Selected: true},
	}, f.Options())
	assert.Nil(t, p.FindSelect("name"))
}

func TestPage_BuildSubmission(t *testing.T) {
	p := parseFormPage(t)
	form := p.FindForm("example-form")
	button := findButton(form, "Save configuration")
	require.NotNil(t, button)

	sub, err := p.BuildSubmission(form, button, map[string]string{
		"name":      "Foobaz",
		"Subscribe": "1",
		"agree":     "0",
		"color":     "Red",
	})
	require.NoError(t, err)

	assert.Equal(t, "POST", sub.Method)
	assert.Equal(t, "http://example.com/submit", sub.Action)
	assert.Equal(t, "Foobaz", sub.Values.Get("name"))
	assert.Equal(t, "yes", sub.Values.Get("subscribe"))
	assert.False(t, sub.Values.Has("agree"))
	assert.Equal(t, "r", sub.Values.Get("color"))
	assert.Equal(t, "example_form", sub.Values.Get("form_id"))
	assert.Equal(t, "About me", sub.Values.Get("bio"))
	assert.Equal(t, []string{"Save configuration"}, sub.Values["op"])
	assert.False(t, sub.Values.Has("locked"))
	assert.Equal(t, `form[id="example-form"]`, sub.Form)
	assert.Len(t, sub.Fields, 4)
}

func TestPage_BuildSubmissionGET(t *testing.T) {
	p := parseFormPage(t)
	button := p.FindButton("Search")
	require.NotNil(t, button)

	sub, err := p.BuildSubmission(p.FormFor(button), button, nil)
	require.NoError(t, err)

	target, body := sub.Encode()
	assert.Equal(t, "GET", sub.Method)
	assert.Equal(t, "http://example.com/form", target)
	assert.Empty(t, body)
	assert.Equal(t, "form >> nth=1", sub.Form)
}

func TestPage_BuildSubmissionLinkedButton(t *testing.T) {
	p := parseFormPage(t)

	tests := []struct {
		label    string
		selector string
		op       string
	}{
		{"Reset", `:is(` + buttonQuery + `)[form="filter-form"] >> nth=0`, "reset"},
		{"Apply", `[id="apply-filter"]`, "apply"},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			button := p.FindButton(tt.label)
			require.NotNil(t, button)

			sub, err := p.BuildSubmission(p.FormFor(button), button, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.selector, sub.Button)
			assert.Equal(t, "widgets", sub.Values.Get("q"))
			assert.Equal(t, tt.op, sub.Values.Get("op"))
		})
	}
}

func TestPage_BuildSubmissionUnknownField(t *testing.T) {
	p := parseFormPage(t)
	form := p.FindForm("example-form")

	_, err := p.BuildSubmission(form, findButton(form, "Delete"), map[string]string{"nope": "x"})

	var notFound *ElementNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, `Form field with id|name|label|value "nope" not found.`, err.Error())
}
