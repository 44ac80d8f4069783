package browser

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldValue is a value set on a form control before submission.
type FieldValue struct {
	Name  string
	Type  string
	Value string
}

// Submission describes a form submission in a form every driver can replay:
// the encoded request for HTTP drivers, and the edited controls plus the
// pressed button for drivers that operate a live DOM.
type Submission struct {
	Method  string
	Action  string
	Enctype string
	Values  url.Values
	// Form is a selector for the form in the live document.
	Form string
	// Button is a selector for the pressed control.
	Button string
	Fields []FieldValue
}

// Encode returns the request target and body for the submission.
func (s *Submission) Encode() (target string, body string) {
	if s.Method == "GET" {
		u, _ := url.Parse(s.Action)
		u.RawQuery = s.Values.Encode()
		return u.String(), ""
	}
	return s.Action, s.Values.Encode()
}

// BuildSubmission collects the successful controls of form, applies edits
// keyed by field locator and adds the pressed button.
func (p *Page) BuildSubmission(form, button *goquery.Selection, edits map[string]string) (*Submission, error) {
	values := url.Values{}
	form.Find(fieldQuery).Each(func(_ int, s *goquery.Selection) {
		name := s.AttrOr("name", "")
		if name == "" {
			return
		}
		if _, disabled := s.Attr("disabled"); disabled {
			return
		}
		f := &Field{sel: s, root: form}
		switch f.Type() {
		case "submit", "button", "image", "reset", "file":
			return
		case "checkbox", "radio":
			if f.IsChecked() {
				values.Add(name, s.AttrOr("value", "on"))
			}
		case "select":
			selected := false
			for _, o := range f.Options() {
				if o.Selected {
					values.Add(name, o.Value)
					selected = true
				}
			}
			if _, multiple := s.Attr("multiple"); !selected && !multiple {
				if opts := f.Options(); len(opts) > 0 {
					values.Add(name, opts[0].Value)
				}
			}
		default:
			values.Add(name, f.Value())
		}
	})

	formSelector := p.formSelector(form)
	sub := &Submission{
		Method:  strings.ToUpper(form.AttrOr("method", "GET")),
		Enctype: form.AttrOr("enctype", "application/x-www-form-urlencoded"),
		Values:  values,
		Form:    formSelector,
	}
	if sub.Method != "POST" {
		sub.Method = "GET"
	}

	action, err := p.url.Parse(form.AttrOr("action", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid form action: %w", err)
	}
	action.Fragment = ""
	sub.Action = action.String()

	locators := make([]string, 0, len(edits))
	for l := range edits {
		locators = append(locators, l)
	}
	sort.Strings(locators)
	for _, locator := range locators {
		field := p.findField(form, locator)
		if field == nil {
			return nil, fieldNotFound(locator)
		}
		value := edits[locator]
		name := field.Name()
		switch field.Type() {
		case "checkbox":
			if truthy(value) {
				values.Set(name, field.sel.AttrOr("value", "on"))
			} else {
				values.Del(name)
			}
		case "select":
			v, ok := optionValue(field, value)
			if !ok {
				return nil, expectation("Option %q not found in select %q.", value, locator)
			}
			value = v
			values.Set(name, value)
		default:
			values.Set(name, value)
		}
		sub.Fields = append(sub.Fields, FieldValue{Name: name, Type: field.Type(), Value: value})
	}

	if name := button.AttrOr("name", ""); name != "" {
		values.Add(name, button.AttrOr("value", ""))
	}
	sub.Button = p.buttonSelector(form, button, formSelector)
	return sub, nil
}

// buttonSelector locates button for a real browser. Buttons outside the
// form are linked to it through their form attribute.
func (p *Page) buttonSelector(form, button *goquery.Selection, formSelector string) string {
	if idx := form.Find(buttonQuery).IndexOfSelection(button); idx >= 0 {
		return formSelector + " >> " + buttonQuery + " >> nth=" + strconv.Itoa(idx)
	}
	if id := button.AttrOr("id", ""); id != "" {
		return fmt.Sprintf("[id=%q]", id)
	}
	if formID := form.AttrOr("id", ""); formID != "" {
		linked := p.doc.Find(fmt.Sprintf("[form=%q]", formID)).Filter(buttonQuery)
		if idx := linked.IndexOfSelection(button); idx >= 0 {
			return fmt.Sprintf(":is(%s)[form=%q] >> nth=%d", buttonQuery, formID, idx)
		}
	}
	return buttonQuery + " >> nth=" + strconv.Itoa(p.doc.Find(buttonQuery).IndexOfSelection(button))
}

func (p *Page) formSelector(form *goquery.Selection) string {
	if id := form.AttrOr("id", ""); id != "" {
		return fmt.Sprintf("form[id=%q]", id)
	}
	return "form >> nth=" + strconv.Itoa(p.doc.Find("form").IndexOfSelection(form))
}

// optionValue resolves an option by value or label.
func optionValue(f *Field, value string) (string, bool) {
	for _, o := range f.Options() {
		if o.Value == value || o.Label == value {
			return o.Value, true
		}
	}
	return "", false
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes", "checked":
		return true
	}
	return false
}
