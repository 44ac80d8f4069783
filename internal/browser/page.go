package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	fieldQuery  = "input, textarea, select"
	buttonQuery = "button, input[type=submit], input[type=image], input[type=button], input[type=reset]"
)

// Page is a parsed snapshot of the last response of a session.
type Page struct {
	doc *goquery.Document
	raw string
	url *url.URL
}

// ParsePage parses raw HTML served from pageURL.
func ParsePage(raw, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", pageURL, err)
	}
	return &Page{doc: doc, raw: raw, url: u}, nil
}

// Raw returns the response body the page was parsed from.
func (p *Page) Raw() string { return p.raw }

// URL returns the address the page was served from.
func (p *Page) URL() *url.URL { return p.url }

// Document exposes the parsed DOM.
func (p *Page) Document() *goquery.Document { return p.doc }

// Find returns the elements matching a CSS selector.
func (p *Page) Find(css string) *goquery.Selection {
	return p.doc.Find(css)
}

// Text returns the visible text of the page with whitespace normalized.
func (p *Page) Text() string {
	return visibleText(p.doc.Selection)
}

// FindForm returns the form with the given id.
func (p *Page) FindForm(id string) *goquery.Selection {
	return p.doc.Find(fmt.Sprintf("form[id=%q]", id)).First()
}

// FindField locates a form control by id, name, label or placeholder.
func (p *Page) FindField(locator string) *Field {
	return p.findField(p.doc.Selection, locator)
}

// FindButton locates a button by id, name, value, text or title.
func (p *Page) FindButton(locator string) *goquery.Selection {
	return findButton(p.doc.Selection, locator)
}

// FindSelect locates a select element by id, name or label.
func (p *Page) FindSelect(locator string) *Field {
	sel := p.matchLabelled(p.doc.Selection.Find("select"), locator)
	if sel == nil {
		return nil
	}
	return &Field{sel: sel, root: p.doc.Selection}
}

// FormFor returns the form a submit control belongs to.
func (p *Page) FormFor(button *goquery.Selection) *goquery.Selection {
	if id, ok := button.Attr("form"); ok && id != "" {
		return p.FindForm(id)
	}
	return button.Closest("form")
}

func (p *Page) findField(scope *goquery.Selection, locator string) *Field {
	candidates := scope.Find(fieldQuery).Not("[type=submit], [type=image], [type=hidden], [type=button], [type=reset]")
	sel := p.matchLabelled(candidates, locator)
	if sel == nil {
		return nil
	}
	return &Field{sel: sel, root: p.doc.Selection}
}

// matchLabelled returns the first candidate whose id, name, label or
// placeholder equals locator.
func (p *Page) matchLabelled(candidates *goquery.Selection, locator string) *goquery.Selection {
	locator = NormalizeWhitespace(locator)
	var found *goquery.Selection
	for _, attr := range []string{"id", "name"} {
		candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if v, ok := s.Attr(attr); ok && v == locator {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if p.labelFor(s) == locator || s.AttrOr("placeholder", "") == locator {
			found = s
			return false
		}
		return true
	})
	return found
}

func (p *Page) labelFor(s *goquery.Selection) string {
	if id, ok := s.Attr("id"); ok && id != "" {
		if label := p.doc.Find(fmt.Sprintf("label[for=%q]", id)).First(); label.Length() > 0 {
			return NormalizeWhitespace(label.Text())
		}
	}
	if label := s.Closest("label"); label.Length() > 0 {
		return NormalizeWhitespace(label.Text())
	}
	return ""
}

func findButton(scope *goquery.Selection, locator string) *goquery.Selection {
	locator = NormalizeWhitespace(locator)
	candidates := scope.Find(buttonQuery)
	for _, exact := range []bool{true, false} {
		var found *goquery.Selection
		candidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if buttonMatches(s, locator, exact) {
				found = s
				return false
			}
			return true
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func buttonMatches(s *goquery.Selection, locator string, exact bool) bool {
	if s.AttrOr("id", "") == locator || s.AttrOr("name", "") == locator {
		return true
	}
	labels := []string{s.AttrOr("value", ""), NormalizeWhitespace(s.Text()), s.AttrOr("title", ""), s.AttrOr("alt", "")}
	for _, l := range labels {
		if l == "" {
			continue
		}
		if exact && l == locator || !exact && strings.Contains(l, locator) {
			return true
		}
	}
	return false
}

func visibleText(s *goquery.Selection) string {
	c := s.Clone()
	c.Find("head, script, style, noscript, template").Remove()
	return NormalizeWhitespace(c.Text())
}

// Option is one entry of a select element.
type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field is a form control found on a page.
type Field struct {
	sel  *goquery.Selection
	root *goquery.Selection
}

// Selection returns the underlying element.
func (f *Field) Selection() *goquery.Selection { return f.sel }

// Name returns the control's name attribute.
func (f *Field) Name() string { return f.sel.AttrOr("name", "") }

// Type returns the input type, or the tag name for select and textarea.
func (f *Field) Type() string {
	tag := goquery.NodeName(f.sel)
	if tag != "input" {
		return tag
	}
	t := strings.ToLower(f.sel.AttrOr("type", "text"))
	if t == "" {
		return "text"
	}
	return t
}

// IsChecked reports the checked state of a checkbox or radio button.
func (f *Field) IsChecked() bool {
	_, ok := f.sel.Attr("checked")
	return ok
}

// Value returns the value the control would submit.
func (f *Field) Value() string {
	switch f.Type() {
	case "textarea":
		return f.sel.Text()
	case "select":
		for _, o := range f.Options() {
			if o.Selected {
				return o.Value
			}
		}
		if opts := f.Options(); len(opts) > 0 {
			return opts[0].Value
		}
		return ""
	case "checkbox":
		if !f.IsChecked() {
			return ""
		}
		return f.sel.AttrOr("value", "on")
	case "radio":
		checked := f.root.Find(fmt.Sprintf("input[type=radio][name=%q][checked]", f.Name())).First()
		return checked.AttrOr("value", "")
	default:
		return f.sel.AttrOr("value", "")
	}
}

// Options lists the options of a select element.
func (f *Field) Options() []Option {
	var opts []Option
	f.sel.Find("option").Each(func(_ int, o *goquery.Selection) {
		label := NormalizeWhitespace(o.Text())
		value := o.AttrOr("value", "")
		if value == "" {
			value = label
		}
		_, selected := o.Attr("selected")
		opts = append(opts, Option{Value: value, Label: label, Selected: selected})
	})
	return opts
}
