package browser

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// Condition is a precondition an element must satisfy before a step acts on it.
type Condition string

const (
	Visible Condition = "visible"
	Hidden  Condition = "hidden"
	Enabled Condition = "enabled"
)

// Valid reports whether c is a known condition.
func (c Condition) Valid() bool {
	switch c {
	case Visible, Hidden, Enabled:
		return true
	default:
		return false
	}
}

// Locator identifies one UI element. When several attributes are set the
// most specific one wins, in this order:
//
//	ID > TestID > TestIDPrefix > CSS (+HasText) > Placeholder > Label > Role (+Name) > Text
//
// The first match in document order is always the one acted on.
type Locator struct {
	ID           string   `yaml:"id,omitempty" json:"id,omitempty"`
	TestID       string   `yaml:"test_id,omitempty" json:"test_id,omitempty"`
	TestIDPrefix string   `yaml:"test_id_prefix,omitempty" json:"test_id_prefix,omitempty"`
	CSS          string   `yaml:"css,omitempty" json:"css,omitempty"`
	HasText      string   `yaml:"has_text,omitempty" json:"has_text,omitempty"`
	Placeholder  string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Label        string   `yaml:"label,omitempty" json:"label,omitempty"`
	Role         string   `yaml:"role,omitempty" json:"role,omitempty"`
	Name         string   `yaml:"name,omitempty" json:"name,omitempty"`
	Text         string   `yaml:"text,omitempty" json:"text,omitempty"`
	Exact        bool     `yaml:"exact,omitempty" json:"exact,omitempty"`
	Within       *Locator `yaml:"within,omitempty" json:"within,omitempty"`
}

// ByID matches an element id ("auth-email" or "#auth-email").
func ByID(id string) Locator { return Locator{ID: strings.TrimPrefix(id, "#")} }

// ByRole matches an accessible role and name.
func ByRole(role, name string) Locator { return Locator{Role: role, Name: name} }

// ByPlaceholder matches placeholder text.
func ByPlaceholder(text string) Locator { return Locator{Placeholder: text} }

// ByLabel matches an associated label.
func ByLabel(text string) Locator { return Locator{Label: text} }

// ByText matches visible text.
func ByText(text string) Locator { return Locator{Text: text} }

// ByCSS matches a CSS selector, optionally narrowed to elements containing text.
func ByCSS(selector, hasText string) Locator { return Locator{CSS: selector, HasText: hasText} }

// ByTestIDPrefix matches elements whose data-testid starts with prefix.
func ByTestIDPrefix(prefix string) Locator { return Locator{TestIDPrefix: prefix} }

// In scopes l to the first element matched by parent.
func (l Locator) In(parent Locator) Locator {
	p := parent
	l.Within = &p
	return l
}

// IsZero reports whether no attribute is set.
func (l Locator) IsZero() bool {
	return l.ID == "" && l.TestID == "" && l.TestIDPrefix == "" && l.CSS == "" &&
		l.Placeholder == "" && l.Label == "" && l.Role == "" && l.Text == ""
}

// Validate checks that the locator can be resolved.
func (l Locator) Validate() error {
	if l.IsZero() {
		return fmt.Errorf("locator has no matching attribute")
	}
	if l.Within != nil {
		if err := l.Within.Validate(); err != nil {
			return fmt.Errorf("within: %w", err)
		}
	}
	return nil
}

// Map returns a copy with fn applied to every text attribute, including
// the parent chain.
func (l Locator) Map(fn func(string) string) Locator {
	out := l
	out.ID = fn(l.ID)
	out.TestID = fn(l.TestID)
	out.TestIDPrefix = fn(l.TestIDPrefix)
	out.CSS = fn(l.CSS)
	out.HasText = fn(l.HasText)
	out.Placeholder = fn(l.Placeholder)
	out.Label = fn(l.Label)
	out.Role = fn(l.Role)
	out.Name = fn(l.Name)
	out.Text = fn(l.Text)
	if l.Within != nil {
		parent := l.Within.Map(fn)
		out.Within = &parent
	}
	return out
}

// Hints returns the human-facing attributes of the locator, used to decide
// whether a value typed into it should be redacted from logs.
func (l Locator) Hints() []string {
	return []string{l.ID, l.TestID, l.Placeholder, l.Label, l.Name, l.CSS}
}

func (l Locator) String() string {
	var s string
	switch {
	case l.ID != "":
		s = "#" + l.ID
	case l.TestID != "":
		s = fmt.Sprintf("[data-testid=%q]", l.TestID)
	case l.TestIDPrefix != "":
		s = fmt.Sprintf("[data-testid^=%q]", l.TestIDPrefix)
	case l.CSS != "":
		s = l.CSS
		if l.HasText != "" {
			s += fmt.Sprintf(":has-text(%q)", l.HasText)
		}
	case l.Placeholder != "":
		s = fmt.Sprintf("placeholder=%q", l.Placeholder)
	case l.Label != "":
		s = fmt.Sprintf("label=%q", l.Label)
	case l.Role != "":
		s = "role=" + l.Role
		if l.Name != "" {
			s += fmt.Sprintf("[name=%q]", l.Name)
		}
	case l.Text != "":
		s = fmt.Sprintf("text=%q", l.Text)
	default:
		s = "<empty>"
	}
	if l.Within != nil {
		return l.Within.String() + " >> " + s
	}
	return s
}

// scope is the common surface of playwright.Page and playwright.Locator
// needed to resolve a Locator relative to either.
type scope interface {
	css(selector, hasText string) playwright.Locator
	role(role, name string, exact bool) playwright.Locator
	placeholder(text string, exact bool) playwright.Locator
	label(text string, exact bool) playwright.Locator
	text(text string, exact bool) playwright.Locator
	testID(id string) playwright.Locator
}

type pageScope struct{ page playwright.Page }

func (s pageScope) css(selector, hasText string) playwright.Locator {
	if hasText == "" {
		return s.page.Locator(selector)
	}
	return s.page.Locator(selector, playwright.PageLocatorOptions{HasText: hasText})
}

func (s pageScope) role(role, name string, exact bool) playwright.Locator {
	opts := playwright.PageGetByRoleOptions{Exact: playwright.Bool(exact)}
	if name != "" {
		opts.Name = name
	}
	return s.page.GetByRole(playwright.AriaRole(role), opts)
}

func (s pageScope) placeholder(text string, exact bool) playwright.Locator {
	return s.page.GetByPlaceholder(text, playwright.PageGetByPlaceholderOptions{Exact: playwright.Bool(exact)})
}

func (s pageScope) label(text string, exact bool) playwright.Locator {
	return s.page.GetByLabel(text, playwright.PageGetByLabelOptions{Exact: playwright.Bool(exact)})
}

func (s pageScope) text(text string, exact bool) playwright.Locator {
	return s.page.GetByText(text, playwright.PageGetByTextOptions{Exact: playwright.Bool(exact)})
}

func (s pageScope) testID(id string) playwright.Locator {
	return s.page.GetByTestId(id)
}

type locatorScope struct{ loc playwright.Locator }

func (s locatorScope) css(selector, hasText string) playwright.Locator {
	if hasText == "" {
		return s.loc.Locator(selector)
	}
	return s.loc.Locator(selector, playwright.LocatorLocatorOptions{HasText: hasText})
}

func (s locatorScope) role(role, name string, exact bool) playwright.Locator {
	opts := playwright.LocatorGetByRoleOptions{Exact: playwright.Bool(exact)}
	if name != "" {
		opts.Name = name
	}
	return s.loc.GetByRole(playwright.AriaRole(role), opts)
}

func (s locatorScope) placeholder(text string, exact bool) playwright.Locator {
	return s.loc.GetByPlaceholder(text, playwright.LocatorGetByPlaceholderOptions{Exact: playwright.Bool(exact)})
}

func (s locatorScope) label(text string, exact bool) playwright.Locator {
	return s.loc.GetByLabel(text, playwright.LocatorGetByLabelOptions{Exact: playwright.Bool(exact)})
}

func (s locatorScope) text(text string, exact bool) playwright.Locator {
	return s.loc.GetByText(text, playwright.LocatorGetByTextOptions{Exact: playwright.Bool(exact)})
}

func (s locatorScope) testID(id string) playwright.Locator {
	return s.loc.GetByTestId(id)
}

// resolve turns l into a Playwright locator for the first matching element.
func resolve(page playwright.Page, l Locator) playwright.Locator {
	var sc scope = pageScope{page: page}
	if l.Within != nil {
		sc = locatorScope{loc: resolve(page, *l.Within)}
	}

	var loc playwright.Locator
	switch {
	case l.ID != "":
		loc = sc.css("#"+strings.TrimPrefix(l.ID, "#"), l.HasText)
	case l.TestID != "":
		loc = sc.testID(l.TestID)
	case l.TestIDPrefix != "":
		loc = sc.css(fmt.Sprintf("[data-testid^=%q]", l.TestIDPrefix), l.HasText)
	case l.CSS != "":
		loc = sc.css(l.CSS, l.HasText)
	case l.Placeholder != "":
		loc = sc.placeholder(l.Placeholder, l.Exact)
	case l.Label != "":
		loc = sc.label(l.Label, l.Exact)
	case l.Role != "":
		loc = sc.role(l.Role, l.Name, l.Exact)
	default:
		loc = sc.text(l.Text, l.Exact)
	}
	return loc.First()
}
