// Package codegen turns a recorded event's primary selector into a locator
// statement for a test framework.
package codegen

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/locator/selector"
)

// Framework names a target test framework.
type Framework string

const (
	Playwright Framework = "playwright"
	Cypress    Framework = "cypress"
	Selenium   Framework = "selenium" // Python bindings
)

// Frameworks lists the supported frameworks.
func Frameworks() []Framework {
	return []Framework{Playwright, Cypress, Selenium}
}

var (
	ErrUnknownFramework = errors.New("codegen: unknown framework")
	ErrUnknownAction    = errors.New("codegen: unknown action")
)

// Target is what a statement acts on.
type Target struct {
	Selector  string
	Kind      selector.Kind
	MatchMode selector.MatchMode
	Nth       int    // 1-based instance, 0 when the selector is unique
	Action    string // click, dblclick, fill, select, hover, check, uncheck, press; empty means locate only
	Value     string // text to fill, option to select, key to press
}

func (t Target) parsed() (selector.Parsed, error) {
	p, err := selector.Candidate{Kind: t.Kind, Selector: t.Selector}.Parsed()
	if err != nil {
		return selector.Parsed{}, fmt.Errorf("codegen: %w", err)
	}
	if p.Syntax == selector.SyntaxText && t.MatchMode != "" {
		p.Mode = t.MatchMode
	}
	return p, nil
}

// Locator returns the expression that finds the target element.
func Locator(fw Framework, t Target) (string, error) {
	p, err := t.parsed()
	if err != nil {
		return "", err
	}
	switch fw {
	case Playwright:
		return playwrightLocator(p, t.Nth), nil
	case Cypress:
		return cypressLocator(p, t.Nth), nil
	case Selenium:
		return seleniumLocator(p, t.Nth), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFramework, fw)
}

// Statement returns one line of test code performing t.Action.
func Statement(fw Framework, t Target) (string, error) {
	loc, err := Locator(fw, t)
	if err != nil {
		return "", err
	}
	var call string
	var ok bool
	switch fw {
	case Playwright:
		call, ok = playwrightAction(t.Action, t.Value)
		if ok {
			return fmt.Sprintf("await %s%s;", loc, call), nil
		}
	case Cypress:
		call, ok = cypressAction(t.Action, t.Value)
		if ok {
			return fmt.Sprintf("%s%s;", loc, call), nil
		}
	case Selenium:
		return seleniumStatement(loc, t.Action, t.Value)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, t.Action)
}

// --- Playwright ---

func playwrightLocator(p selector.Parsed, nth int) string {
	var loc string
	switch p.Syntax {
	case selector.SyntaxXPath:
		loc = fmt.Sprintf("page.locator('xpath=%s')", escapeJSString(p.Value))
	case selector.SyntaxText:
		if p.Mode == selector.ModeContains {
			loc = fmt.Sprintf("page.getByText('%s')", escapeJSString(p.Value))
		} else {
			loc = fmt.Sprintf("page.getByText('%s', { exact: true })", escapeJSString(p.Value))
		}
	default:
		loc = fmt.Sprintf("page.locator('%s')", escapeJSString(p.Value))
	}
	if nth > 0 {
		loc += fmt.Sprintf(".nth(%d)", nth-1)
	}
	return loc
}

func playwrightAction(action, value string) (string, bool) {
	switch action {
	case "":
		return "", true
	case "click":
		return ".click()", true
	case "dblclick":
		return ".dblclick()", true
	case "fill", "input":
		return fmt.Sprintf(".fill('%s')", escapeJSString(value)), true
	case "select":
		return fmt.Sprintf(".selectOption('%s')", escapeJSString(value)), true
	case "hover":
		return ".hover()", true
	case "check":
		return ".check()", true
	case "uncheck":
		return ".uncheck()", true
	case "press":
		return fmt.Sprintf(".press('%s')", escapeJSString(value)), true
	}
	return "", false
}

// --- Cypress ---

func cypressLocator(p selector.Parsed, nth int) string {
	var loc string
	switch p.Syntax {
	case selector.SyntaxXPath:
		loc = fmt.Sprintf("cy.xpath('%s')", escapeJSString(p.Value))
	case selector.SyntaxText:
		if p.Mode == selector.ModeContains {
			loc = fmt.Sprintf("cy.contains('%s')", escapeJSString(p.Value))
		} else {
			loc = fmt.Sprintf("cy.contains(%s)", jsExactRegexp(p.Value))
		}
	default:
		loc = fmt.Sprintf("cy.get('%s')", escapeJSString(p.Value))
	}
	if nth > 0 {
		loc += fmt.Sprintf(".eq(%d)", nth-1)
	}
	return loc
}

func cypressAction(action, value string) (string, bool) {
	switch action {
	case "":
		return "", true
	case "click":
		return ".click()", true
	case "dblclick":
		return ".dblclick()", true
	case "fill", "input":
		return fmt.Sprintf(".clear().type('%s')", escapeJSString(value)), true
	case "select":
		return fmt.Sprintf(".select('%s')", escapeJSString(value)), true
	case "hover":
		return ".trigger('mouseover')", true
	case "check":
		return ".check()", true
	case "uncheck":
		return ".uncheck()", true
	case "press":
		return fmt.Sprintf(".type('{%s}')", escapeJSString(strings.ToLower(value))), true
	}
	return "", false
}

// jsExactRegexp renders /^value$/ with regexp metacharacters escaped.
func jsExactRegexp(s string) string {
	q := regexp.QuoteMeta(s)
	q = strings.ReplaceAll(q, "/", `\/`)
	q = strings.ReplaceAll(q, "\n", `\n`)
	return "/^" + q + "$/"
}

// --- Selenium (Python) ---

func seleniumBy(p selector.Parsed) (by, value string) {
	switch p.Syntax {
	case selector.SyntaxXPath:
		return "By.XPATH", p.Value
	case selector.SyntaxText:
		return "By.XPATH", selector.TextXPath(p)
	}
	return "By.CSS_SELECTOR", p.Value
}

func seleniumLocator(p selector.Parsed, nth int) string {
	by, value := seleniumBy(p)
	if nth > 0 {
		return fmt.Sprintf("driver.find_elements(%s, %s)[%d]", by, pyString(value), nth-1)
	}
	return fmt.Sprintf("driver.find_element(%s, %s)", by, pyString(value))
}

var seleniumKeys = map[string]string{
	"enter": "ENTER", "tab": "TAB", "escape": "ESCAPE", "backspace": "BACKSPACE",
	"delete": "DELETE", "arrowup": "ARROW_UP", "arrowdown": "ARROW_DOWN",
	"arrowleft": "ARROW_LEFT", "arrowright": "ARROW_RIGHT", "space": "SPACE",
}

func seleniumStatement(loc, action, value string) (string, error) {
	switch action {
	case "":
		return loc, nil
	case "click", "check", "uncheck":
		return loc + ".click()", nil
	case "dblclick":
		return fmt.Sprintf("ActionChains(driver).double_click(%s).perform()", loc), nil
	case "fill", "input":
		return fmt.Sprintf("%s.send_keys(%s)", loc, pyString(value)), nil
	case "select":
		return fmt.Sprintf("Select(%s).select_by_visible_text(%s)", loc, pyString(value)), nil
	case "hover":
		return fmt.Sprintf("ActionChains(driver).move_to_element(%s).perform()", loc), nil
	case "press":
		if k, ok := seleniumKeys[strings.ToLower(value)]; ok {
			return fmt.Sprintf("%s.send_keys(Keys.%s)", loc, k), nil
		}
		return fmt.Sprintf("%s.send_keys(%s)", loc, pyString(value)), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// escapeJSString escapes s for a single-quoted JavaScript string.
func escapeJSString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}

// pyString renders s as a double-quoted Python string literal.
func pyString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)
	return `"` + r.Replace(s) + `"`
}
