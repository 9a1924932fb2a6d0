package codegen

import (
	"errors"
	"testing"

	"github.com/hazyhaar/locator/selector"
)

func TestLocator(t *testing.T) {
	css := Target{Selector: `[data-testid="it's"]`, Kind: selector.KindDataAttr}
	xp := Target{Selector: "xpath=//li[2]", Kind: selector.KindXPath}
	txt := Target{Selector: `text="Sign in"`, Kind: selector.KindText, Nth: 3}
	contains := Target{Selector: "text=Sign", Kind: selector.KindText}

	tests := []struct {
		fw   Framework
		t    Target
		want string
	}{
		{Playwright, css, `page.locator('[data-testid="it\'s"]')`},
		{Playwright, xp, `page.locator('xpath=//li[2]')`},
		{Playwright, txt, `page.getByText('Sign in', { exact: true }).nth(2)`},
		{Playwright, contains, `page.getByText('Sign')`},
		{Cypress, css, `cy.get('[data-testid="it\'s"]')`},
		{Cypress, xp, `cy.xpath('//li[2]')`},
		{Cypress, txt, `cy.contains(/^Sign in$/).eq(2)`},
		{Cypress, contains, `cy.contains('Sign')`},
		{Selenium, css, `driver.find_element(By.CSS_SELECTOR, "[data-testid=\"it's\"]")`},
		{Selenium, xp, `driver.find_element(By.XPATH, "//li[2]")`},
		{Selenium, txt, `driver.find_elements(By.XPATH, "//*[normalize-space(.)='Sign in']")[2]`},
	}
	for _, tt := range tests {
		got, err := Locator(tt.fw, tt.t)
		if err != nil {
			t.Errorf("%s %q: %v", tt.fw, tt.t.Selector, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s %q:\n got %s\nwant %s", tt.fw, tt.t.Selector, got, tt.want)
		}
	}
}

func TestLocator_MatchModeOverride(t *testing.T) {
	got, err := Locator(Playwright, Target{Selector: `text="Sign"`, Kind: selector.KindText, MatchMode: selector.ModeContains})
	if err != nil {
		t.Fatal(err)
	}
	if got != `page.getByText('Sign')` {
		t.Fatalf("got %s", got)
	}
}

func TestStatement(t *testing.T) {
	target := Target{Selector: "#email", Kind: selector.KindID, Action: "fill", Value: "a@b.c"}
	tests := map[Framework]string{
		Playwright: `await page.locator('#email').fill('a@b.c');`,
		Cypress:    `cy.get('#email').clear().type('a@b.c');`,
		Selenium:   `driver.find_element(By.CSS_SELECTOR, "#email").send_keys("a@b.c")`,
	}
	for fw, want := range tests {
		got, err := Statement(fw, target)
		if err != nil {
			t.Fatalf("%s: %v", fw, err)
		}
		if got != want {
			t.Errorf("%s:\n got %s\nwant %s", fw, got, want)
		}
	}

	press := Target{Selector: "#q", Kind: selector.KindID, Action: "press", Value: "Enter"}
	if got, _ := Statement(Selenium, press); got != `driver.find_element(By.CSS_SELECTOR, "#q").send_keys(Keys.ENTER)` {
		t.Fatalf("selenium press: %s", got)
	}
	if got, _ := Statement(Cypress, press); got != `cy.get('#q').type('{enter}');` {
		t.Fatalf("cypress press: %s", got)
	}
}

func TestStatement_Errors(t *testing.T) {
	if _, err := Statement("webdriverio", Target{Selector: "#x"}); !errors.Is(err, ErrUnknownFramework) {
		t.Fatalf("framework: got %v", err)
	}
	for _, fw := range Frameworks() {
		if _, err := Statement(fw, Target{Selector: "#x", Action: "teleport"}); !errors.Is(err, ErrUnknownAction) {
			t.Errorf("%s: got %v", fw, err)
		}
	}
	if _, err := Locator(Playwright, Target{}); !errors.Is(err, selector.ErrEmpty) {
		t.Fatalf("empty selector: got %v", err)
	}
}

func TestJSExactRegexp(t *testing.T) {
	if got := jsExactRegexp("a/b (1.5)"); got != `/^a\/b \(1\.5\)$/` {
		t.Fatalf("got %s", got)
	}
}
