package plannerqa

import (
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
)

// SelectByText picks the option of the <select> matching l whose visible text
// is text, ignoring surrounding and repeated whitespace.
func (s *Session) SelectByText(l Locator, text string) error {
	el, err := s.selectElement(l)
	if err != nil {
		return err
	}
	opt, err := optionByText(el, text)
	if err != nil {
		return &InteractionError{Op: "select " + xpathLiteral(text) + " in", Locator: l, Err: err}
	}
	if err := setSelected(opt); err != nil {
		return &InteractionError{Op: "select " + xpathLiteral(text) + " in", Locator: l, Err: err}
	}
	return nil
}

// SelectByValue picks the option of the <select> matching l whose value
// attribute is value.
func (s *Session) SelectByValue(l Locator, value string) error {
	el, err := s.selectElement(l)
	if err != nil {
		return err
	}
	opts, err := el.FindElements(selenium.ByXPATH, `.//option[@value = `+xpathLiteral(value)+`]`)
	if err == nil && len(opts) == 0 {
		err = fmt.Errorf("no option with value %q: %w", value, ErrNoSuchElement)
	}
	if err == nil {
		err = setSelected(opts[0])
	}
	if err != nil {
		return &InteractionError{Op: "select value " + xpathLiteral(value) + " in", Locator: l, Err: err}
	}
	return nil
}

func (s *Session) selectElement(l Locator) (selenium.WebElement, error) {
	el, err := s.Find(l)
	if err != nil {
		return nil, &InteractionError{Op: "select", Locator: l, Err: err}
	}
	tag, err := el.TagName()
	if err != nil {
		return nil, &InteractionError{Op: "select", Locator: l, Err: err}
	}
	if !strings.EqualFold(tag, "select") {
		return nil, &InteractionError{Op: "select", Locator: l, Err: fmt.Errorf(`element should have been "select" but was %q`, tag)}
	}
	return el, nil
}

// optionByText finds the option by normalized text, falling back to a
// substring search when the text contains spaces the page may render
// differently.
func optionByText(sel selenium.WebElement, text string) (selenium.WebElement, error) {
	opts, err := sel.FindElements(selenium.ByXPATH, `.//option[normalize-space(.) = `+xpathLiteral(strings.Join(strings.Fields(text), " "))+`]`)
	if err != nil {
		return nil, err
	}
	if len(opts) > 0 {
		return opts[0], nil
	}

	word := longestWord(text)
	if word == "" {
		return nil, fmt.Errorf("no option with text %q: %w", text, ErrNoSuchElement)
	}
	candidates, err := sel.FindElements(selenium.ByXPATH, `.//option[contains(., `+xpathLiteral(word)+`)]`)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(text)
	for _, o := range candidates {
		t, err := o.Text()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(t) == trimmed {
			return o, nil
		}
	}
	return nil, fmt.Errorf("no option with text %q: %w", text, ErrNoSuchElement)
}

func longestWord(s string) string {
	var result string
	for _, w := range strings.Fields(s) {
		if len(w) > len(result) {
			result = w
		}
	}
	return result
}

// xpathLiteral quotes s as an XPath string literal. XPath has no escape
// sequences, so a string with both quote kinds becomes a concat() call.
func xpathLiteral(s string) string {
	switch {
	case !strings.Contains(s, `"`):
		return `"` + s + `"`
	case !strings.Contains(s, `'`):
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = `"` + p + `"`
	}
	return "concat(" + strings.Join(quoted, `, '"', `) + ")"
}

func setSelected(option selenium.WebElement) error {
	sel, err := option.IsSelected()
	if err != nil {
		return err
	}
	if sel {
		return nil
	}
	return option.Click()
}
