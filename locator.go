package plannerqa

import "github.com/tebeka/selenium"

// Locator identifies DOM elements by a strategy and a value.
type Locator struct {
	By    string
	Value string
}

// ByID locates an element by its id attribute.
func ByID(id string) Locator { return Locator{By: selenium.ByID, Value: id} }

// ByCSS locates elements by CSS selector.
func ByCSS(selector string) Locator { return Locator{By: selenium.ByCSSSelector, Value: selector} }

// ByLinkText locates anchors by their exact text.
func ByLinkText(text string) Locator { return Locator{By: selenium.ByLinkText, Value: text} }

// ByXPath locates elements by XPath expression.
func ByXPath(expr string) Locator { return Locator{By: selenium.ByXPATH, Value: expr} }

// ByClassName locates elements by a single class name.
func ByClassName(name string) Locator { return Locator{By: selenium.ByClassName, Value: name} }

// ByName locates form controls by their name attribute.
func ByName(name string) Locator { return Locator{By: selenium.ByName, Value: name} }

func (l Locator) String() string {
	return l.By + "=" + l.Value
}
