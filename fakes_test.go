package plannerqa

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/log"
)

var errNoSuchElement = errors.New("no such element: Unable to locate element")

// fakeElement implements the parts of selenium.WebElement the package uses.
type fakeElement struct {
	selenium.WebElement

	tag       string
	text      string
	value     string
	hidden    bool
	selected  bool
	typed     string
	clearErr  error
	clickErr  error
	clicks    int
	onClick   func()
	options   []*fakeElement
	staleText bool
}

func (e *fakeElement) Click() error {
	if e.clickErr != nil {
		return e.clickErr
	}
	e.clicks++
	if e.onClick != nil {
		e.onClick()
	}
	return nil
}

func (e *fakeElement) Clear() error {
	if e.clearErr != nil {
		return e.clearErr
	}
	e.typed = ""
	return nil
}

func (e *fakeElement) SendKeys(keys string) error {
	e.typed += keys
	return nil
}

func (e *fakeElement) Text() (string, error) {
	if e.staleText {
		return "", errors.New("stale element reference: element is not attached to the page document")
	}
	return e.text, nil
}

func (e *fakeElement) TagName() (string, error) {
	if e.tag == "" {
		return "div", nil
	}
	return e.tag, nil
}

func (e *fakeElement) IsDisplayed() (bool, error) { return !e.hidden, nil }

func (e *fakeElement) IsSelected() (bool, error) { return e.selected, nil }

// FindElements understands the option queries issued by SelectByText and
// SelectByValue.
func (e *fakeElement) FindElements(by, value string) ([]selenium.WebElement, error) {
	var out []selenium.WebElement
	for _, o := range e.options {
		switch {
		case strings.HasPrefix(value, ".//option[normalize-space(.) = "):
			want := unquoteXPath(strings.TrimSuffix(strings.TrimPrefix(value, ".//option[normalize-space(.) = "), "]"))
			if strings.Join(strings.Fields(o.text), " ") == want {
				out = append(out, o)
			}
		case strings.HasPrefix(value, ".//option[contains(., "):
			want := unquoteXPath(strings.TrimSuffix(strings.TrimPrefix(value, ".//option[contains(., "), ")]"))
			if strings.Contains(o.text, want) {
				out = append(out, o)
			}
		case strings.HasPrefix(value, ".//option[@value = "):
			want := unquoteXPath(strings.TrimSuffix(strings.TrimPrefix(value, ".//option[@value = "), "]"))
			if o.value == want {
				out = append(out, o)
			}
		default:
			return nil, fmt.Errorf("fake element cannot evaluate %s=%s", by, value)
		}
	}
	return out, nil
}

func unquoteXPath(s string) string {
	return s[1 : len(s)-1]
}

// fakeWD implements the parts of selenium.WebDriver the package uses. Pages
// are modelled by a map from locator to elements that callbacks rewrite.
type fakeWD struct {
	selenium.WebDriver

	mu       sync.Mutex
	url      string
	title    string
	elements map[Locator][]*fakeElement
	onGet    func(f *fakeWD, u *url.URL)

	implicit    []time.Duration
	resized     [][2]int
	quits       int
	quitErr     error
	implicitErr error
	logs        []log.Message
	findErr     error
}

func newFakeWD() *fakeWD {
	return &fakeWD{elements: make(map[Locator][]*fakeElement)}
}

func (f *fakeWD) set(l Locator, els ...*fakeElement) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elements[l] = els
}

func (f *fakeWD) setURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = u
}

func (f *fakeWD) Get(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.url = raw
	f.elements = make(map[Locator][]*fakeElement)
	f.mu.Unlock()
	if f.onGet != nil {
		f.onGet(f, u)
	}
	return nil
}

func (f *fakeWD) CurrentURL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeWD) Title() (string, error) { return f.title, nil }

func (f *fakeWD) PageSource() (string, error) { return "<html></html>", nil }

func (f *fakeWD) Screenshot() ([]byte, error) { return []byte("png"), nil }

func (f *fakeWD) Log(typ log.Type) ([]log.Message, error) { return f.logs, nil }

func (f *fakeWD) FindElements(by, value string) ([]selenium.WebElement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []selenium.WebElement
	for _, e := range f.elements[Locator{By: by, Value: value}] {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeWD) FindElement(by, value string) (selenium.WebElement, error) {
	els, err := f.FindElements(by, value)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, errNoSuchElement
	}
	return els[0], nil
}

func (f *fakeWD) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	return fmt.Sprintf("%s%v", script, args), nil
}

func (f *fakeWD) SetImplicitWaitTimeout(d time.Duration) error {
	if f.implicitErr != nil {
		return f.implicitErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.implicit = append(f.implicit, d)
	return nil
}

func (f *fakeWD) lastImplicit() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.implicit) == 0 {
		return 0
	}
	return f.implicit[len(f.implicit)-1]
}

func (f *fakeWD) ResizeWindow(name string, width, height int) error {
	f.resized = append(f.resized, [2]int{width, height})
	return nil
}

func (f *fakeWD) Quit() error {
	f.quits++
	return f.quitErr
}

// WaitWithTimeoutAndInterval behaves like the real client's.
func (f *fakeWD) WaitWithTimeoutAndInterval(condition selenium.Condition, timeout, interval time.Duration) error {
	start := time.Now()
	for {
		done, err := condition(f)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if elapsed := time.Since(start); elapsed > timeout {
			return fmt.Errorf("timeout after %v", elapsed)
		}
		time.Sleep(interval)
	}
}

// newFakeSession wraps wd in a Session with no driver service.
func newFakeSession(wd *fakeWD) *Session {
	return newSession(Chrome, wd, nil, ChromeConfig())
}
