package plannerqa

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/log"
)

// Session is a live browser under automation. It is owned by whoever
// provisioned it and must be borrowed by one caller at a time. Close it on
// every exit path.
type Session struct {
	backend        Backend
	wd             selenium.WebDriver
	svc            *Service
	captureConsole bool

	waits WaitPolicy

	mu     sync.Mutex
	closed bool
}

func newSession(b Backend, wd selenium.WebDriver, svc *Service, cfg SessionConfig) *Session {
	waits := DefaultWaitPolicy()
	waits.Implicit = cfg.implicitWait()
	return &Session{
		backend:        b,
		wd:             wd,
		svc:            svc,
		captureConsole: cfg.CaptureConsole,
		waits:          waits,
	}
}

func (s *Session) driver() (selenium.WebDriver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.wd, nil
}

// WebDriver exposes the underlying client for operations Session does not
// wrap.
func (s *Session) WebDriver() selenium.WebDriver { return s.wd }

// Backend is the browser the session drives.
func (s *Session) Backend() Backend { return s.backend }

// ImplicitWait is the current implicit wait of the session.
func (s *Session) ImplicitWait() time.Duration { return s.waits.Implicit }

// WaitPolicy is the policy governing the session's waits.
func (s *Session) WaitPolicy() WaitPolicy { return s.waits }

// SetWaitPolicy attaches p to the session, applying its implicit wait to the
// driver. Unset fields keep their defaults.
func (s *Session) SetWaitPolicy(p WaitPolicy) error {
	wd, err := s.driver()
	if err != nil {
		return err
	}
	p = p.withDefaults()
	if p.Implicit != s.waits.Implicit {
		if err := wd.SetImplicitWaitTimeout(p.Implicit); err != nil {
			return fmt.Errorf("setting implicit wait to %v: %w", p.Implicit, err)
		}
	}
	s.waits = p
	return nil
}

// Navigate loads url in the current window.
func (s *Session) Navigate(url string) error {
	wd, err := s.driver()
	if err != nil {
		return err
	}
	glog.V(1).Infof("%s: navigating to %s", s.backend, url)
	if err := wd.Get(url); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the address the browser is on.
func (s *Session) CurrentURL() (string, error) {
	wd, err := s.driver()
	if err != nil {
		return "", err
	}
	return wd.CurrentURL()
}

// Title returns the title of the current page.
func (s *Session) Title() (string, error) {
	wd, err := s.driver()
	if err != nil {
		return "", err
	}
	return wd.Title()
}

// Find returns the first element matching l, retrying for the implicit wait.
// If none appears the error wraps ErrNoSuchElement.
func (s *Session) Find(l Locator) (selenium.WebElement, error) {
	wd, err := s.driver()
	if err != nil {
		return nil, err
	}
	el, err := wd.FindElement(l.By, l.Value)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, fmt.Errorf("%v: %w", l, ErrNoSuchElement)
		}
		return nil, fmt.Errorf("finding %v: %w", l, err)
	}
	return el, nil
}

// FindOptional returns the first element matching l, and whether there was
// one. Absence is not an error; the caller decides whether it matters. The
// lookup does not wait out the implicit wait.
func (s *Session) FindOptional(l Locator) (selenium.WebElement, bool, error) {
	wd, err := s.driver()
	if err != nil {
		return nil, false, err
	}
	var els []selenium.WebElement
	err = s.withoutImplicitWait(wd, func() error {
		var err error
		els, err = s.FindAll(l)
		return err
	})
	if err != nil || len(els) == 0 {
		return nil, false, err
	}
	return els[0], true, nil
}

// FindAll returns every element matching l. No match is an empty slice.
func (s *Session) FindAll(l Locator) ([]selenium.WebElement, error) {
	wd, err := s.driver()
	if err != nil {
		return nil, err
	}
	els, err := wd.FindElements(l.By, l.Value)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding %v: %w", l, err)
	}
	return els, nil
}

// WaitForElement polls until an element matches l and returns it. A zero
// timeout uses the session's WaitPolicy.
func (s *Session) WaitForElement(l Locator, timeout time.Duration) (selenium.WebElement, error) {
	return s.waitForElement(l, s.timeout(timeout), s.waits.Interval)
}

func (s *Session) waitForElement(l Locator, timeout, interval time.Duration) (selenium.WebElement, error) {
	var found selenium.WebElement
	err := s.waitFor(l.String(), timeout, interval, func(wd selenium.WebDriver) (bool, error) {
		els, err := wd.FindElements(l.By, l.Value)
		if err != nil && !isNoSuchElement(err) {
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		found = els[0]
		return true, nil
	})
	return found, err
}

// WaitForURLContains polls until the current address contains marker.
func (s *Session) WaitForURLContains(marker string, timeout time.Duration) error {
	return s.waitForURLContains(marker, s.timeout(timeout), s.waits.Interval)
}

func (s *Session) waitForURLContains(marker string, timeout, interval time.Duration) error {
	return s.waitFor(fmt.Sprintf("address containing %q", marker), timeout, interval, func(wd selenium.WebDriver) (bool, error) {
		u, err := wd.CurrentURL()
		if err != nil {
			return false, err
		}
		return strings.Contains(u, marker), nil
	})
}

// WaitForText polls until an element matching l shows non-empty text and
// returns that text.
func (s *Session) WaitForText(l Locator, timeout time.Duration) (string, error) {
	var text string
	err := s.waitFor("text in "+l.String(), s.timeout(timeout), s.waits.Interval, func(wd selenium.WebDriver) (bool, error) {
		t, err := visibleText(wd, l)
		if err != nil {
			return false, err
		}
		text = t
		return t != "", nil
	})
	return text, err
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return s.waits.Timeout
}

// visibleText joins the non-empty text of the displayed elements matching l.
// Elements that go stale while being read are skipped.
func visibleText(wd selenium.WebDriver, l Locator) (string, error) {
	els, err := wd.FindElements(l.By, l.Value)
	if err != nil {
		if isNoSuchElement(err) {
			return "", nil
		}
		return "", err
	}
	var parts []string
	for _, el := range els {
		if shown, err := el.IsDisplayed(); err != nil || !shown {
			continue
		}
		t, err := el.Text()
		if err != nil {
			continue
		}
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "; "), nil
}

// VisibleText returns the text shown by the elements matching l without
// waiting for them. It is empty when none is displayed.
func (s *Session) VisibleText(l Locator) (string, error) {
	wd, err := s.driver()
	if err != nil {
		return "", err
	}
	var text string
	err = s.withoutImplicitWait(wd, func() error {
		var err error
		text, err = visibleText(wd, l)
		return err
	})
	return text, err
}

// Fill clears the element matching l and types text into it.
func (s *Session) Fill(l Locator, text string) error {
	el, err := s.Find(l)
	if err != nil {
		return &InteractionError{Op: "fill", Locator: l, Err: err}
	}
	if err := el.Clear(); err != nil {
		return &InteractionError{Op: "clear", Locator: l, Err: err}
	}
	if err := el.SendKeys(text); err != nil {
		return &InteractionError{Op: "type into", Locator: l, Err: err}
	}
	return nil
}

// Click clicks the element matching l.
func (s *Session) Click(l Locator) error {
	el, err := s.Find(l)
	if err != nil {
		return &InteractionError{Op: "click", Locator: l, Err: err}
	}
	if err := el.Click(); err != nil {
		return &InteractionError{Op: "click", Locator: l, Err: err}
	}
	return nil
}

// Resize sets the size of the current window.
func (s *Session) Resize(width, height int) error {
	wd, err := s.driver()
	if err != nil {
		return err
	}
	if err := wd.ResizeWindow("", width, height); err != nil {
		return fmt.Errorf("resizing window to %dx%d: %w", width, height, err)
	}
	return nil
}

// ExecuteScript runs script in the page and returns its result.
func (s *Session) ExecuteScript(script string, args ...interface{}) (interface{}, error) {
	wd, err := s.driver()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	return wd.ExecuteScript(script, args)
}

// Snapshot captures the state of a session for diagnosis. Each part is best
// effort; failures are collected in Errs.
type Snapshot struct {
	URL        string
	Title      string
	Source     string
	Screenshot []byte
	// ErrorText is the visible text of the error regions passed to Snapshot.
	ErrorText string
	// Console holds browser console lines when the session captures them.
	Console []string
	Errs    []error
}

// Snapshot records the session's current state. It is meant for failure
// paths, including after a timed-out wait.
func (s *Session) Snapshot(errorRegions ...Locator) Snapshot {
	var snap Snapshot
	wd, err := s.driver()
	if err != nil {
		snap.Errs = append(snap.Errs, err)
		return snap
	}
	if snap.URL, err = wd.CurrentURL(); err != nil {
		snap.Errs = append(snap.Errs, fmt.Errorf("current URL: %w", err))
	}
	if snap.Title, err = wd.Title(); err != nil {
		snap.Errs = append(snap.Errs, fmt.Errorf("title: %w", err))
	}
	if snap.Source, err = wd.PageSource(); err != nil {
		snap.Errs = append(snap.Errs, fmt.Errorf("page source: %w", err))
	}
	if snap.Screenshot, err = wd.Screenshot(); err != nil {
		snap.Errs = append(snap.Errs, fmt.Errorf("screenshot: %w", err))
	}
	var texts []string
	for _, l := range errorRegions {
		t, err := s.VisibleText(l)
		if err != nil {
			snap.Errs = append(snap.Errs, fmt.Errorf("error text of %v: %w", l, err))
			continue
		}
		if t != "" {
			texts = append(texts, t)
		}
	}
	snap.ErrorText = strings.Join(texts, "; ")
	if s.captureConsole {
		msgs, err := wd.Log(log.Browser)
		if err != nil {
			snap.Errs = append(snap.Errs, fmt.Errorf("browser log: %w", err))
		}
		for _, m := range msgs {
			snap.Console = append(snap.Console, fmt.Sprintf("%s %s", m.Level, m.Message))
		}
	}
	return snap
}

// Close quits the browser and stops the driver. It is safe to call more than
// once and from any state; only the first call does anything.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.wd.Quit(); err != nil {
		glog.Warningf("%s: quitting session: %v", s.backend, err)
	}
	if s.svc != nil {
		if err := s.svc.Stop(); err != nil {
			return fmt.Errorf("stopping %s: %w", s.backend.DriverName(), err)
		}
	}
	return nil
}
