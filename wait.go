package plannerqa

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/tebeka/selenium"
)

// Default explicit wait settings.
const (
	DefaultWaitTimeout  = 20 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// WaitPolicy bounds how long interactions with a Session may block.
type WaitPolicy struct {
	// Implicit is how long element lookups retry inside the driver.
	Implicit time.Duration
	// Timeout is the ceiling of an explicit wait.
	Timeout time.Duration
	// Interval is the pause between polls of an explicit wait.
	Interval time.Duration
}

// DefaultWaitPolicy returns a 10s implicit wait and 20s explicit waits polled
// every 500ms.
func DefaultWaitPolicy() WaitPolicy {
	return WaitPolicy{
		Implicit: DefaultImplicitWait,
		Timeout:  DefaultWaitTimeout,
		Interval: DefaultPollInterval,
	}
}

// withDefaults fills unset fields from DefaultWaitPolicy.
func (p WaitPolicy) withDefaults() WaitPolicy {
	d := DefaultWaitPolicy()
	if p.Implicit <= 0 {
		p.Implicit = d.Implicit
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	return p
}

// withoutImplicitWait runs fn with the driver's implicit wait set to zero, so
// that polls inside an explicit wait return at once, and restores it after.
func (s *Session) withoutImplicitWait(wd selenium.WebDriver, fn func() error) error {
	if err := wd.SetImplicitWaitTimeout(0); err != nil {
		return fmt.Errorf("clearing implicit wait: %w", err)
	}
	defer func() {
		if err := wd.SetImplicitWaitTimeout(s.waits.Implicit); err != nil {
			glog.Warningf("restoring implicit wait of %v: %v", s.waits.Implicit, err)
		}
	}()
	return fn()
}

// waitFor polls cond through the client's wait primitive until it holds or
// timeout passes. A timeout wraps ErrWaitTimeout; an error from cond is
// returned as is.
func (s *Session) waitFor(what string, timeout, interval time.Duration, cond selenium.Condition) error {
	wd, err := s.driver()
	if err != nil {
		return err
	}
	var (
		started bool
		condErr error
	)
	err = s.withoutImplicitWait(wd, func() error {
		started = true
		return wd.WaitWithTimeoutAndInterval(func(wd selenium.WebDriver) (bool, error) {
			ok, err := cond(wd)
			if err != nil {
				condErr = err
			}
			return ok, err
		}, timeout, interval)
	})
	switch {
	case err == nil:
		return nil
	case !started:
		return err
	case condErr != nil:
		return fmt.Errorf("waiting for %s: %w", what, condErr)
	}
	glog.V(1).Infof("wait for %s gave up: %v", what, err)
	return fmt.Errorf("%s not observed within %v: %w", what, timeout, ErrWaitTimeout)
}
