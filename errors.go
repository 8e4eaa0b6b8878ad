package plannerqa

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoSuchElement is wrapped by lookups that found nothing.
	ErrNoSuchElement = errors.New("no such element")
	// ErrSessionClosed is returned by Session methods after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrWaitTimeout is wrapped by explicit waits that ran out of time.
	ErrWaitTimeout = errors.New("wait timed out")
)

// DriverResolutionError reports that no usable driver binary was found for a
// backend. No session can exist without one, so callers should abort the run.
type DriverResolutionError struct {
	Backend Backend
	// Tried lists each source that was consulted, in order.
	Tried []string
	Err   error
}

func (e *DriverResolutionError) Error() string {
	msg := fmt.Sprintf("no usable %s for %s", e.Backend.DriverName(), e.Backend)
	if len(e.Tried) > 0 {
		msg += " (tried " + strings.Join(e.Tried, "; ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DriverResolutionError) Unwrap() error { return e.Err }

// LaunchError reports that the driver or browser process failed to start, or
// that the launch configuration could not be applied in full.
type LaunchError struct {
	Backend Backend
	// Hint suggests a remediation.
	Hint string
	Err  error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("launching %s session: %v", e.Backend, e.Err)
	if e.Hint != "" {
		msg += " (hint: " + e.Hint + ")"
	}
	return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

// AuthenticationTimeoutError reports that the login form or the authenticated
// area was not observed in time. The session it happened on should be
// discarded.
type AuthenticationTimeoutError struct {
	// Stage is the step that timed out.
	Stage string
	// LastURL is the address the browser was on when the wait gave up.
	LastURL string
	// ErrorText is the visible text of the application's error region, if any.
	ErrorText string
	Elapsed   time.Duration
	Err       error
}

func (e *AuthenticationTimeoutError) Error() string {
	msg := fmt.Sprintf("authentication timed out waiting for %s after %v at %q", e.Stage, e.Elapsed.Round(time.Millisecond), e.LastURL)
	if e.ErrorText != "" {
		msg += fmt.Sprintf(", page shows %q", e.ErrorText)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationTimeoutError) Unwrap() error { return e.Err }

// InteractionError reports that an element could not be used: it vanished or
// was not interactable between lookup and use.
type InteractionError struct {
	Op      string
	Locator Locator
	Err     error
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s %v: %v", e.Op, e.Locator, e.Err)
}

func (e *InteractionError) Unwrap() error { return e.Err }

// isNoSuchElement reports whether err is the remote end's "no such element".
// The WebDriver client only exposes the error text.
func isNoSuchElement(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such element")
}
