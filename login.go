package plannerqa

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
)

// Credentials identify a test account.
type Credentials struct {
	Identifier string
	Secret     string
}

func (c Credentials) String() string {
	return c.Identifier + ":<redacted>"
}

// LoginForm describes the parts of the application's pages the login, logout
// and registration helpers depend on.
type LoginForm struct {
	// Path of the login page, relative to the base URL.
	Path       string
	Identifier Locator
	Secret     Locator
	Submit     Locator
	// ErrorRegion matches the elements showing authentication errors.
	ErrorRegion Locator
	// AuthenticatedMarker is contained in every address of the
	// authenticated area.
	AuthenticatedMarker string

	Logout Locator
	// LoggedOutMarker is contained in the address shown after logout.
	LoggedOutMarker string

	Register RegistrationForm
}

// RegistrationForm locates the fields of the sign-up page.
type RegistrationForm struct {
	Path            string
	Name            Locator
	Email           Locator
	Password        Locator
	ConfirmPassword Locator
	Country         Locator
	Currency        Locator
	Submit          Locator
}

// DefaultLoginForm returns the planner application's login form.
func DefaultLoginForm() LoginForm {
	return LoginForm{
		Path:                "/login",
		Identifier:          ByID("email"),
		Secret:              ByID("password"),
		Submit:              ByCSS("button[type='submit']"),
		ErrorRegion:         ByCSS(".error, .auth-error-modern"),
		AuthenticatedMarker: "/dashboard",
		Logout:              ByCSS(".logout-btn"),
		LoggedOutMarker:     "/login",
		Register: RegistrationForm{
			Path:            "/register",
			Name:            ByID("name"),
			Email:           ByID("email"),
			Password:        ByID("password"),
			ConfirmPassword: ByID("confirmPassword"),
			Country:         ByID("country"),
			Currency:        ByID("default_currency"),
			Submit:          ByCSS("button[type='submit']"),
		},
	}
}

// Registration is a new account to sign up. Country and Currency are the
// visible texts of their dropdown options; empty leaves the page default.
type Registration struct {
	Name     string
	Email    string
	Password string
	Country  string
	Currency string
}

// Authenticator drives the login pages of the application at BaseURL.
type Authenticator struct {
	BaseURL string
	Form    LoginForm
}

// NewAuthenticator returns an Authenticator for baseURL using the default
// login form.
func NewAuthenticator(baseURL string) *Authenticator {
	return &Authenticator{BaseURL: strings.TrimRight(baseURL, "/"), Form: DefaultLoginForm()}
}

func (a *Authenticator) url(path string) string {
	return strings.TrimRight(a.BaseURL, "/") + path
}

// Stages of LoginAs reported in AuthenticationTimeoutError.
const (
	StageLoginForm         = "login form"
	StageAuthenticatedArea = "authenticated area"
)

// LoginAs signs s in as c and returns it positioned inside the authenticated
// area. It navigates to the login page, waits for the identifier field, fills
// and submits the form, and waits until the address contains the
// authenticated marker.
//
// A wait that runs out yields *AuthenticationTimeoutError with the last
// address and any error text shown. Nothing is retried; after a failure the
// session's login state is unknown and it should be discarded.
func (a *Authenticator) LoginAs(s *Session, c Credentials, p WaitPolicy) (*Session, error) {
	if err := s.SetWaitPolicy(p); err != nil {
		return nil, err
	}
	p = s.WaitPolicy()
	start := time.Now()

	if err := a.submit(s, c, p, start); err != nil {
		return nil, err
	}
	if err := s.waitForURLContains(a.Form.AuthenticatedMarker, p.Timeout, p.Interval); err != nil {
		return nil, a.timeoutError(s, StageAuthenticatedArea, start, err)
	}
	glog.V(1).Infof("logged in as %s in %v", c.Identifier, time.Since(start))
	return s, nil
}

// SubmitLogin fills and submits the login form without waiting for the
// outcome, for tests that expect the login to be rejected.
func (a *Authenticator) SubmitLogin(s *Session, c Credentials, p WaitPolicy) error {
	if err := s.SetWaitPolicy(p); err != nil {
		return err
	}
	return a.submit(s, c, s.WaitPolicy(), time.Now())
}

func (a *Authenticator) submit(s *Session, c Credentials, p WaitPolicy, start time.Time) error {
	if err := s.Navigate(a.url(a.Form.Path)); err != nil {
		return err
	}
	if _, err := s.waitForElement(a.Form.Identifier, p.Timeout, p.Interval); err != nil {
		return a.timeoutError(s, StageLoginForm, start, err)
	}
	if err := s.Fill(a.Form.Identifier, c.Identifier); err != nil {
		return err
	}
	if err := s.Fill(a.Form.Secret, c.Secret); err != nil {
		return err
	}
	return s.Click(a.Form.Submit)
}

// timeoutError turns a timed-out wait into an AuthenticationTimeoutError;
// other errors are returned unchanged.
func (a *Authenticator) timeoutError(s *Session, stage string, start time.Time, err error) error {
	if !errors.Is(err, ErrWaitTimeout) {
		return err
	}
	snap := s.Snapshot(a.Form.ErrorRegion)
	for _, e := range snap.Errs {
		glog.Warningf("capturing state after %s timeout: %v", stage, e)
	}
	return &AuthenticationTimeoutError{
		Stage:     stage,
		LastURL:   snap.URL,
		ErrorText: snap.ErrorText,
		Elapsed:   time.Since(start),
		Err:       err,
	}
}

// Logout clicks the logout control and waits for the logged-out page.
func (a *Authenticator) Logout(s *Session, p WaitPolicy) error {
	p = p.withDefaults()
	if err := s.Click(a.Form.Logout); err != nil {
		return err
	}
	if err := s.waitForURLContains(a.Form.LoggedOutMarker, p.Timeout, p.Interval); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Register signs up r and waits for the authenticated area. If the page
// refuses the registration the error carries the page's error text.
func (a *Authenticator) Register(s *Session, r Registration, p WaitPolicy) (*Session, error) {
	if err := s.SetWaitPolicy(p); err != nil {
		return nil, err
	}
	p = s.WaitPolicy()
	start := time.Now()
	f := a.Form.Register

	if err := s.Navigate(a.url(f.Path)); err != nil {
		return nil, err
	}
	if _, err := s.waitForElement(f.Name, p.Timeout, p.Interval); err != nil {
		return nil, a.timeoutError(s, "registration form", start, err)
	}
	for _, field := range []struct {
		l    Locator
		text string
	}{
		{f.Name, r.Name},
		{f.Email, r.Email},
		{f.Password, r.Password},
		{f.ConfirmPassword, r.Password},
	} {
		if err := s.Fill(field.l, field.text); err != nil {
			return nil, err
		}
	}
	if r.Country != "" {
		if err := s.SelectByText(f.Country, r.Country); err != nil {
			return nil, err
		}
	}
	if r.Currency != "" {
		if err := s.SelectByText(f.Currency, r.Currency); err != nil {
			return nil, err
		}
	}
	if err := s.Click(f.Submit); err != nil {
		return nil, err
	}
	if err := s.waitForURLContains(a.Form.AuthenticatedMarker, p.Timeout, p.Interval); err != nil {
		return nil, a.timeoutError(s, StageAuthenticatedArea, start, err)
	}
	return s, nil
}
