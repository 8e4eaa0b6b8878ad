package plannerqa

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

const testBaseURL = "http://planner.test"

var (
	validUser   = Credentials{Identifier: "test@example.com", Secret: "Test1234!@#$"}
	invalidUser = Credentials{Identifier: "invalid@example.com", Secret: "wrongpassword"}
	fastWaits   = WaitPolicy{Implicit: time.Second, Timeout: 300 * time.Millisecond, Interval: 10 * time.Millisecond}
)

// fakePlanner serves the login, dashboard and registration pages of the
// planner application on wd.
func fakePlanner(wd *fakeWD) {
	form := DefaultLoginForm()
	dashboard := func() {
		wd.setURL(testBaseURL + "/dashboard")
		wd.set(form.Logout, &fakeElement{onClick: func() { wd.Get(testBaseURL + "/login") }})
	}
	wd.onGet = func(f *fakeWD, u *url.URL) {
		switch u.Path {
		case "/login":
			email, password := &fakeElement{tag: "input"}, &fakeElement{tag: "input"}
			f.set(form.Identifier, email)
			f.set(form.Secret, password)
			f.set(form.Submit, &fakeElement{tag: "button", onClick: func() {
				if email.typed == validUser.Identifier && password.typed == validUser.Secret {
					dashboard()
					return
				}
				f.set(form.ErrorRegion, &fakeElement{text: "Invalid email or password"})
			}})
		case "/register":
			r := form.Register
			fields := map[Locator]*fakeElement{}
			for _, l := range []Locator{r.Name, r.Email, r.Password, r.ConfirmPassword} {
				fields[l] = &fakeElement{tag: "input"}
				f.set(l, fields[l])
			}
			country := &fakeElement{tag: "option", text: "Canada"}
			currency := &fakeElement{tag: "option", text: "CAD - Canadian Dollar"}
			f.set(r.Country, &fakeElement{tag: "select", options: []*fakeElement{{tag: "option", text: "United States", selected: true}, country}})
			f.set(r.Currency, &fakeElement{tag: "select", options: []*fakeElement{{tag: "option", text: "USD - US Dollar", selected: true}, currency}})
			f.set(r.Submit, &fakeElement{tag: "button", onClick: func() {
				if fields[r.Password].typed != fields[r.ConfirmPassword].typed {
					f.set(form.ErrorRegion, &fakeElement{text: "Passwords do not match"})
					return
				}
				if country.clicks == 0 || currency.clicks == 0 {
					f.set(form.ErrorRegion, &fakeElement{text: "Select a country and currency"})
					return
				}
				dashboard()
			}})
		}
	}
}

func newPlannerSession() (*fakeWD, *Session) {
	wd := newFakeWD()
	fakePlanner(wd)
	return wd, newFakeSession(wd)
}

func TestLoginAsValidCredentials(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL + "/")

	got, err := a.LoginAs(s, validUser, fastWaits)
	if err != nil {
		t.Fatalf("LoginAs(%v) returned error: %v", validUser, err)
	}
	if got != s {
		t.Error("LoginAs() returned a different session")
	}
	u, err := s.CurrentURL()
	if err != nil {
		t.Fatalf("CurrentURL() returned error: %v", err)
	}
	if !strings.Contains(u, "/dashboard") {
		t.Errorf("CurrentURL() = %q, want it to contain /dashboard", u)
	}
	if got := s.ImplicitWait(); got != fastWaits.Implicit {
		t.Errorf("ImplicitWait() = %v, want the policy's %v", got, fastWaits.Implicit)
	}
}

func TestLoginAsInvalidCredentials(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL)

	_, err := a.LoginAs(s, invalidUser, fastWaits)
	var ate *AuthenticationTimeoutError
	if !errors.As(err, &ate) {
		t.Fatalf("LoginAs(%v) returned %v, want an AuthenticationTimeoutError", invalidUser, err)
	}
	if ate.Stage != StageAuthenticatedArea {
		t.Errorf("Stage = %q, want %q", ate.Stage, StageAuthenticatedArea)
	}
	if want := testBaseURL + "/login"; ate.LastURL != want {
		t.Errorf("LastURL = %q, want %q", ate.LastURL, want)
	}
	if want := "Invalid email or password"; ate.ErrorText != want {
		t.Errorf("ErrorText = %q, want %q", ate.ErrorText, want)
	}
	if !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("LoginAs() error %v does not wrap ErrWaitTimeout", err)
	}
	if ate.Elapsed < fastWaits.Timeout {
		t.Errorf("Elapsed = %v, want at least the %v timeout", ate.Elapsed, fastWaits.Timeout)
	}
}

func TestSubmitLoginShowsError(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL)

	if err := a.SubmitLogin(s, invalidUser, fastWaits); err != nil {
		t.Fatalf("SubmitLogin() returned error: %v", err)
	}
	text, err := s.WaitForText(a.Form.ErrorRegion, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitForText(%v) returned error: %v", a.Form.ErrorRegion, err)
	}
	if text == "" {
		t.Error("error region is empty")
	}
	if u, _ := s.CurrentURL(); strings.Contains(u, "/dashboard") {
		t.Errorf("invalid login reached %q", u)
	}
}

func TestLoginAsWithoutLoginForm(t *testing.T) {
	wd := newFakeWD()
	s := newFakeSession(wd)
	a := NewAuthenticator(testBaseURL)

	_, err := a.LoginAs(s, validUser, fastWaits)
	var ate *AuthenticationTimeoutError
	if !errors.As(err, &ate) {
		t.Fatalf("LoginAs() returned %v, want an AuthenticationTimeoutError", err)
	}
	if ate.Stage != StageLoginForm {
		t.Errorf("Stage = %q, want %q", ate.Stage, StageLoginForm)
	}
	if ate.ErrorText != "" {
		t.Errorf("ErrorText = %q, want empty", ate.ErrorText)
	}
}

func TestLoginAsMissingSubmit(t *testing.T) {
	wd := newFakeWD()
	form := DefaultLoginForm()
	wd.onGet = func(f *fakeWD, u *url.URL) {
		f.set(form.Identifier, &fakeElement{})
		f.set(form.Secret, &fakeElement{})
	}
	s := newFakeSession(wd)

	_, err := NewAuthenticator(testBaseURL).LoginAs(s, validUser, fastWaits)
	var ie *InteractionError
	if !errors.As(err, &ie) {
		t.Fatalf("LoginAs() returned %v, want an InteractionError", err)
	}
	if ie.Locator != form.Submit {
		t.Errorf("InteractionError.Locator = %v, want %v", ie.Locator, form.Submit)
	}
}

func TestLoginAsClosedSession(t *testing.T) {
	_, s := newPlannerSession()
	s.Close()
	if _, err := NewAuthenticator(testBaseURL).LoginAs(s, validUser, fastWaits); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("LoginAs() on a closed session returned %v, want ErrSessionClosed", err)
	}
}

func TestLogout(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL)
	if _, err := a.LoginAs(s, validUser, fastWaits); err != nil {
		t.Fatalf("LoginAs() returned error: %v", err)
	}
	if err := a.Logout(s, fastWaits); err != nil {
		t.Fatalf("Logout() returned error: %v", err)
	}
	if u, _ := s.CurrentURL(); !strings.Contains(u, "/login") {
		t.Errorf("CurrentURL() after logout = %q, want it to contain /login", u)
	}
}

func TestRegister(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL)
	r := Registration{
		Name:     "Test User",
		Email:    "new@example.com",
		Password: "Test1234!@#$",
		Country:  "Canada",
		Currency: "CAD - Canadian Dollar",
	}
	if _, err := a.Register(s, r, fastWaits); err != nil {
		t.Fatalf("Register() returned error: %v", err)
	}
	if u, _ := s.CurrentURL(); !strings.Contains(u, "/dashboard") {
		t.Errorf("CurrentURL() after registration = %q, want it to contain /dashboard", u)
	}
}

func TestRegisterRejected(t *testing.T) {
	_, s := newPlannerSession()
	a := NewAuthenticator(testBaseURL)
	r := Registration{Name: "Test User", Email: "new@example.com", Password: "Test1234!@#$"}

	_, err := a.Register(s, r, fastWaits)
	var ate *AuthenticationTimeoutError
	if !errors.As(err, &ate) {
		t.Fatalf("Register() returned %v, want an AuthenticationTimeoutError", err)
	}
	if want := "Select a country and currency"; ate.ErrorText != want {
		t.Errorf("ErrorText = %q, want %q", ate.ErrorText, want)
	}
}

func TestCredentialsStringHidesSecret(t *testing.T) {
	if got := validUser.String(); strings.Contains(got, validUser.Secret) {
		t.Errorf("Credentials.String() = %q leaks the secret", got)
	}
}
