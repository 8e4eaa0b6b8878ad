// Package plannertest holds the integration tests that exercise package
// plannerqa against a real browser. They are in a separate package so that
// they can run against the local App or a deployed planner.
package plannertest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	socks5 "github.com/armon/go-socks5"

	"github.com/wanmail/plannerqa"
)

// Config describes the browser and target of a run.
type Config struct {
	Backend     plannerqa.Backend
	Session     plannerqa.SessionConfig
	Provisioner *plannerqa.Provisioner
	// BaseURL is the planner under test.
	BaseURL string
	User    plannerqa.Credentials
	// Invalid must be rejected by the planner.
	Invalid plannerqa.Credentials
	Waits   plannerqa.WaitPolicy
	// Run, when set, lends one shared session to every test that does not
	// need a fresh browser.
	Run *plannerqa.RunScope
	// Register allows tests that create accounts.
	Register  bool
	SkipProxy bool
}

func runTest(f func(*testing.T, Config), c Config) func(*testing.T) {
	return func(t *testing.T) {
		f(t, c)
	}
}

func newSession(t *testing.T, c Config) *plannerqa.Session {
	t.Helper()
	if c.Run == nil {
		return plannerqa.NewTestScope(t, c.Provisioner, c.Backend, c.Session)
	}
	s, release, err := c.Run.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquiring the shared %v session: %v", c.Backend, err)
	}
	t.Cleanup(release)
	return s
}

// RunSessionTests checks that sessions come up with their configuration
// applied and shut down cleanly.
func RunSessionTests(t *testing.T, c Config) {
	t.Run("ImplicitWait", runTest(testImplicitWait, c))
	t.Run("Navigate", runTest(testNavigate, c))
	t.Run("FindOptional", runTest(testFindOptional, c))
	t.Run("Resize", runTest(testResize, c))
	t.Run("ExecuteScript", runTest(testExecuteScript, c))
	t.Run("Snapshot", runTest(testSnapshot, c))
	t.Run("Shutdown", runTest(testShutdown, c))
	if !c.SkipProxy {
		t.Run("Proxy", runTest(testProxy, c))
	}
}

// RunLoginTests checks the login bootstrap against the planner at c.BaseURL.
func RunLoginTests(t *testing.T, c Config) {
	t.Run("LoginPage", runTest(testLoginPage, c))
	t.Run("ValidLogin", runTest(testValidLogin, c))
	t.Run("InvalidLogin", runTest(testInvalidLogin, c))
	t.Run("InvalidLoginTimeout", runTest(testInvalidLoginTimeout, c))
	t.Run("Logout", runTest(testLogout, c))
	if c.Register {
		t.Run("Register", runTest(testRegister, c))
	}
}

func testImplicitWait(t *testing.T, c Config) {
	s := newSession(t, c)
	want := c.Session.ImplicitWait
	if want <= 0 {
		want = plannerqa.DefaultImplicitWait
	}
	if got := s.ImplicitWait(); got != want {
		t.Errorf("s.ImplicitWait() = %v, want %v", got, want)
	}
}

func testNavigate(t *testing.T, c Config) {
	s := newSession(t, c)
	loginURL := c.BaseURL + "/login"
	if err := s.Navigate(loginURL); err != nil {
		t.Fatalf("s.Navigate(%q) returned error: %v", loginURL, err)
	}
	u, err := s.CurrentURL()
	if err != nil {
		t.Fatalf("s.CurrentURL() returned error: %v", err)
	}
	if !strings.Contains(u, "/login") {
		t.Errorf("s.CurrentURL() = %q, want it to contain /login", u)
	}
	if _, err := s.Title(); err != nil {
		t.Errorf("s.Title() returned error: %v", err)
	}
}

func testFindOptional(t *testing.T, c Config) {
	s := newSession(t, c)
	if err := s.Navigate(c.BaseURL + "/login"); err != nil {
		t.Fatalf("s.Navigate() returned error: %v", err)
	}
	const implicit = 3 * time.Second
	prev := s.WaitPolicy()
	defer s.SetWaitPolicy(prev)
	if err := s.SetWaitPolicy(plannerqa.WaitPolicy{Implicit: implicit}); err != nil {
		t.Fatalf("s.SetWaitPolicy() returned error: %v", err)
	}
	start := time.Now()
	el, ok, err := s.FindOptional(plannerqa.ByCSS(".no-such-element"))
	if err != nil || ok || el != nil {
		t.Errorf("s.FindOptional(absent) = %v, %t, %v; want nil, false, nil", el, ok, err)
	}
	if elapsed := time.Since(start); elapsed >= implicit {
		t.Errorf("s.FindOptional(absent) took %v, want less than the %v implicit wait", elapsed, implicit)
	}
	if _, err := s.Find(plannerqa.ByCSS(".no-such-element")); !errors.Is(err, plannerqa.ErrNoSuchElement) {
		t.Errorf("s.Find(absent) returned %v, want ErrNoSuchElement", err)
	}
}

func testResize(t *testing.T, c Config) {
	s := newSession(t, c)
	if err := s.Resize(1280, 800); err != nil {
		t.Fatalf("s.Resize(1280, 800) returned error: %v", err)
	}
}

func testExecuteScript(t *testing.T, c Config) {
	s := newSession(t, c)
	got, err := s.ExecuteScript("return arguments[0] + arguments[1];", 1, 2)
	if err != nil {
		t.Fatalf("s.ExecuteScript() returned error: %v", err)
	}
	if got != float64(3) {
		t.Errorf("s.ExecuteScript() = %v (%T), want 3", got, got)
	}
	if c.Session.SuppressAutomation && c.Backend != plannerqa.Firefox {
		hidden, err := s.ExecuteScript("return navigator.webdriver !== true;")
		if err != nil {
			t.Fatalf("s.ExecuteScript(navigator.webdriver) returned error: %v", err)
		}
		if hidden != true {
			t.Error("navigator.webdriver is true despite SuppressAutomation")
		}
	}
}

func testSnapshot(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	if err := a.SubmitLogin(s, c.Invalid, c.Waits); err != nil {
		t.Fatalf("a.SubmitLogin() returned error: %v", err)
	}
	if _, err := s.WaitForText(a.Form.ErrorRegion, 2*time.Second); err != nil {
		t.Fatalf("s.WaitForText() returned error: %v", err)
	}
	snap := s.Snapshot(a.Form.ErrorRegion)
	if len(snap.Errs) > 0 {
		t.Errorf("Snapshot() had errors: %v", snap.Errs)
	}
	if snap.URL == "" || snap.Source == "" || len(snap.Screenshot) == 0 {
		t.Errorf("Snapshot() = %+v, want URL, source and screenshot", snap)
	}
	if snap.ErrorText == "" {
		t.Error("Snapshot().ErrorText is empty on a rejected login")
	}
}

func testShutdown(t *testing.T, c Config) {
	s, err := c.Provisioner.Provision(context.Background(), c.Backend, c.Session)
	if err != nil {
		t.Fatalf("Provision(%v) returned error: %v", c.Backend, err)
	}
	if err := s.Navigate(c.BaseURL + "/login"); err != nil {
		t.Fatalf("s.Navigate() returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := c.Provisioner.Shutdown(s); err != nil {
			t.Fatalf("Shutdown() call %d returned error: %v", i+1, err)
		}
	}
	if _, err := s.CurrentURL(); !errors.Is(err, plannerqa.ErrSessionClosed) {
		t.Errorf("s.CurrentURL() after Shutdown returned %v, want ErrSessionClosed", err)
	}
}

const proxyPageContents = "You are viewing a proxied page"

// addrRewriter rewrites all requested addresses to the one specified by the
// URL.
type addrRewriter struct{ u *url.URL }

func (a *addrRewriter) Rewrite(ctx context.Context, _ *socks5.Request) (context.Context, *socks5.AddrSpec) {
	port, err := strconv.Atoi(a.u.Port())
	if err != nil {
		panic(err)
	}
	return ctx, &socks5.AddrSpec{
		FQDN: a.u.Hostname(),
		Port: port,
	}
}

func testProxy(t *testing.T, c Config) {
	switch c.Backend {
	case plannerqa.Chrome, plannerqa.Edge:
	default:
		t.Skipf("%v cannot be told to proxy loopback addresses", c.Backend)
	}
	if c.Session.RemoteURL != "" {
		t.Skip("a remote browser cannot reach a local proxy")
	}

	// A different web server that is reached only through the proxy.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, proxyPageContents)
	}))
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("url.Parse(%q) returned error: %v", srv.URL, err)
	}

	socks, err := socks5.New(&socks5.Config{Rewriter: &addrRewriter{u}})
	if err != nil {
		t.Fatalf("socks5.New(_) returned error: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen(_, _) returned error: %v", err)
	}
	done := make(chan struct{})
	served := make(chan error, 1)
	go func() {
		err := socks.Serve(l)
		select {
		case <-done:
			err = nil
		default:
		}
		served <- err
	}()
	defer func() {
		close(done)
		l.Close()
		if err := <-served; err != nil {
			t.Errorf("socks.Serve(_) returned error: %v", err)
		}
	}()

	cfg := c.Session
	cfg.Proxy = "socks5://" + l.Addr().String()
	// Chromium bypasses proxies for loopback unless told otherwise.
	// https://crbug.com/899126
	cfg.ExtraArgs = append(append([]string(nil), cfg.ExtraArgs...), "--proxy-bypass-list=<-loopback>")
	s := plannerqa.NewTestScope(t, c.Provisioner, c.Backend, cfg)

	if err := s.Navigate(c.BaseURL + "/login"); err != nil {
		t.Fatalf("s.Navigate() returned error: %v", err)
	}
	snap := s.Snapshot()
	if !strings.Contains(snap.Source, proxyPageContents) {
		t.Fatalf("Got page: %s\n\nExpected: %q", snap.Source, proxyPageContents)
	}
}

func testLoginPage(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	if err := s.Navigate(c.BaseURL + a.Form.Path); err != nil {
		t.Fatalf("s.Navigate() returned error: %v", err)
	}
	for _, l := range []plannerqa.Locator{a.Form.Identifier, a.Form.Secret, a.Form.Submit} {
		if _, err := s.WaitForElement(l, c.Waits.Timeout); err != nil {
			t.Errorf("s.WaitForElement(%v) returned error: %v", l, err)
		}
	}
}

func testValidLogin(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	got, err := a.LoginAs(s, c.User, c.Waits)
	if err != nil {
		t.Fatalf("a.LoginAs(%v) returned error: %v", c.User, err)
	}
	if got != s {
		t.Error("a.LoginAs() returned a different session")
	}
	u, err := s.CurrentURL()
	if err != nil {
		t.Fatalf("s.CurrentURL() returned error: %v", err)
	}
	if !strings.Contains(u, a.Form.AuthenticatedMarker) {
		t.Errorf("s.CurrentURL() = %q, want it to contain %q", u, a.Form.AuthenticatedMarker)
	}
}

func testInvalidLogin(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	if err := a.SubmitLogin(s, c.Invalid, c.Waits); err != nil {
		t.Fatalf("a.SubmitLogin(%v) returned error: %v", c.Invalid, err)
	}
	text, err := s.WaitForText(a.Form.ErrorRegion, 2*time.Second)
	if err != nil {
		t.Fatalf("no error message within 2s: %v", err)
	}
	if text == "" {
		t.Error("error message is empty")
	}
	if u, _ := s.CurrentURL(); strings.Contains(u, a.Form.AuthenticatedMarker) {
		t.Errorf("invalid credentials reached %q", u)
	}
}

func testInvalidLoginTimeout(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	waits := c.Waits
	waits.Timeout = 3 * time.Second

	_, err := a.LoginAs(s, c.Invalid, waits)
	var ate *plannerqa.AuthenticationTimeoutError
	if !errors.As(err, &ate) {
		t.Fatalf("a.LoginAs(%v) returned %v, want an AuthenticationTimeoutError", c.Invalid, err)
	}
	if ate.Stage != plannerqa.StageAuthenticatedArea {
		t.Errorf("Stage = %q, want %q", ate.Stage, plannerqa.StageAuthenticatedArea)
	}
	if ate.LastURL == "" || ate.ErrorText == "" {
		t.Errorf("AuthenticationTimeoutError = %+v, want the last URL and error text", ate)
	}
}

func testLogout(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	if _, err := a.LoginAs(s, c.User, c.Waits); err != nil {
		t.Fatalf("a.LoginAs() returned error: %v", err)
	}
	if err := a.Logout(s, c.Waits); err != nil {
		t.Fatalf("a.Logout() returned error: %v", err)
	}
	// The dashboard is out of reach once logged out.
	if err := s.Navigate(c.BaseURL + a.Form.AuthenticatedMarker); err != nil {
		t.Fatalf("s.Navigate() returned error: %v", err)
	}
	if err := s.WaitForURLContains(a.Form.LoggedOutMarker, c.Waits.Timeout); err != nil {
		t.Errorf("dashboard reachable after logout: %v", err)
	}
}

func testRegister(t *testing.T, c Config) {
	s := newSession(t, c)
	a := plannerqa.NewAuthenticator(c.BaseURL)
	r := plannerqa.Registration{
		Name:     "Test User",
		Email:    fmt.Sprintf("test-%d@example.com", time.Now().UnixNano()),
		Password: "Test1234!@#$",
		Country:  "Canada",
		Currency: "CAD - Canadian Dollar",
	}
	if _, err := a.Register(s, r, c.Waits); err != nil {
		t.Fatalf("a.Register() returned error: %v", err)
	}
	if err := a.Logout(s, c.Waits); err != nil {
		t.Fatalf("a.Logout() returned error: %v", err)
	}
	if _, err := a.LoginAs(s, plannerqa.Credentials{Identifier: r.Email, Secret: r.Password}, c.Waits); err != nil {
		t.Errorf("a.LoginAs() with the new account returned error: %v", err)
	}
}
