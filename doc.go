/*
Package plannerqa provisions WebDriver browser sessions for end-to-end tests of
the financial planner web application and brings them past the login wall.

A Provisioner resolves a driver binary for the requested Backend (an explicit
path first, then the automatic resolver), starts the driver service, and opens
a session with every launch option from the SessionConfig applied at once. The
returned Session must be released with Close (or Provisioner.Shutdown) on
every exit path; Close is idempotent.

An Authenticator drives the login form of a Session and waits until the
browser reaches the authenticated area.

Example usage:

	p := plannerqa.NewProvisioner()
	cfg, _ := plannerqa.ConfigFor(plannerqa.Chrome)
	s, err := p.Provision(ctx, plannerqa.Chrome, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	a := plannerqa.NewAuthenticator("http://localhost:3000")
	creds := plannerqa.Credentials{Identifier: "test@example.com", Secret: "Test1234!@#$"}
	if _, err := a.LoginAs(s, creds, plannerqa.DefaultWaitPolicy()); err != nil {
		return err
	}

Tests that want one browser per test use NewTestScope; suites that share one
browser for the whole run use a RunScope and borrow the session with Acquire.
*/
package plannerqa
