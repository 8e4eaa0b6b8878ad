package plannertest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html"
	"net/http"
	"sync"

	"github.com/wanmail/plannerqa"
)

const sessionCookie = "planner_session"

// Countries and currencies offered by the registration form.
var (
	Countries  = []string{"United States", "Canada", "United Kingdom", "Germany"}
	Currencies = []string{"USD - US Dollar", "CAD - Canadian Dollar", "GBP - British Pound", "EUR - Euro"}
)

// App is a stand-in for the planner application. It serves the pages whose
// DOM the default LoginForm describes: a login form, a dashboard behind a
// session cookie, logout and registration.
type App struct {
	mu       sync.Mutex
	users    map[string]string // email -> password
	sessions map[string]string // token -> email
}

// NewApp returns an App that accepts the given accounts.
func NewApp(users ...plannerqa.Credentials) *App {
	a := &App{users: make(map[string]string), sessions: make(map[string]string)}
	for _, u := range users {
		a.users[u.Identifier] = u.Secret
	}
	return a
}

func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/", "/login":
		if r.Method == http.MethodPost {
			a.login(w, r)
			return
		}
		a.page(w, http.StatusOK, "Login", loginBody(""))
	case "/dashboard":
		email, ok := a.session(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		a.page(w, http.StatusOK, "Dashboard", fmt.Sprintf(dashboardBody, html.EscapeString(email)))
	case "/logout":
		if c, err := r.Cookie(sessionCookie); err == nil {
			a.mu.Lock()
			delete(a.sessions, c.Value)
			a.mu.Unlock()
		}
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Path: "/", MaxAge: -1})
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case "/register":
		if r.Method == http.MethodPost {
			a.register(w, r)
			return
		}
		a.page(w, http.StatusOK, "Register", registerBody(""))
	default:
		http.NotFound(w, r)
	}
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	email, password := r.PostFormValue("email"), r.PostFormValue("password")
	a.mu.Lock()
	want, ok := a.users[email]
	a.mu.Unlock()
	if !ok || want != password {
		a.page(w, http.StatusUnauthorized, "Login", loginBody("Invalid email or password"))
		return
	}
	a.startSession(w, r, email)
}

func (a *App) register(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	var problem string
	switch {
	case r.PostFormValue("name") == "" || email == "" || password == "":
		problem = "All fields are required"
	case password != r.PostFormValue("confirmPassword"):
		problem = "Passwords do not match"
	case r.PostFormValue("country") == "" || r.PostFormValue("default_currency") == "":
		problem = "Select a country and currency"
	}
	a.mu.Lock()
	if _, taken := a.users[email]; taken && problem == "" {
		problem = "An account with this email already exists"
	}
	if problem == "" {
		a.users[email] = password
	}
	a.mu.Unlock()
	if problem != "" {
		a.page(w, http.StatusBadRequest, "Register", registerBody(problem))
		return
	}
	a.startSession(w, r, email)
}

func (a *App) startSession(w http.ResponseWriter, r *http.Request, email string) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token := hex.EncodeToString(b)
	a.mu.Lock()
	a.sessions[token] = email
	a.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: token, Path: "/", HttpOnly: true})
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (a *App) session(r *http.Request) (string, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return "", false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	email, ok := a.sessions[c.Value]
	return email, ok
}

func (a *App) page(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate, title, body)
}

func errorRegion(msg string) string {
	if msg == "" {
		return ""
	}
	return `<div class="error">` + html.EscapeString(msg) + `</div>`
}

func loginBody(msg string) string {
	return fmt.Sprintf(loginForm, errorRegion(msg))
}

func registerBody(msg string) string {
	return fmt.Sprintf(registerForm, errorRegion(msg), options(Countries), options(Currencies))
}

func options(values []string) string {
	s := `<option value="">Select...</option>`
	for _, v := range values {
		e := html.EscapeString(v)
		s += `<option value="` + e + `">` + e + `</option>`
	}
	return s
}

var pageTemplate = `<!DOCTYPE html>
<html>
<head>
	<title>Planner - %s</title>
</head>
<body>
%s
</body>
</html>
`

var loginForm = `
	%s
	<form method="post" action="/login">
		<input id="email" name="email" type="email" />
		<input id="password" name="password" type="password" />
		<button type="submit">Sign in</button>
	</form>
	<a href="/register">Create an account</a>
`

var dashboardBody = `
	<h1>Welcome, %s</h1>
	<form method="post" action="/logout">
		<button class="logout-btn" type="submit">Log out</button>
	</form>
`

var registerForm = `
	%s
	<form method="post" action="/register">
		<input id="name" name="name" />
		<input id="email" name="email" type="email" />
		<input id="password" name="password" type="password" />
		<input id="confirmPassword" name="confirmPassword" type="password" />
		<select id="country" name="country">%s</select>
		<select id="default_currency" name="default_currency">%s</select>
		<button type="submit">Register</button>
	</form>
`
