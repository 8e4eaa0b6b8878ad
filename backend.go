package plannerqa

import (
	"fmt"
	"strings"
)

// Backend is the browser engine a Session drives.
type Backend int

// The supported backends. The zero value is not a valid Backend.
const (
	Chrome Backend = iota + 1
	Edge
	Safari
	Firefox
)

// Backends lists every supported backend.
var Backends = []Backend{Chrome, Edge, Safari, Firefox}

func (b Backend) String() string {
	switch b {
	case Chrome:
		return "chrome"
	case Edge:
		return "edge"
	case Safari:
		return "safari"
	case Firefox:
		return "firefox"
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// ParseBackend maps a configuration value such as "chrome" or "MicrosoftEdge"
// to a Backend. Matching ignores case and surrounding whitespace.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chrome", "chromium", "google-chrome":
		return Chrome, nil
	case "edge", "msedge", "microsoftedge":
		return Edge, nil
	case "safari":
		return Safari, nil
	case "firefox", "gecko":
		return Firefox, nil
	}
	return 0, fmt.Errorf("unknown browser backend %q: want one of chrome, edge, safari, firefox", s)
}

// browserName is the W3C browserName capability for the backend.
func (b Backend) browserName() string {
	switch b {
	case Chrome:
		return "chrome"
	case Edge:
		return "MicrosoftEdge"
	case Safari:
		return "safari"
	case Firefox:
		return "firefox"
	}
	return ""
}

// DriverName is the file name of the WebDriver binary for the backend.
func (b Backend) DriverName() string {
	switch b {
	case Chrome:
		return "chromedriver"
	case Edge:
		return "msedgedriver"
	case Safari:
		return "safaridriver"
	case Firefox:
		return "geckodriver"
	}
	return ""
}

// launchHint is attached to launch failures to say what usually fixes them.
func (b Backend) launchHint() string {
	switch b {
	case Chrome:
		return "check that Chrome is installed and that chromedriver matches its major version"
	case Edge:
		return "check that Microsoft Edge is installed and that msedgedriver matches its version"
	case Safari:
		return "Safari automation needs macOS with remote automation enabled (run `safaridriver --enable` once)"
	case Firefox:
		return "check that Firefox is installed and reachable on PATH or via the browser path setting"
	}
	return ""
}
