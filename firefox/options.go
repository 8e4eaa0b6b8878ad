// Package firefox turns Firefox launch settings into geckodriver
// capabilities.
package firefox

import (
	"fmt"

	ff "github.com/tebeka/selenium/firefox"
)

// Preferences that hide the automation signals Firefox exposes to pages.
const (
	webdriverEnabledPref  = "dom.webdriver.enabled"
	automationExtPref     = "useAutomationExtension"
	userAgentOverridePref = "general.useragent.override"
)

// Options collects Firefox launch settings.
type Options struct {
	// Binary is the browser executable; geckodriver finds one if empty.
	Binary   string
	Headless bool
	// Width and Height set the initial window size when both are positive.
	Width, Height      int
	UserAgent          string
	SuppressAutomation bool
	Args               []string
	// Verbose turns on trace logging in the browser.
	Verbose bool
}

// Capabilities returns the moz:firefoxOptions value for o.
func (o Options) Capabilities() ff.Capabilities {
	c := ff.Capabilities{Binary: o.Binary}
	if o.Headless {
		c.Args = append(c.Args, "-headless")
	}
	if o.Width > 0 && o.Height > 0 {
		c.Args = append(c.Args, fmt.Sprintf("--width=%d", o.Width), fmt.Sprintf("--height=%d", o.Height))
	}
	c.Args = append(c.Args, o.Args...)

	prefs := make(map[string]interface{})
	if o.UserAgent != "" {
		prefs[userAgentOverridePref] = o.UserAgent
	}
	if o.SuppressAutomation {
		prefs[webdriverEnabledPref] = false
		prefs[automationExtPref] = false
	}
	if len(prefs) > 0 {
		c.Prefs = prefs
	}
	if o.Verbose {
		c.Log = &ff.Log{Level: ff.Trace}
	}
	return c
}
