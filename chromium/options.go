// Package chromium builds the browser options shared by Chrome and Microsoft
// Edge, which accept the same ChromeDriver option schema under different
// capability keys.
package chromium

import (
	"fmt"

	"github.com/tebeka/selenium/chrome"
)

// EdgeCapabilitiesKey is the key in the top-level Capabilities map under which
// msedgedriver expects its options. Chrome uses chrome.CapabilitiesKey.
const EdgeCapabilitiesKey = "ms:edgeOptions"

// The switches that suppress the browser's "controlled by automated software"
// signals.
const (
	disableAutomationBlinkFeature = "--disable-blink-features=AutomationControlled"
	enableAutomationSwitch        = "enable-automation"
)

// Options are the ChromeDriver options plus the keys the chrome package does
// not model.
type Options struct {
	chrome.Capabilities

	// UseAutomationExtension, when false, stops the driver from loading its
	// automation extension into the browser.
	UseAutomationExtension *bool `json:"useAutomationExtension,omitempty"`
}

// New returns W3C-mode options that launch the browser binary at path, or the
// driver's default browser if path is empty.
func New(path string) Options {
	return Options{Capabilities: chrome.Capabilities{Path: path, W3C: true}}
}

// AddArgs appends browser command-line arguments.
func (o *Options) AddArgs(args ...string) {
	o.Args = append(o.Args, args...)
}

// SetWindowSize sets the initial window dimensions.
func (o *Options) SetWindowSize(width, height int) {
	o.AddArgs(fmt.Sprintf("--window-size=%d,%d", width, height))
}

// SetUserAgent overrides the User-Agent header the browser sends.
func (o *Options) SetUserAgent(ua string) {
	o.AddArgs("--user-agent=" + ua)
}

// SuppressAutomation hides the signals sites use to detect an automated
// browser: the AutomationControlled blink feature, the enable-automation
// switch, and the automation extension.
func (o *Options) SuppressAutomation() {
	o.AddArgs(disableAutomationBlinkFeature)
	o.ExcludeSwitches = append(o.ExcludeSwitches, enableAutomationSwitch)
	off := false
	o.UseAutomationExtension = &off
}

// HasArg reports whether arg was added verbatim.
func (o Options) HasArg(arg string) bool {
	for _, a := range o.Args {
		if a == arg {
			return true
		}
	}
	return false
}
