// Package safari provides Safari-specific types for WebDriver.
package safari

// Host is the only operating system safaridriver runs on, as reported by
// runtime.GOOS.
const Host = "darwin"

// Options are the safari:-prefixed W3C capabilities. Use Apply to merge them
// into a capabilities map.
type Options struct {
	// AutomaticInspection opens Web Inspector for the session and pauses
	// until it is attached.
	AutomaticInspection bool
	// AutomaticProfiling starts a timeline recording for the session.
	AutomaticProfiling bool
	// UseTechnologyPreview drives Safari Technology Preview instead of Safari.
	UseTechnologyPreview bool
}

// Apply sets the options on caps.
func (o Options) Apply(caps map[string]interface{}) {
	if o.AutomaticInspection {
		caps["safari:automaticInspection"] = true
	}
	if o.AutomaticProfiling {
		caps["safari:automaticProfiling"] = true
	}
	if o.UseTechnologyPreview {
		caps["browserName"] = "Safari Technology Preview"
	}
}

// Supported reports whether safaridriver can run on goos.
func Supported(goos string) bool {
	return goos == Host
}
