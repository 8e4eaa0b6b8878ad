package plannerqa

import (
	"fmt"
	"net"
	"net/url"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/log"

	"github.com/wanmail/plannerqa/chromium"
	"github.com/wanmail/plannerqa/firefox"
)

// Chromium switches for the container-friendly flags of SessionConfig.
const (
	argHeadless      = "--headless"
	argNoSandbox     = "--no-sandbox"
	argDisableDevShm = "--disable-dev-shm-usage"
	argDisableGPU    = "--disable-gpu"
)

// Vendor keys for browser log preferences in W3C mode.
const (
	chromeLoggingPrefsKey = "goog:loggingPrefs"
	edgeLoggingPrefsKey   = "ms:loggingPrefs"
)

// newCapabilities translates cfg into the capabilities of a new session on b.
// Every option of cfg either lands in the result or makes it fail.
func newCapabilities(b Backend, cfg SessionConfig) (selenium.Capabilities, error) {
	caps := selenium.Capabilities{"browserName": b.browserName()}

	switch b {
	case Chrome, Edge:
		opts := chromiumOptions(cfg)
		key, logKey := chrome.CapabilitiesKey, chromeLoggingPrefsKey
		if b == Edge {
			key, logKey = chromium.EdgeCapabilitiesKey, edgeLoggingPrefsKey
		}
		caps[key] = opts
		if cfg.CaptureConsole {
			caps[logKey] = log.Capabilities{log.Browser: log.All}
		}
	case Firefox:
		caps.AddFirefox(firefox.Options{
			Binary:             cfg.BrowserPath,
			Headless:           cfg.Headless,
			Width:              cfg.Width,
			Height:             cfg.Height,
			UserAgent:          cfg.UserAgent,
			SuppressAutomation: cfg.SuppressAutomation,
			Args:               cfg.ExtraArgs,
			Verbose:            cfg.VerboseLogs,
		}.Capabilities())
		if cfg.CaptureConsole {
			caps.SetLogLevel(log.Browser, log.All)
		}
	case Safari:
		cfg.Safari.Apply(caps)
	default:
		return nil, fmt.Errorf("no capabilities for %v", b)
	}

	if cfg.Proxy != "" {
		p, err := parseProxy(cfg.Proxy)
		if err != nil {
			return nil, err
		}
		caps.AddProxy(p)
	}
	return caps, nil
}

func chromiumOptions(cfg SessionConfig) chromium.Options {
	opts := chromium.New(cfg.BrowserPath)
	if cfg.Headless {
		opts.AddArgs(argHeadless)
	}
	if cfg.NoSandbox {
		opts.AddArgs(argNoSandbox)
	}
	if cfg.DisableDevShm {
		opts.AddArgs(argDisableDevShm)
	}
	if cfg.DisableGPU {
		opts.AddArgs(argDisableGPU)
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		opts.SetWindowSize(cfg.Width, cfg.Height)
	}
	if cfg.UserAgent != "" {
		opts.SetUserAgent(cfg.UserAgent)
	}
	if cfg.SuppressAutomation {
		opts.SuppressAutomation()
	}
	opts.AddArgs(cfg.ExtraArgs...)
	return opts
}

// parseProxy turns an http://, https:// or socks5:// URL into a manual proxy
// setting.
func parseProxy(raw string) (selenium.Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return selenium.Proxy{}, fmt.Errorf("invalid proxy %q: %v", raw, err)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return selenium.Proxy{}, fmt.Errorf("invalid proxy %q: want scheme://host:port", raw)
	}
	switch u.Scheme {
	case "http", "https":
		return selenium.Proxy{Type: selenium.Manual, HTTP: u.Host, SSL: u.Host}, nil
	case "socks5", "socks5h":
		return selenium.Proxy{Type: selenium.Manual, SOCKS: u.Host, SOCKSVersion: 5}, nil
	}
	return selenium.Proxy{}, fmt.Errorf("unsupported proxy scheme %q in %q", u.Scheme, raw)
}
